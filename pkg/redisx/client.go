// Package redisx wraps go-redis with the stream, consumer-group, and KV
// operations the pipeline needs: the ingestor's XADD, the classifier's
// consumer-group read/ack loop, and the regime result SET EX.
package redisx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps a *redis.Client with the pipeline's vocabulary of operations.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New parses a redis:// URL and connects, verifying reachability with a ping.
func New(ctx context.Context, redisURL string, logger *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redisx: parse url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redisx: connect: %w", err)
	}

	logger.Info("redis client connected", zap.String("addr", opts.Addr))
	return &Client{rdb: rdb, logger: logger}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// XAddApproxTrim appends one entry to `stream` with the given field map,
// approx-trimming the stream to maxLen as spec.md section 5 requires.
func (c *Client) XAddApproxTrim(ctx context.Context, stream string, values map[string]interface{}, maxLen int64) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: values,
	}
	if err := c.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redisx: xadd %s: %w", stream, err)
	}
	return nil
}

// EnsureGroup creates the consumer group starting at id "0" if it doesn't
// exist yet; a BUSYGROUP error (group already exists) is swallowed.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redisx: ensure group %s on %s: %w", group, stream, err)
	}
	return nil
}

// StreamEntry is one message delivered to a consumer group.
type StreamEntry struct {
	ID     string
	Values map[string]interface{}
}

// ReadGroup blocks up to `block` for up to `count` new entries (id ">")
// addressed to `consumer` in `group`. A nil, nil return means the block
// timeout elapsed with no new messages — callers should loop and retry,
// which also gives the outer loop a chance to observe shutdown.
func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redisx: xreadgroup: %w", err)
	}

	var entries []StreamEntry
	for _, s := range res {
		for _, msg := range s.Messages {
			entries = append(entries, StreamEntry{ID: msg.ID, Values: msg.Values})
		}
	}
	return entries, nil
}

// Ack acknowledges a processed message id.
func (c *Client) Ack(ctx context.Context, stream, group, id string) error {
	if err := c.rdb.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("redisx: xack %s: %w", id, err)
	}
	return nil
}

// SetJSONWithTTL SETs key to the already-encoded JSON bytes in value with
// the given TTL, replacing any prior value — the regime-result write path.
func (c *Client) SetJSONWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redisx: set %s: %w", key, err)
	}
	return nil
}

// GetJSON fetches a raw JSON value, returning (nil, nil) if the key is
// absent — the gateway's "no regime available" contract.
func (c *Client) GetJSON(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redisx: get %s: %w", key, err)
	}
	return data, nil
}
