// Package exchange maintains the WebSocket subscription to the exchange's
// kline stream and extracts closed candles, adapted from the teacher's
// Binance futures trade/depth connector for the kline/OHLCV use case.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connector maintains a reconnecting WebSocket subscription to a combined
// kline stream for a set of symbols, handing every text frame to the
// callback passed to Run.
type Connector struct {
	baseURL   string
	symbols   []string
	interval  string
	logger    *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	// OnReconnect, if set, is called once per successful dial that follows an
	// earlier successful dial in the same Run call (i.e. not the initial
	// connection). Failed dial attempts do not call it.
	OnReconnect func()
}

// New builds a Connector for the given base URL, symbols (exchange-native,
// e.g. "btcusdt"), and kline interval (e.g. "1h").
func New(baseURL string, symbols []string, interval string, logger *zap.Logger) *Connector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{
		baseURL:  baseURL,
		symbols:  symbols,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// URL composes the combined-stream WebSocket URL from {base, symbols, interval}.
func (c *Connector) URL() string {
	streams := make([]string, len(c.symbols))
	for i, s := range c.symbols {
		streams[i] = fmt.Sprintf("%s@kline_%s", s, c.interval)
	}
	return fmt.Sprintf("%s/stream?streams=%s", strings.TrimRight(c.baseURL, "/"), strings.Join(streams, "/"))
}

func (c *Connector) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	headers := http.Header{}
	headers.Set("User-Agent", "regime-classifier-ingestor/1.0")

	conn, _, err := dialer.DialContext(ctx, c.URL(), headers)
	if err != nil {
		return nil, fmt.Errorf("exchange: dial: %w", err)
	}
	conn.SetReadLimit(655350)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	return conn, nil
}

// Run connects and dispatches every text frame to onMessage until the
// context is cancelled or Stop is called. On any read error it backs off
// exponentially (1s, 2s, 4s, ... capped at 60s) and reconnects; a successful
// message resets the backoff to 1s. Shutdown during backoff returns promptly.
func (c *Connector) Run(ctx context.Context, onMessage func([]byte)) error {
	backoff := time.Second
	first := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.ctx.Done():
			return nil
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Error("websocket connect failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !c.sleep(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if !first && c.OnReconnect != nil {
			c.OnReconnect()
		}
		first = false

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		go c.pingLoop(ctx, conn)

		err = c.readLoop(ctx, conn, onMessage, &backoff)
		conn.Close()
		if err != nil {
			c.logger.Warn("websocket read loop ended", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.ctx.Done():
			return nil
		default:
		}

		if !c.sleep(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff)
	}
}

func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn, onMessage func([]byte), backoff *time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.ctx.Done():
			return nil
		default:
		}

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		onMessage(message)
		*backoff = time.Second
	}
}

func (c *Connector) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// sleep waits for `d` or returns false early if ctx/Stop fires first.
func (c *Connector) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.ctx.Done():
		return false
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > 60*time.Second {
		return 60 * time.Second
	}
	return next
}

// Stop requests cooperative shutdown: the in-flight message completes, then
// the loop exits.
func (c *Connector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
}
