// Package postgres wraps the pgx connection pool shared by the ingestor,
// classifier, and trainer: raw_candles persistence and the model_registry
// atomic-promotion contract.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sithhades/regime-classifier/internal/model"
)

// Store wraps a pgxpool.Pool with the queries the pipeline needs.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and returns a Store. Callers must call
// EnsureSchema before first use.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates raw_candles and model_registry if they don't exist
// yet, and best-effort converts raw_candles into a TimescaleDB hypertable.
// Both statements are idempotent so every service can call this at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS raw_candles (
			time      TIMESTAMPTZ       NOT NULL,
			symbol    TEXT              NOT NULL,
			exchange  TEXT              NOT NULL,
			timeframe TEXT              NOT NULL,
			open      DOUBLE PRECISION  NOT NULL,
			high      DOUBLE PRECISION  NOT NULL,
			low       DOUBLE PRECISION  NOT NULL,
			close     DOUBLE PRECISION  NOT NULL,
			volume    DOUBLE PRECISION  NOT NULL,
			UNIQUE (time, symbol, exchange, timeframe)
		);
	`)
	if err != nil {
		return fmt.Errorf("postgres: ensure raw_candles: %w", err)
	}

	// TimescaleDB extension may not be installed; a failure here is
	// expected on plain Postgres and is not fatal.
	_, _ = s.pool.Exec(ctx, `SELECT create_hypertable('raw_candles', 'time', if_not_exists => TRUE);`)

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS model_registry (
			id         SERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			algorithm  TEXT        NOT NULL,
			parameters JSONB       NOT NULL,
			is_active  BOOLEAN     NOT NULL DEFAULT FALSE
		);
	`)
	if err != nil {
		return fmt.Errorf("postgres: ensure model_registry: %w", err)
	}

	return nil
}

// InsertCandle inserts a candle, silently ignoring conflicts on the unique
// key (time, symbol, exchange, timeframe) so retries and duplicate frames
// are safe.
func (s *Store) InsertCandle(ctx context.Context, c model.Candle) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO raw_candles (time, symbol, exchange, timeframe, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (time, symbol, exchange, timeframe) DO NOTHING
	`, c.Timestamp, c.Symbol, c.Exchange, c.Timeframe, c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("postgres: insert candle: %w", err)
	}
	return nil
}

// RecentCandles fetches the last `limit` candles for (symbol, timeframe),
// sorted oldest-first, as the classifier's history merge requires.
func (s *Store) RecentCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT time, symbol, exchange, timeframe, open, high, low, close, volume
		FROM raw_candles
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY time DESC
		LIMIT $3
	`, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Timestamp, &c.Symbol, &c.Exchange, &c.Timeframe, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent candles rows: %w", err)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

// CandlesSince fetches every candle at or after `since`, used by the trainer
// for its historical lookback window. Ordering is not significant here; the
// caller groups by symbol and sorts before feature computation.
func (s *Store) CandlesSince(ctx context.Context, since time.Time) ([]model.Candle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT time, symbol, exchange, timeframe, open, high, low, close, volume
		FROM raw_candles
		WHERE time >= $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: candles since: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Timestamp, &c.Symbol, &c.Exchange, &c.Timeframe, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ErrNoActiveModel is returned by ActiveModel when no row is active.
var ErrNoActiveModel = fmt.Errorf("postgres: no active model")

// ActiveModel fetches the currently active model_registry row.
func (s *Store) ActiveModel(ctx context.Context) (model.ModelRecord, error) {
	var rec model.ModelRecord
	var params []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at, algorithm, parameters, is_active
		FROM model_registry
		WHERE is_active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&rec.ID, &rec.CreatedAt, &rec.Algorithm, &params, &rec.IsActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.ModelRecord{}, ErrNoActiveModel
		}
		return model.ModelRecord{}, fmt.Errorf("postgres: active model: %w", err)
	}

	if err := unmarshalParameters(params, &rec.Parameters); err != nil {
		return model.ModelRecord{}, fmt.Errorf("postgres: active model parameters: %w", err)
	}
	return rec, nil
}

// PromoteModel atomically deactivates the current active model (if any) and
// inserts the new one as active, in a single transaction — readers always
// see either the old row or the new row, never zero or two.
func (s *Store) PromoteModel(ctx context.Context, algorithm string, params model.ModelParameters) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin promote: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE model_registry SET is_active = FALSE WHERE is_active = TRUE`); err != nil {
		return fmt.Errorf("postgres: deactivate model: %w", err)
	}

	encoded, err := marshalParameters(params)
	if err != nil {
		return fmt.Errorf("postgres: marshal parameters: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO model_registry (created_at, algorithm, parameters, is_active)
		VALUES ($1, $2, $3, TRUE)
	`, time.Now().UTC(), algorithm, encoded); err != nil {
		return fmt.Errorf("postgres: insert model: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit promote: %w", err)
	}
	return nil
}
