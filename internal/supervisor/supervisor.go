// Package supervisor restarts a long-running worker function with
// exponential backoff when it returns an error, so a transient failure in
// one process's main loop (ingestor, classifier) doesn't require an
// external process manager to recover from.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WorkerFunc is a supervised long-running function; a non-nil, non-context.Canceled
// return triggers a backoff-and-restart.
type WorkerFunc func(ctx context.Context) error

// WorkerConfig controls one worker's restart policy.
type WorkerConfig struct {
	Name           string
	MaxRetries     int // 0 means unlimited
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// WorkerStatus is the lifecycle state of a supervised worker.
type WorkerStatus string

const (
	StatusStopped  WorkerStatus = "stopped"
	StatusRunning  WorkerStatus = "running"
	StatusRetrying WorkerStatus = "retrying"
	StatusFailed   WorkerStatus = "failed"
)

type worker struct {
	config    WorkerConfig
	fn        WorkerFunc
	mu        sync.RWMutex
	status    WorkerStatus
	retries   int
	lastError error
	startTime time.Time
}

func (w *worker) setStatus(s WorkerStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

// Supervisor runs a fixed set of workers, added before Start, restarting
// each one on failure until its context is cancelled or its retry budget
// is exhausted.
type Supervisor struct {
	logger  *zap.Logger
	workers map[string]*worker
	mu      sync.RWMutex
	started bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds a Supervisor.
func New(logger *zap.Logger) *Supervisor {
	return &Supervisor{logger: logger, workers: make(map[string]*worker)}
}

// AddWorker registers a worker. Must be called before Start.
func (s *Supervisor) AddWorker(cfg WorkerConfig, fn WorkerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("supervisor: cannot add worker after Start")
	}
	if _, exists := s.workers[cfg.Name]; exists {
		return fmt.Errorf("supervisor: worker %q already registered", cfg.Name)
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = 2
	}

	s.workers[cfg.Name] = &worker{config: cfg, fn: fn, status: StatusStopped}
	return nil
}

// Start launches every registered worker under ctx.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		s.wg.Add(1)
		go s.run(w)
	}
	return nil
}

// Stop cancels every worker and waits up to 30s for them to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn("supervisor: timed out waiting for workers to stop")
	}
}

func (s *Supervisor) run(w *worker) {
	defer s.wg.Done()
	logger := s.logger.With(zap.String("worker", w.config.Name))

	for {
		select {
		case <-s.ctx.Done():
			w.setStatus(StatusStopped)
			return
		default:
		}

		if w.config.MaxRetries > 0 && w.retries >= w.config.MaxRetries {
			w.setStatus(StatusFailed)
			logger.Error("supervisor: worker exhausted retries", zap.Int("retries", w.retries), zap.Error(w.lastError))
			return
		}

		w.setStatus(StatusRunning)
		w.startTime = time.Now()
		err := s.execute(w, logger)

		if err == nil || err == context.Canceled {
			w.setStatus(StatusStopped)
			return
		}

		w.lastError = err
		w.retries++
		w.setStatus(StatusRetrying)
		backoff := calculateBackoff(w.retries, w.config)
		logger.Warn("supervisor: worker failed, restarting", zap.Error(err), zap.Int("retries", w.retries), zap.Duration("backoff", backoff))

		select {
		case <-time.After(backoff):
		case <-s.ctx.Done():
			w.setStatus(StatusStopped)
			return
		}
	}
}

func (s *Supervisor) execute(w *worker, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("supervisor: worker panicked", zap.Any("panic", r))
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()
	return w.fn(s.ctx)
}

func calculateBackoff(retries int, cfg WorkerConfig) time.Duration {
	backoff := cfg.InitialBackoff
	for i := 0; i < retries-1; i++ {
		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if backoff > cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	return backoff
}

// Status returns the current status of a registered worker.
func (s *Supervisor) Status(name string) (WorkerStatus, error) {
	s.mu.RLock()
	w, exists := s.workers[name]
	s.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("supervisor: worker %q not found", name)
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status, nil
}
