// Package scheduler provides the rate-limited executor the decomposition
// pipeline pushes its external calls through. Slots bound concurrent
// invocations process-wide; transient failures retry with capped exponential
// backoff. Retry lives here and only here: the numeric core never retries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"prognos/internal/logging"
)

// Config bounds the executor.
type Config struct {
	MaxConcurrent int           // simultaneous invocations (matches provider limit)
	MaxRetries    int           // retries after the first attempt
	BaseBackoff   time.Duration // first retry delay, doubled per attempt
	MaxBackoff    time.Duration // backoff ceiling
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 5,
		MaxRetries:    2,
		BaseBackoff:   100 * time.Millisecond,
		MaxBackoff:    5 * time.Second,
	}
}

// Executor is a bounded-concurrency, cancellable, retryable invocation
// primitive. Shared, read-only configuration for the duration of a
// decomposition call.
type Executor struct {
	config Config
	slots  chan struct{}
	stopCh chan struct{}

	totalCalls   int64
	totalRetries int64
	totalWaitNs  int64
	activeCalls  int32
	waitingCalls int32
}

// New creates an executor with the given config.
func New(config Config) *Executor {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = 100 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Second
	}
	return &Executor{
		config: config,
		slots:  make(chan struct{}, config.MaxConcurrent),
		stopCh: make(chan struct{}),
	}
}

// Do runs fn under a slot, retrying transient failures. Context errors pass
// through unretried and unwrapped-able: a deadline hit inside fn surfaces so
// callers can distinguish TimedOut from Failed with errors.Is.
func (e *Executor) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := logging.Get(logging.CategoryScheduler)

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if err := e.acquire(ctx, name); err != nil {
			return err
		}

		err := fn(ctx)
		e.release()

		if err == nil {
			return nil
		}
		lastErr = err

		// Cancellation and deadline are not transient; the caller decides.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == e.config.MaxRetries {
			break
		}

		atomic.AddInt64(&e.totalRetries, 1)
		backoff := e.config.BaseBackoff << attempt
		if backoff > e.config.MaxBackoff {
			backoff = e.config.MaxBackoff
		}
		log.Debug("retrying after transient failure",
			zap.String("op", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, e.config.MaxRetries+1, lastErr)
}

// acquire blocks until a slot is free, the context ends, or the executor
// stops.
func (e *Executor) acquire(ctx context.Context, name string) error {
	waitStart := time.Now()
	atomic.AddInt32(&e.waitingCalls, 1)
	defer atomic.AddInt32(&e.waitingCalls, -1)

	select {
	case e.slots <- struct{}{}:
		wait := time.Since(waitStart)
		atomic.AddInt64(&e.totalWaitNs, int64(wait))
		atomic.AddInt32(&e.activeCalls, 1)
		if wait > 100*time.Millisecond {
			logging.Get(logging.CategoryScheduler).Debug("acquired slot after wait",
				zap.String("op", name), zap.Duration("wait", wait))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopCh:
		return fmt.Errorf("executor stopped")
	}
}

func (e *Executor) release() {
	select {
	case <-e.slots:
	default:
		logging.Get(logging.CategoryScheduler).Error("slot released without being held")
		return
	}
	atomic.AddInt32(&e.activeCalls, -1)
	atomic.AddInt64(&e.totalCalls, 1)
}

// Stop shuts the executor down; pending acquires fail.
func (e *Executor) Stop() {
	close(e.stopCh)
}

// Metrics is a point-in-time snapshot.
type Metrics struct {
	MaxSlots     int
	ActiveSlots  int
	Waiting      int
	TotalCalls   int64
	TotalRetries int64
	TotalWaitNs  int64
}

// Snapshot returns current metrics.
func (e *Executor) Snapshot() Metrics {
	return Metrics{
		MaxSlots:     e.config.MaxConcurrent,
		ActiveSlots:  int(atomic.LoadInt32(&e.activeCalls)),
		Waiting:      int(atomic.LoadInt32(&e.waitingCalls)),
		TotalCalls:   atomic.LoadInt64(&e.totalCalls),
		TotalRetries: atomic.LoadInt64(&e.totalRetries),
		TotalWaitNs:  atomic.LoadInt64(&e.totalWaitNs),
	}
}

// String returns a human-readable summary.
func (m Metrics) String() string {
	avgWait := time.Duration(0)
	if m.TotalCalls > 0 {
		avgWait = time.Duration(m.TotalWaitNs / m.TotalCalls)
	}
	return fmt.Sprintf("slots=%d/%d, waiting=%d, calls=%d, retries=%d, avg_wait=%v",
		m.ActiveSlots, m.MaxSlots, m.Waiting, m.TotalCalls, m.TotalRetries, avgWait)
}
