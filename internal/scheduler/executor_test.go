package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDoRespectsSlotCap(t *testing.T) {
	e := New(Config{MaxConcurrent: 2, MaxRetries: 0, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	defer e.Stop()

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Do(context.Background(), "op", func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("peak concurrency %d exceeds slot cap 2", got)
	}

	m := e.Snapshot()
	if m.TotalCalls != 8 {
		t.Errorf("TotalCalls = %d, want 8", m.TotalCalls)
	}
	if m.ActiveSlots != 0 {
		t.Errorf("ActiveSlots = %d after drain", m.ActiveSlots)
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	e := New(Config{MaxConcurrent: 1, MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	defer e.Stop()

	var attempts int32
	err := e.Do(context.Background(), "flaky", func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if m := e.Snapshot(); m.TotalRetries != 2 {
		t.Errorf("TotalRetries = %d, want 2", m.TotalRetries)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	e := New(Config{MaxConcurrent: 1, MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	defer e.Stop()

	boom := errors.New("still broken")
	var attempts int32
	err := e.Do(context.Background(), "broken", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped original error, got %v", err)
	}
	if !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("error %q should name the attempt count", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestDoContextErrorsPassThroughUnretried(t *testing.T) {
	e := New(Config{MaxConcurrent: 1, MaxRetries: 5, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	defer e.Stop()

	var attempts int32
	err := e.Do(context.Background(), "deadline", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("deadline must surface for classification, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, deadline must not retry", got)
	}
}

func TestDoCancelledBeforeAcquire(t *testing.T) {
	e := New(Config{MaxConcurrent: 1, MaxRetries: 0, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	defer e.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Do(ctx, "cancelled", func(ctx context.Context) error {
		t.Error("fn must not run with a dead context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestStopFailsPendingAcquires(t *testing.T) {
	e := New(Config{MaxConcurrent: 1, MaxRetries: 0, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = e.Do(context.Background(), "holder", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Do(context.Background(), "waiter", func(ctx context.Context) error { return nil })
	}()

	time.Sleep(5 * time.Millisecond)
	e.Stop()

	if err := <-errCh; err == nil || !strings.Contains(err.Error(), "stopped") {
		t.Errorf("want stopped error, got %v", err)
	}
	close(release)
}

func TestMetricsString(t *testing.T) {
	m := Metrics{MaxSlots: 5, ActiveSlots: 2, TotalCalls: 10, TotalRetries: 1}
	s := m.String()
	if !strings.Contains(s, "slots=2/5") || !strings.Contains(s, "retries=1") {
		t.Errorf("String() = %q", s)
	}
}
