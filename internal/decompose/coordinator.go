// Package decompose coordinates parallel sub-forecast execution under depth
// and fan-out limits. The coordinator only collects attempts; it has no
// notion of the final answer, which belongs to the aggregator.
package decompose

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"prognos/internal/forecast"
	"prognos/internal/logging"
)

// SpawnFunc executes one sub-question and returns its result. The callback
// is expected to honor ctx and to surface deadline hits as
// context.DeadlineExceeded so the coordinator can classify them.
type SpawnFunc func(ctx context.Context, sub forecast.SubQuestion) (forecast.PartialResult, error)

// Config bounds one coordinator. All knobs are construction-time
// configuration; nothing here reads ambient process state.
type Config struct {
	MaxFanOut   int           // concurrent units per decomposition step
	UnitTimeout time.Duration // per-unit deadline
	GracePeriod time.Duration // wait on in-flight units after parent cancellation
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxFanOut:   4,
		UnitTimeout: 5 * time.Minute,
		GracePeriod: 2 * time.Second,
	}
}

// Coordinator fans sub-questions out to a bounded worker pool and collects
// their results in request order.
type Coordinator struct {
	config Config
	sem    *semaphore.Weighted
}

// New creates a coordinator.
func New(config Config) *Coordinator {
	if config.MaxFanOut < 1 {
		config.MaxFanOut = 1
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = 2 * time.Second
	}
	return &Coordinator{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxFanOut)),
	}
}

type indexedResult struct {
	index  int
	result forecast.PartialResult
}

// Decompose runs every sub-question through spawn under the fan-out cap.
//
// A guard at its depth budget is rejected before any unit is scheduled.
// Each unit runs under its own timeout; one branch timing out or failing
// never blocks or invalidates its siblings. The returned slice preserves the
// request order of subs regardless of completion order. On parent
// cancellation the coordinator waits at most GracePeriod for in-flight
// units, then marks the stragglers Failed and returns.
func (c *Coordinator) Decompose(ctx context.Context, subs []forecast.SubQuestion, guard forecast.RecursionGuard, spawn SpawnFunc) ([]forecast.PartialResult, error) {
	log := logging.Get(logging.CategoryDecompose)

	if guard.Exhausted() {
		log.Warn("decomposition rejected",
			zap.Int("depth", guard.CurrentDepth),
			zap.Int("max_depth", guard.MaxDepth))
		return nil, forecast.ErrRecursionLimit
	}
	if len(subs) == 0 {
		return []forecast.PartialResult{}, nil
	}

	log.Info("decomposing",
		zap.Int("sub_questions", len(subs)),
		zap.Int("depth", guard.CurrentDepth),
		zap.Int("fan_out_cap", c.config.MaxFanOut))

	// Buffered so a unit finishing after the grace period has somewhere to
	// send its result; it exits instead of leaking.
	resultCh := make(chan indexedResult, len(subs))

	for i, sub := range subs {
		go func(i int, sub forecast.SubQuestion) {
			resultCh <- indexedResult{index: i, result: c.runUnit(ctx, sub, spawn)}
		}(i, sub)
	}

	results := make([]forecast.PartialResult, len(subs))
	collected := make([]bool, len(subs))
	pending := len(subs)

	var graceTimer <-chan time.Time
	for pending > 0 {
		select {
		case ir := <-resultCh:
			results[ir.index] = ir.result
			collected[ir.index] = true
			pending--
		case <-ctx.Done():
			if graceTimer == nil {
				graceTimer = time.After(c.config.GracePeriod)
				continue
			}
			// Already draining; keep receiving until the timer fires.
			select {
			case ir := <-resultCh:
				results[ir.index] = ir.result
				collected[ir.index] = true
				pending--
			case <-graceTimer:
				pending = 0
			}
		}
	}

	abandoned := 0
	for i := range results {
		if !collected[i] {
			abandoned++
			results[i] = forecast.PartialResult{
				SubQuestionID: subs[i].ID,
				Status:        forecast.StatusFailed,
				Err:           ctx.Err(),
			}
		}
	}
	if abandoned > 0 {
		log.Warn("abandoned in-flight units after grace period",
			zap.Int("abandoned", abandoned),
			zap.Duration("grace", c.config.GracePeriod))
	}

	return results, nil
}

// runUnit executes a single sub-question under the fan-out semaphore and its
// own deadline, classifying the outcome into the PartialResult statuses.
func (c *Coordinator) runUnit(ctx context.Context, sub forecast.SubQuestion, spawn SpawnFunc) forecast.PartialResult {
	log := logging.Get(logging.CategoryDecompose)

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return forecast.PartialResult{SubQuestionID: sub.ID, Status: forecast.StatusFailed, Err: err}
	}
	defer c.sem.Release(1)

	unitCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.config.UnitTimeout > 0 {
		unitCtx, cancel = context.WithTimeout(ctx, c.config.UnitTimeout)
	}
	defer cancel()

	start := time.Now()
	res, err := spawn(unitCtx, sub)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		if res.SubQuestionID == "" {
			res.SubQuestionID = sub.ID
		}
		if res.Status == "" {
			res.Status = forecast.StatusOk
		}
		log.Debug("unit completed",
			zap.String("sub_question", sub.ID),
			zap.Duration("took", elapsed))
		return res

	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// The unit's own deadline, not the parent's.
		log.Warn("unit timed out",
			zap.String("sub_question", sub.ID),
			zap.Duration("timeout", c.config.UnitTimeout))
		return forecast.PartialResult{SubQuestionID: sub.ID, Status: forecast.StatusTimedOut, Err: err}

	default:
		log.Warn("unit failed",
			zap.String("sub_question", sub.ID),
			zap.Error(err))
		return forecast.PartialResult{SubQuestionID: sub.ID, Status: forecast.StatusFailed, Err: err}
	}
}
