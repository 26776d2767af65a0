// Package engine drives one question through the full pipeline: elicit
// inputs from the agent, synthesize or decompose, aggregate, and hand back a
// submittable forecast.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"prognos/internal/agent"
	"prognos/internal/aggregate"
	"prognos/internal/decompose"
	"prognos/internal/dist"
	"prognos/internal/forecast"
	"prognos/internal/logging"
)

// Question is one forecastable unit as loaded from the question file.
type Question struct {
	ID        string
	Kind      forecast.QuestionKind
	Prompt    string
	Options   []string // categorical only
	Bounds    *forecast.DistributionBounds
	Decompose bool
	MaxSubs   int
}

// Engine wires the pipeline components. All configuration is explicit; the
// engine holds no ambient state.
type Engine struct {
	elicitor *agent.Elicitor
	coord    *decompose.Coordinator
	policy   dist.Policy
	maxDepth int
}

// New creates an engine.
func New(elicitor *agent.Elicitor, coord *decompose.Coordinator, policy dist.Policy, maxDepth int) *Engine {
	if maxDepth < 1 {
		maxDepth = 1
	}
	return &Engine{
		elicitor: elicitor,
		coord:    coord,
		policy:   policy,
		maxDepth: maxDepth,
	}
}

// Forecast produces the aggregate forecast for q. Decomposition fans out
// through the coordinator under a fresh recursion guard; direct questions go
// straight to elicitation and synthesis.
func (e *Engine) Forecast(ctx context.Context, q Question) (forecast.AggregateForecast, error) {
	if !q.Kind.Valid() {
		return forecast.AggregateForecast{}, forecast.Validationf("kind", "unknown question kind %q", q.Kind)
	}

	guard := forecast.RecursionGuard{MaxDepth: e.maxDepth}
	if q.Decompose {
		return e.forecastDecomposed(ctx, q, guard)
	}
	return e.forecastDirect(ctx, q)
}

// forecastDecomposed proposes sub-questions, runs them in parallel, and
// aggregates the partial results. Proposed kinds are coerced to the parent
// kind so every branch produces signal the aggregate can use.
func (e *Engine) forecastDecomposed(ctx context.Context, q Question, guard forecast.RecursionGuard) (forecast.AggregateForecast, error) {
	log := logging.Get(logging.CategoryForecast)

	maxSubs := q.MaxSubs
	if maxSubs <= 0 {
		maxSubs = 4
	}

	subs, err := e.elicitor.ProposeSubQuestions(ctx, q.Prompt, maxSubs, guard.CurrentDepth+1)
	if err != nil {
		return forecast.AggregateForecast{}, fmt.Errorf("sub-question proposal failed: %w", err)
	}
	if len(subs) == 0 {
		log.Warn("agent proposed no sub-questions, forecasting directly",
			zap.String("question", q.ID))
		return e.forecastDirect(ctx, q)
	}

	weights := make(map[string]float64, len(subs))
	for i := range subs {
		subs[i].Kind = q.Kind
		if subs[i].Bounds == nil {
			subs[i].Bounds = q.Bounds
		}
		weights[subs[i].ID] = subs[i].Weight
	}

	results, err := e.coord.Decompose(ctx, subs, guard, e.spawnSub(q))
	if err != nil {
		return forecast.AggregateForecast{}, err
	}

	agg, err := aggregate.Aggregate(results, weights, q.Kind, e.policy)
	if err != nil {
		return forecast.AggregateForecast{}, err
	}

	log.Info("decomposed forecast aggregated",
		zap.String("question", q.ID),
		zap.Int("branches", len(results)),
		zap.Bool("degraded", agg.Degraded))
	return agg, nil
}

// spawnSub builds the SpawnFunc for one parent question: each sub-question
// is forecast directly, as its own unit, under the coordinator's timeout.
func (e *Engine) spawnSub(parent Question) decompose.SpawnFunc {
	return func(ctx context.Context, sub forecast.SubQuestion) (forecast.PartialResult, error) {
		q := Question{
			ID:      sub.ID,
			Kind:    sub.Kind,
			Prompt:  sub.Prompt,
			Options: parent.Options,
			Bounds:  sub.Bounds,
		}
		agg, err := e.forecastDirect(ctx, q)
		if err != nil {
			return forecast.PartialResult{}, err
		}
		return forecast.PartialResult{
			SubQuestionID: sub.ID,
			Status:        forecast.StatusOk,
			Prob:          agg.Prob,
			CDF:           agg.CDF,
			Categories:    agg.Categories,
			Degraded:      agg.Degraded,
		}, nil
	}
}

// forecastDirect elicits inputs for one question and synthesizes the output
// without decomposition.
func (e *Engine) forecastDirect(ctx context.Context, q Question) (forecast.AggregateForecast, error) {
	switch q.Kind {
	case forecast.KindBinary:
		p, err := e.elicitor.ElicitBinary(ctx, q.Prompt)
		if err != nil {
			return forecast.AggregateForecast{}, err
		}
		return forecast.AggregateForecast{Kind: forecast.KindBinary, Prob: &p}, nil

	case forecast.KindNumeric:
		if q.Bounds == nil {
			return forecast.AggregateForecast{}, forecast.Validationf("bounds", "numeric question %s has no bounds", q.ID)
		}
		estimates, err := e.elicitor.ElicitPercentiles(ctx, q.Prompt, *q.Bounds)
		if err != nil {
			return forecast.AggregateForecast{}, err
		}
		cdf, degraded, err := dist.Synthesize(estimates, *q.Bounds, e.policy)
		if err != nil {
			return forecast.AggregateForecast{}, err
		}
		if degraded {
			logging.Get(logging.CategoryForecast).Warn("synthesis degraded to uniform fallback",
				zap.String("question", q.ID))
		}
		return forecast.AggregateForecast{Kind: forecast.KindNumeric, CDF: cdf, Degraded: degraded}, nil

	case forecast.KindCategorical:
		probs, err := e.elicitor.ElicitCategorical(ctx, q.Prompt, q.Options)
		if err != nil {
			return forecast.AggregateForecast{}, err
		}
		return forecast.AggregateForecast{
			Kind:       forecast.KindCategorical,
			Categories: normalize(probs),
		}, nil
	}

	return forecast.AggregateForecast{}, forecast.Validationf("kind", "unknown question kind %q", q.Kind)
}

// normalize scales a category map to sum to 1.
func normalize(probs map[string]float64) map[string]float64 {
	var sum float64
	for _, v := range probs {
		sum += v
	}
	if sum <= 0 {
		// No mass anywhere; spread it evenly.
		out := make(map[string]float64, len(probs))
		for k := range probs {
			out[k] = 1 / float64(len(probs))
		}
		return out
	}
	out := make(map[string]float64, len(probs))
	for k, v := range probs {
		out[k] = v / sum
	}
	return out
}
