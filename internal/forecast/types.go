// Package forecast defines the shared data model for the distribution
// synthesis and decomposition engine: question kinds, bounds, percentile
// estimates, sub-question units, and the typed error taxonomy.
package forecast

import (
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// QUESTION MODEL
// =============================================================================

// QuestionKind is the tagged variant for forecast payloads. Internal logic
// switches on this, never on untyped maps from the LLM layer.
type QuestionKind string

const (
	KindBinary      QuestionKind = "binary"
	KindNumeric     QuestionKind = "numeric"
	KindCategorical QuestionKind = "categorical"
)

// Valid reports whether the kind is one of the three supported variants.
func (k QuestionKind) Valid() bool {
	switch k {
	case KindBinary, KindNumeric, KindCategorical:
		return true
	}
	return false
}

// DefaultOutcomeCount is the bucket resolution for continuous questions when
// the question metadata does not specify one.
const DefaultOutcomeCount = 201

// DistributionBounds carries the bound/scale metadata for a numeric question.
// Constructed once from question metadata and treated as immutable.
type DistributionBounds struct {
	Lower        *float64
	Upper        *float64
	LowerOpen    bool
	UpperOpen    bool
	LogScale     bool
	OutcomeCount int
}

// NewBounds builds closed bounds over [lower, upper] at the default
// resolution. Callers adjust openness/scale on the returned value before
// first use.
func NewBounds(lower, upper float64) DistributionBounds {
	lo, hi := lower, upper
	return DistributionBounds{
		Lower:        &lo,
		Upper:        &hi,
		OutcomeCount: DefaultOutcomeCount,
	}
}

// Resolution returns the effective bucket count.
func (b DistributionBounds) Resolution() int {
	if b.OutcomeCount > 0 {
		return b.OutcomeCount
	}
	return DefaultOutcomeCount
}

// PercentileEstimate is one human/agent-supplied claim: the true value has
// cumulative probability Percentile of being at most Value.
type PercentileEstimate struct {
	Percentile float64 `json:"percentile"`
	Value      float64 `json:"value"`
}

// ContinuousCDF is a fixed-length cumulative distribution: OutcomeCount
// floats in [0,1], non-decreasing, with a minimum enforced gap between
// consecutive entries. Derived artifact; adjustments produce a new slice.
type ContinuousCDF []float64

// Clone returns an independent copy.
func (c ContinuousCDF) Clone() ContinuousCDF {
	out := make(ContinuousCDF, len(c))
	copy(out, c)
	return out
}

// =============================================================================
// DECOMPOSITION MODEL
// =============================================================================

// SubQuestion is one decomposition unit. Owned by the coordinator for the
// duration of its task; results come back by value.
type SubQuestion struct {
	ID     string
	Kind   QuestionKind
	Bounds *DistributionBounds
	Weight float64
	Depth  int
	Prompt string
}

// NewSubQuestion assigns a fresh ID for a proposed unit.
func NewSubQuestion(kind QuestionKind, prompt string, weight float64, depth int) SubQuestion {
	return SubQuestion{
		ID:     fmt.Sprintf("sub_%s", uuid.New().String()[:8]),
		Kind:   kind,
		Prompt: prompt,
		Weight: weight,
		Depth:  depth,
	}
}

// ResultStatus records how a sub-question attempt ended.
type ResultStatus string

const (
	StatusOk       ResultStatus = "ok"
	StatusTimedOut ResultStatus = "timed_out"
	StatusFailed   ResultStatus = "failed"
)

// PartialResult is the outcome of one sub-question attempt. Produced once,
// immutable afterward; exactly one of Prob/CDF/Categories is set when Ok.
type PartialResult struct {
	SubQuestionID string
	Status        ResultStatus
	Prob          *float64
	CDF           ContinuousCDF
	Categories    map[string]float64
	Degraded      bool
	Err           error
}

// Usable reports whether the result carries signal the aggregator may use.
func (r PartialResult) Usable() bool {
	return r.Status == StatusOk
}

// AggregateForecast is the combined output handed to the submission boundary.
type AggregateForecast struct {
	Kind       QuestionKind
	Prob       *float64
	CDF        ContinuousCDF
	Categories map[string]float64
	Degraded   bool
}

// =============================================================================
// RECURSION GUARD
// =============================================================================

// RecursionGuard bounds decomposition depth. Passed by value down the call
// chain; never a global counter.
type RecursionGuard struct {
	CurrentDepth int
	MaxDepth     int
}

// Child returns the guard for one level deeper.
func (g RecursionGuard) Child() RecursionGuard {
	return RecursionGuard{CurrentDepth: g.CurrentDepth + 1, MaxDepth: g.MaxDepth}
}

// Exhausted reports whether a further decomposition step would exceed the
// depth budget.
func (g RecursionGuard) Exhausted() bool {
	return g.CurrentDepth >= g.MaxDepth
}
