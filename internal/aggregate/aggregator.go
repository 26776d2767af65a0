// Package aggregate combines partial sub-forecast results into one
// AggregateForecast. Pure and synchronous, like dist; the coordinator owns
// all concurrency and hands results over by value.
package aggregate

import (
	"sort"

	"prognos/internal/dist"
	"prognos/internal/forecast"
)

// Aggregate merges the usable subset of results into a single forecast of
// the given kind. Weights are keyed by sub-question ID and renormalized over
// the Ok subset only: a failed or timed-out branch is excluded from the
// denominator, not counted as zero. Missing or non-positive weights mean
// equal weighting.
//
// The one hard failure is no usable signal at all, which returns an
// AggregationError. A degraded flag on any contributing result propagates to
// the aggregate.
func Aggregate(results []forecast.PartialResult, weights map[string]float64, kind forecast.QuestionKind, policy dist.Policy) (forecast.AggregateForecast, error) {
	if !kind.Valid() {
		return forecast.AggregateForecast{}, forecast.Validationf("kind", "unknown question kind %q", kind)
	}

	usable := make([]forecast.PartialResult, 0, len(results))
	for _, r := range results {
		if r.Usable() && hasPayload(r, kind) {
			usable = append(usable, r)
		}
	}
	if len(usable) == 0 {
		return forecast.AggregateForecast{}, &forecast.AggregationError{Kind: kind, Attempts: len(results)}
	}

	degraded := false
	for _, r := range usable {
		if r.Degraded {
			degraded = true
		}
	}

	agg := forecast.AggregateForecast{Kind: kind, Degraded: degraded}
	switch kind {
	case forecast.KindBinary:
		p := combineBinary(usable, weights)
		agg.Prob = &p
	case forecast.KindNumeric:
		cdf, repaired, err := combineNumeric(usable, weights, policy)
		if err != nil {
			return forecast.AggregateForecast{}, err
		}
		agg.CDF = cdf
		if !repaired {
			agg.Degraded = true
		}
	case forecast.KindCategorical:
		agg.Categories = combineCategorical(usable, weights)
	}

	return agg, nil
}

// hasPayload checks the tagged variant actually carries the field the kind
// requires. A malformed Ok result is ignored rather than aggregated.
func hasPayload(r forecast.PartialResult, kind forecast.QuestionKind) bool {
	switch kind {
	case forecast.KindBinary:
		return r.Prob != nil
	case forecast.KindNumeric:
		return len(r.CDF) > 0
	case forecast.KindCategorical:
		return len(r.Categories) > 0
	}
	return false
}

// weightFor resolves the effective weight of one result.
func weightFor(r forecast.PartialResult, weights map[string]float64) float64 {
	if w, ok := weights[r.SubQuestionID]; ok && w > 0 {
		return w
	}
	return 1
}

func combineBinary(usable []forecast.PartialResult, weights map[string]float64) float64 {
	var sum, totalW float64
	for _, r := range usable {
		w := weightFor(r, weights)
		sum += w * (*r.Prob)
		totalW += w
	}
	return sum / totalW
}

// combineNumeric takes the pointwise weighted mixture of the CDFs, then
// re-applies the minimum-gap repair: a mixture of monotone sequences stays
// monotone, but the gap property does not survive averaging.
func combineNumeric(usable []forecast.PartialResult, weights map[string]float64, policy dist.Policy) (forecast.ContinuousCDF, bool, error) {
	n := len(usable[0].CDF)
	for _, r := range usable {
		if len(r.CDF) != n {
			return nil, false, forecast.Validationf("cdf", "sub-forecast %s has %d buckets, want %d", r.SubQuestionID, len(r.CDF), n)
		}
	}

	mix := make(forecast.ContinuousCDF, n)
	var totalW float64
	for _, r := range usable {
		w := weightFor(r, weights)
		totalW += w
		for i, v := range r.CDF {
			mix[i] += w * v
		}
	}
	for i := range mix {
		mix[i] /= totalW
	}

	repaired, err := dist.Repair(mix, policy.MinGap(n))
	if err != nil {
		// Gap cannot be restored inside the mixture's pinned range; the
		// monotone mixture itself is still submittable, flagged degraded.
		return mix, false, nil
	}
	return repaired, true, nil
}

// combineCategorical merges over the union of category keys; a key missing
// from one result contributes zero before weighting. Output is renormalized
// to sum to 1.
func combineCategorical(usable []forecast.PartialResult, weights map[string]float64) map[string]float64 {
	keys := make([]string, 0)
	seen := make(map[string]bool)
	for _, r := range usable {
		for k := range r.Categories {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	var totalW float64
	merged := make(map[string]float64, len(keys))
	for _, r := range usable {
		w := weightFor(r, weights)
		totalW += w
		for _, k := range keys {
			merged[k] += w * r.Categories[k]
		}
	}

	var sum float64
	for _, k := range keys {
		merged[k] /= totalW
		sum += merged[k]
	}
	if sum > 0 {
		for _, k := range keys {
			merged[k] /= sum
		}
	}

	return merged
}
