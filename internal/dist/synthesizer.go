// Package dist converts sparse percentile estimates into fully-specified,
// submission-ready cumulative distributions. Everything here is pure and
// synchronous; callers own concurrency.
package dist

import (
	"math"

	"prognos/internal/forecast"
)

// Policy holds the synthesis policy constants. The exact values are
// tournament policy, not math, so they are configuration rather than
// constants baked into the algorithm.
type Policy struct {
	// MinStepFraction is the minimum gap between consecutive CDF entries,
	// expressed as a fraction of the uniform step 1/(outcome_count-1).
	MinStepFraction float64
	// TailOvershoot is the fraction of the stated percentile span the
	// distribution may extend beyond the extreme estimates on an open side.
	TailOvershoot float64
	// CDFFloor is the minimum distance the first/last entries keep from
	// exactly 0 and 1.
	CDFFloor float64
}

// DefaultPolicy returns the documented defaults: 5% of a uniform step as the
// minimum gap, 15% span overshoot on open tails, 1e-5 endpoint floor.
func DefaultPolicy() Policy {
	return Policy{
		MinStepFraction: 0.05,
		TailOvershoot:   0.15,
		CDFFloor:        1e-5,
	}
}

// MinGap returns the absolute minimum gap for the given resolution.
func (p Policy) MinGap(outcomeCount int) float64 {
	if outcomeCount < 2 {
		return 0
	}
	return p.MinStepFraction / float64(outcomeCount-1)
}

// Synthesize turns percentile estimates plus bound metadata into a validated
// ContinuousCDF of exactly bounds.Resolution() entries.
//
// Structural violations of the input (too few points, non-monotonic
// percentiles or values, closed-bound escapes, non-positive values under log
// scale) return a ValidationError. Internal numerical degeneracy instead
// falls back to a uniform distribution with degraded=true: the caller must
// always end up with something submittable.
func Synthesize(estimates []forecast.PercentileEstimate, bounds forecast.DistributionBounds, policy Policy) (forecast.ContinuousCDF, bool, error) {
	if err := validate(estimates, bounds); err != nil {
		return nil, false, err
	}

	n := bounds.Resolution()

	xs := make([]float64, len(estimates)) // percentiles
	ys := make([]float64, len(estimates)) // values, transformed
	for i, e := range estimates {
		xs[i] = e.Percentile
		ys[i] = e.Value
		if bounds.LogScale {
			ys[i] = math.Log(e.Value)
		}
	}

	lo, hi, ok := effectiveDomain(xs, ys, bounds, policy)
	if !ok {
		return Uniform(bounds, policy), true, nil
	}

	cdf := make(forecast.ContinuousCDF, n)
	for i := 0; i < n; i++ {
		v := lo + (hi-lo)*float64(i)/float64(n-1)
		cdf[i] = evalCDF(xs, ys, v)
	}

	anchor(cdf, bounds, policy)

	repaired, err := Repair(cdf, policy.MinGap(n))
	if err != nil {
		// Degenerate after anchoring (e.g. collapsed probability range).
		return Uniform(bounds, policy), true, nil
	}
	for _, v := range repaired {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Uniform(bounds, policy), true, nil
		}
	}

	return repaired, false, nil
}

// validate applies the structural input checks. These are rejected, not
// repaired: a malformed estimate set means the agent layer is confused and
// guessing intent here would hide that.
func validate(estimates []forecast.PercentileEstimate, bounds forecast.DistributionBounds) error {
	if len(estimates) < 2 {
		return forecast.Validationf("estimates", "need at least 2 percentile points, got %d", len(estimates))
	}

	for i, e := range estimates {
		if e.Percentile <= 0 || e.Percentile >= 1 {
			return forecast.Validationf("percentile", "point %d: percentile %v outside (0,1)", i, e.Percentile)
		}
		if bounds.LogScale && e.Value <= 0 {
			return forecast.Validationf("value", "point %d: value %v not positive under log scale", i, e.Value)
		}
		if i == 0 {
			continue
		}
		if e.Percentile <= estimates[i-1].Percentile {
			return forecast.Validationf("percentile", "point %d: percentiles not strictly increasing", i)
		}
		if e.Value <= estimates[i-1].Value {
			return forecast.Validationf("value", "point %d: values not strictly increasing", i)
		}
	}

	if !bounds.LowerOpen && bounds.Lower != nil {
		for i, e := range estimates {
			if e.Value < *bounds.Lower {
				return forecast.Validationf("value", "point %d: value %v below closed lower bound %v", i, e.Value, *bounds.Lower)
			}
		}
	}
	if !bounds.UpperOpen && bounds.Upper != nil {
		for i, e := range estimates {
			if e.Value > *bounds.Upper {
				return forecast.Validationf("value", "point %d: value %v above closed upper bound %v", i, e.Value, *bounds.Upper)
			}
		}
	}

	return nil
}

// effectiveDomain computes the value range the discretization spans: the
// bounds where closed, slope-extrapolated tails (capped at the overshoot
// fraction of the estimate span) where open. Reports ok=false when the
// domain collapses.
func effectiveDomain(xs, ys []float64, bounds forecast.DistributionBounds, policy Policy) (float64, float64, bool) {
	span := ys[len(ys)-1] - ys[0]
	if span <= 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return 0, 0, false
	}

	lo := extrapolateLow(xs, ys)
	if cap := ys[0] - policy.TailOvershoot*span; lo < cap {
		lo = cap
	}
	if lb, usable := transformedBound(bounds.Lower, bounds.LogScale); usable && !bounds.LowerOpen {
		lo = lb
	}

	hi := extrapolateHigh(xs, ys)
	if cap := ys[len(ys)-1] + policy.TailOvershoot*span; hi > cap {
		hi = cap
	}
	if ub, usable := transformedBound(bounds.Upper, bounds.LogScale); usable && !bounds.UpperOpen {
		hi = ub
	}

	if hi-lo <= 0 || math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return 0, 0, false
	}
	return lo, hi, true
}

// transformedBound maps a bound into interpolation space. Under log scale a
// non-positive bound has no finite image and is ignored for geometry.
func transformedBound(b *float64, logScale bool) (float64, bool) {
	if b == nil {
		return 0, false
	}
	if !logScale {
		return *b, true
	}
	if *b <= 0 {
		return 0, false
	}
	return math.Log(*b), true
}

// extrapolateLow extends the first segment's slope down to percentile 0.
func extrapolateLow(xs, ys []float64) float64 {
	slope := (ys[1] - ys[0]) / (xs[1] - xs[0])
	return ys[0] - slope*xs[0]
}

// extrapolateHigh extends the last segment's slope up to percentile 1.
func extrapolateHigh(xs, ys []float64) float64 {
	k := len(xs) - 1
	slope := (ys[k] - ys[k-1]) / (xs[k] - xs[k-1])
	return ys[k] + slope*(1-xs[k])
}

// evalCDF inverts the monotone piecewise-linear percentile->value map at a
// single value position, clamped to [0,1]. Tail segments reuse the local
// slope of the nearest interior segment.
func evalCDF(xs, ys []float64, v float64) float64 {
	k := len(ys) - 1

	var p float64
	switch {
	case v <= ys[0]:
		slope := (xs[1] - xs[0]) / (ys[1] - ys[0])
		p = xs[0] - (ys[0]-v)*slope
	case v >= ys[k]:
		slope := (xs[k] - xs[k-1]) / (ys[k] - ys[k-1])
		p = xs[k] + (v-ys[k])*slope
	default:
		// Find the segment containing v.
		i := 1
		for i < k && ys[i] < v {
			i++
		}
		frac := (v - ys[i-1]) / (ys[i] - ys[i-1])
		p = xs[i-1] + frac*(xs[i]-xs[i-1])
	}

	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// anchor pins the endpoints per the bound openness rules: a closed side is
// pinned exactly to the floor/ceiling, an open side is only kept strictly
// inside (0,1) so tail mass beyond the domain stays representable.
func anchor(cdf forecast.ContinuousCDF, bounds forecast.DistributionBounds, policy Policy) {
	n := len(cdf)
	if n == 0 {
		return
	}

	if bounds.LowerOpen {
		if cdf[0] < policy.CDFFloor {
			cdf[0] = policy.CDFFloor
		}
	} else {
		cdf[0] = policy.CDFFloor
	}

	if bounds.UpperOpen {
		if cdf[n-1] > 1-policy.CDFFloor {
			cdf[n-1] = 1 - policy.CDFFloor
		}
	} else {
		cdf[n-1] = 1 - policy.CDFFloor
	}
}
