package dist

import (
	"fmt"

	"prognos/internal/forecast"
)

// Repair returns a copy of cdf that is non-decreasing with every consecutive
// gap at least minGap, leaving the first and last entries untouched. It is a
// fixed point: repairing an already-valid sequence returns it unchanged.
//
// The forward sweep lifts entries that sit too close to their predecessor;
// the backward sweep then lowers entries so the pinned last value still
// fits. Both sweeps preserve the invariant cdf[i] >= cdf[0] + i*minGap, so
// the result satisfies the gap everywhere when the range admits it at all.
func Repair(cdf forecast.ContinuousCDF, minGap float64) (forecast.ContinuousCDF, error) {
	n := len(cdf)
	if n < 2 {
		return cdf.Clone(), nil
	}

	first, last := cdf[0], cdf[n-1]
	if last-first < float64(n-1)*minGap {
		return nil, fmt.Errorf("range [%v, %v] cannot hold %d steps of %v", first, last, n-1, minGap)
	}

	out := cdf.Clone()
	for i := 1; i < n-1; i++ {
		if out[i] < out[i-1]+minGap {
			out[i] = out[i-1] + minGap
		}
	}
	for i := n - 2; i >= 1; i-- {
		if out[i] > out[i+1]-minGap {
			out[i] = out[i+1] - minGap
		}
	}

	return out, nil
}

// Uniform builds the deterministic fallback distribution: a straight ramp
// from the floor to the ceiling across the effective bounds. Always valid
// under the default policy, so a degraded forecast remains submittable.
func Uniform(bounds forecast.DistributionBounds, policy Policy) forecast.ContinuousCDF {
	n := bounds.Resolution()
	cdf := make(forecast.ContinuousCDF, n)
	lo := policy.CDFFloor
	hi := 1 - policy.CDFFloor
	for i := 0; i < n; i++ {
		cdf[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return cdf
}
