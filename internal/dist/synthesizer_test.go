package dist

import (
	"errors"
	"math"
	"testing"

	"prognos/internal/forecast"
)

// checkCDF asserts the structural output invariants: exact length, entries in
// [0,1], and every consecutive gap at least minGap.
func checkCDF(t *testing.T, cdf forecast.ContinuousCDF, n int, minGap float64) {
	t.Helper()

	if len(cdf) != n {
		t.Fatalf("len(cdf) = %d, want %d", len(cdf), n)
	}
	for i, v := range cdf {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Fatalf("cdf[%d] = %v outside [0,1]", i, v)
		}
		if i > 0 && cdf[i]-cdf[i-1] < minGap-1e-12 {
			t.Fatalf("gap cdf[%d]-cdf[%d] = %v below min %v", i, i-1, cdf[i]-cdf[i-1], minGap)
		}
	}
}

func symmetricEstimates() []forecast.PercentileEstimate {
	return []forecast.PercentileEstimate{
		{Percentile: 0.1, Value: 30},
		{Percentile: 0.3, Value: 40},
		{Percentile: 0.5, Value: 50},
		{Percentile: 0.7, Value: 60},
		{Percentile: 0.9, Value: 70},
	}
}

func TestSynthesizeClosedBounds(t *testing.T) {
	bounds := forecast.NewBounds(0, 100)
	policy := DefaultPolicy()

	cdf, degraded, err := Synthesize(symmetricEstimates(), bounds, policy)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if degraded {
		t.Error("clean input should not degrade")
	}

	n := bounds.Resolution()
	checkCDF(t, cdf, n, policy.MinGap(n))

	// Closed sides pin the endpoints to the floor and ceiling exactly.
	if cdf[0] != policy.CDFFloor {
		t.Errorf("cdf[0] = %v, want %v", cdf[0], policy.CDFFloor)
	}
	if cdf[n-1] != 1-policy.CDFFloor {
		t.Errorf("cdf[last] = %v, want %v", cdf[n-1], 1-policy.CDFFloor)
	}

	// The domain midpoint is the stated median.
	if got := cdf[n/2]; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("cdf at midpoint = %v, want 0.5", got)
	}
}

func TestSynthesizeOpenUpperKeepsTailMass(t *testing.T) {
	lo := 0.0
	bounds := forecast.DistributionBounds{
		Lower:        &lo,
		UpperOpen:    true,
		OutcomeCount: 101,
	}
	policy := DefaultPolicy()

	estimates := []forecast.PercentileEstimate{
		{Percentile: 0.2, Value: 10},
		{Percentile: 0.8, Value: 30},
	}
	cdf, degraded, err := Synthesize(estimates, bounds, policy)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if degraded {
		t.Error("unexpected degradation")
	}
	checkCDF(t, cdf, 101, policy.MinGap(101))

	// Tail extension is capped at the overshoot fraction of the estimate
	// span, so a real slice of probability stays above the last bucket.
	last := cdf[len(cdf)-1]
	if last >= 1-policy.CDFFloor {
		t.Errorf("open upper side pinned to ceiling: %v", last)
	}
	if last < 0.8 {
		t.Errorf("cdf[last] = %v, expected most mass inside the domain", last)
	}
}

func TestSynthesizeLogScale(t *testing.T) {
	lo, hi := 1.0, 10000.0
	bounds := forecast.DistributionBounds{
		Lower:        &lo,
		Upper:        &hi,
		LogScale:     true,
		OutcomeCount: 201,
	}
	policy := DefaultPolicy()

	estimates := []forecast.PercentileEstimate{
		{Percentile: 0.25, Value: 10},
		{Percentile: 0.75, Value: 1000},
	}
	cdf, degraded, err := Synthesize(estimates, bounds, policy)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if degraded {
		t.Error("unexpected degradation")
	}
	checkCDF(t, cdf, 201, policy.MinGap(201))

	// The domain midpoint in log space is the geometric mean of the bounds,
	// which sits exactly between the two stated percentiles.
	if got := cdf[100]; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("cdf at log midpoint = %v, want 0.5", got)
	}
}

func TestSynthesizeValidation(t *testing.T) {
	bounds := forecast.NewBounds(0, 100)
	logBounds := forecast.NewBounds(1, 100)
	logBounds.LogScale = true

	tests := []struct {
		name      string
		estimates []forecast.PercentileEstimate
		bounds    forecast.DistributionBounds
	}{
		{
			name:      "too few points",
			estimates: []forecast.PercentileEstimate{{Percentile: 0.5, Value: 50}},
			bounds:    bounds,
		},
		{
			name: "percentile at zero",
			estimates: []forecast.PercentileEstimate{
				{Percentile: 0, Value: 10}, {Percentile: 0.5, Value: 50},
			},
			bounds: bounds,
		},
		{
			name: "percentile above one",
			estimates: []forecast.PercentileEstimate{
				{Percentile: 0.5, Value: 50}, {Percentile: 1.2, Value: 90},
			},
			bounds: bounds,
		},
		{
			name: "percentiles not increasing",
			estimates: []forecast.PercentileEstimate{
				{Percentile: 0.5, Value: 40}, {Percentile: 0.5, Value: 60},
			},
			bounds: bounds,
		},
		{
			name: "values not increasing",
			estimates: []forecast.PercentileEstimate{
				{Percentile: 0.3, Value: 60}, {Percentile: 0.7, Value: 60},
			},
			bounds: bounds,
		},
		{
			name: "value below closed lower bound",
			estimates: []forecast.PercentileEstimate{
				{Percentile: 0.3, Value: -5}, {Percentile: 0.7, Value: 60},
			},
			bounds: bounds,
		},
		{
			name: "value above closed upper bound",
			estimates: []forecast.PercentileEstimate{
				{Percentile: 0.3, Value: 40}, {Percentile: 0.7, Value: 150},
			},
			bounds: bounds,
		},
		{
			name: "non-positive value under log scale",
			estimates: []forecast.PercentileEstimate{
				{Percentile: 0.3, Value: 0}, {Percentile: 0.7, Value: 60},
			},
			bounds: logBounds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Synthesize(tt.estimates, tt.bounds, DefaultPolicy())
			var verr *forecast.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
		})
	}
}

func TestSynthesizeDegradesToUniform(t *testing.T) {
	bounds := forecast.NewBounds(0, 1)
	// A gap requirement the probability range cannot hold forces the
	// deterministic fallback instead of an error.
	policy := Policy{MinStepFraction: 0.99999, TailOvershoot: 0.15, CDFFloor: 1e-5}

	estimates := []forecast.PercentileEstimate{
		{Percentile: 0.3, Value: 0.4},
		{Percentile: 0.7, Value: 0.6},
	}
	cdf, degraded, err := Synthesize(estimates, bounds, policy)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !degraded {
		t.Fatal("expected degraded fallback")
	}

	want := Uniform(bounds, policy)
	if len(cdf) != len(want) {
		t.Fatalf("fallback length %d, want %d", len(cdf), len(want))
	}
	for i := range cdf {
		if math.Abs(cdf[i]-want[i]) > 1e-12 {
			t.Fatalf("fallback cdf[%d] = %v, want uniform %v", i, cdf[i], want[i])
		}
	}
}

func TestMinGap(t *testing.T) {
	p := DefaultPolicy()
	if got, want := p.MinGap(201), 0.05/200; math.Abs(got-want) > 1e-15 {
		t.Errorf("MinGap(201) = %v, want %v", got, want)
	}
	if p.MinGap(1) != 0 {
		t.Errorf("MinGap(1) = %v, want 0", p.MinGap(1))
	}
}
