package stress

import (
	"fmt"
	"math"

	"github.com/artem-biriukov/agriguard/internal/domain"
)

// Weights is a versioned, immutable weight set for the composite score.
// Changing any weight requires a new version identifier; old versions are
// retained for reproducibility.
type Weights struct {
	Version     string
	Water       float64
	Heat        float64
	Vegetation  float64
	Atmospheric float64
}

// WeightsV1 is the original MCSI weighting, frozen.
var WeightsV1 = Weights{
	Version:     "v1",
	Water:       0.40,
	Heat:        0.30,
	Vegetation:  0.20,
	Atmospheric: 0.10,
}

// ForVersion resolves an algorithm version identifier to its frozen weight set.
func ForVersion(version string) (Weights, error) {
	switch version {
	case "v1":
		return WeightsV1, nil
	default:
		return Weights{}, fmt.Errorf("unknown algorithm version %q", version)
	}
}

// Validate checks that the weights are non-negative and sum to one.
func (w Weights) Validate() error {
	if w.Water < 0 || w.Heat < 0 || w.Vegetation < 0 || w.Atmospheric < 0 {
		return fmt.Errorf("algorithm %s: negative weight", w.Version)
	}
	sum := w.Water + w.Heat + w.Vegetation + w.Atmospheric
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("algorithm %s: weights sum to %g, want 1", w.Version, sum)
	}
	return nil
}

// Aggregate computes the composite score as the exact weighted sum of the four
// sub-indices. A NaN sub-index means an upstream calculator was skipped; the
// aggregator fails closed rather than substituting zero. Sub-indices outside
// [0, 100] are clamped before weighting so the output domain holds.
func Aggregate(s domain.SubIndexScores, w Weights) (float64, error) {
	for _, c := range []struct {
		name  string
		value float64
	}{
		{"water", s.Water},
		{"heat", s.Heat},
		{"vegetation", s.Vegetation},
		{"atmospheric", s.Atmospheric},
	} {
		if math.IsNaN(c.value) {
			return 0, fmt.Errorf("aggregate: %s sub-index is undefined", c.name)
		}
	}

	return w.Water*clamp(s.Water) +
		w.Heat*clamp(s.Heat) +
		w.Vegetation*clamp(s.Vegetation) +
		w.Atmospheric*clamp(s.Atmospheric), nil
}

// Classify maps a composite score to its human-facing band. Bands label
// results only; nothing branches on them.
func Classify(overall float64) string {
	switch {
	case overall < 20:
		return "healthy"
	case overall < 40:
		return "low"
	case overall < 60:
		return "moderate"
	case overall < 80:
		return "high"
	default:
		return "severe"
	}
}
