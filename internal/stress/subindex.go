// Package stress implements the Multivariate Corn Stress Index: four
// independent sub-index calculators and the weighted aggregator that combines
// them into a composite 0-100 score. All functions are pure; callers supply
// every input explicitly, including the climatology baselines.
package stress

import (
	"fmt"

	"github.com/artem-biriukov/agriguard/internal/climatology"
)

const (
	pollinationMultiplier = 1.5
	compoundMultiplier    = 1.2
	severityPerHotDay     = 0.15
)

// WaterStress maps a period water deficit (mm) to a [0, 100] score using five
// closed-open bands. Inside the pollination window any positive deficit is
// amplified by 1.5x and clamped.
func WaterStress(deficitMM float64, pollination bool) float64 {
	var score float64
	switch {
	case deficitMM < 0:
		score = 0
	case deficitMM < 2:
		score = 20
	case deficitMM < 4:
		score = 50
	case deficitMM < 6:
		score = 75
	default:
		score = 100
	}

	if pollination && deficitMM > 0 {
		score = clamp(score * pollinationMultiplier)
	}
	return score
}

// HeatStress scores heat exposure from the count of days above 35°C and 38°C.
// The base score interpolates days>35°C linearly over [0, 10] days. Days above
// 38°C compound a severity multiplier of 1 + 0.15 per day. The ordering is
// deliberate: severity first, then the pollination multiplier.
func HeatStress(days35, days38 int, pollination bool) float64 {
	score := clamp(float64(days35) * 10)

	if days38 > 0 {
		score = clamp(score * (1 + severityPerHotDay*float64(days38)))
	}
	if pollination {
		score = clamp(score * pollinationMultiplier)
	}
	return score
}

// VegetationStress scores the ratio of current to climatological mean
// vegetation index. A zero or negative historical mean makes the sub-index
// undefined; that is a data-quality failure, never a silent zero.
//
// Band boundaries belong to the lower-stress band, so a ratio of exactly 0.9
// scores 20.
func VegetationStress(currentNDVI, historicalNDVI float64) (float64, error) {
	if historicalNDVI <= 0 {
		return 0, fmt.Errorf("vegetation sub-index undefined: historical NDVI mean %g", historicalNDVI)
	}

	ratio := currentNDVI / historicalNDVI
	switch {
	case ratio > 1.0:
		return 0, nil
	case ratio >= 0.9:
		return 20, nil
	case ratio >= 0.8:
		return 50, nil
	case ratio >= 0.7:
		return 75, nil
	default:
		return 100, nil
	}
}

// AtmosphericStress scores period mean vapor-pressure deficit against the
// county's quantile table for the calendar month. When the water deficit
// exceeds 4mm while dryness sits at or above the 75th percentile, the
// compound-effect rule amplifies the score by 1.2x.
func AtmosphericStress(vpd float64, q climatology.Quantiles, waterDeficitMM float64) float64 {
	var score float64
	switch {
	case vpd < q.P50:
		score = 0
	case vpd < q.P75:
		score = 30
	case vpd < q.P90:
		score = 60
	default:
		score = 100
	}

	if waterDeficitMM > 4 && vpd >= q.P75 {
		score = clamp(score * compoundMultiplier)
	}
	return score
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
