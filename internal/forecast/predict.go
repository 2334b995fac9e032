package forecast

import (
	"fmt"

	"github.com/artem-biriukov/agriguard/internal/domain"
)

// confidenceLevel is the nominal coverage of the 5th-95th percentile band.
const confidenceLevel = 0.90

// Predict produces a yield forecast for one dense feature vector. Features
// outside the training distribution attach extrapolation warnings; the
// forecast is still served. The artifact is read-only, so concurrent calls
// need no synchronization.
func (a *Artifact) Predict(v domain.FeatureVector) (domain.YieldForecastResult, error) {
	x := make([]float64, domain.NumFeatures)
	copy(x, v.Values[:])

	for i, val := range x {
		if val != val {
			return domain.YieldForecastResult{}, fmt.Errorf("feature %s is NaN", domain.FeatureNames[i])
		}
	}

	point := a.Point.predict(x)
	lower := a.Lower.predict(x)
	upper := a.Upper.predict(x)

	// Quantile ensembles are trained independently and can cross on sparse
	// leaves; keep the reported band ordered.
	if lower > upper {
		lower, upper = upper, lower
	}

	return domain.YieldForecastResult{
		FIPS:                  v.FIPS,
		Year:                  v.Year,
		PredictedYield:        point,
		LowerBound:            lower,
		UpperBound:            upper,
		Confidence:            confidenceLevel,
		ModelVersion:          a.Version,
		ComputedAt:            domain.Now(),
		ExtrapolationWarnings: a.extrapolations(x),
		BackfilledFeatures:    v.Backfilled,
	}, nil
}

// extrapolations lists features strictly outside the training range.
func (a *Artifact) extrapolations(x []float64) []string {
	var warnings []string
	for i, val := range x {
		r := a.Ranges[i]
		if val < r.Min || val > r.Max {
			warnings = append(warnings, fmt.Sprintf(
				"%s=%.4g outside training range [%.4g, %.4g]",
				domain.FeatureNames[i], val, r.Min, r.Max))
		}
	}
	return warnings
}
