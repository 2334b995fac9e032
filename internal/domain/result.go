package domain

import "time"

// SubIndexScores holds the four component stress scores, each in [0, 100].
type SubIndexScores struct {
	Water       float64 `json:"water"`
	Heat        float64 `json:"heat"`
	Vegetation  float64 `json:"vegetation"`
	Atmospheric float64 `json:"atmospheric"`
}

// StressScoreResult is the composite stress score for one county-week.
// Results are owned by the call that produced them and are never persisted
// by this core.
type StressScoreResult struct {
	FIPS       string    `json:"fips"`
	Date       time.Time `json:"date"`
	SeasonWeek int       `json:"season_week"`

	SubIndices SubIndexScores `json:"sub_indices"`
	Overall    float64        `json:"overall"`
	Band       string         `json:"band"`

	AlgorithmVersion string    `json:"algorithm_version"`
	ComputedAt       time.Time `json:"computed_at"`
	SourceKey        string    `json:"source_key,omitempty"`
}

// YieldForecastResult is a point yield estimate with its quantile-regression
// uncertainty band.
type YieldForecastResult struct {
	FIPS string `json:"fips"`
	Year int    `json:"year"`

	PredictedYield float64 `json:"predicted_yield_bu_acre"`
	LowerBound     float64 `json:"lower_bound_bu_acre"`
	UpperBound     float64 `json:"upper_bound_bu_acre"`
	Confidence     float64 `json:"confidence_level"`

	ModelVersion string    `json:"model_version"`
	ComputedAt   time.Time `json:"computed_at"`

	// ExtrapolationWarnings names features whose values fall outside the
	// training distribution. Non-fatal: the forecast is served regardless.
	ExtrapolationWarnings []string `json:"extrapolation_warnings,omitempty"`

	// BackfilledFeatures names features substituted from climatology during
	// feature engineering.
	BackfilledFeatures []string `json:"backfilled_features,omitempty"`
}

// Feature indices into a FeatureVector, in model input order. The order is
// part of the model artifact contract and must never change within a model
// version.
const (
	FeatHeatDays38 = iota
	FeatHeatDays35
	FeatWaterDeficitCumsum
	FeatWaterDeficitPollination
	FeatWaterDeficitMaxDaily
	FeatPrecipCumsum
	FeatPrecipEarlySeason
	FeatNDVIPeakValue
	FeatNDVIPeakWeek
	FeatNDVIMean
	FeatEToCumsum
	FeatVPDMean
	FeatCountyBaselineYield
	FeatYearEncoded
	FeatPlantingDateAvg

	NumFeatures = 15
)

// FeatureNames maps feature indices to their canonical names.
var FeatureNames = [NumFeatures]string{
	"heat_days_38",
	"heat_days_35",
	"water_deficit_cumsum",
	"water_deficit_pollination",
	"water_deficit_max_daily",
	"precipitation_cumsum",
	"precipitation_early_season",
	"ndvi_peak_value",
	"ndvi_peak_week",
	"ndvi_mean",
	"eto_cumsum",
	"vpd_mean",
	"county_baseline_yield",
	"year_encoded",
	"planting_date_avg",
}

// FeatureVector is a dense 15-feature input for the yield model, built from a
// county's season-to-date records. Every slot is always populated; features
// that could not be computed from records are filled from climatology and
// listed in Backfilled.
type FeatureVector struct {
	FIPS   string               `json:"fips"`
	Year   int                  `json:"year"`
	Values [NumFeatures]float64 `json:"values"`

	Backfilled []string `json:"backfilled,omitempty"`
}

// IsBackfilled reports whether the named feature was substituted from climatology.
func (v FeatureVector) IsBackfilled(name string) bool {
	for _, f := range v.Backfilled {
		if f == name {
			return true
		}
	}
	return false
}
