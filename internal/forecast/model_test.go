package forecast

import (
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/artem-biriukov/agriguard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticSeasons builds a deterministic multi-year dataset where yield is a
// smooth function of water deficit, heat, and vegetation health plus small
// noise. Years carry no target signal so the chronological holdout remains
// predictable.
func syntheticSeasons(years, countiesPerYear int, seed int64) []Sample {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]Sample, 0, years*countiesPerYear)

	for y := 0; y < years; y++ {
		for c := 0; c < countiesPerYear; c++ {
			deficit := 80 + rng.Float64()*240  // cumulative mm
			heat38 := rng.Float64() * 20       // days
			ndvi := 0.45 + rng.Float64()*0.45  // mean NDVI
			precip := 250 + rng.Float64()*300  // cumulative mm

			var v domain.FeatureVector
			v.FIPS = "17113"
			v.Year = 2005 + y
			v.Values[domain.FeatHeatDays38] = heat38
			v.Values[domain.FeatHeatDays35] = heat38 * 2.2
			v.Values[domain.FeatWaterDeficitCumsum] = deficit
			v.Values[domain.FeatWaterDeficitPollination] = deficit * 0.2
			v.Values[domain.FeatWaterDeficitMaxDaily] = 4 + rng.Float64()*10
			v.Values[domain.FeatPrecipCumsum] = precip
			v.Values[domain.FeatPrecipEarlySeason] = precip * 0.3
			v.Values[domain.FeatNDVIPeakValue] = ndvi + 0.1
			v.Values[domain.FeatNDVIPeakWeek] = 12 + rng.Float64()*4
			v.Values[domain.FeatNDVIMean] = ndvi
			v.Values[domain.FeatEToCumsum] = 380 + rng.Float64()*180
			v.Values[domain.FeatVPDMean] = 0.8 + rng.Float64()*0.9
			v.Values[domain.FeatCountyBaselineYield] = 185
			v.Values[domain.FeatYearEncoded] = float64(v.Year - 1900)
			v.Values[domain.FeatPlantingDateAvg] = 115

			yield := 210 - 0.25*deficit - 1.8*heat38 + 60*ndvi + 0.02*precip + rng.NormFloat64()*2

			samples = append(samples, Sample{Features: v, Yield: yield})
		}
	}
	return samples
}

func testOptions() TrainOptions {
	return TrainOptions{
		Version:      "vtest",
		HoldoutYears: 2,
		Grid:         []Params{{Trees: 150, MaxDepth: 3, LearningRate: 0.1, Subsample: 1.0, MinLeaf: 2}},
		Seed:         7,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTrain_HoldoutAccuracy(t *testing.T) {
	samples := syntheticSeasons(12, 25, 42)

	a, err := Train(samples, testOptions(), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "vtest", a.Version)
	assert.NotEmpty(t, a.RunID)
	assert.Len(t, a.FeatureNames, domain.NumFeatures)

	// Statistical property on a fixed synthetic dataset: the held-out
	// chronological years must reach the configured accuracy floor.
	assert.GreaterOrEqual(t, a.Validation.R2, 0.85, "holdout R² too low")
	assert.Less(t, a.Validation.MAE, 10.0)
}

func TestTrain_ChronologicalSplit(t *testing.T) {
	samples := syntheticSeasons(12, 25, 42)

	a, err := Train(samples, testOptions(), discardLogger())
	require.NoError(t, err)

	// The two most recent years (encoded 115 and 116) were held out, so the
	// training range of the encoded-year feature must stop before them.
	yearRange := a.Ranges[domain.FeatYearEncoded]
	assert.Equal(t, 105.0, yearRange.Min)
	assert.Equal(t, 114.0, yearRange.Max)
}

func TestTrain_GridSearchSelectsByCV(t *testing.T) {
	samples := syntheticSeasons(10, 12, 42)

	opts := testOptions()
	opts.Grid = []Params{
		// A deliberately crippled candidate against a reasonable one.
		{Trees: 1, MaxDepth: 1, LearningRate: 0.01, Subsample: 1.0, MinLeaf: 2},
		{Trees: 120, MaxDepth: 3, LearningRate: 0.1, Subsample: 1.0, MinLeaf: 2},
	}
	opts.CVFolds = 3

	a, err := Train(samples, opts, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 120, a.Params.Trees, "grid search should reject the crippled candidate")
	assert.False(t, math.IsNaN(a.Validation.MeanCV), "mean CV R² recorded")
}

func TestTrain_TooFewSamples(t *testing.T) {
	_, err := Train(syntheticSeasons(1, 5, 1), testOptions(), discardLogger())
	assert.Error(t, err)
}

func TestTrain_RequiresVersion(t *testing.T) {
	opts := testOptions()
	opts.Version = ""
	_, err := Train(syntheticSeasons(5, 10, 1), opts, discardLogger())
	assert.Error(t, err)
}

func TestPredict_BandOrderingAndConfidence(t *testing.T) {
	samples := syntheticSeasons(12, 25, 42)
	a, err := Train(samples, testOptions(), discardLogger())
	require.NoError(t, err)

	for _, s := range samples[:40] {
		result, err := a.Predict(s.Features)
		require.NoError(t, err)

		assert.LessOrEqual(t, result.LowerBound, result.UpperBound)
		assert.Equal(t, 0.90, result.Confidence)
		assert.Equal(t, "vtest", result.ModelVersion)
	}
}

func TestPredict_ExtrapolationWarning(t *testing.T) {
	samples := syntheticSeasons(12, 25, 42)
	a, err := Train(samples, testOptions(), discardLogger())
	require.NoError(t, err)

	in := samples[0].Features
	in.Values[domain.FeatWaterDeficitCumsum] = 2000 // far outside any season

	result, err := a.Predict(in)
	require.NoError(t, err, "extrapolation warns, never blocks")
	require.NotEmpty(t, result.ExtrapolationWarnings)
	assert.Contains(t, result.ExtrapolationWarnings[0], "water_deficit_cumsum")
}

func TestPredict_InDistributionHasNoWarnings(t *testing.T) {
	samples := syntheticSeasons(12, 25, 42)
	a, err := Train(samples, testOptions(), discardLogger())
	require.NoError(t, err)

	// A training sample is inside every observed range by construction.
	trainSample := samples[0]
	result, err := a.Predict(trainSample.Features)
	require.NoError(t, err)
	assert.Empty(t, result.ExtrapolationWarnings)
}

func TestPredict_CarriesBackfillAudit(t *testing.T) {
	samples := syntheticSeasons(12, 25, 42)
	a, err := Train(samples, testOptions(), discardLogger())
	require.NoError(t, err)

	in := samples[0].Features
	in.Backfilled = []string{"ndvi_mean"}

	result, err := a.Predict(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"ndvi_mean"}, result.BackfilledFeatures)
}

func TestQuantileOf(t *testing.T) {
	vals := []float64{10, 20, 30, 40, 50}

	assert.Equal(t, 30.0, quantileOf(vals, 0.5))
	assert.Equal(t, 10.0, quantileOf(vals, 0))
	assert.Equal(t, 50.0, quantileOf(vals, 1))
	assert.InDelta(t, 12.0, quantileOf(vals, 0.05), 1e-9)
}

func TestRSquared(t *testing.T) {
	actual := []float64{1, 2, 3, 4}

	assert.Equal(t, 1.0, rSquared(actual, []float64{1, 2, 3, 4}))
	assert.InDelta(t, 0.0, rSquared(actual, []float64{2.5, 2.5, 2.5, 2.5}), 1e-9)
}

func TestEnsemble_QuantileSpread(t *testing.T) {
	// Heteroscedastic target: noise grows with x, so the 5th/95th band must
	// be wider than zero across the domain.
	rng := rand.New(rand.NewSource(3))
	n := 400
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := rng.Float64() * 10
		row := make([]float64, domain.NumFeatures)
		row[0] = v
		x[i] = row
		y[i] = 100 + 5*v + rng.NormFloat64()*(1+v)
	}

	p := Params{Trees: 80, MaxDepth: 3, LearningRate: 0.1, Subsample: 1.0, MinLeaf: 5}
	lower := trainEnsemble(x, y, p, 0.05, rng)
	upper := trainEnsemble(x, y, p, 0.95, rng)

	probe := make([]float64, domain.NumFeatures)
	probe[0] = 5
	assert.Greater(t, upper.predict(probe), lower.predict(probe))
}
