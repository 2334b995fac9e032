package features_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/artem-biriukov/agriguard/internal/climatology"
	"github.com/artem-biriukov/agriguard/internal/domain"
	"github.com/artem-biriukov/agriguard/internal/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFIPS = "17113"

var testWindow = domain.PollinationWindow{StartWeek: 14, EndWeek: 16}

func testBaselines() *climatology.Store {
	return climatology.NewStore("test", map[string]climatology.CountyBaseline{
		testFIPS: {
			BaselineYield:  195.0,
			AvgPlantingDOY: 118,
			FeatureDefaults: map[string]float64{
				"ndvi_peak_value": 0.82,
				"ndvi_peak_week":  14,
				"ndvi_mean":       0.66,
				"vpd_mean":        1.05,
				"eto_cumsum":      430,
			},
		},
	})
}

// weekRecord builds a record for the given season week with all indicators set.
func weekRecord(week int) domain.ObservationRecord {
	start := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	return domain.ObservationRecord{
		FIPS:         testFIPS,
		Date:         start.AddDate(0, 0, (week-1)*7),
		NDVI:         &domain.Stat{Mean: 0.50 + 0.02*float64(week), Max: 0.9},
		VPD:          &domain.Stat{Mean: 1.1},
		ETo:          &domain.Stat{Mean: 5.5},
		Precip:       &domain.Stat{Mean: 3.0},
		WaterDeficit: &domain.Stat{Mean: 2.5, Max: 6.0},
		HeatDays35:   1,
		HeatDays38:   0,
	}
}

func fullSeason() []domain.ObservationRecord {
	recs := make([]domain.ObservationRecord, 0, 20)
	for week := 1; week <= 20; week++ {
		recs = append(recs, weekRecord(week))
	}
	return recs
}

func TestBuild_FullSeason(t *testing.T) {
	p := features.New(testWindow, testBaselines(), slog.Default())

	v, err := p.Build(testFIPS, 2025, fullSeason())
	require.NoError(t, err)

	assert.Equal(t, testFIPS, v.FIPS)
	assert.Equal(t, 2025, v.Year)
	assert.Empty(t, v.Backfilled)

	assert.Equal(t, 20.0, v.Values[domain.FeatHeatDays35])
	assert.Equal(t, 0.0, v.Values[domain.FeatHeatDays38])

	// 20 weeks * 2.5 mm/day * 7 days.
	assert.InDelta(t, 350.0, v.Values[domain.FeatWaterDeficitCumsum], 1e-9)
	// Pollination weeks 14-16 only.
	assert.InDelta(t, 52.5, v.Values[domain.FeatWaterDeficitPollination], 1e-9)
	assert.Equal(t, 6.0, v.Values[domain.FeatWaterDeficitMaxDaily])

	// 20 weeks * 3.0 mm/day * 7 days; early season is weeks 1-8.
	assert.InDelta(t, 420.0, v.Values[domain.FeatPrecipCumsum], 1e-9)
	assert.InDelta(t, 168.0, v.Values[domain.FeatPrecipEarlySeason], 1e-9)

	// NDVI rises linearly, peaking in the final week.
	assert.InDelta(t, 0.90, v.Values[domain.FeatNDVIPeakValue], 1e-9)
	assert.Equal(t, 20.0, v.Values[domain.FeatNDVIPeakWeek])
	assert.InDelta(t, 0.71, v.Values[domain.FeatNDVIMean], 1e-9)

	assert.InDelta(t, 770.0, v.Values[domain.FeatEToCumsum], 1e-9)
	assert.InDelta(t, 1.1, v.Values[domain.FeatVPDMean], 1e-9)

	assert.Equal(t, 195.0, v.Values[domain.FeatCountyBaselineYield])
	assert.Equal(t, 125.0, v.Values[domain.FeatYearEncoded])
	assert.Equal(t, 118.0, v.Values[domain.FeatPlantingDateAvg])
}

func TestBuild_MissingNDVIWeekDoesNotFail(t *testing.T) {
	p := features.New(testWindow, testBaselines(), slog.Default())

	season := fullSeason()
	season[9].NDVI = nil // drop one week of vegetation data

	v, err := p.Build(testFIPS, 2025, season)
	require.NoError(t, err, "a single missing week must never fail the pipeline")
	assert.Empty(t, v.Backfilled)
	// Mean is computed over the 19 remaining weeks; still record-derived.
	assert.False(t, v.IsBackfilled("ndvi_mean"))
	assert.Greater(t, v.Values[domain.FeatNDVIMean], 0.0)
}

func TestBuild_IndicatorFullyMissingIsBackfilled(t *testing.T) {
	p := features.New(testWindow, testBaselines(), slog.Default())

	season := fullSeason()
	for i := range season {
		season[i].NDVI = nil
	}

	v, err := p.Build(testFIPS, 2025, season)
	require.NoError(t, err)

	assert.True(t, v.IsBackfilled("ndvi_peak_value"))
	assert.True(t, v.IsBackfilled("ndvi_peak_week"))
	assert.True(t, v.IsBackfilled("ndvi_mean"))
	assert.Equal(t, 0.82, v.Values[domain.FeatNDVIPeakValue])
	assert.Equal(t, 14.0, v.Values[domain.FeatNDVIPeakWeek])
	assert.Equal(t, 0.66, v.Values[domain.FeatNDVIMean])

	// Other features remain record-derived.
	assert.False(t, v.IsBackfilled("water_deficit_cumsum"))
}

func TestBuild_NoFallbackAvailableFails(t *testing.T) {
	store := climatology.NewStore("test", map[string]climatology.CountyBaseline{
		testFIPS: {BaselineYield: 195.0, AvgPlantingDOY: 118}, // no feature defaults
	})
	p := features.New(testWindow, store, slog.Default())

	season := fullSeason()
	for i := range season {
		season[i].VPD = nil
	}

	_, err := p.Build(testFIPS, 2025, season)
	var missing *domain.MissingDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "vpd_mean", missing.Indicator)
}

func TestBuild_UnknownCounty(t *testing.T) {
	p := features.New(testWindow, testBaselines(), slog.Default())

	_, err := p.Build("99001", 2025, fullSeason())
	var missing *domain.MissingDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "climatology_baseline", missing.Indicator)
}

func TestBuild_FiltersOtherCountiesAndYears(t *testing.T) {
	p := features.New(testWindow, testBaselines(), slog.Default())

	season := fullSeason()
	stray := weekRecord(5)
	stray.FIPS = "19153"
	lastYear := weekRecord(5)
	lastYear.Date = lastYear.Date.AddDate(-1, 0, 0)
	season = append(season, stray, lastYear)

	v, err := p.Build(testFIPS, 2025, season)
	require.NoError(t, err)
	assert.Equal(t, 20.0, v.Values[domain.FeatHeatDays35])
}

func TestBuild_VectorIsAlwaysDense(t *testing.T) {
	p := features.New(testWindow, testBaselines(), slog.Default())

	v, err := p.Build(testFIPS, 2025, fullSeason())
	require.NoError(t, err)
	require.Len(t, v.Values, domain.NumFeatures)
	for i, val := range v.Values {
		assert.False(t, val != val, "feature %s is NaN", domain.FeatureNames[i])
	}
}
