// Package features builds the dense 15-feature input vector for the yield
// model from a county's season-to-date observation records. Features that
// cannot be computed from records are backfilled from the county's
// climatological baseline and flagged on the output, never silently
// substituted.
package features

import (
	"log/slog"
	"sort"

	"github.com/artem-biriukov/agriguard/internal/climatology"
	"github.com/artem-biriukov/agriguard/internal/domain"
)

// earlySeasonEndWeek bounds the early-season precipitation window: season
// weeks 1-8 cover May and June.
const earlySeasonEndWeek = 8

// daysPerRecord scales weekly mean daily values to period totals.
const daysPerRecord = 7

// Pipeline derives feature vectors. It is stateless and safe for concurrent
// use; the climatology store is read-only.
type Pipeline struct {
	window    domain.PollinationWindow
	baselines *climatology.Store
	logger    *slog.Logger
}

// New creates a feature pipeline.
func New(window domain.PollinationWindow, baselines *climatology.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{window: window, baselines: baselines, logger: logger}
}

// Build aggregates a county's season records into the 15-feature vector.
// Records outside the growing season or belonging to other counties or years
// are ignored. The returned vector is always dense: missing features fall
// back to climatology and are listed in Backfilled. Build fails only when a
// feature is missing from both the records and the baseline.
func (p *Pipeline) Build(fips string, year int, records []domain.ObservationRecord) (domain.FeatureVector, error) {
	baseline, ok := p.baselines.County(fips)
	if !ok {
		return domain.FeatureVector{}, &domain.MissingDataError{FIPS: fips, Indicator: "climatology_baseline"}
	}

	season := seasonRecords(fips, year, records)

	v := domain.FeatureVector{FIPS: fips, Year: year}

	set := func(idx int, value float64, available bool) error {
		name := domain.FeatureNames[idx]
		if available {
			v.Values[idx] = value
			return nil
		}
		fallback, ok := baseline.FeatureDefaults[name]
		if !ok {
			return &domain.MissingDataError{FIPS: fips, Indicator: name}
		}
		v.Values[idx] = fallback
		v.Backfilled = append(v.Backfilled, name)
		p.logger.Warn("feature backfilled from climatology",
			"fips", fips, "year", year, "feature", name, "value", fallback)
		return nil
	}

	agg := aggregate(season, p.window)

	steps := []struct {
		idx       int
		value     float64
		available bool
	}{
		{domain.FeatHeatDays38, float64(agg.heatDays38), len(season) > 0},
		{domain.FeatHeatDays35, float64(agg.heatDays35), len(season) > 0},
		{domain.FeatWaterDeficitCumsum, agg.deficitCumsum, agg.deficitWeeks > 0},
		{domain.FeatWaterDeficitPollination, agg.deficitPollination, agg.deficitWeeks > 0},
		{domain.FeatWaterDeficitMaxDaily, agg.deficitMaxDaily, agg.deficitWeeks > 0},
		{domain.FeatPrecipCumsum, agg.precipCumsum, agg.precipWeeks > 0},
		{domain.FeatPrecipEarlySeason, agg.precipEarly, agg.precipWeeks > 0},
		{domain.FeatNDVIPeakValue, agg.ndviPeak, agg.ndviWeeks > 0},
		{domain.FeatNDVIPeakWeek, float64(agg.ndviPeakWeek), agg.ndviWeeks > 0},
		{domain.FeatNDVIMean, agg.ndviSum / nonZero(agg.ndviWeeks), agg.ndviWeeks > 0},
		{domain.FeatEToCumsum, agg.etoCumsum, agg.etoWeeks > 0},
		{domain.FeatVPDMean, agg.vpdSum / nonZero(agg.vpdWeeks), agg.vpdWeeks > 0},
		{domain.FeatCountyBaselineYield, baseline.BaselineYield, baseline.BaselineYield > 0},
		{domain.FeatYearEncoded, float64(year - 1900), true},
		{domain.FeatPlantingDateAvg, baseline.AvgPlantingDOY, baseline.AvgPlantingDOY > 0},
	}
	for _, s := range steps {
		if err := set(s.idx, s.value, s.available); err != nil {
			return domain.FeatureVector{}, err
		}
	}

	return v, nil
}

// seasonAggregate accumulates per-indicator sums and counts across records.
type seasonAggregate struct {
	heatDays35, heatDays38 int

	deficitCumsum      float64
	deficitPollination float64
	deficitMaxDaily    float64
	deficitWeeks       int

	precipCumsum float64
	precipEarly  float64
	precipWeeks  int

	ndviSum      float64
	ndviPeak     float64
	ndviPeakWeek int
	ndviWeeks    int

	etoCumsum float64
	etoWeeks  int

	vpdSum   float64
	vpdWeeks int
}

func aggregate(season []domain.ObservationRecord, window domain.PollinationWindow) seasonAggregate {
	var a seasonAggregate
	for _, rec := range season {
		week := rec.SeasonWeek()

		a.heatDays35 += rec.HeatDays35
		a.heatDays38 += rec.HeatDays38

		if rec.WaterDeficit != nil {
			total := rec.WaterDeficit.Mean * daysPerRecord
			a.deficitCumsum += total
			if window.Contains(week) {
				a.deficitPollination += total
			}
			if rec.WaterDeficit.Max > a.deficitMaxDaily {
				a.deficitMaxDaily = rec.WaterDeficit.Max
			}
			a.deficitWeeks++
		}

		if rec.Precip != nil {
			total := rec.Precip.Mean * daysPerRecord
			a.precipCumsum += total
			if week <= earlySeasonEndWeek {
				a.precipEarly += total
			}
			a.precipWeeks++
		}

		if rec.NDVI != nil {
			a.ndviSum += rec.NDVI.Mean
			if rec.NDVI.Mean > a.ndviPeak {
				a.ndviPeak = rec.NDVI.Mean
				a.ndviPeakWeek = week
			}
			a.ndviWeeks++
		}

		if rec.ETo != nil {
			a.etoCumsum += rec.ETo.Mean * daysPerRecord
			a.etoWeeks++
		}

		if rec.VPD != nil {
			a.vpdSum += rec.VPD.Mean
			a.vpdWeeks++
		}
	}
	return a
}

// seasonRecords filters to the county-year growing season and orders by date.
func seasonRecords(fips string, year int, records []domain.ObservationRecord) []domain.ObservationRecord {
	season := make([]domain.ObservationRecord, 0, len(records))
	for _, rec := range records {
		if rec.FIPS != fips || rec.Year() != year || rec.SeasonWeek() < 1 {
			continue
		}
		season = append(season, rec)
	}
	sort.Slice(season, func(i, j int) bool { return season[i].Date.Before(season[j].Date) })
	return season
}

func nonZero(n int) float64 {
	if n == 0 {
		return 1
	}
	return float64(n)
}
