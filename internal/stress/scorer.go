package stress

import (
	"fmt"

	"github.com/artem-biriukov/agriguard/internal/climatology"
	"github.com/artem-biriukov/agriguard/internal/domain"
)

// Scorer computes stress scores for observation records against a frozen
// weight set and an injected climatology store. It holds no mutable state and
// is safe for concurrent use across counties and weeks.
type Scorer struct {
	weights   Weights
	window    domain.PollinationWindow
	baselines *climatology.Store
}

// NewScorer builds a Scorer. The weights must validate; the baselines store
// is read-only reference data shared across all scoring calls.
func NewScorer(w Weights, window domain.PollinationWindow, baselines *climatology.Store) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w, window: window, baselines: baselines}, nil
}

// Score computes the composite stress score for one county-week. Any missing
// required indicator fails this record only, with a typed error naming the
// cause; the caller continues with the rest of the batch.
func (s *Scorer) Score(rec domain.ObservationRecord) (domain.StressScoreResult, error) {
	week := rec.SeasonWeek()
	pollination := s.window.Contains(week)

	baseline, ok := s.baselines.County(rec.FIPS)
	if !ok {
		return domain.StressScoreResult{}, &domain.MissingDataError{
			FIPS: rec.FIPS, Week: week, Indicator: "climatology_baseline",
		}
	}

	deficit, err := s.waterDeficit(rec, baseline, week)
	if err != nil {
		return domain.StressScoreResult{}, err
	}

	vegetation, err := s.vegetation(rec, baseline, week)
	if err != nil {
		return domain.StressScoreResult{}, err
	}

	atmospheric, err := s.atmospheric(rec, baseline, week, deficit)
	if err != nil {
		return domain.StressScoreResult{}, err
	}

	sub := domain.SubIndexScores{
		Water:       WaterStress(deficit, pollination),
		Heat:        HeatStress(rec.HeatDays35, rec.HeatDays38, pollination),
		Vegetation:  vegetation,
		Atmospheric: atmospheric,
	}

	overall, err := Aggregate(sub, s.weights)
	if err != nil {
		return domain.StressScoreResult{}, fmt.Errorf("county %s week %d: %w", rec.FIPS, week, err)
	}

	return domain.StressScoreResult{
		FIPS:             rec.FIPS,
		Date:             rec.Date,
		SeasonWeek:       week,
		SubIndices:       sub,
		Overall:          overall,
		Band:             Classify(overall),
		AlgorithmVersion: s.weights.Version,
		ComputedAt:       domain.Now(),
	}, nil
}

// waterDeficit returns the record's deficit, falling back to the county's
// climatological deficit for the season week when the observation is missing.
func (s *Scorer) waterDeficit(rec domain.ObservationRecord, b climatology.CountyBaseline, week int) (float64, error) {
	if rec.WaterDeficit != nil {
		return rec.WaterDeficit.Mean, nil
	}
	if v, ok := b.WeeklyWaterDeficit[week]; ok {
		return v, nil
	}
	return 0, &domain.MissingDataError{FIPS: rec.FIPS, Week: week, Indicator: "water_deficit"}
}

func (s *Scorer) vegetation(rec domain.ObservationRecord, b climatology.CountyBaseline, week int) (float64, error) {
	if rec.NDVI == nil {
		return 0, &domain.MissingDataError{FIPS: rec.FIPS, Week: week, Indicator: "ndvi"}
	}
	historical, ok := b.NDVIMean[rec.Date.Month()]
	if !ok || historical <= 0 {
		return 0, &domain.MissingDataError{FIPS: rec.FIPS, Week: week, Indicator: "ndvi_baseline"}
	}
	return VegetationStress(rec.NDVI.Mean, historical)
}

func (s *Scorer) atmospheric(rec domain.ObservationRecord, b climatology.CountyBaseline, week int, deficit float64) (float64, error) {
	if rec.VPD == nil {
		return 0, &domain.MissingDataError{FIPS: rec.FIPS, Week: week, Indicator: "vpd"}
	}
	q, ok := b.VPDQuantiles[rec.Date.Month()]
	if !ok {
		return 0, &domain.MissingDataError{FIPS: rec.FIPS, Week: week, Indicator: "vpd_quantiles"}
	}
	return AtmosphericStress(rec.VPD.Mean, q, deficit), nil
}
