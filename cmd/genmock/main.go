// Command genmock generates synthetic season fixtures: a climatology
// baseline file, per-county observation records, and a training dataset CSV.
// Records are run through the actual scoring core so the scored fixture
// matches real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -counties 8 -years 12
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/artem-biriukov/agriguard/internal/climatology"
	"github.com/artem-biriukov/agriguard/internal/domain"
	"github.com/artem-biriukov/agriguard/internal/features"
	"github.com/artem-biriukov/agriguard/internal/forecast"
	"github.com/artem-biriukov/agriguard/internal/stress"
	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"
)

const seasonWeeks = 20

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "data/mock", "output directory for fixtures")
	counties := flag.Int("counties", 8, "number of synthetic counties")
	years := flag.Int("years", 12, "number of seasons per county")
	seed := flag.Int64("seed", 2026, "random seed")
	flag.Parse()

	// Fixed clock for reproducible ComputedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2026, time.August, 29, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewSource(*seed))

	fipsCodes := make([]string, *counties)
	baselineTable := make(map[string]climatology.CountyBaseline, *counties)
	for i := range fipsCodes {
		fipsCodes[i] = fmt.Sprintf("17%03d", i*2+1)
		baselineTable[fipsCodes[i]] = countyBaseline(rng)
	}

	if err := writeYAML(filepath.Join(*outDir, "climatology.yaml"), baselineDocument{
		Version:  "clim-mock",
		Counties: baselineTable,
	}); err != nil {
		return fmt.Errorf("writing climatology fixture: %w", err)
	}
	log.Printf("wrote climatology fixture: %d counties", len(baselineTable))

	baselines := climatology.NewStore("clim-mock", baselineTable)
	window := domain.PollinationWindow{StartWeek: 14, EndWeek: 16}

	scorer, err := stress.NewScorer(stress.WeightsV1, window, baselines)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	featurePipeline := features.New(window, baselines, logger)

	// Latest season's records plus their scores, for pipeline and API tests.
	currentYear := domain.Now().Year()
	var records []domain.ObservationRecord
	var scores []domain.StressScoreResult
	for _, fips := range fipsCodes {
		season := seasonRecords(rng, fips, currentYear)
		records = append(records, season...)
		for _, rec := range season {
			result, err := scorer.Score(rec)
			if err != nil {
				return fmt.Errorf("scoring fixture for county %s: %w", fips, err)
			}
			scores = append(scores, result)
		}
	}
	if err := writeJSON(filepath.Join(*outDir, "observations.json"), records); err != nil {
		return fmt.Errorf("writing observations fixture: %w", err)
	}
	if err := writeJSON(filepath.Join(*outDir, "scores.json"), scores); err != nil {
		return fmt.Errorf("writing scores fixture: %w", err)
	}
	log.Printf("wrote %d observation records and scores", len(records))

	// Historical seasons, reduced to feature vectors, for cmd/train.
	samples, err := trainingSamples(rng, featurePipeline, fipsCodes, baselineTable, currentYear, *years)
	if err != nil {
		return err
	}
	if err := writeTrainingCSV(filepath.Join(*outDir, "seasons.csv"), samples); err != nil {
		return fmt.Errorf("writing training dataset: %w", err)
	}
	log.Printf("wrote training dataset: %d samples", len(samples))

	return nil
}

// baselineDocument matches the climatology file schema.
type baselineDocument struct {
	Version  string                                `yaml:"version"`
	Counties map[string]climatology.CountyBaseline `yaml:"counties"`
}

func countyBaseline(rng *rand.Rand) climatology.CountyBaseline {
	deficit := make(map[int]float64, seasonWeeks)
	for week := 1; week <= seasonWeeks; week++ {
		// Deficit climbs into midsummer and eases off.
		peak := 1 - math.Abs(float64(week)-11)/11
		deficit[week] = 1.5 + 3.5*peak + rng.Float64()
	}

	ndvi := map[time.Month]float64{}
	for m := time.May; m <= time.October; m++ {
		peak := 1 - math.Abs(float64(m)-7.5)/3.5
		ndvi[m] = 0.45 + 0.35*peak + rng.Float64()*0.04
	}

	vpd := map[time.Month]climatology.Quantiles{}
	for m := time.May; m <= time.October; m++ {
		p50 := 0.9 + rng.Float64()*0.4
		vpd[m] = climatology.Quantiles{P50: p50, P75: p50 + 0.4, P90: p50 + 0.9}
	}

	return climatology.CountyBaseline{
		NDVIMean:           ndvi,
		VPDQuantiles:       vpd,
		WeeklyWaterDeficit: deficit,
		BaselineYield:      165 + rng.Float64()*50,
		AvgPlantingDOY:     108 + rng.Float64()*14,
		FeatureDefaults: map[string]float64{
			"heat_days_38":               1,
			"heat_days_35":               5,
			"water_deficit_cumsum":       190,
			"water_deficit_pollination":  45,
			"water_deficit_max_daily":    8,
			"precipitation_cumsum":       400,
			"precipitation_early_season": 160,
			"ndvi_peak_value":            0.84,
			"ndvi_peak_week":             13,
			"ndvi_mean":                  0.66,
			"eto_cumsum":                 460,
			"vpd_mean":                   1.15,
		},
	}
}

// seasonRecords builds one county-year of weekly observations with a mild
// midsummer dry spell.
func seasonRecords(rng *rand.Rand, fips string, year int) []domain.ObservationRecord {
	start := time.Date(year, time.May, 1, 0, 0, 0, 0, time.UTC)
	records := make([]domain.ObservationRecord, 0, seasonWeeks)

	dryness := rng.Float64() // season-level severity in [0, 1)

	for week := 1; week <= seasonWeeks; week++ {
		midseason := 1 - math.Abs(float64(week)-10.5)/9.5

		ndvi := 0.40 + 0.42*midseason - 0.08*dryness + rng.Float64()*0.03
		vpd := 0.7 + 1.1*midseason*dryness + rng.Float64()*0.2
		deficit := 0.5 + 5.5*midseason*dryness + rng.Float64()*0.5
		precip := 4.5 * (1 - dryness) * (0.4 + rng.Float64())
		eto := 3.0 + 2.5*midseason + rng.Float64()*0.5

		hot35 := 0
		hot38 := 0
		if midseason > 0.6 && dryness > 0.4 {
			hot35 = rng.Intn(5)
			if hot35 > 2 {
				hot38 = rng.Intn(hot35 - 1)
			}
		}

		records = append(records, domain.ObservationRecord{
			FIPS:         fips,
			Date:         start.AddDate(0, 0, (week-1)*7),
			NDVI:         stat(ndvi, 0.05),
			VPD:          stat(vpd, 0.3),
			ETo:          stat(eto, 0.4),
			Precip:       stat(precip, 1.2),
			WaterDeficit: stat(deficit, 0.8),
			HeatDays35:   hot35,
			HeatDays38:   hot38,
		})
	}
	return records
}

func stat(mean, spread float64) *domain.Stat {
	if mean < 0 {
		mean = 0
	}
	return &domain.Stat{
		Mean: mean,
		Std:  spread / 2,
		Min:  math.Max(0, mean-spread),
		Max:  mean + spread,
	}
}

// trainingSamples builds historical feature vectors through the real feature
// pipeline plus a synthetic yield response.
func trainingSamples(
	rng *rand.Rand,
	featurePipeline *features.Pipeline,
	fipsCodes []string,
	baselineTable map[string]climatology.CountyBaseline,
	currentYear, years int,
) ([]forecast.Sample, error) {
	var samples []forecast.Sample
	for _, fips := range fipsCodes {
		for year := currentYear - years; year < currentYear; year++ {
			season := seasonRecords(rng, fips, year)
			v, err := featurePipeline.Build(fips, year, season)
			if err != nil {
				return nil, fmt.Errorf("features for county %s year %d: %w", fips, year, err)
			}

			base := baselineTable[fips].BaselineYield
			yield := base +
				25*(v.Values[domain.FeatNDVIMean]-0.6) -
				0.08*v.Values[domain.FeatWaterDeficitCumsum] -
				1.2*v.Values[domain.FeatHeatDays38] +
				rng.NormFloat64()*4

			samples = append(samples, forecast.Sample{Features: v, Yield: yield})
		}
	}
	return samples, nil
}

func writeTrainingCSV(path string, samples []forecast.Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"fips", "year"}, domain.FeatureNames[:]...)
	header = append(header, "yield_bu_acre")
	if err := w.Write(header); err != nil {
		return err
	}

	for _, s := range samples {
		row := make([]string, 0, len(header))
		row = append(row, s.Features.FIPS, strconv.Itoa(s.Features.Year))
		for _, v := range s.Features.Values {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		row = append(row, strconv.FormatFloat(s.Yield, 'f', -1, 64))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func writeYAML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
