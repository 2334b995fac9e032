// Package climatology loads and serves per-county long-term reference data:
// vegetation index normals, atmospheric dryness quantile tables, and fallback
// values for feature backfill. Baselines are recomputed annually by an
// external batch job and are immutable within a scoring run; the store swaps
// the whole table atomically on an explicit refresh.
package climatology

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Quantiles is a county-month quantile table for vapor-pressure deficit.
type Quantiles struct {
	P50 float64 `yaml:"p50"`
	P75 float64 `yaml:"p75"`
	P90 float64 `yaml:"p90"`
}

// CountyBaseline holds one county's long-term normals.
type CountyBaseline struct {
	// NDVIMean is the long-term mean vegetation index by calendar month.
	NDVIMean map[time.Month]float64 `yaml:"ndvi_mean"`

	// VPDQuantiles is the dryness quantile table by calendar month.
	VPDQuantiles map[time.Month]Quantiles `yaml:"vpd_quantiles"`

	// WeeklyWaterDeficit is the climatological mean daily water deficit (mm)
	// by season week, used as the scoring fallback for missing deficits.
	WeeklyWaterDeficit map[int]float64 `yaml:"weekly_water_deficit"`

	BaselineYield  float64 `yaml:"baseline_yield"`
	AvgPlantingDOY float64 `yaml:"avg_planting_doy"`

	// FeatureDefaults carries climatological substitutes for season-level
	// features, keyed by canonical feature name.
	FeatureDefaults map[string]float64 `yaml:"feature_defaults"`
}

type baselineFile struct {
	Version  string                    `yaml:"version"`
	Counties map[string]CountyBaseline `yaml:"counties"`
}

// Store is a process-wide, read-only view of county baselines. Lookups are
// lock-free; Refresh replaces the entire table atomically so concurrent
// readers observe either the old or the new table in its entirety.
type Store struct {
	path  string
	table atomic.Pointer[baselineFile]
}

// NewStore builds a Store from an in-memory baseline table. Used by tests and
// fixture generators; services load from disk via LoadFile.
func NewStore(version string, counties map[string]CountyBaseline) *Store {
	s := &Store{}
	s.table.Store(&baselineFile{Version: version, Counties: counties})
	return s
}

// LoadFile reads a baseline YAML file and returns a Store serving it.
func LoadFile(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh re-reads the baseline file and swaps the served table. On failure
// the previously loaded table keeps serving.
func (s *Store) Refresh() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read climatology file: %w", err)
	}

	var f baselineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse climatology file: %w", err)
	}
	if len(f.Counties) == 0 {
		return fmt.Errorf("climatology file %s has no counties", s.path)
	}

	s.table.Store(&f)
	return nil
}

// Version returns the version identifier of the loaded baseline table.
func (s *Store) Version() string {
	return s.table.Load().Version
}

// County returns the baseline for a FIPS code, or false when the county is
// not covered.
func (s *Store) County(fips string) (CountyBaseline, bool) {
	b, ok := s.table.Load().Counties[fips]
	return b, ok
}

// Counties returns the number of counties in the loaded table.
func (s *Store) Counties() int {
	return len(s.table.Load().Counties)
}
