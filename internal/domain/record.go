package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

var fipsRe = regexp.MustCompile(`^\d{5}$`)

// Stat holds per-indicator summary statistics for one county-week.
type Stat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// ObservationRecord is one cleaned county-week observation. Indicator fields
// are nil when the upstream dataset had no usable observations for the week.
// Records are immutable once parsed.
type ObservationRecord struct {
	FIPS string    `json:"fips"`
	Date time.Time `json:"date"`

	NDVI         *Stat `json:"ndvi,omitempty"`
	LST          *Stat `json:"lst,omitempty"`
	VPD          *Stat `json:"vpd,omitempty"`
	ETo          *Stat `json:"eto,omitempty"`
	Precip       *Stat `json:"precipitation,omitempty"`
	WaterDeficit *Stat `json:"water_deficit,omitempty"`

	HeatDays35 int `json:"heat_days_35"`
	HeatDays38 int `json:"heat_days_38"`
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// ParseRawEvent deserializes a RawEvent's value into an ObservationRecord and
// validates documented numeric domains.
func ParseRawEvent(raw RawEvent) (ObservationRecord, error) {
	var rec ObservationRecord
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return ObservationRecord{}, fmt.Errorf("parse raw event: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return ObservationRecord{}, err
	}
	return rec, nil
}

// Validate checks the record against documented value domains. Units and
// schema conformance are the upstream cleaner's contract; this guards the
// internal numeric ranges only.
func (r ObservationRecord) Validate() error {
	if !fipsRe.MatchString(r.FIPS) {
		return fmt.Errorf("invalid county FIPS %q", r.FIPS)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("record for county %s has no date", r.FIPS)
	}

	checks := []struct {
		name     string
		stat     *Stat
		min, max float64
	}{
		{"ndvi", r.NDVI, 0, 1},
		{"lst", r.LST, -90, 70},
		{"vpd", r.VPD, 0, 20},
		{"eto", r.ETo, 0, 50},
		{"precipitation", r.Precip, 0, 500},
	}
	for _, c := range checks {
		if c.stat == nil {
			continue
		}
		if c.stat.Mean < c.min || c.stat.Mean > c.max {
			return &OutOfRangeError{Field: c.name, Value: c.stat.Mean, Min: c.min, Max: c.max}
		}
	}
	if r.HeatDays35 < 0 || r.HeatDays35 > 7 {
		return &OutOfRangeError{Field: "heat_days_35", Value: float64(r.HeatDays35), Min: 0, Max: 7}
	}
	if r.HeatDays38 < 0 || r.HeatDays38 > 7 {
		return &OutOfRangeError{Field: "heat_days_38", Value: float64(r.HeatDays38), Min: 0, Max: 7}
	}
	return nil
}

// Year returns the calendar year the record belongs to.
func (r ObservationRecord) Year() int { return r.Date.Year() }

// SeasonWeek returns the 1-based growing-season week of the record's date.
// The season opens May 1; dates before that return 0.
func (r ObservationRecord) SeasonWeek() int {
	return SeasonWeek(r.Date)
}

// SeasonWeek computes the 1-based week of the growing season for a date.
// Week 1 starts May 1 of the date's year; dates before May 1 return 0.
func SeasonWeek(date time.Time) int {
	seasonStart := time.Date(date.Year(), time.May, 1, 0, 0, 0, 0, date.Location())
	if date.Before(seasonStart) {
		return 0
	}
	days := int(date.Sub(seasonStart).Hours() / 24)
	return days/7 + 1
}

// PollinationWindow is the fixed calendar sub-range of the growing season
// treated as most sensitive to stress.
type PollinationWindow struct {
	StartWeek int
	EndWeek   int
}

// Contains reports whether a season week falls inside the window.
func (w PollinationWindow) Contains(week int) bool {
	return week >= w.StartWeek && week <= w.EndWeek
}
