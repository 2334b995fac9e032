package domain

import "fmt"

// MissingDataError reports that a required indicator or sub-index is absent
// for a county-week. It fails the single computation, never the batch.
type MissingDataError struct {
	FIPS      string
	Week      int
	Indicator string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing %s for county %s week %d", e.Indicator, e.FIPS, e.Week)
}

// OutOfRangeError reports an input value outside its documented domain.
// The offending record is excluded from scoring.
type OutOfRangeError struct {
	Field    string
	Value    float64
	Min, Max float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s=%g outside [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// ModelUnavailableError reports that no servable model artifact exists.
// Forecasting calls fail fast; stress scoring is unaffected.
type ModelUnavailableError struct {
	Version string
}

func (e *ModelUnavailableError) Error() string {
	if e.Version == "" {
		return "no model artifact available"
	}
	return fmt.Sprintf("model artifact %q unavailable", e.Version)
}
