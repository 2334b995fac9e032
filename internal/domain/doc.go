// Package domain models county-week crop stress observations and the derived
// scoring and forecasting results.
//
// # Data Source
//
// Observation records arrive pre-cleaned from the upstream ingestion service,
// which aggregates satellite (MODIS NDVI, LST) and gridded weather products
// (gridMET precipitation, reference evapotranspiration, vapor-pressure deficit)
// into one record per county and calendar week. Counties are identified by
// their 5-digit FIPS code. The cleaning service guarantees units and schema;
// this package still validates documented numeric domains and rejects records
// that violate them.
//
// # Units
//
//	NDVI              dimensionless, [0, 1] after upstream rescaling
//	LST               degrees Celsius
//	VPD               kilopascals
//	ETo               millimeters per day
//	Precipitation     millimeters per day
//	Water deficit     millimeters per day (ETo minus precipitation)
//
// # Season Calendar
//
// The growing season opens on May 1. Week 1 of the season is the seven days
// starting May 1; week N covers days 7·(N−1) through 7·N−1 after that date.
// The pollination window is a configurable sub-range of season weeks
// (weeks 14–16 by default, mid-July through early August) during which water
// and heat stress are weighted more heavily.
//
// # Error Taxonomy
//
// Failures are per record, never per batch. A [MissingDataError] names the
// absent indicator; an [OutOfRangeError] names the violated domain. Both
// exclude only the offending county-week. [ModelUnavailableError] is fatal to
// the forecasting path at startup and leaves stress scoring untouched.
package domain
