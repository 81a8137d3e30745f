// Package gauges holds the gauge domain model: the Gauge entity, the
// derived GO/NO-GO pair aggregate, relationship history, calibration
// certificates and batches, and the typed error taxonomy shared by the
// store and service layers.
//
// Everything in this package is pure data and computation. Validation and
// status resolution never touch storage, so the pairing invariants are
// unit-testable without a database.
package gauges
