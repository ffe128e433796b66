// Package pii classifies text for personally identifiable information
// before the cache gate is allowed to persist or serve it. Detection is
// layered: deterministic pattern matchers for structured identifiers and
// a statistical recognizer for unstructured ones. When the statistical
// path is unavailable the scan fails closed and reports the text dirty.
package pii

import (
	"context"
	"errors"
)

// Category labels the kind of identifier a finding covers.
type Category string

const (
	CategoryEmail               Category = "email"
	CategoryPhone               Category = "phone"
	CategoryCreditCard          Category = "credit_card"
	CategorySSN                 Category = "ssn"
	CategoryIPAddress           Category = "ip_address"
	CategoryPersonName          Category = "person_name"
	CategoryAddress             Category = "address"
	CategoryDetectorUnavailable Category = "detector_unavailable"
)

// Source records which detector layer produced a finding.
type Source string

const (
	SourceRule        Source = "rule"
	SourceStatistical Source = "statistical"
)

// ErrDetectorUnavailable marks a statistical recognizer failure. It is
// absorbed by the scanner's fail-closed behavior and never propagated as
// a caching failure.
var ErrDetectorUnavailable = errors.New("pii: statistical detector unavailable")

// Finding is one detected span. Findings are produced per scan and never
// persisted; only the clean/dirty outcome leaves this package.
type Finding struct {
	Start      int
	End        int
	Category   Category
	Confidence float64
	Source     Source
}

// Result is the outcome of scanning one text blob. Clean is true iff no
// findings survived confidence thresholding.
type Result struct {
	Clean    bool
	Findings []Finding
}

// Recognizer is the statistical entity-recognition layer. Implementations
// must be safe for concurrent use and honor ctx cancellation; any error
// return is treated by the scanner as "assume dirty".
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Finding, error)
}
