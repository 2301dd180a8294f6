package parser

import (
	"errors"
	"time"
)

// ErrUnsupportedFormat is returned for exports whose header
// declares a format this version cannot read.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Document is one exported record, keyed for the record store.
type Document struct {
	Collection string
	ID         string
	CenterID   string
	// Date is the record's primary date (session date, patient or
	// alert creation); zero when missing or unparseable.
	Date time.Time
	Body string
	Line int
}

// ParseResult is the outcome of reading one export file.
type ParseResult struct {
	Path      string
	Format    string // header format, empty when absent
	Documents []Document
	// Skipped counts lines that were not valid JSON, belonged
	// to no known collection, or exceeded the line size limit.
	Skipped int
}
