// Package extract holds the practice-management-system source adapters.
// Each adapter is a thin reader that returns one day's raw schedule
// records; everything past this boundary is agnostic to which PMS
// produced them.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/huddle/huddle/internal/edge/sanitize"
)

// RawSchedule is one day's schedule as pulled from a PMS, before any
// sanitization has happened. It must never leave the edge process.
type RawSchedule struct {
	Date         string
	Appointments []sanitize.Record
}

// Extractor pulls the schedule for a given day from one PMS source.
type Extractor interface {
	ExtractDay(ctx context.Context, day time.Time) (*RawSchedule, error)
}

// Config selects and parameterizes the PMS adapter.
type Config struct {
	PMSType       string // "csv", "opendental", "eaglesoft"
	CSVPath       string
	OpenDentalDSN string
	EaglesoftURL  string
}

// New returns the adapter for the configured PMS type.
func New(cfg Config) (Extractor, error) {
	switch cfg.PMSType {
	case "csv":
		return NewCSVExtractor(cfg.CSVPath), nil
	case "opendental":
		return NewOpenDentalExtractor(cfg.OpenDentalDSN), nil
	case "eaglesoft":
		return NewEaglesoftExtractor(cfg.EaglesoftURL), nil
	default:
		return nil, fmt.Errorf("unknown PMS type: %q", cfg.PMSType)
	}
}
