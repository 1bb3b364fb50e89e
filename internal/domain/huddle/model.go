// Package huddle owns the morning-huddle artifact: the terminal record
// of one pipeline run, its persistence boundary, the idempotent intake
// service, and the HTTP handler exposing it.
package huddle

import (
	"time"

	"github.com/google/uuid"

	"github.com/huddle/huddle/internal/pipeline/revenue"
	"github.com/huddle/huddle/internal/pipeline/risk"
)

// MorningHuddle is the pipeline's terminal artifact for one
// (practice, date). It is append-only: a re-run produces a new record
// that supersedes the old one, never an in-place update.
type MorningHuddle struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PracticeID string    `db:"practice_id" json:"practice_id"`
	HuddleDate string    `db:"huddle_date" json:"huddle_date"`

	ClinicalSummary string `db:"clinical_summary" json:"clinical_summary"`
	HygieneSummary  string `db:"hygiene_summary" json:"hygiene_summary"`
	AdminSummary    string `db:"admin_summary" json:"admin_summary"`

	RiskFlags     []risk.Flag           `db:"risk_flags" json:"risk_flags"`
	Opportunities []revenue.Opportunity `db:"opportunities" json:"opportunities"`

	PatientCount int      `db:"patient_count" json:"patient_count"`
	Errors       []string `db:"errors" json:"errors,omitempty"`

	// PayloadDigest fingerprints the ingested payload so re-ingesting
	// identical data does not produce a divergent huddle.
	PayloadDigest string    `db:"payload_digest" json:"-"`
	GeneratedAt   time.Time `db:"generated_at" json:"generated_at"`
}

// Summary returns the summary text for one role, or false when the role
// is unknown.
func (h *MorningHuddle) Summary(role string) (string, bool) {
	switch role {
	case "clinical":
		return h.ClinicalSummary, true
	case "hygiene":
		return h.HygieneSummary, true
	case "admin":
		return h.AdminSummary, true
	}
	return "", false
}

// Degraded reports whether any stage error was recorded during the run
// that produced this huddle.
func (h *MorningHuddle) Degraded() bool {
	return len(h.Errors) > 0
}
