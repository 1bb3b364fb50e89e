package schedule

import (
	"fmt"
	"time"
)

// Appointment is one scheduled visit after PHI sanitization. The patient
// identifier is an opaque token; a raw name, SSN, insurance id, or birthdate
// must never appear on this struct once it has crossed the delivery channel.
type Appointment struct {
	ID            string    `db:"id" json:"id"`
	TimeSlot      time.Time `db:"time_slot" json:"time_slot"`
	PatientID     string    `db:"patient_id" json:"patient_id"`
	ProcedureCode string    `db:"procedure_code" json:"procedure_code"`
	ProviderID    string    `db:"provider_id" json:"provider_id"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	AgeRange      *string   `db:"age_range" json:"age_range,omitempty"`
	MedicalAlerts []string  `db:"medical_alerts" json:"medical_alerts,omitempty"`
	Balance       *float64  `db:"balance" json:"balance,omitempty"`
	NoShowCount   *int      `db:"no_show_count" json:"no_show_count,omitempty"`
}

// Payload is one practice-day schedule as produced by the edge agent and
// consumed by the intake endpoint. Ingestion is idempotent on
// (PracticeID, Date).
type Payload struct {
	PracticeID          string        `json:"practice_id"`
	Date                string        `json:"date"` // YYYY-MM-DD
	Appointments        []Appointment `json:"appointments"`
	ExtractionTimestamp time.Time     `json:"extraction_timestamp"`
}

// DateValue parses the schedule date.
func (p *Payload) DateValue() (time.Time, error) {
	return time.Parse("2006-01-02", p.Date)
}

// ValidationError reports a malformed payload or appointment. Structural
// errors (missing practice id, unparseable date) are fatal for the whole
// payload; record-level errors drop only the offending appointment.
type ValidationError struct {
	Field         string
	AppointmentID string
	Structural    bool
	Reason        string
}

func (e *ValidationError) Error() string {
	if e.Structural {
		return fmt.Sprintf("invalid payload: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid appointment %s: %s: %s", e.AppointmentID, e.Field, e.Reason)
}
