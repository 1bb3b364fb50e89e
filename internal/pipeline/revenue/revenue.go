// Package revenue detects unscheduled-treatment and upsell opportunities
// from the day's appointments. Heuristics are pure per-appointment
// functions; priority is a deterministic function of estimated value and
// clinical urgency signals.
package revenue

import (
	"fmt"
	"strings"

	"github.com/huddle/huddle/internal/domain/schedule"
)

// Priority ranks an opportunity for the morning huddle discussion.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Opportunity is one detected revenue opportunity. Created only here,
// never mutated afterwards.
type Opportunity struct {
	PatientID      string   `db:"patient_id" json:"patient_id"`
	AppointmentID  string   `db:"appointment_id" json:"appointment_id,omitempty"`
	TreatmentType  string   `db:"treatment_type" json:"treatment_type"`
	EstimatedValue float64  `db:"estimated_value" json:"estimated_value"`
	Priority       Priority `db:"priority" json:"priority"`
	TalkingPoints  string   `db:"talking_points" json:"talking_points,omitempty"`
}

// Config holds the priority value thresholds and heuristic fee estimates.
type Config struct {
	// HighValueThreshold marks opportunities at or above this estimate as
	// HIGH priority (default 800).
	HighValueThreshold float64
	// MediumValueThreshold marks opportunities at or above this estimate
	// as MEDIUM priority (default 300).
	MediumValueThreshold float64
	// Fee estimates per opportunity type (defaults reflect typical UCR fees).
	RestorativeFollowUpFee float64
	PerioMaintenanceFee    float64
	FluorideFee            float64
}

func (c *Config) applyDefaults() {
	if c.HighValueThreshold <= 0 {
		c.HighValueThreshold = 800
	}
	if c.MediumValueThreshold <= 0 {
		c.MediumValueThreshold = 300
	}
	if c.RestorativeFollowUpFee <= 0 {
		c.RestorativeFollowUpFee = 850
	}
	if c.PerioMaintenanceFee <= 0 {
		c.PerioMaintenanceFee = 450
	}
	if c.FluorideFee <= 0 {
		c.FluorideFee = 45
	}
}

// Detector evaluates each appointment against the opportunity heuristics.
type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	cfg.applyDefaults()
	return &Detector{cfg: cfg}
}

// Detect returns at most one opportunity per appointment per distinct
// opportunity type, in appointment processing order.
func (d *Detector) Detect(appts []schedule.Appointment) []Opportunity {
	var out []Opportunity
	for _, a := range appts {
		for _, h := range d.heuristics() {
			if opp := h(a); opp != nil {
				opp.AppointmentID = a.ID
				opp.PatientID = a.PatientID
				opp.Priority = d.priority(opp.EstimatedValue, a)
				out = append(out, *opp)
			}
		}
	}
	return out
}

// priority derives the discussion priority from the estimated value,
// bumped one level when the appointment carries clinical urgency signals.
func (d *Detector) priority(value float64, a schedule.Appointment) Priority {
	p := PriorityLow
	switch {
	case value >= d.cfg.HighValueThreshold:
		p = PriorityHigh
	case value >= d.cfg.MediumValueThreshold:
		p = PriorityMedium
	}
	if len(a.MedicalAlerts) > 0 && p == PriorityLow {
		p = PriorityMedium
	}
	return p
}

type heuristic func(schedule.Appointment) *Opportunity

func (d *Detector) heuristics() []heuristic {
	return []heuristic{
		d.restorativeFollowUp,
		d.perioMaintenance,
		d.fluorideUpsell,
	}
}

// restorativeFollowUp: an exam visit is the moment to book diagnosed but
// unscheduled restorative work.
func (d *Detector) restorativeFollowUp(a schedule.Appointment) *Opportunity {
	if !strings.HasPrefix(a.ProcedureCode, "D01") {
		return nil
	}
	return &Opportunity{
		TreatmentType:  "Unscheduled restorative follow-up",
		EstimatedValue: d.cfg.RestorativeFollowUpFee,
		TalkingPoints:  "Review today's exam findings and offer to book any recommended restorative work before checkout.",
	}
}

// perioMaintenance: active perio codes indicate a recurring maintenance
// program that is often left unscheduled.
func (d *Detector) perioMaintenance(a schedule.Appointment) *Opportunity {
	if !strings.HasPrefix(a.ProcedureCode, "D43") && a.ProcedureCode != "D4910" {
		return nil
	}
	return &Opportunity{
		TreatmentType:  "Perio maintenance program",
		EstimatedValue: d.cfg.PerioMaintenanceFee,
		TalkingPoints:  "Confirm the 3-4 month perio maintenance interval and schedule the next visit today.",
	}
}

// fluorideUpsell: adult prophylaxis visits qualify for a same-visit
// fluoride treatment.
func (d *Detector) fluorideUpsell(a schedule.Appointment) *Opportunity {
	if a.ProcedureCode != "D1110" {
		return nil
	}
	return &Opportunity{
		TreatmentType:  fmt.Sprintf("Fluoride treatment with %s", a.ProcedureCode),
		EstimatedValue: d.cfg.FluorideFee,
		TalkingPoints:  "Offer fluoride varnish during today's cleaning; most plans cover it annually.",
	}
}
