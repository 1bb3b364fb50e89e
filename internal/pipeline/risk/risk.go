// Package risk evaluates normalized appointments against an ordered rule
// set. Every rule is a pure function of a single appointment, so rules
// are independently testable and the scanner carries no cross-appointment
// state.
package risk

import (
	"fmt"
	"strings"

	"github.com/huddle/huddle/internal/domain/schedule"
)

// Level is a flag severity, ordered by decreasing urgency.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelWarn     Level = "WARN"
	LevelInfo     Level = "INFO"
)

// Category classifies what kind of risk a flag describes.
type Category string

const (
	CategoryMedical    Category = "MEDICAL"
	CategoryFinancial  Category = "FINANCIAL"
	CategoryScheduling Category = "SCHEDULING"
)

// Flag is one finding about one appointment. Immutable once created.
type Flag struct {
	Level         Level    `db:"level" json:"level"`
	Category      Category `db:"category" json:"category"`
	Message       string   `db:"message" json:"message"`
	PatientID     string   `db:"patient_id" json:"patient_id,omitempty"`
	AppointmentID string   `db:"appointment_id" json:"appointment_id,omitempty"`
	RuleID        string   `db:"rule_id" json:"rule_id,omitempty"`
}

// Config holds the rule thresholds. Zero values fall back to defaults.
type Config struct {
	// NoShowThreshold is the trailing-12-month no-show count at or above
	// which a same-day appointment is flagged (default 3).
	NoShowThreshold int
	// BalanceThreshold is the outstanding balance above which an
	// appointment is flagged (default 200).
	BalanceThreshold float64
}

func (c *Config) applyDefaults() {
	if c.NoShowThreshold <= 0 {
		c.NoShowThreshold = 3
	}
	if c.BalanceThreshold <= 0 {
		c.BalanceThreshold = 200
	}
}

// Rule pairs an identifier with a per-appointment predicate. Evaluate
// returns nil when the rule does not fire.
type Rule struct {
	ID       string
	Evaluate func(schedule.Appointment) *Flag
}

// Scanner runs the rule set over each appointment in declaration order.
type Scanner struct {
	rules []Rule
}

// NewScanner builds a scanner with the standard dental rule set bound to
// the given thresholds.
func NewScanner(cfg Config) *Scanner {
	cfg.applyDefaults()
	return &Scanner{rules: defaultRules(cfg)}
}

// NewScannerWithRules builds a scanner from a caller-supplied rule set.
func NewScannerWithRules(rules []Rule) *Scanner {
	return &Scanner{rules: rules}
}

// Scan evaluates every rule against every appointment. Per-appointment
// flag order equals the rule set's declared order.
func (s *Scanner) Scan(appts []schedule.Appointment) []Flag {
	var flags []Flag
	for _, a := range appts {
		for _, r := range s.rules {
			if f := r.Evaluate(a); f != nil {
				f.RuleID = r.ID
				f.PatientID = a.PatientID
				f.AppointmentID = a.ID
				flags = append(flags, *f)
			}
		}
	}
	return flags
}

// premedAlertTerms mark alerts that require antibiotic premedication or
// bleeding precautions before treatment.
var premedAlertTerms = []string{"anticoagulant", "blood thinner", "heart valve", "joint replacement"}

func defaultRules(cfg Config) []Rule {
	return []Rule{
		{
			ID: "medical-alert",
			Evaluate: func(a schedule.Appointment) *Flag {
				if len(a.MedicalAlerts) == 0 {
					return nil
				}
				return &Flag{
					Level:    LevelCritical,
					Category: CategoryMedical,
					Message:  fmt.Sprintf("Medical alert on file: %s", strings.Join(a.MedicalAlerts, ", ")),
				}
			},
		},
		{
			ID: "premedication",
			Evaluate: func(a schedule.Appointment) *Flag {
				for _, alert := range a.MedicalAlerts {
					lower := strings.ToLower(alert)
					for _, term := range premedAlertTerms {
						if strings.Contains(lower, term) {
							return &Flag{
								Level:    LevelWarn,
								Category: CategoryMedical,
								Message:  fmt.Sprintf("Verify premedication before treatment (%s)", alert),
							}
						}
					}
				}
				return nil
			},
		},
		{
			ID: "no-show-history",
			// Every appointment in a payload belongs to the payload's
			// date, so the history check applies to the whole batch.
			Evaluate: func(a schedule.Appointment) *Flag {
				if a.NoShowCount == nil || *a.NoShowCount < cfg.NoShowThreshold {
					return nil
				}
				return &Flag{
					Level:    LevelWarn,
					Category: CategoryScheduling,
					Message:  fmt.Sprintf("%d no-shows in the last 12 months; confirm before the visit", *a.NoShowCount),
				}
			},
		},
		{
			ID: "outstanding-balance",
			Evaluate: func(a schedule.Appointment) *Flag {
				if a.Balance == nil || *a.Balance <= cfg.BalanceThreshold {
					return nil
				}
				return &Flag{
					Level:    LevelWarn,
					Category: CategoryFinancial,
					Message:  fmt.Sprintf("Outstanding balance $%.2f; discuss payment at check-in", *a.Balance),
				}
			},
		},
		{
			ID: "new-patient",
			Evaluate: func(a schedule.Appointment) *Flag {
				if a.ProcedureCode != "D0150" {
					return nil
				}
				return &Flag{
					Level:    LevelInfo,
					Category: CategoryScheduling,
					Message:  "New patient comprehensive exam; allow extra chair time",
				}
			},
		},
	}
}
