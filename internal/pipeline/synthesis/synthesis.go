// Package synthesis turns the pipeline's structured findings into the
// three role-scoped morning-huddle summaries. The prose itself comes
// from an external text-generation capability behind the TextGenerator
// interface; this package only selects, groups, and formats the inputs
// each role consumes, and bounds the external call with a timeout.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/huddle/huddle/internal/domain/schedule"
	"github.com/huddle/huddle/internal/pipeline/revenue"
	"github.com/huddle/huddle/internal/pipeline/risk"
)

// Role identifies which huddle audience a summary addresses.
type Role string

const (
	RoleClinical Role = "clinical"
	RoleHygiene  Role = "hygiene"
	RoleAdmin    Role = "admin"
)

// Roles lists all summary roles in composition order.
var Roles = []Role{RoleClinical, RoleHygiene, RoleAdmin}

// Prompt is the structured payload handed to the text generator for one
// role. It contains only the subset of the day's data that the role's
// summary should draw on.
type Prompt struct {
	Role          Role                   `json:"role"`
	PracticeID    string                 `json:"practice_id"`
	Date          string                 `json:"date"`
	Appointments  []schedule.Appointment `json:"appointments"`
	Flags         []risk.Flag            `json:"flags"`
	Opportunities []revenue.Opportunity  `json:"opportunities"`
}

// TextGenerator produces a plain-text summary from a structured prompt.
// Implementations live in platform/textgen; the pipeline treats this as
// a black box.
type TextGenerator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// RoleError records a failed summary for one role. The other roles
// proceed independently.
type RoleError struct {
	Role Role
	Err  error
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("summary for %s failed: %v", e.Role, e.Err)
}

func (e *RoleError) Unwrap() error { return e.Err }

// Summaries holds the three role summaries.
type Summaries struct {
	Clinical string
	Hygiene  string
	Admin    string
}

// DefaultTimeout bounds one text-generation call so a hung upstream
// cannot block the whole run.
const DefaultTimeout = 20 * time.Second

// Synthesizer composes the role summaries.
type Synthesizer struct {
	gen     TextGenerator
	timeout time.Duration
}

// New creates a Synthesizer. A non-positive timeout falls back to
// DefaultTimeout.
func New(gen TextGenerator, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Synthesizer{gen: gen, timeout: timeout}
}

// Synthesize generates all three summaries. A failure or timeout for one
// role is returned as a RoleError while the remaining roles still run.
func (s *Synthesizer) Synthesize(ctx context.Context, practiceID, date string,
	appts []schedule.Appointment, flags []risk.Flag, opps []revenue.Opportunity) (Summaries, []*RoleError) {

	var (
		out  Summaries
		errs []*RoleError
	)
	for _, role := range Roles {
		text, err := s.generateRole(ctx, s.prompt(role, practiceID, date, appts, flags, opps))
		if err != nil {
			errs = append(errs, &RoleError{Role: role, Err: err})
			continue
		}
		switch role {
		case RoleClinical:
			out.Clinical = text
		case RoleHygiene:
			out.Hygiene = text
		case RoleAdmin:
			out.Admin = text
		}
	}
	return out, errs
}

func (s *Synthesizer) generateRole(ctx context.Context, p Prompt) (string, error) {
	roleCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.gen.Generate(roleCtx, p)
}

// prompt selects the role-relevant subset of the day's data.
//
//   - clinical: every appointment, medical flags, high-priority opportunities
//   - hygiene: preventive/perio appointments, their medical flags, and
//     the recall/upsell opportunities attached to them
//   - admin: every appointment, scheduling and financial flags, all
//     opportunities
func (s *Synthesizer) prompt(role Role, practiceID, date string,
	appts []schedule.Appointment, flags []risk.Flag, opps []revenue.Opportunity) Prompt {

	p := Prompt{Role: role, PracticeID: practiceID, Date: date}
	switch role {
	case RoleClinical:
		p.Appointments = appts
		p.Flags = filterFlags(flags, risk.CategoryMedical)
		p.Opportunities = filterOppsByPriority(opps, revenue.PriorityHigh)
	case RoleHygiene:
		p.Appointments = preventiveAppointments(appts)
		keep := apptIDSet(p.Appointments)
		p.Flags = flagsForAppointments(filterFlags(flags, risk.CategoryMedical), keep)
		p.Opportunities = oppsForAppointments(opps, keep)
	case RoleAdmin:
		p.Appointments = appts
		p.Flags = filterFlags(flags, risk.CategoryScheduling, risk.CategoryFinancial)
		p.Opportunities = opps
	}
	return p
}

func preventiveAppointments(appts []schedule.Appointment) []schedule.Appointment {
	var out []schedule.Appointment
	for _, a := range appts {
		if strings.HasPrefix(a.ProcedureCode, "D1") || strings.HasPrefix(a.ProcedureCode, "D4") {
			out = append(out, a)
		}
	}
	return out
}

func filterFlags(flags []risk.Flag, cats ...risk.Category) []risk.Flag {
	var out []risk.Flag
	for _, f := range flags {
		for _, c := range cats {
			if f.Category == c {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func filterOppsByPriority(opps []revenue.Opportunity, p revenue.Priority) []revenue.Opportunity {
	var out []revenue.Opportunity
	for _, o := range opps {
		if o.Priority == p {
			out = append(out, o)
		}
	}
	return out
}

func apptIDSet(appts []schedule.Appointment) map[string]bool {
	set := make(map[string]bool, len(appts))
	for _, a := range appts {
		set[a.ID] = true
	}
	return set
}

func flagsForAppointments(flags []risk.Flag, keep map[string]bool) []risk.Flag {
	var out []risk.Flag
	for _, f := range flags {
		if keep[f.AppointmentID] {
			out = append(out, f)
		}
	}
	return out
}

func oppsForAppointments(opps []revenue.Opportunity, keep map[string]bool) []revenue.Opportunity {
	var out []revenue.Opportunity
	for _, o := range opps {
		if keep[o.AppointmentID] {
			out = append(out, o)
		}
	}
	return out
}
