// Package pipeline runs the staged morning-huddle analysis: normalize →
// risk scan → revenue detection → summary writing. One State value is
// exclusively owned by one run; stages execute strictly in sequence and
// a failing stage is recorded rather than aborting the run, so the front
// desk still gets a degraded huddle instead of nothing.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/huddle/huddle/internal/domain/schedule"
	"github.com/huddle/huddle/internal/pipeline/revenue"
	"github.com/huddle/huddle/internal/pipeline/risk"
	"github.com/huddle/huddle/internal/pipeline/synthesis"
)

// State is the shared record carried through the stage sequence. Raw
// input is populated before the run; each stage fills in its own output
// and reads only what earlier stages produced.
type State struct {
	Payload       *schedule.Payload
	Appointments  []schedule.Appointment
	Flags         []risk.Flag
	Opportunities []revenue.Opportunity
	Summaries     synthesis.Summaries
	Errors        []string
}

// RecordError appends a stage-scoped error to the run's audit trail.
func (st *State) RecordError(stage string, err error) {
	st.Errors = append(st.Errors, fmt.Sprintf("%s: %v", stage, err))
}

// HaltError wraps an error that must stop the run, such as a structurally
// invalid payload. Ordinary stage errors are recorded and the run
// continues; a halt preserves prior stage output and ends the sequence.
type HaltError struct {
	Err error
}

func (e *HaltError) Error() string { return e.Err.Error() }
func (e *HaltError) Unwrap() error { return e.Err }

// Stage is one step of the pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context, st *State) error
}

// Runner executes an ordered stage list over one State.
type Runner struct {
	stages []Stage
	logger zerolog.Logger
}

func NewRunner(logger zerolog.Logger, stages ...Stage) *Runner {
	return &Runner{stages: stages, logger: logger}
}

// Run executes the stages in order. A stage error is recorded into the
// State and the run continues with partial data; a HaltError (or context
// cancellation) stops the sequence and is returned to the caller.
func (r *Runner) Run(ctx context.Context, st *State) error {
	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			st.RecordError(stage.Name, err)
			return err
		}

		err := stage.Run(ctx, st)
		if err == nil {
			r.logger.Debug().Str("stage", stage.Name).Msg("stage completed")
			continue
		}

		st.RecordError(stage.Name, err)
		var halt *HaltError
		if errors.As(err, &halt) {
			r.logger.Error().Str("stage", stage.Name).Err(err).Msg("pipeline halted")
			return err
		}
		r.logger.Warn().Str("stage", stage.Name).Err(err).Msg("stage failed, continuing degraded")
	}
	return nil
}

// NormalizeStage validates the payload and canonicalizes the appointment
// list. A structural payload error halts the run; malformed appointments
// are dropped with an audit entry.
func NormalizeStage(n *schedule.Normalizer) Stage {
	return Stage{
		Name: "normalize",
		Run: func(_ context.Context, st *State) error {
			appts, dropped, err := n.Normalize(st.Payload)
			if err != nil {
				return &HaltError{Err: err}
			}
			for _, d := range dropped {
				st.RecordError("normalize", d)
			}
			st.Appointments = appts
			return nil
		},
	}
}

// RiskStage evaluates the risk rule set over the normalized appointments.
func RiskStage(s *risk.Scanner) Stage {
	return Stage{
		Name: "risk_scan",
		Run: func(_ context.Context, st *State) error {
			st.Flags = s.Scan(st.Appointments)
			return nil
		},
	}
}

// RevenueStage detects revenue opportunities.
func RevenueStage(d *revenue.Detector) Stage {
	return Stage{
		Name: "revenue",
		Run: func(_ context.Context, st *State) error {
			st.Opportunities = d.Detect(st.Appointments)
			return nil
		},
	}
}

// WriterStage composes the role summaries. A failure for one role is
// recorded and the remaining summaries are still kept.
func WriterStage(s *synthesis.Synthesizer) Stage {
	return Stage{
		Name: "writer",
		Run: func(ctx context.Context, st *State) error {
			sums, errs := s.Synthesize(ctx, st.Payload.PracticeID, st.Payload.Date,
				st.Appointments, st.Flags, st.Opportunities)
			st.Summaries = sums
			for _, re := range errs {
				st.RecordError("writer", re)
			}
			return nil
		},
	}
}

// DefaultStages wires the standard four-stage sequence.
func DefaultStages(n *schedule.Normalizer, sc *risk.Scanner, d *revenue.Detector, sy *synthesis.Synthesizer) []Stage {
	return []Stage{
		NormalizeStage(n),
		RiskStage(sc),
		RevenueStage(d),
		WriterStage(sy),
	}
}
