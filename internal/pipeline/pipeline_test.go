package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddle/huddle/internal/domain/schedule"
	"github.com/huddle/huddle/internal/pipeline/revenue"
	"github.com/huddle/huddle/internal/pipeline/risk"
	"github.com/huddle/huddle/internal/pipeline/synthesis"
)

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Generate(_ context.Context, p synthesis.Prompt) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("%s briefing", p.Role), nil
}

func intp(n int) *int { return &n }

func testPayload() *schedule.Payload {
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	return &schedule.Payload{
		PracticeID: "practice-001",
		Date:       "2025-06-02",
		Appointments: []schedule.Appointment{
			{ID: "a1", TimeSlot: base, PatientID: "PT-1", ProcedureCode: "D0120", ProviderID: "dr-1",
				MedicalAlerts: []string{"penicillin allergy"}},
			{ID: "a2", TimeSlot: base.Add(time.Hour), PatientID: "PT-2", ProcedureCode: "D1110", ProviderID: "hyg-1",
				NoShowCount: intp(4)},
			{ID: "a3", TimeSlot: base.Add(2 * time.Hour), PatientID: "PT-3", ProcedureCode: "D7140", ProviderID: "dr-1"},
		},
		ExtractionTimestamp: time.Now(),
	}
}

func defaultRunner(gen synthesis.TextGenerator) *Runner {
	return NewRunner(zerolog.Nop(), DefaultStages(
		schedule.NewNormalizer(),
		risk.NewScanner(risk.Config{}),
		revenue.NewDetector(revenue.Config{}),
		synthesis.New(gen, time.Second),
	)...)
}

func TestRun_FullPipeline(t *testing.T) {
	st := &State{Payload: testPayload()}
	if err := defaultRunner(&stubGenerator{}).Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(st.Appointments) != 3 {
		t.Errorf("appointments = %d, want 3", len(st.Appointments))
	}
	var critMedical, warnSched int
	for _, f := range st.Flags {
		if f.AppointmentID == "a3" {
			t.Errorf("unremarkable appointment flagged: %+v", f)
		}
		if f.Level == risk.LevelCritical && f.Category == risk.CategoryMedical {
			critMedical++
		}
		if f.Level == risk.LevelWarn && f.Category == risk.CategoryScheduling {
			warnSched++
		}
	}
	if critMedical < 1 || warnSched < 1 {
		t.Errorf("expected CRITICAL/MEDICAL and WARN/SCHEDULING flags, got %+v", st.Flags)
	}
	if len(st.Opportunities) == 0 {
		t.Error("expected revenue opportunities")
	}
	if st.Summaries.Clinical == "" || st.Summaries.Hygiene == "" || st.Summaries.Admin == "" {
		t.Errorf("missing summaries: %+v", st.Summaries)
	}
	if len(st.Errors) != 0 {
		t.Errorf("unexpected run errors: %v", st.Errors)
	}
}

func TestRun_DropsMalformedAppointmentAndContinues(t *testing.T) {
	p := testPayload()
	p.Appointments[1].ProviderID = ""

	st := &State{Payload: p}
	if err := defaultRunner(&stubGenerator{}).Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(st.Appointments) != 2 {
		t.Errorf("appointments = %d, want 2 after drop", len(st.Appointments))
	}
	if len(st.Errors) != 1 {
		t.Errorf("errors = %v, want exactly one drop record", st.Errors)
	}
	if st.Summaries.Admin == "" {
		t.Error("remaining appointments should flow through all stages")
	}
}

func TestRun_StructuralErrorHalts(t *testing.T) {
	p := testPayload()
	p.PracticeID = ""

	st := &State{Payload: p}
	err := defaultRunner(&stubGenerator{}).Run(context.Background(), st)
	if err == nil {
		t.Fatal("expected halt error")
	}
	var halt *HaltError
	if !errors.As(err, &halt) {
		t.Fatalf("expected *HaltError, got %T", err)
	}
	if len(st.Flags) != 0 || st.Summaries.Clinical != "" {
		t.Error("no downstream stage output should exist after a halt")
	}
	if len(st.Errors) != 1 {
		t.Errorf("halt should be recorded once, got %v", st.Errors)
	}
}

func TestRun_FailedStageRecordedRunContinues(t *testing.T) {
	boom := Stage{
		Name: "boom",
		Run:  func(context.Context, *State) error { return errors.New("stage exploded") },
	}
	after := false
	tail := Stage{
		Name: "tail",
		Run:  func(_ context.Context, st *State) error { after = true; return nil },
	}

	st := &State{Payload: testPayload()}
	r := NewRunner(zerolog.Nop(), NormalizeStage(schedule.NewNormalizer()), boom, tail)
	if err := r.Run(context.Background(), st); err != nil {
		t.Fatalf("plain stage error must not abort the run: %v", err)
	}
	if !after {
		t.Error("stage after the failure did not run")
	}
	if len(st.Errors) != 1 {
		t.Errorf("errors = %v", st.Errors)
	}
}

func TestRun_WriterFailureDegradesNotAborts(t *testing.T) {
	st := &State{Payload: testPayload()}
	if err := defaultRunner(&stubGenerator{err: errors.New("upstream down")}).Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(st.Errors) != 3 {
		t.Errorf("expected one recorded error per role, got %v", st.Errors)
	}
	if len(st.Flags) == 0 || len(st.Opportunities) == 0 {
		t.Error("structured outputs should survive a writer failure")
	}
}
