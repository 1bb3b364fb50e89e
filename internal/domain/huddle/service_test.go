package huddle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddle/huddle/internal/domain/schedule"
	"github.com/huddle/huddle/internal/pipeline"
	"github.com/huddle/huddle/internal/pipeline/revenue"
	"github.com/huddle/huddle/internal/pipeline/risk"
	"github.com/huddle/huddle/internal/pipeline/synthesis"
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, p synthesis.Prompt) (string, error) {
	return fmt.Sprintf("%s briefing for %s", p.Role, p.Date), nil
}

func newTestService(repo Repository) *Service {
	runner := pipeline.NewRunner(zerolog.Nop(), pipeline.DefaultStages(
		schedule.NewNormalizer(),
		risk.NewScanner(risk.Config{}),
		revenue.NewDetector(revenue.Config{}),
		synthesis.New(stubGenerator{}, time.Second),
	)...)
	return NewService(repo, runner, zerolog.Nop())
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

func TestIngest_ProducesHuddle(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)

	h, err := svc.Ingest(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if h.PatientCount != 3 {
		t.Errorf("patient count = %d, want 3", h.PatientCount)
	}
	if h.ClinicalSummary == "" || h.HygieneSummary == "" || h.AdminSummary == "" {
		t.Errorf("missing summaries: %+v", h)
	}
	if len(h.RiskFlags) == 0 || len(h.Opportunities) == 0 {
		t.Error("expected flags and opportunities in the huddle")
	}
	if h.Degraded() {
		t.Errorf("clean run marked degraded: %v", h.Errors)
	}
}

func TestIngest_IdenticalPayloadIsIdempotent(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)

	first, err := svc.Ingest(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	second, err := svc.Ingest(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	if first.ID != second.ID {
		t.Error("identical payload produced a new huddle record")
	}
	if len(first.RiskFlags) != len(second.RiskFlags) {
		t.Errorf("flag counts diverged: %d vs %d", len(first.RiskFlags), len(second.RiskFlags))
	}
	if hist := repo.History("practice-001", "2025-06-02"); len(hist) != 1 {
		t.Errorf("history length = %d, want 1", len(hist))
	}
}

func TestIngest_ChangedPayloadSupersedes(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)

	if _, err := svc.Ingest(context.Background(), testPayload()); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	changed := testPayload()
	changed.Appointments = changed.Appointments[:2]
	updated, err := svc.Ingest(context.Background(), changed)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	latest, err := svc.Get(context.Background(), "practice-001", "2025-06-02")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if latest.ID != updated.ID {
		t.Error("latest huddle is not the superseding record")
	}
	if latest.PatientCount != 2 {
		t.Errorf("patient count = %d, want 2", latest.PatientCount)
	}
	if hist := repo.History("practice-001", "2025-06-02"); len(hist) != 2 {
		t.Errorf("append-only history length = %d, want 2", len(hist))
	}
}

func TestIngest_StructuralErrorRejected(t *testing.T) {
	svc := newTestService(NewInMemoryRepository())

	p := testPayload()
	p.PracticeID = ""
	if _, err := svc.Ingest(context.Background(), p); err == nil {
		t.Fatal("expected structural rejection")
	}
}

func TestIngest_ConcurrentPracticesShareNothing(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			p := testPayload()
			p.PracticeID = fmt.Sprintf("practice-%03d", i)
			_, err := svc.Ingest(context.Background(), p)
			done <- err
		}(i)
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent Ingest: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		h, err := svc.Get(context.Background(), fmt.Sprintf("practice-%03d", i), "2025-06-02")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if h.PatientCount != 3 {
			t.Errorf("practice %d patient count = %d", i, h.PatientCount)
		}
	}
}
