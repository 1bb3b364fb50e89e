package schedule

import (
	"testing"
	"time"
)

func validPayload() *Payload {
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	return &Payload{
		PracticeID: "practice-001",
		Date:       "2025-06-02",
		Appointments: []Appointment{
			{ID: "a3", TimeSlot: base.Add(2 * time.Hour), PatientID: "PT-AAAA1111", ProcedureCode: "D0120", ProviderID: "dr-1"},
			{ID: "a1", TimeSlot: base, PatientID: "PT-BBBB2222", ProcedureCode: "D1110", ProviderID: "hyg-1"},
			{ID: "a2", TimeSlot: base, PatientID: "PT-CCCC3333", ProcedureCode: "D2740", ProviderID: "dr-1"},
		},
		ExtractionTimestamp: time.Now(),
	}
}

func TestNormalize_OrdersByTimeSlotThenID(t *testing.T) {
	n := NewNormalizer()
	appts, dropped, err := n.Normalize(validPayload())
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(dropped) != 0 {
		t.Fatalf("expected no dropped appointments, got %d", len(dropped))
	}
	got := []string{appts[0].ID, appts[1].ID, appts[2].ID}
	want := []string{"a1", "a2", "a3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestNormalize_DropsAppointmentMissingProvider(t *testing.T) {
	p := validPayload()
	p.Appointments[1].ProviderID = ""

	n := NewNormalizer()
	appts, dropped, err := n.Normalize(p)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 surviving appointments, got %d", len(appts))
	}
	if len(dropped) != 1 {
		t.Fatalf("expected 1 dropped appointment, got %d", len(dropped))
	}
	if dropped[0].AppointmentID != "a1" || dropped[0].Field != "provider_id" {
		t.Errorf("unexpected drop record: %+v", dropped[0])
	}
	for _, a := range appts {
		if a.ID == "a1" {
			t.Errorf("dropped appointment still present")
		}
	}
}

func TestNormalize_StructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Payload)
	}{
		{"missing practice id", func(p *Payload) { p.PracticeID = "" }},
		{"bad date", func(p *Payload) { p.Date = "06/02/2025" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := validPayload()
			tc.mutate(p)
			_, _, err := n(t).Normalize(p)
			if err == nil {
				t.Fatal("expected structural error, got nil")
			}
			verr, ok := err.(*ValidationError)
			if !ok || !verr.Structural {
				t.Errorf("expected structural ValidationError, got %v", err)
			}
		})
	}
}

func n(t *testing.T) *Normalizer {
	t.Helper()
	return NewNormalizer()
}

func TestNormalize_EmptyScheduleIsValid(t *testing.T) {
	p := &Payload{PracticeID: "practice-001", Date: "2025-06-02"}
	appts, dropped, err := NewNormalizer().Normalize(p)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(appts) != 0 || len(dropped) != 0 {
		t.Errorf("expected empty result, got %d appts, %d dropped", len(appts), len(dropped))
	}
}
