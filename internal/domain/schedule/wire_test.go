package schedule

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/huddle/huddle/internal/edge/sanitize"
)

// The agent ships sanitized records as JSON; the server decodes them into
// Payload. This test pins the two sides to one wire shape: what the
// sanitizer emits must survive normalization intact.
func TestSanitizedRecordsRoundTripThroughIngest(t *testing.T) {
	raw := []sanitize.Record{
		{
			"id":             "apt-1",
			"time_slot":      "2025-06-02T08:00:00Z",
			"patient_name":   "Jane Doe",
			"birthdate":      "1975-03-14",
			"procedure_code": "D0120",
			"provider_id":    "dr-1",
			"no_show_count":  4,
		},
		{
			"id":             "apt-2",
			"time_slot":      "2025-06-02T09:00:00Z",
			"patient_name":   "John Smith",
			"procedure_code": "D1110",
			"provider_id":    "hyg-1",
		},
	}

	s := sanitize.New("salt-a", sanitize.DefaultPolicy())
	clean, rejects := s.SanitizeBatch(raw)
	if len(rejects) != 0 {
		t.Fatalf("unexpected sanitization rejects: %v", rejects)
	}

	wire := struct {
		PracticeID          string            `json:"practice_id"`
		Date                string            `json:"date"`
		Appointments        []sanitize.Record `json:"appointments"`
		ExtractionTimestamp time.Time         `json:"extraction_timestamp"`
	}{
		PracticeID:          "pine-street",
		Date:                "2025-06-02",
		Appointments:        clean,
		ExtractionTimestamp: time.Now().UTC(),
	}

	b, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal wire payload: %v", err)
	}
	if strings.Contains(string(b), "Jane Doe") || strings.Contains(string(b), "John Smith") {
		t.Fatal("wire payload contains a literal patient name")
	}

	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		t.Fatalf("unmarshal wire payload: %v", err)
	}

	kept, dropped, err := NewNormalizer().Normalize(&p)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(dropped) != 0 {
		t.Fatalf("normalizer dropped sanitized appointments: %v", dropped)
	}
	if len(kept) != len(raw) {
		t.Fatalf("kept %d appointments, want %d", len(kept), len(raw))
	}

	for _, appt := range kept {
		if !strings.HasPrefix(appt.PatientID, sanitize.TokenPrefix) {
			t.Errorf("appointment %s: patient reference %q is not a token", appt.ID, appt.PatientID)
		}
	}
	if kept[0].NoShowCount == nil || *kept[0].NoShowCount != 4 {
		t.Error("no_show_count did not survive the round trip")
	}
}
