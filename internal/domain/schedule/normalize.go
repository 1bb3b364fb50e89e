// Package schedule defines the canonical appointment model shared by the
// edge agent and the huddle pipeline, plus the normalizer that validates
// and reshapes an intake payload before analysis.
package schedule

import "sort"

// Normalizer validates a Payload and produces the canonical appointment
// list used by the downstream analysis stages.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize checks payload structure, drops malformed appointments, and
// orders the rest by time slot (ascending, stable on ties by id).
//
// A structural problem (missing practice id, unparseable date) fails the
// whole payload. A malformed appointment is dropped and reported in the
// returned error slice while the remaining appointments proceed.
func (n *Normalizer) Normalize(p *Payload) ([]Appointment, []*ValidationError, error) {
	if p == nil {
		return nil, nil, &ValidationError{Field: "payload", Structural: true, Reason: "payload is nil"}
	}
	if p.PracticeID == "" {
		return nil, nil, &ValidationError{Field: "practice_id", Structural: true, Reason: "practice_id is required"}
	}
	if _, err := p.DateValue(); err != nil {
		return nil, nil, &ValidationError{Field: "date", Structural: true, Reason: "date must be YYYY-MM-DD"}
	}

	var (
		kept    []Appointment
		dropped []*ValidationError
	)
	for _, a := range p.Appointments {
		if verr := validateAppointment(a); verr != nil {
			dropped = append(dropped, verr)
			continue
		}
		kept = append(kept, a)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].TimeSlot.Equal(kept[j].TimeSlot) {
			return kept[i].ID < kept[j].ID
		}
		return kept[i].TimeSlot.Before(kept[j].TimeSlot)
	})

	return kept, dropped, nil
}

func validateAppointment(a Appointment) *ValidationError {
	switch {
	case a.ID == "":
		return &ValidationError{Field: "id", Reason: "id is required"}
	case a.TimeSlot.IsZero():
		return &ValidationError{AppointmentID: a.ID, Field: "time_slot", Reason: "time_slot is required"}
	case a.PatientID == "":
		return &ValidationError{AppointmentID: a.ID, Field: "patient_id", Reason: "patient_id is required"}
	case a.ProviderID == "":
		return &ValidationError{AppointmentID: a.ID, Field: "provider_id", Reason: "provider_id is required"}
	case a.ProcedureCode == "":
		return &ValidationError{AppointmentID: a.ID, Field: "procedure_code", Reason: "procedure_code is required"}
	}
	return nil
}
