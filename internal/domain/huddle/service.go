package huddle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/huddle/huddle/internal/domain/schedule"
	"github.com/huddle/huddle/internal/pipeline"
)

// Service accepts sanitized schedule payloads, runs the huddle pipeline,
// and persists the resulting MorningHuddle. Ingestion is idempotent on
// (practice, date): re-ingesting an identical payload returns the
// existing huddle; a changed payload produces a new huddle that
// supersedes the old one.
type Service struct {
	repo   Repository
	runner *pipeline.Runner
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, runner *pipeline.Runner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, runner: runner, logger: logger, now: time.Now}
}

// Ingest runs one huddle pipeline for the payload. Each call owns a fresh
// pipeline State, so concurrent ingests for different practices share
// nothing mutable.
func (s *Service) Ingest(ctx context.Context, p *schedule.Payload) (*MorningHuddle, error) {
	digest, err := payloadDigest(p)
	if err != nil {
		return nil, fmt.Errorf("fingerprint payload: %w", err)
	}

	if existing, err := s.repo.GetLatest(ctx, p.PracticeID, p.Date); err == nil {
		if existing.PayloadDigest == digest {
			s.logger.Info().
				Str("practice_id", p.PracticeID).
				Str("date", p.Date).
				Msg("identical payload already ingested, returning existing huddle")
			return existing, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("look up existing huddle: %w", err)
	}

	st := &pipeline.State{Payload: p}
	if err := s.runner.Run(ctx, st); err != nil {
		var halt *pipeline.HaltError
		if errors.As(err, &halt) {
			return nil, halt
		}
		return nil, fmt.Errorf("huddle pipeline: %w", err)
	}

	h := &MorningHuddle{
		ID:              uuid.New(),
		PracticeID:      p.PracticeID,
		HuddleDate:      p.Date,
		ClinicalSummary: st.Summaries.Clinical,
		HygieneSummary:  st.Summaries.Hygiene,
		AdminSummary:    st.Summaries.Admin,
		RiskFlags:       st.Flags,
		Opportunities:   st.Opportunities,
		PatientCount:    patientCount(st),
		Errors:          st.Errors,
		PayloadDigest:   digest,
		GeneratedAt:     s.now(),
	}
	if err := s.repo.Save(ctx, h); err != nil {
		return nil, fmt.Errorf("save huddle: %w", err)
	}

	s.logger.Info().
		Str("practice_id", h.PracticeID).
		Str("date", h.HuddleDate).
		Int("patients", h.PatientCount).
		Int("flags", len(h.RiskFlags)).
		Int("opportunities", len(h.Opportunities)).
		Bool("degraded", h.Degraded()).
		Msg("huddle generated")
	return h, nil
}

// Get returns the latest huddle for (practice, date).
func (s *Service) Get(ctx context.Context, practiceID, date string) (*MorningHuddle, error) {
	return s.repo.GetLatest(ctx, practiceID, date)
}

// List returns a practice's huddles, newest first.
func (s *Service) List(ctx context.Context, practiceID string, limit, offset int) ([]*MorningHuddle, int, error) {
	return s.repo.List(ctx, practiceID, limit, offset)
}

// payloadDigest hashes the canonical JSON encoding of the payload.
func payloadDigest(p *schedule.Payload) (string, error) {
	// The extraction timestamp changes on every agent run even when the
	// schedule itself has not; exclude it from the fingerprint.
	shadow := struct {
		PracticeID   string                 `json:"practice_id"`
		Date         string                 `json:"date"`
		Appointments []schedule.Appointment `json:"appointments"`
	}{p.PracticeID, p.Date, p.Appointments}

	raw, err := json.Marshal(shadow)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// patientCount counts distinct patient tokens in the normalized schedule.
func patientCount(st *pipeline.State) int {
	seen := make(map[string]bool, len(st.Appointments))
	for _, a := range st.Appointments {
		seen[a.PatientID] = true
	}
	return len(seen)
}
