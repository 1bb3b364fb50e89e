package huddle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository persists huddles in PostgreSQL. Structured findings are
// stored as JSONB; the table is insert-only and the latest record per
// (practice, date) wins.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Save(ctx context.Context, h *MorningHuddle) error {
	flags, err := json.Marshal(h.RiskFlags)
	if err != nil {
		return fmt.Errorf("marshal risk flags: %w", err)
	}
	opps, err := json.Marshal(h.Opportunities)
	if err != nil {
		return fmt.Errorf("marshal opportunities: %w", err)
	}
	runErrs, err := json.Marshal(h.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
INSERT INTO huddles (id, practice_id, huddle_date, clinical_summary, hygiene_summary,
	admin_summary, risk_flags, opportunities, patient_count, errors, payload_digest, generated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		h.ID, h.PracticeID, h.HuddleDate, h.ClinicalSummary, h.HygieneSummary,
		h.AdminSummary, flags, opps, h.PatientCount, runErrs, h.PayloadDigest, h.GeneratedAt)
	if err != nil {
		return fmt.Errorf("insert huddle: %w", err)
	}
	return nil
}

const huddleColumns = `id, practice_id, huddle_date::text, clinical_summary, hygiene_summary,
	admin_summary, risk_flags, opportunities, patient_count, errors, payload_digest, generated_at`

func (r *PGRepository) GetLatest(ctx context.Context, practiceID, date string) (*MorningHuddle, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
SELECT %s FROM huddles
WHERE practice_id = $1 AND huddle_date = $2
ORDER BY generated_at DESC
LIMIT 1`, huddleColumns), practiceID, date)

	h, err := scanHuddle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest huddle: %w", err)
	}
	return h, nil
}

func (r *PGRepository) List(ctx context.Context, practiceID string, limit, offset int) ([]*MorningHuddle, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM huddles WHERE practice_id = $1`, practiceID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count huddles: %w", err)
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
SELECT %s FROM huddles
WHERE practice_id = $1
ORDER BY generated_at DESC
LIMIT $2 OFFSET $3`, huddleColumns), practiceID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list huddles: %w", err)
	}
	defer rows.Close()

	var out []*MorningHuddle
	for rows.Next() {
		h, err := scanHuddle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan huddle: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate huddles: %w", err)
	}
	return out, total, nil
}

func scanHuddle(row pgx.Row) (*MorningHuddle, error) {
	var (
		h                    MorningHuddle
		flags, opps, runErrs []byte
	)
	if err := row.Scan(&h.ID, &h.PracticeID, &h.HuddleDate, &h.ClinicalSummary,
		&h.HygieneSummary, &h.AdminSummary, &flags, &opps, &h.PatientCount,
		&runErrs, &h.PayloadDigest, &h.GeneratedAt); err != nil {
		return nil, err
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &h.RiskFlags); err != nil {
			return nil, fmt.Errorf("unmarshal risk flags: %w", err)
		}
	}
	if len(opps) > 0 {
		if err := json.Unmarshal(opps, &h.Opportunities); err != nil {
			return nil, fmt.Errorf("unmarshal opportunities: %w", err)
		}
	}
	if len(runErrs) > 0 {
		if err := json.Unmarshal(runErrs, &h.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal errors: %w", err)
		}
	}
	return &h, nil
}
