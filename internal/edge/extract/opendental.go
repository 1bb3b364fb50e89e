package extract

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/huddle/huddle/internal/edge/sanitize"
)

// OpenDentalExtractor reads the day's schedule directly from an Open
// Dental MySQL database. Only the columns the sanitizer recognizes plus
// a few scheduling attributes are selected; the query runs read-only.
type OpenDentalExtractor struct {
	dsn string
}

func NewOpenDentalExtractor(dsn string) *OpenDentalExtractor {
	return &OpenDentalExtractor{dsn: dsn}
}

const openDentalScheduleQuery = `
SELECT a.AptNum, a.AptDateTime, CONCAT(p.FName, ' ', p.LName),
       a.ProcDescript, a.ProvNum, IFNULL(a.Note, ''),
       IFNULL(p.SSN, ''), IFNULL(p.Birthdate, ''), IFNULL(p.MedUrgNote, ''),
       IFNULL(p.BalTotal, 0)
FROM appointment a
JOIN patient p ON p.PatNum = a.PatNum
WHERE DATE(a.AptDateTime) = ? AND a.AptStatus = 1
ORDER BY a.AptDateTime`

func (e *OpenDentalExtractor) ExtractDay(ctx context.Context, day time.Time) (*RawSchedule, error) {
	db, err := sql.Open("mysql", e.dsn)
	if err != nil {
		return nil, fmt.Errorf("open pms database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping pms database: %w", err)
	}

	rows, err := db.QueryContext(ctx, openDentalScheduleQuery, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()

	sched := &RawSchedule{Date: day.Format("2006-01-02")}
	for rows.Next() {
		var (
			aptNum, provNum       int64
			aptTime               time.Time
			name, proc, note, ssn string
			birthdate, medNote    string
			balance               float64
		)
		if err := rows.Scan(&aptNum, &aptTime, &name, &proc, &provNum, &note,
			&ssn, &birthdate, &medNote, &balance); err != nil {
			return nil, fmt.Errorf("scan appointment row: %w", err)
		}

		rec := sanitize.Record{
			"id":             fmt.Sprintf("apt-%d", aptNum),
			"time_slot":      aptTime.Format(time.RFC3339),
			"patient_name":   name,
			"procedure_code": proc,
			"provider_id":    fmt.Sprintf("prov-%d", provNum),
		}
		if note != "" {
			rec["notes"] = note
		}
		if ssn != "" {
			rec["ssn"] = ssn
		}
		if birthdate != "" {
			rec["birthdate"] = birthdate
		}
		if medNote != "" {
			rec["medical_alerts"] = []string{medNote}
		}
		if balance > 0 {
			rec["balance"] = balance
		}
		sched.Appointments = append(sched.Appointments, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointment rows: %w", err)
	}

	return sched, nil
}
