package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/huddle/huddle/internal/edge/sanitize"
)

// CSVExtractor reads a schedule export dropped as a CSV file. The first
// row is a header; recognized numeric columns are converted, everything
// else is carried as a string.
type CSVExtractor struct {
	path string
}

func NewCSVExtractor(path string) *CSVExtractor {
	return &CSVExtractor{path: path}
}

// ExtractDay reads the CSV and keeps the rows whose time slot falls on
// the requested day.
func (e *CSVExtractor) ExtractDay(ctx context.Context, day time.Time) (*RawSchedule, error) {
	f, err := os.Open(e.path)
	if err != nil {
		return nil, fmt.Errorf("open schedule csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read schedule csv: %w", err)
	}
	if len(rows) == 0 {
		return &RawSchedule{Date: day.Format("2006-01-02")}, nil
	}

	header := rows[0]
	sched := &RawSchedule{Date: day.Format("2006-01-02")}
	for _, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := recordFromRow(header, row)
		if !onDay(rec, day) {
			continue
		}
		sched.Appointments = append(sched.Appointments, rec)
	}
	return sched, nil
}

func recordFromRow(header, row []string) sanitize.Record {
	rec := make(sanitize.Record, len(header))
	for i, col := range header {
		if i >= len(row) {
			break
		}
		val := strings.TrimSpace(row[i])
		if val == "" {
			continue
		}
		switch col {
		case "balance":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				rec[col] = f
				continue
			}
		case "no_show_count":
			if n, err := strconv.Atoi(val); err == nil {
				rec[col] = n
				continue
			}
		case "medical_alerts":
			rec[col] = strings.Split(val, ";")
			continue
		}
		rec[col] = val
	}
	return rec
}

func onDay(rec sanitize.Record, day time.Time) bool {
	slot, _ := rec["time_slot"].(string)
	if slot == "" {
		// Keep the row so the sanitizer can reject it with an audit entry.
		return true
	}
	ts, err := time.Parse(time.RFC3339, slot)
	if err != nil {
		return true
	}
	y1, m1, d1 := ts.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
