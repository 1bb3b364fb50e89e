package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/huddle/huddle/internal/edge/sanitize"
)

// EaglesoftExtractor screen-scrapes the Eaglesoft web schedule view with
// a headless browser. Eaglesoft exposes no queryable API, so the day
// sheet DOM is the extraction surface.
type EaglesoftExtractor struct {
	scheduleURL string
}

func NewEaglesoftExtractor(scheduleURL string) *EaglesoftExtractor {
	return &EaglesoftExtractor{scheduleURL: scheduleURL}
}

// scrapeRowsJS collects the day-sheet rows into a JSON-friendly shape.
const scrapeRowsJS = `
Array.from(document.querySelectorAll("#day-sheet tr.appt-row")).map(function (tr) {
	return {
		id: tr.dataset.apptId || "",
		time_slot: tr.dataset.startIso || "",
		patient_name: (tr.querySelector(".patient-name") || {}).textContent || "",
		procedure_code: (tr.querySelector(".proc-code") || {}).textContent || "",
		provider_id: tr.dataset.providerId || "",
		birthdate: tr.dataset.birthdate || "",
		medical_alerts: Array.from(tr.querySelectorAll(".med-alert")).map(function (el) {
			return el.textContent;
		}),
	};
})`

type scrapedRow struct {
	ID            string   `json:"id"`
	TimeSlot      string   `json:"time_slot"`
	PatientName   string   `json:"patient_name"`
	ProcedureCode string   `json:"procedure_code"`
	ProviderID    string   `json:"provider_id"`
	Birthdate     string   `json:"birthdate"`
	MedicalAlerts []string `json:"medical_alerts"`
}

func (e *EaglesoftExtractor) ExtractDay(ctx context.Context, day time.Time) (*RawSchedule, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	url := fmt.Sprintf("%s?date=%s", e.scheduleURL, day.Format("2006-01-02"))

	var raw json.RawMessage
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("#day-sheet", chromedp.ByQuery),
		chromedp.Evaluate(scrapeRowsJS, &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("scrape day sheet: %w", err)
	}

	var rows []scrapedRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode scraped rows: %w", err)
	}

	sched := &RawSchedule{Date: day.Format("2006-01-02")}
	for _, r := range rows {
		rec := sanitize.Record{
			"id":             r.ID,
			"time_slot":      r.TimeSlot,
			"patient_name":   r.PatientName,
			"procedure_code": r.ProcedureCode,
			"provider_id":    r.ProviderID,
		}
		if r.Birthdate != "" {
			rec["birthdate"] = r.Birthdate
		}
		if len(r.MedicalAlerts) > 0 {
			rec["medical_alerts"] = r.MedicalAlerts
		}
		sched.Appointments = append(sched.Appointments, rec)
	}
	return sched, nil
}
