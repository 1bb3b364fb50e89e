package huddle

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/huddle/huddle/internal/platform/auth"
)

// newScopedServer wires routes behind a stub of the API-key middleware
// that pins the validated practice on the context.
func newScopedServer(t *testing.T, practiceID string) (*echo.Echo, *Service) {
	t.Helper()
	e := echo.New()
	svc := newTestService(NewInMemoryRepository())
	g := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(auth.PracticeIDKey, practiceID)
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(g)
	return e, svc
}

func newTestServer(t *testing.T) (*echo.Echo, *Service) {
	t.Helper()
	e := echo.New()
	svc := newTestService(NewInMemoryRepository())
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	return e, svc
}

func gzipBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()
	return &buf
}

func TestIngestEndpoint_AcceptsGzippedPayload(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule/ingest", gzipBody(t, testPayload()))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "accepted" || resp["huddle_id"] == "" {
		t.Errorf("unexpected ack: %v", resp)
	}
}

func TestIngestEndpoint_PlainJSONAlsoAccepted(t *testing.T) {
	e, _ := newTestServer(t)

	raw, _ := json.Marshal(testPayload())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule/ingest", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestIngestEndpoint_StructuralErrorIs400(t *testing.T) {
	e, _ := newTestServer(t)

	p := testPayload()
	p.Date = "bad-date"
	raw, _ := json.Marshal(p)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule/ingest", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetHuddle_AndRoleSummary(t *testing.T) {
	e, svc := newTestServer(t)
	if _, err := svc.Ingest(httptest.NewRequest(http.MethodGet, "/", nil).Context(), testPayload()); err != nil {
		t.Fatalf("seed ingest: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/huddle/2025-06-02?practice_id=practice-001", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get huddle status = %d", rec.Code)
	}
	var h MorningHuddle
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("decode huddle: %v", err)
	}
	if h.PracticeID != "practice-001" || h.PatientCount != 3 {
		t.Errorf("unexpected huddle: %+v", h)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/huddle/2025-06-02/summary/hygiene?practice_id=practice-001", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("role summary status = %d", rec.Code)
	}
	var sum map[string]string
	json.Unmarshal(rec.Body.Bytes(), &sum)
	if sum["role"] != "hygiene" || sum["summary"] == "" {
		t.Errorf("unexpected summary response: %v", sum)
	}
}

func TestGetHuddle_UnknownDateIs404(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/huddle/2030-01-01?practice_id=practice-001", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetRoleSummary_UnknownRoleIs400(t *testing.T) {
	e, svc := newTestServer(t)
	if _, err := svc.Ingest(httptest.NewRequest(http.MethodGet, "/", nil).Context(), testPayload()); err != nil {
		t.Fatalf("seed ingest: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/huddle/2025-06-02/summary/janitor?practice_id=practice-001", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPracticeScope_MismatchedKeyIs403(t *testing.T) {
	e, svc := newScopedServer(t, "practice-002")
	if _, err := svc.Ingest(httptest.NewRequest(http.MethodGet, "/", nil).Context(), testPayload()); err != nil {
		t.Fatalf("seed ingest: %v", err)
	}

	// Reads against a practice the key was not issued to are refused.
	for _, path := range []string{
		"/api/v1/huddle/2025-06-02?practice_id=practice-001",
		"/api/v1/huddle/2025-06-02/summary/hygiene?practice_id=practice-001",
		"/api/v1/huddles?practice_id=practice-001",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("GET %s status = %d, want 403", path, rec.Code)
		}
	}

	// Ingest for another practice is refused too.
	raw, _ := json.Marshal(testPayload())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedule/ingest", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("ingest status = %d, want 403", rec.Code)
	}
}

func TestPracticeScope_MatchingKeyIsAllowed(t *testing.T) {
	e, svc := newScopedServer(t, "practice-001")
	if _, err := svc.Ingest(httptest.NewRequest(http.MethodGet, "/", nil).Context(), testPayload()); err != nil {
		t.Fatalf("seed ingest: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/huddle/2025-06-02?practice_id=practice-001", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
}

func TestListHuddles_Paginated(t *testing.T) {
	e, svc := newTestServer(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	if _, err := svc.Ingest(ctx, testPayload()); err != nil {
		t.Fatalf("seed ingest: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/huddles?practice_id=practice-001&limit=10", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}
