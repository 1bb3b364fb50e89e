package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestKeyStore_IssueAndValidate(t *testing.T) {
	s := NewKeyStore()
	raw, k, err := s.Issue("practice-001")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if k.KeyHash == raw {
		t.Error("raw key material stored verbatim")
	}

	got, err := s.Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.PracticeID != "practice-001" {
		t.Errorf("practice = %q", got.PracticeID)
	}

	if _, err := s.Validate("wrong-key"); err != ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestKeyStore_Revoke(t *testing.T) {
	s := NewKeyStore()
	raw, k, _ := s.Issue("practice-001")

	if err := s.Revoke(k.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := s.Validate(raw); err != ErrKeyRevoked {
		t.Errorf("expected ErrKeyRevoked, got %v", err)
	}
}

func TestKeyStore_SeedFromPairs(t *testing.T) {
	s := NewKeyStore()
	if err := s.SeedFromPairs([]string{"practice-001:secret-a", "practice-002:secret-b"}); err != nil {
		t.Fatalf("SeedFromPairs: %v", err)
	}
	k, err := s.Validate("secret-b")
	if err != nil || k.PracticeID != "practice-002" {
		t.Errorf("Validate seeded key: %v, %+v", err, k)
	}

	if err := s.SeedFromPairs([]string{"missing-colon"}); err == nil {
		t.Error("expected error for malformed entry")
	}
}

func TestMiddleware(t *testing.T) {
	s := NewKeyStore()
	raw, _, _ := s.Issue("practice-001")

	e := echo.New()
	e.POST("/ingest", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(PracticeIDKey).(string))
	}, Middleware(s))

	// Valid key passes and carries the practice id.
	req := httptest.NewRequest(http.MethodPost, "/ingest", nil)
	req.Header.Set("X-API-Key", raw)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "practice-001" {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}

	// Missing key is rejected.
	req = httptest.NewRequest(http.MethodPost, "/ingest", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", rec.Code)
	}

	// Bad key is rejected.
	req = httptest.NewRequest(http.MethodPost, "/ingest", nil)
	req.Header.Set("X-API-Key", "nope")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status with bad key = %d, want 401", rec.Code)
	}
}
