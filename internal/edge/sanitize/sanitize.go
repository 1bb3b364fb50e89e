// Package sanitize strips protected health information from raw schedule
// records before they leave the practice. Patient names become opaque
// per-run tokens, direct identifiers become salted one-way hashes, and
// birthdates collapse to coarse age ranges. The token map never leaves
// the edge process unless the caller explicitly retains it.
package sanitize

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// TokenPrefix is prepended to every patient token.
const TokenPrefix = "PT-"

// TokenKey is the record key the patient token is emitted under. It is
// the intake contract's patient reference field; the raw source field
// (patient_name) never crosses the wire.
const TokenKey = "patient_id"

// Record is one raw appointment record as returned by a PMS extractor.
// Keys the sanitization policy does not recognize pass through unchanged.
type Record map[string]any

// Policy is the sanitization policy surface: which fields are tokenized,
// which are hashed, and which are converted to age ranges. Fields not
// listed here are left untouched.
type Policy struct {
	// TokenizeFields are removed and replaced by a stable per-run opaque
	// token emitted under TokenKey.
	TokenizeFields []string
	// HashFields are replaced by a salted, truncated SHA-256 digest.
	HashFields []string
	// BirthdateFields are converted to an age-range bucket and removed.
	BirthdateFields []string
	// AgeBucketYears is the width of the age-range bucket (default 10).
	AgeBucketYears int
}

// DefaultPolicy covers the identifiers a dental PMS export is known to
// carry: patient name, SSN, insurance id, and birthdate.
func DefaultPolicy() Policy {
	return Policy{
		TokenizeFields:  []string{"patient_name"},
		HashFields:      []string{"ssn", "insurance_id"},
		BirthdateFields: []string{"birthdate"},
		AgeBucketYears:  10,
	}
}

// RecordError reports a record that could not be safely sanitized. The
// record is rejected; the rest of the batch proceeds.
type RecordError struct {
	RecordID string
	Field    string
	Reason   string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("cannot sanitize record %q: %s: %s", e.RecordID, e.Field, e.Reason)
}

// Sanitizer owns the token map and hashing discipline for one extraction
// run. One Sanitizer serves exactly one practice; it is not safe for
// concurrent use and must not be shared across practices.
type Sanitizer struct {
	salt   string
	policy Policy
	tokens map[string]string
	used   map[string]bool
	now    func() time.Time
}

// New creates a Sanitizer keyed to a practice-specific salt.
func New(salt string, policy Policy) *Sanitizer {
	if policy.AgeBucketYears <= 0 {
		policy.AgeBucketYears = 10
	}
	return &Sanitizer{
		salt:   salt,
		policy: policy,
		tokens: make(map[string]string),
		used:   make(map[string]bool),
		now:    time.Now,
	}
}

// SanitizeBatch sanitizes each record independently. Records that cannot
// be sanitized are dropped and reported; the survivors are returned in
// input order.
func (s *Sanitizer) SanitizeBatch(records []Record) ([]Record, []*RecordError) {
	var (
		out  []Record
		errs []*RecordError
	)
	for _, rec := range records {
		clean, err := s.SanitizeRecord(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, clean)
	}
	return out, errs
}

// SanitizeRecord returns a sanitized copy of one raw appointment record.
// The input record is not modified.
func (s *Sanitizer) SanitizeRecord(rec Record) (Record, *RecordError) {
	id := stringField(rec, "id")
	if id == "" {
		return nil, &RecordError{Field: "id", Reason: "id is required"}
	}
	if _, ok := rec["time_slot"]; !ok {
		return nil, &RecordError{RecordID: id, Field: "time_slot", Reason: "time_slot is required"}
	}

	clean := make(Record, len(rec))
	for k, v := range rec {
		clean[k] = v
	}

	for _, f := range s.policy.TokenizeFields {
		v := stringField(clean, f)
		if v == "" {
			return nil, &RecordError{RecordID: id, Field: f, Reason: f + " is required"}
		}
		delete(clean, f)
		clean[TokenKey] = s.token(v)
	}
	for _, f := range s.policy.HashFields {
		if v := stringField(clean, f); v != "" {
			clean[f] = s.hash(v)
		}
	}
	for _, f := range s.policy.BirthdateFields {
		raw, ok := clean[f]
		if !ok {
			continue
		}
		bucket, err := s.ageRange(raw)
		if err != nil {
			return nil, &RecordError{RecordID: id, Field: f, Reason: err.Error()}
		}
		delete(clean, f)
		clean["age_range"] = bucket
	}

	return clean, nil
}

// TokenMap returns a copy of the raw-name-to-token map for edge-side
// de-tokenization. It must never be transmitted with the payload.
func (s *Sanitizer) TokenMap() map[string]string {
	out := make(map[string]string, len(s.tokens))
	for k, v := range s.tokens {
		out[k] = v
	}
	return out
}

// token returns the stable token for a raw name, allocating a new one on
// first sight. Collisions with already-issued tokens are retried, so two
// distinct names can never share a token within one run.
func (s *Sanitizer) token(name string) string {
	if t, ok := s.tokens[name]; ok {
		return t
	}
	for {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			// crypto/rand read failure is unrecoverable for PHI handling.
			panic(fmt.Sprintf("sanitize: crypto/rand unavailable: %v", err))
		}
		t := TokenPrefix + strings.ToUpper(hex.EncodeToString(b))
		if s.used[t] {
			continue
		}
		s.used[t] = true
		s.tokens[name] = t
		return t
	}
}

// hash returns the salted digest of a value, truncated to 16 hex chars.
// Truncation is an accepted collision tradeoff at per-practice cardinality.
func (s *Sanitizer) hash(value string) string {
	sum := sha256.Sum256([]byte(s.salt + ":" + value))
	return hex.EncodeToString(sum[:])[:16]
}

// ageRange converts a birthdate to its configured age bucket, e.g. "30-40".
func (s *Sanitizer) ageRange(raw any) (string, error) {
	var bd time.Time
	switch v := raw.(type) {
	case time.Time:
		bd = v
	case string:
		var err error
		for _, layout := range []string{"2006-01-02", time.RFC3339} {
			bd, err = time.Parse(layout, v)
			if err == nil {
				break
			}
		}
		if err != nil {
			return "", fmt.Errorf("unparseable birthdate")
		}
	default:
		return "", fmt.Errorf("unsupported birthdate type %T", raw)
	}

	years := int(s.now().Sub(bd).Hours() / 24 / 365.25)
	if years < 0 {
		return "", fmt.Errorf("birthdate in the future")
	}
	width := s.policy.AgeBucketYears
	lo := (years / width) * width
	return fmt.Sprintf("%d-%d", lo, lo+width), nil
}

func stringField(rec Record, key string) string {
	v, _ := rec[key].(string)
	return v
}
