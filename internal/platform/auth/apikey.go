// Package auth guards the intake endpoint with practice-scoped API keys.
// Raw key material is never stored; only a SHA-256 hash is kept, and a
// validated request carries the owning practice id in its context.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	// ErrKeyNotFound indicates the presented key matches nothing in the store.
	ErrKeyNotFound = errors.New("api key not found")

	// ErrKeyRevoked indicates the key exists but has been revoked.
	ErrKeyRevoked = errors.New("api key revoked")
)

// APIKey is one practice's intake credential.
type APIKey struct {
	ID         string     `json:"id"`
	PracticeID string     `json:"practice_id"`
	KeyHash    string     `json:"-"` // never serialize
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// HashKey returns the hex SHA-256 of raw key material.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyStore holds intake credentials. Thread-safe.
type KeyStore struct {
	mu     sync.RWMutex
	byHash map[string]*APIKey
}

func NewKeyStore() *KeyStore {
	return &KeyStore{byHash: make(map[string]*APIKey)}
}

// Issue mints a new random key for a practice and returns the raw
// material exactly once; only its hash is retained.
func (s *KeyStore) Issue(practiceID string) (string, *APIKey, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}
	raw := hex.EncodeToString(b)

	k := &APIKey{
		ID:         uuid.New().String(),
		PracticeID: practiceID,
		KeyHash:    HashKey(raw),
		Status:     "active",
		CreatedAt:  time.Now(),
	}
	s.mu.Lock()
	s.byHash[k.KeyHash] = k
	s.mu.Unlock()
	return raw, k, nil
}

// Seed registers a pre-shared key for a practice, as configured through
// the environment.
func (s *KeyStore) Seed(practiceID, raw string) *APIKey {
	k := &APIKey{
		ID:         uuid.New().String(),
		PracticeID: practiceID,
		KeyHash:    HashKey(raw),
		Status:     "active",
		CreatedAt:  time.Now(),
	}
	s.mu.Lock()
	s.byHash[k.KeyHash] = k
	s.mu.Unlock()
	return k
}

// SeedFromPairs parses "practice:key" entries (comma-separated lists come
// from config) and registers each.
func (s *KeyStore) SeedFromPairs(pairs []string) error {
	for _, p := range pairs {
		parts := strings.SplitN(strings.TrimSpace(p), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return errors.New("api key entry must be practice-id:key")
		}
		s.Seed(parts[0], parts[1])
	}
	return nil
}

// Validate resolves raw key material to its APIKey.
func (s *KeyStore) Validate(raw string) (*APIKey, error) {
	hash := HashKey(raw)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for h, k := range s.byHash {
		if subtle.ConstantTimeCompare([]byte(h), []byte(hash)) == 1 {
			if k.Status != "active" {
				return nil, ErrKeyRevoked
			}
			return k, nil
		}
	}
	return nil, ErrKeyNotFound
}

// Revoke marks a key unusable. The record is kept for audit.
func (s *KeyStore) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.byHash {
		if k.ID == id {
			now := time.Now()
			k.Status = "revoked"
			k.RevokedAt = &now
			return nil
		}
	}
	return ErrKeyNotFound
}

// PracticeIDKey is the echo context key carrying the validated practice.
const PracticeIDKey = "practice_id"

// Middleware validates the X-API-Key header and stores the owning
// practice id in the request context.
func Middleware(store *KeyStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get("X-API-Key")
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing API key")
			}
			k, err := store.Validate(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
			}
			c.Set(PracticeIDKey, k.PracticeID)
			return next(c)
		}
	}
}
