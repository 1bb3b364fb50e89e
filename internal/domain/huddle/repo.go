package huddle

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound indicates no huddle exists for the requested key.
var ErrNotFound = errors.New("huddle not found")

// Repository is the persistence boundary for huddle records. The
// pipeline itself never touches storage; only the intake service does,
// through this interface.
type Repository interface {
	// Save appends a new huddle record. It becomes the latest for its
	// (practice, date); prior records are retained as superseded history.
	Save(ctx context.Context, h *MorningHuddle) error
	// GetLatest returns the current huddle for (practice, date).
	GetLatest(ctx context.Context, practiceID, date string) (*MorningHuddle, error)
	// List returns huddles for a practice, newest first, paginated.
	List(ctx context.Context, practiceID string, limit, offset int) ([]*MorningHuddle, int, error)
}

// InMemoryRepository is a thread-safe in-memory Repository used in tests
// and single-node deployments without a database.
type InMemoryRepository struct {
	mu      sync.RWMutex
	byKey   map[string][]*MorningHuddle // (practice|date) -> append-only history
	ordered []*MorningHuddle            // insertion order across all keys
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byKey: make(map[string][]*MorningHuddle)}
}

func key(practiceID, date string) string { return practiceID + "|" + date }

func (r *InMemoryRepository) Save(_ context.Context, h *MorningHuddle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(h.PracticeID, h.HuddleDate)
	r.byKey[k] = append(r.byKey[k], h)
	r.ordered = append(r.ordered, h)
	return nil
}

func (r *InMemoryRepository) GetLatest(_ context.Context, practiceID, date string) (*MorningHuddle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hist := r.byKey[key(practiceID, date)]
	if len(hist) == 0 {
		return nil, ErrNotFound
	}
	return hist[len(hist)-1], nil
}

func (r *InMemoryRepository) List(_ context.Context, practiceID string, limit, offset int) ([]*MorningHuddle, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []*MorningHuddle
	for _, h := range r.ordered {
		if h.PracticeID == practiceID {
			filtered = append(filtered, h)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].GeneratedAt.After(filtered[j].GeneratedAt)
	})

	total := len(filtered)
	if offset >= total {
		return []*MorningHuddle{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

// History returns the full append-only history for a key. Test helper.
func (r *InMemoryRepository) History(practiceID, date string) []*MorningHuddle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*MorningHuddle(nil), r.byKey[key(practiceID, date)]...)
}
