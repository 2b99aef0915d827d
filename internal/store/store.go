package store

import (
	"context"
	"sync"
	"time"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
)

// LineupStore persists rendered lineups by id.
type LineupStore interface {
	Save(ctx context.Context, lineups []optimizer.LineupView) error
	// Get returns the stored lineups among ids, in request order. Unknown ids
	// are skipped.
	Get(ctx context.Context, ids []string) ([]optimizer.LineupView, error)
	Name() string
}

type memoryEntry struct {
	view    optimizer.LineupView
	expires time.Time
}

// MemoryStore keeps lineups in process with a TTL.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore returns a store whose entries expire after ttl. A zero ttl
// keeps them forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Save(_ context.Context, lineups []optimizer.LineupView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if m.ttl > 0 {
		expires = m.now().Add(m.ttl)
	}
	for _, l := range lineups {
		m.entries[l.ID] = memoryEntry{view: l, expires: expires}
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, ids []string) ([]optimizer.LineupView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]optimizer.LineupView, 0, len(ids))
	for _, id := range ids {
		e, ok := m.entries[id]
		if !ok {
			continue
		}
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(m.entries, id)
			continue
		}
		out = append(out, e.view)
	}
	return out, nil
}

// Len returns the number of entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
