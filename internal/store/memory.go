// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// Lightweight persistence for session snapshots, used in development/testing
// or when durability is not required.
//
// Characteristics:
//   - Stores Record values keyed by session ID in a map (copies, never aliases).
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sync"

	"github.com/robalobadob/fugitive/internal/game"
)

// ErrNotFound is returned by Get for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Record is a session snapshot plus who plays it. Exactly one of UserID and
// AnonID is set for sessions started over HTTP.
type Record struct {
	State  game.State `json:"state"`
	UserID string     `json:"userId,omitempty"`
	AnonID string     `json:"anonId,omitempty"`
}

// Store defines the persistence interface for session snapshots.
// Implementations may be backed by memory (this file) or Redis.
type Store interface {
	// Save persists or updates a session snapshot.
	Save(ctx context.Context, r Record) error

	// Get retrieves a snapshot by session ID, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex      // guards sessions map
	sessions map[string]Record // keyed by State.ID
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{sessions: make(map[string]Record)}
}

func (m *memory) Save(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[r.State.ID] = r
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.sessions[id]; ok {
		return r, nil
	}
	return Record{}, ErrNotFound
}
