// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vyrodovalexey/todo-sync/internal/model"
)

// Store errors.
var (
	ErrNotFound  = errors.New("item not found")
	ErrInvalidID = errors.New("invalid item ID")
	ErrNilItem   = errors.New("item cannot be nil")
	ErrClosed    = errors.New("store closed")
)

// Store defines the interface for item storage operations.
// List returns items newest first: created_at descending, then id descending.
type Store interface {
	// List returns all items from the store.
	List(ctx context.Context) ([]model.Item, error)

	// Get retrieves an item by its ID.
	Get(ctx context.Context, id string) (*model.Item, error)

	// Create adds a new item to the store and returns the created item with generated ID.
	Create(ctx context.Context, item *model.Item) (*model.Item, error)

	// Update replaces the text of an existing item.
	Update(ctx context.Context, id string, item *model.Item) (*model.Item, error)

	// Delete removes an item from the store by its ID.
	Delete(ctx context.Context, id string) error

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// idSource hands out ULIDs that stay strictly increasing within a millisecond,
// so items created in the same millisecond still sort in creation order.
type idSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDSource() *idSource {
	return &idSource{entropy: ulid.Monotonic(ulid.DefaultEntropy(), 0)}
}

func (s *idSource) next(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}
