package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tradeflow/approval-engine/internal/application/port"
	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// Store is an in-memory DocumentStore with the same optimistic version
// semantics as the SQLite adapter. Used by tests and dev mode.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*document.Document
}

// NewStore creates an empty in-memory document store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*document.Document)}
}

// Save persists a new draft at version 1.
func (s *Store) Save(_ context.Context, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("%w: document %s already exists", document.ErrValidation, doc.ID)
	}

	doc.Version = 1
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// Load returns a deep copy of the stored document.
func (s *Store) Load(_ context.Context, id string) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	return stored.Clone(), nil
}

// Commit replaces the stored document only when the version still matches.
func (s *Store) Commit(_ context.Context, doc *document.Document, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.docs[doc.ID]
	if !ok {
		return fmt.Errorf("%w: %s", document.ErrNotFound, doc.ID)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("%w: document %s is at version %d, expected %d",
			document.ErrConcurrencyConflict, doc.ID, stored.Version, expectedVersion)
	}

	doc.Version = expectedVersion + 1
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// ListByStatus returns copies of all documents in the given status.
func (s *Store) ListByStatus(_ context.Context, status document.Status) ([]*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*document.Document
	for _, stored := range s.docs {
		if stored.Status == status {
			out = append(out, stored.Clone())
		}
	}
	return out, nil
}

// Verify interface compliance
var _ port.DocumentStore = (*Store)(nil)
