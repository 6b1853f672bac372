package port

import (
	"context"

	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// DocumentStore is the persistence collaborator for approvable documents.
// Commit is the only mutation path after creation and is guarded by an
// optimistic version check.
type DocumentStore interface {
	// Save persists a freshly created draft at version 1.
	Save(ctx context.Context, doc *document.Document) error

	// Load returns the document at its current committed version, or
	// document.ErrNotFound.
	Load(ctx context.Context, id string) (*document.Document, error)

	// Commit persists the document if its stored version still equals
	// expectedVersion, bumping doc.Version on success. A lost race
	// returns document.ErrConcurrencyConflict and persists nothing.
	Commit(ctx context.Context, doc *document.Document, expectedVersion int64) error

	// ListByStatus returns all documents in the given status. Used by
	// the SLA scan.
	ListByStatus(ctx context.Context, status document.Status) ([]*document.Document, error)
}
