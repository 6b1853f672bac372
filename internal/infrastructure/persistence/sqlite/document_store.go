package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradeflow/approval-engine/internal/application/port"
	"github.com/tradeflow/approval-engine/internal/domain/document"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	amount         TEXT NOT NULL,
	criteria_flags TEXT NOT NULL DEFAULT '{}',
	status         TEXT NOT NULL,
	chain          TEXT NOT NULL DEFAULT '[]',
	history        TEXT NOT NULL DEFAULT '[]',
	final_amount   TEXT,
	version        INTEGER NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`

// DocumentStore is the SQLite-backed DocumentStore. Commit uses a
// conditional UPDATE on the stored version as the compare-and-set.
type DocumentStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentStore creates a SQLite document store.
func NewDocumentStore(db *sql.DB, logger *zap.Logger) *DocumentStore {
	return &DocumentStore{db: db, logger: logger}
}

// EnsureSchema creates the documents table when missing.
func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create documents schema: %w", err)
	}
	return nil
}

// Save persists a new draft at version 1.
func (s *DocumentStore) Save(ctx context.Context, doc *document.Document) error {
	flags, chainJSON, historyJSON, err := marshalParts(doc)
	if err != nil {
		return err
	}

	doc.Version = 1
	query := `
		INSERT INTO documents (
			id, kind, amount, criteria_flags, status, chain, history,
			final_amount, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Kind.String(),
		doc.Amount.String(),
		flags,
		doc.Status.String(),
		chainJSON,
		historyJSON,
		finalAmountString(doc),
		doc.Version,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("Failed to save document", zap.String("id", doc.ID), zap.Error(err))
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// Load returns the document at its current committed version.
func (s *DocumentStore) Load(ctx context.Context, id string) (*document.Document, error) {
	query := `
		SELECT id, kind, amount, criteria_flags, status, chain, history,
			final_amount, version, created_at, updated_at
		FROM documents
		WHERE id = ?
	`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	if err != nil {
		s.logger.Error("Failed to load document", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return doc, nil
}

// Commit persists the document when the stored version still equals
// expectedVersion. A lost race leaves the row untouched and returns
// document.ErrConcurrencyConflict.
func (s *DocumentStore) Commit(ctx context.Context, doc *document.Document, expectedVersion int64) error {
	flags, chainJSON, historyJSON, err := marshalParts(doc)
	if err != nil {
		return err
	}

	query := `
		UPDATE documents
		SET status = ?, chain = ?, history = ?, criteria_flags = ?,
			final_amount = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		doc.Status.String(),
		chainJSON,
		historyJSON,
		flags,
		finalAmountString(doc),
		doc.UpdatedAt,
		doc.ID,
		expectedVersion,
	)
	if err != nil {
		s.logger.Error("Failed to commit document", zap.String("id", doc.ID), zap.Error(err))
		return fmt.Errorf("commit document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit document: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %s, expected version %d",
			document.ErrConcurrencyConflict, doc.ID, expectedVersion)
	}

	doc.Version = expectedVersion + 1
	return nil
}

// ListByStatus returns all documents in the given status.
func (s *DocumentStore) ListByStatus(ctx context.Context, status document.Status) ([]*document.Document, error) {
	query := `
		SELECT id, kind, amount, criteria_flags, status, chain, history,
			final_amount, version, created_at, updated_at
		FROM documents
		WHERE status = ?
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, status.String())
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*document.Document, error) {
	var (
		doc         document.Document
		kind        string
		amount      string
		flags       string
		status      string
		chainJSON   string
		historyJSON string
		finalAmount sql.NullString
	)

	err := row.Scan(
		&doc.ID,
		&kind,
		&amount,
		&flags,
		&status,
		&chainJSON,
		&historyJSON,
		&finalAmount,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Kind = document.Kind(kind)
	doc.Status = document.Status(status)

	doc.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount for %s: %w", doc.ID, err)
	}
	if finalAmount.Valid {
		fa, err := decimal.NewFromString(finalAmount.String)
		if err != nil {
			return nil, fmt.Errorf("decode final amount for %s: %w", doc.ID, err)
		}
		doc.FinalAmount = &fa
	}

	if err := json.Unmarshal([]byte(flags), &doc.CriteriaFlags); err != nil {
		return nil, fmt.Errorf("decode criteria flags for %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal([]byte(chainJSON), &doc.Chain); err != nil {
		return nil, fmt.Errorf("decode chain for %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &doc.History); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", doc.ID, err)
	}

	return &doc, nil
}

func marshalParts(doc *document.Document) (flags, chainJSON, historyJSON string, err error) {
	criteria := doc.CriteriaFlags
	if criteria == nil {
		criteria = map[string]interface{}{}
	}
	flagBytes, err := json.Marshal(criteria)
	if err != nil {
		return "", "", "", fmt.Errorf("encode criteria flags: %w", err)
	}

	steps := doc.Chain
	if steps == nil {
		steps = []document.Step{}
	}
	chainBytes, err := json.Marshal(steps)
	if err != nil {
		return "", "", "", fmt.Errorf("encode chain: %w", err)
	}

	history := doc.History
	if history == nil {
		history = []document.HistoryEntry{}
	}
	historyBytes, err := json.Marshal(history)
	if err != nil {
		return "", "", "", fmt.Errorf("encode history: %w", err)
	}

	return string(flagBytes), string(chainBytes), string(historyBytes), nil
}

func finalAmountString(doc *document.Document) interface{} {
	if doc.FinalAmount == nil {
		return nil
	}
	return doc.FinalAmount.String()
}

// Verify interface compliance
var _ port.DocumentStore = (*DocumentStore)(nil)
