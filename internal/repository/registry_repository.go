package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studiodl/archivio-api/internal/models"
)

// RegistryRepository reads and mutates the collaborator-owned records the
// movement engine operates on: documents, folders and subjects. Only the
// status, outstanding flag and nothing else is ever written from here.
type RegistryRepository struct {
	db *sqlx.DB
}

// NewRegistryRepository constructs the repository.
func NewRegistryRepository(db *sqlx.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// GetDocument fetches a document, nil when absent.
func (r *RegistryRepository) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	const query = `SELECT id, title, status, folder_id, subject_id, digital, trackable, out_open
	FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// GetFolder fetches a folder, nil when absent.
func (r *RegistryRepository) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	const query = `SELECT id, code, status, subject_id FROM folders WHERE id = $1`
	var folder models.Folder
	if err := r.db.GetContext(ctx, &folder, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return &folder, nil
}

// GetSubject fetches a subject, nil when absent.
func (r *RegistryRepository) GetSubject(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, name FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return &subject, nil
}

// MarkDocumentOutstanding flips out_open with a conditional update. Zero
// rows updated means a concurrent outbound already holds the flag; the
// caller maps that to ALREADY_OUTSTANDING.
func (r *RegistryRepository) MarkDocumentOutstanding(ctx context.Context, id string) error {
	const query = `UPDATE documents SET out_open = true WHERE id = $1 AND out_open = false`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark document outstanding: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check outstanding rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearDocumentOutstanding resets out_open. Used both by inbound
// reconciliation and as the compensation path when a registration fails
// after the flag was taken.
func (r *RegistryRepository) ClearDocumentOutstanding(ctx context.Context, id string) error {
	const query = `UPDATE documents SET out_open = false WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear document outstanding: %w", err)
	}
	return nil
}

// ClearDocumentOutstandingTx is the transactional variant used by inbound
// reconciliation.
func (r *RegistryRepository) ClearDocumentOutstandingTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	const query = `UPDATE documents SET out_open = false WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear document outstanding: %w", err)
	}
	return nil
}

// UpdateDocumentStatusTx rewrites a document's status within the caller's
// transaction.
func (r *RegistryRepository) UpdateDocumentStatusTx(ctx context.Context, tx *sqlx.Tx, id, status string) error {
	const query = `UPDATE documents SET status = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

// UpdateFolderStatusTx rewrites a folder's status within the caller's
// transaction.
func (r *RegistryRepository) UpdateFolderStatusTx(ctx context.Context, tx *sqlx.Tx, id, status string) error {
	const query = `UPDATE folders SET status = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("update folder status: %w", err)
	}
	return nil
}
