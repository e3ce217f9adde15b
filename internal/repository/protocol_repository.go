package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiodl/archivio-api/internal/models"
)

// ProtocolRepository persists the append-only movement ledger.
type ProtocolRepository struct {
	db *sqlx.DB
}

// NewProtocolRepository constructs the repository.
func NewProtocolRepository(db *sqlx.DB) *ProtocolRepository {
	return &ProtocolRepository{db: db}
}

const protocolColumns = `id, document_id, folder_id, subject_id, direction, recorded_at, year, number,
	operator, counterpart, counterpart_id, location_id, closed, closes_id, expected_return, reason, notes`

// maxProtocolListLimit bounds explicit page sizes. Register exports fetch
// their whole dataset in a single List call and must not be clamped to the
// default page.
const maxProtocolListLimit = 10000

// InsertTx stores a new entry within the caller's transaction.
func (r *ProtocolRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, entry *models.ProtocolEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO protocol_entries
	(id, document_id, folder_id, subject_id, direction, recorded_at, year, number,
	 operator, counterpart, counterpart_id, location_id, closed, closes_id, expected_return, reason, notes)
	VALUES (:id, :document_id, :folder_id, :subject_id, :direction, :recorded_at, :year, :number,
	 :operator, :counterpart, :counterpart_id, :location_id, :closed, :closes_id, :expected_return, :reason, :notes)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert protocol entry: %w", err)
	}
	return nil
}

// GetByID fetches an entry by identifier, nil when absent.
func (r *ProtocolRepository) GetByID(ctx context.Context, id string) (*models.ProtocolEntry, error) {
	const query = `SELECT ` + protocolColumns + ` FROM protocol_entries WHERE id = $1`
	var entry models.ProtocolEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get protocol entry: %w", err)
	}
	return &entry, nil
}

// EarliestForTarget returns the first entry ever recorded for the target,
// nil when the target is not registered.
func (r *ProtocolRepository) EarliestForTarget(ctx context.Context, target models.TargetRef) (*models.ProtocolEntry, error) {
	query := `SELECT ` + protocolColumns + ` FROM protocol_entries WHERE ` + targetColumn(target.Kind) + ` = $1
	ORDER BY recorded_at ASC LIMIT 1`
	var entry models.ProtocolEntry
	if err := r.db.GetContext(ctx, &entry, query, target.ID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("earliest protocol entry: %w", err)
	}
	return &entry, nil
}

// ExistsForTarget reports whether any entry references the target.
func (r *ProtocolRepository) ExistsForTarget(ctx context.Context, target models.TargetRef) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM protocol_entries WHERE ` + targetColumn(target.Kind) + ` = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, target.ID); err != nil {
		return false, fmt.Errorf("check protocol entry: %w", err)
	}
	return exists, nil
}

// OpenOutboundForTargetTx returns the most recent open outbound entry for
// the target within the caller's transaction, locking it. Nil when none.
func (r *ProtocolRepository) OpenOutboundForTargetTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (*models.ProtocolEntry, error) {
	query := `SELECT ` + protocolColumns + ` FROM protocol_entries
	WHERE ` + targetColumn(target.Kind) + ` = $1 AND direction = $2 AND closed = false
	ORDER BY recorded_at DESC LIMIT 1 FOR UPDATE`
	var entry models.ProtocolEntry
	if err := tx.GetContext(ctx, &entry, query, target.ID, models.DirectionOut); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("open outbound entry: %w", err)
	}
	return &entry, nil
}

// MarkClosedTx flags an outbound entry as reconciled.
func (r *ProtocolRepository) MarkClosedTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	const query = `UPDATE protocol_entries SET closed = true WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("close protocol entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check protocol close rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateLocationTx repoints the entry's carried location. Used only by
// internal transfers to keep the ledger aligned with the new placement.
func (r *ProtocolRepository) UpdateLocationTx(ctx context.Context, tx *sqlx.Tx, id string, locationID string) error {
	const query = `UPDATE protocol_entries SET location_id = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, locationID, id); err != nil {
		return fmt.Errorf("update protocol entry location: %w", err)
	}
	return nil
}

// List returns register entries matching the filter, newest first.
func (r *ProtocolRepository) List(ctx context.Context, filter models.ProtocolFilter) ([]models.ProtocolEntry, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + protocolColumns + ` FROM protocol_entries`)

	conditions := make([]string, 0, 5)
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.Year != 0 {
		args = append(args, filter.Year)
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)))
	}
	if filter.Direction != "" {
		args = append(args, filter.Direction)
		conditions = append(conditions, fmt.Sprintf("direction = $%d", len(args)))
	}
	if filter.Closed != nil {
		args = append(args, *filter.Closed)
		conditions = append(conditions, fmt.Sprintf("closed = $%d", len(args)))
	}
	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		conditions = append(conditions, fmt.Sprintf("document_id = $%d", len(args)))
	}
	if filter.FolderID != "" {
		args = append(args, filter.FolderID)
		conditions = append(conditions, fmt.Sprintf("folder_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY recorded_at DESC, number DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > maxProtocolListLimit {
		limit = maxProtocolListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entries []models.ProtocolEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list protocol entries: %w", err)
	}
	return entries, nil
}

func targetColumn(kind models.TargetKind) string {
	if kind == models.TargetKindFolder {
		return "folder_id"
	}
	return "document_id"
}
