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

// BatchRepository persists archive operations and their lines.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `id, kind, occurred_at, operator, counterpart, note, proof_ref, processed_at, created_at`
const lineColumns = `id, batch_id, position, document_id, folder_id, protocol_entry_id,
	source_location_id, dest_location_id, prev_status, next_status, note`

// Create stores the batch with its ordered lines in one transaction.
func (r *BatchRepository) Create(ctx context.Context, batch *models.ArchiveBatch) (err error) {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	if batch.OccurredAt.IsZero() {
		batch.OccurredAt = batch.CreatedAt
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const batchQuery = `INSERT INTO archive_batches
	(id, kind, occurred_at, operator, counterpart, note, proof_ref, processed_at, created_at)
	VALUES (:id, :kind, :occurred_at, :operator, :counterpart, :note, :proof_ref, :processed_at, :created_at)`
	if _, err = tx.NamedExecContext(ctx, batchQuery, batch); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	const lineQuery = `INSERT INTO batch_lines
	(id, batch_id, position, document_id, folder_id, protocol_entry_id,
	 source_location_id, dest_location_id, prev_status, next_status, note)
	VALUES (:id, :batch_id, :position, :document_id, :folder_id, :protocol_entry_id,
	 :source_location_id, :dest_location_id, :prev_status, :next_status, :note)`
	for i := range batch.Lines {
		line := &batch.Lines[i]
		if line.ID == "" {
			line.ID = uuid.NewString()
		}
		line.BatchID = batch.ID
		line.Position = i + 1
		if _, err = tx.NamedExecContext(ctx, lineQuery, line); err != nil {
			return fmt.Errorf("insert batch line %d: %w", line.Position, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// GetByID fetches a batch with its lines in submission order, nil when absent.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.ArchiveBatch, error) {
	const query = `SELECT ` + batchColumns + ` FROM archive_batches WHERE id = $1`
	var batch models.ArchiveBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}

	const linesQuery = `SELECT ` + lineColumns + ` FROM batch_lines WHERE batch_id = $1 ORDER BY position`
	if err := r.db.SelectContext(ctx, &batch.Lines, linesQuery, id); err != nil {
		return nil, fmt.Errorf("get batch lines: %w", err)
	}
	return &batch, nil
}

// List returns batches matching the filter, newest first.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.ArchiveBatch, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 2)
	builder.WriteString(`SELECT ` + batchColumns + ` FROM archive_batches`)

	conditions := make([]string, 0, 2)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Processed != nil {
		if *filter.Processed {
			conditions = append(conditions, "processed_at IS NOT NULL")
		} else {
			conditions = append(conditions, "processed_at IS NULL")
		}
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY occurred_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var batches []models.ArchiveBatch
	if err := r.db.SelectContext(ctx, &batches, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// UpdateLineResolutionTx writes the derived source/destination and status
// pair back onto a line. Reprocessing recomputes the same values, so the
// write is a no-op on an already-processed batch.
func (r *BatchRepository) UpdateLineResolutionTx(ctx context.Context, tx *sqlx.Tx, line *models.BatchLine) error {
	const query = `UPDATE batch_lines SET
	protocol_entry_id = :protocol_entry_id,
	source_location_id = :source_location_id,
	dest_location_id = :dest_location_id,
	prev_status = :prev_status,
	next_status = :next_status
	WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, line); err != nil {
		return fmt.Errorf("update batch line %d: %w", line.Position, err)
	}
	return nil
}

// MarkProcessedTx stamps the batch processing time.
func (r *BatchRepository) MarkProcessedTx(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error {
	const query = `UPDATE archive_batches SET processed_at = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("mark batch processed: %w", err)
	}
	return nil
}

// SetProofRef records the stored proof attachment reference.
func (r *BatchRepository) SetProofRef(ctx context.Context, id, ref string) error {
	const query = `UPDATE archive_batches SET proof_ref = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, ref, id)
	if err != nil {
		return fmt.Errorf("set batch proof: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check batch proof rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
