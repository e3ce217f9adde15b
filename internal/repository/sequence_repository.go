package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studiodl/archivio-api/internal/models"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
)

// maxAllocationAttempts bounds the counter-creation race retry.
const maxAllocationAttempts = 5

type allocationRetryCounter interface {
	IncAllocationRetry()
}

// SequenceRepository issues gapless protocol numbers per
// (subject, year, direction) partition.
type SequenceRepository struct {
	db      *sqlx.DB
	metrics allocationRetryCounter
}

// NewSequenceRepository constructs the repository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// WithMetrics attaches a retry counter and returns the repository.
func (r *SequenceRepository) WithMetrics(metrics allocationRetryCounter) *SequenceRepository {
	r.metrics = metrics
	return r
}

// NextTx issues the next number for the partition inside the caller's
// transaction. The increment is a single conditional UPDATE so concurrent
// callers never read-modify-write a stale value; a missing counter row is
// created at zero and the operation retried, bounded by
// maxAllocationAttempts before failing with ALLOCATION_EXHAUSTED.
func (r *SequenceRepository) NextTx(ctx context.Context, tx *sqlx.Tx, subjectID string, year int, direction models.Direction) (int64, error) {
	const updateQuery = `UPDATE sequence_counters
	SET last_number = last_number + 1
	WHERE subject_id = $1 AND year = $2 AND direction = $3
	RETURNING last_number`
	const insertQuery = `INSERT INTO sequence_counters (subject_id, year, direction, last_number)
	VALUES ($1, $2, $3, 0)
	ON CONFLICT (subject_id, year, direction) DO NOTHING`

	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		if attempt > 0 && r.metrics != nil {
			r.metrics.IncAllocationRetry()
		}
		var number int64
		err := tx.GetContext(ctx, &number, updateQuery, subjectID, year, direction)
		if err == nil {
			return number, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("increment sequence counter: %w", err)
		}

		if _, err := tx.ExecContext(ctx, insertQuery, subjectID, year, direction); err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return 0, fmt.Errorf("create sequence counter: %w", err)
		}
	}
	return 0, appErrors.ErrAllocationExhausted
}

// Get returns the counter row for a partition, nil when absent. Exposed
// for diagnostics only; allocation never reads the value.
func (r *SequenceRepository) Get(ctx context.Context, subjectID string, year int, direction models.Direction) (*models.SequenceCounter, error) {
	const query = `SELECT subject_id, year, direction, last_number FROM sequence_counters
	WHERE subject_id = $1 AND year = $2 AND direction = $3`
	var counter models.SequenceCounter
	if err := r.db.GetContext(ctx, &counter, query, subjectID, year, direction); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get sequence counter: %w", err)
	}
	return &counter, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
