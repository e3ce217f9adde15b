package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiodl/archivio-api/internal/models"
)

// PlacementRepository persists physical placements of archivable targets.
type PlacementRepository struct {
	db *sqlx.DB
}

// NewPlacementRepository constructs the repository.
func NewPlacementRepository(db *sqlx.DB) *PlacementRepository {
	return &PlacementRepository{db: db}
}

const placementColumns = `id, target_kind, target_id, location_id, active, from_date, to_date, note, created_at`

// GetActive returns the single active placement for the target, or nil.
func (r *PlacementRepository) GetActive(ctx context.Context, target models.TargetRef) (*models.Placement, error) {
	const query = `SELECT ` + placementColumns + ` FROM placements
	WHERE target_kind = $1 AND target_id = $2 AND active = true`
	var placement models.Placement
	if err := r.db.GetContext(ctx, &placement, query, target.Kind, target.ID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get active placement: %w", err)
	}
	return &placement, nil
}

// ListByTarget returns the full placement history, most recent first.
func (r *PlacementRepository) ListByTarget(ctx context.Context, target models.TargetRef) ([]models.Placement, error) {
	const query = `SELECT ` + placementColumns + ` FROM placements
	WHERE target_kind = $1 AND target_id = $2 ORDER BY created_at DESC`
	var placements []models.Placement
	if err := r.db.SelectContext(ctx, &placements, query, target.Kind, target.ID); err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}
	return placements, nil
}

// GetActiveTx is the transactional variant of GetActive.
func (r *PlacementRepository) GetActiveTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (*models.Placement, error) {
	const query = `SELECT ` + placementColumns + ` FROM placements
	WHERE target_kind = $1 AND target_id = $2 AND active = true`
	var placement models.Placement
	if err := tx.GetContext(ctx, &placement, query, target.Kind, target.ID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get active placement: %w", err)
	}
	return &placement, nil
}

// CloseActiveTx closes every active placement for the target, setting the
// end date, within the caller's transaction.
func (r *PlacementRepository) CloseActiveTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef, to time.Time) error {
	const query = `UPDATE placements SET active = false, to_date = $1
	WHERE target_kind = $2 AND target_id = $3 AND active = true`
	if _, err := tx.ExecContext(ctx, query, to, target.Kind, target.ID); err != nil {
		return fmt.Errorf("close active placements: %w", err)
	}
	return nil
}

// InsertTx stores a new placement row within the caller's transaction.
func (r *PlacementRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, placement *models.Placement) error {
	if placement.ID == "" {
		placement.ID = uuid.NewString()
	}
	if placement.CreatedAt.IsZero() {
		placement.CreatedAt = time.Now().UTC()
	}
	if placement.FromDate.IsZero() {
		placement.FromDate = placement.CreatedAt
	}
	placement.Active = true
	const query = `INSERT INTO placements
	(id, target_kind, target_id, location_id, active, from_date, to_date, note, created_at)
	VALUES (:id, :target_kind, :target_id, :location_id, :active, :from_date, :to_date, :note, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, placement); err != nil {
		return fmt.Errorf("insert placement: %w", err)
	}
	return nil
}

// DeleteMostRecentTx removes the newest placement row for the target and
// returns it. sql.ErrNoRows when the target has no placements.
func (r *PlacementRepository) DeleteMostRecentTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (*models.Placement, error) {
	const query = `DELETE FROM placements WHERE id = (
	SELECT id FROM placements WHERE target_kind = $1 AND target_id = $2
	ORDER BY created_at DESC LIMIT 1
) RETURNING ` + placementColumns
	var placement models.Placement
	if err := tx.GetContext(ctx, &placement, query, target.Kind, target.ID); err != nil {
		return nil, err
	}
	return &placement, nil
}

// ReactivateMostRecentTx reopens the newest remaining placement for the
// target, clearing its end date. No-op when none remain.
func (r *PlacementRepository) ReactivateMostRecentTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) error {
	const query = `UPDATE placements SET active = true, to_date = NULL WHERE id = (
	SELECT id FROM placements WHERE target_kind = $1 AND target_id = $2
	ORDER BY created_at DESC LIMIT 1
)`
	if _, err := tx.ExecContext(ctx, query, target.Kind, target.ID); err != nil {
		return fmt.Errorf("reactivate placement: %w", err)
	}
	return nil
}

// HasActiveTx reports whether the target still has an active placement,
// within the caller's transaction.
func (r *PlacementRepository) HasActiveTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM placements WHERE target_kind = $1 AND target_id = $2 AND active = true
)`
	var exists bool
	if err := tx.GetContext(ctx, &exists, query, target.Kind, target.ID); err != nil {
		return false, fmt.Errorf("check active placement: %w", err)
	}
	return exists, nil
}
