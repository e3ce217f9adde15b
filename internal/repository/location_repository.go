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

// LocationRepository persists the physical storage tree.
type LocationRepository struct {
	db *sqlx.DB
}

// NewLocationRepository constructs the repository.
func NewLocationRepository(db *sqlx.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

const locationColumns = `id, type, parent_id, name, prefix, sequence, code, full_path, active, created_at, updated_at`

// GetByID fetches a location by identifier. Returns nil when absent.
func (r *LocationRepository) GetByID(ctx context.Context, id string) (*models.Location, error) {
	const query = `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`
	var loc models.Location
	if err := r.db.GetContext(ctx, &loc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &loc, nil
}

// NextSequence returns max(sequence)+1 among siblings sharing parent and
// prefix, defaulting to 1.
func (r *LocationRepository) NextSequence(ctx context.Context, parentID *string, prefix string) (int, error) {
	var next int
	var err error
	if parentID == nil {
		const query = `SELECT COALESCE(MAX(sequence), 0) + 1 FROM locations WHERE parent_id IS NULL AND prefix = $1`
		err = r.db.GetContext(ctx, &next, query, prefix)
	} else {
		const query = `SELECT COALESCE(MAX(sequence), 0) + 1 FROM locations WHERE parent_id = $1 AND prefix = $2`
		err = r.db.GetContext(ctx, &next, query, *parentID, prefix)
	}
	if err != nil {
		return 0, fmt.Errorf("next location sequence: %w", err)
	}
	return next, nil
}

// Insert stores a new location row.
func (r *LocationRepository) Insert(ctx context.Context, loc *models.Location) error {
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = now
	}
	loc.UpdatedAt = now
	const query = `INSERT INTO locations
	(id, type, parent_id, name, prefix, sequence, code, full_path, active, created_at, updated_at)
	VALUES (:id, :type, :parent_id, :name, :prefix, :sequence, :code, :full_path, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, loc); err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of an existing location.
func (r *LocationRepository) Update(ctx context.Context, loc *models.Location) error {
	loc.UpdatedAt = time.Now().UTC()
	const query = `UPDATE locations SET
	type = :type, parent_id = :parent_id, name = :name, prefix = :prefix,
	sequence = :sequence, code = :code, full_path = :full_path, active = :active,
	updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, loc)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check location update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdatePath rewrites only the derived path column of a node. Used by the
// cascading recomputation after a rename or move.
func (r *LocationRepository) UpdatePath(ctx context.Context, id, fullPath string) error {
	const query = `UPDATE locations SET full_path = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, fullPath, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update location path: %w", err)
	}
	return nil
}

// ListAll returns every location ordered by path.
func (r *LocationRepository) ListAll(ctx context.Context) ([]models.Location, error) {
	const query = `SELECT ` + locationColumns + ` FROM locations ORDER BY full_path`
	var locations []models.Location
	if err := r.db.SelectContext(ctx, &locations, query); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locations, nil
}

// ListChildren returns the direct children of a node.
func (r *LocationRepository) ListChildren(ctx context.Context, parentID string) ([]models.Location, error) {
	const query = `SELECT ` + locationColumns + ` FROM locations WHERE parent_id = $1 ORDER BY code`
	var locations []models.Location
	if err := r.db.SelectContext(ctx, &locations, query, parentID); err != nil {
		return nil, fmt.Errorf("list location children: %w", err)
	}
	return locations, nil
}

// ListSubtree returns the node and all descendants, parents before children.
func (r *LocationRepository) ListSubtree(ctx context.Context, rootID string) ([]models.Location, error) {
	const query = `WITH RECURSIVE subtree AS (
	SELECT ` + locationColumns + `, 0 AS depth FROM locations WHERE id = $1
	UNION ALL
	SELECT l.id, l.type, l.parent_id, l.name, l.prefix, l.sequence, l.code, l.full_path, l.active, l.created_at, l.updated_at, s.depth + 1
	FROM locations l JOIN subtree s ON l.parent_id = s.id
)
SELECT ` + locationColumns + ` FROM subtree ORDER BY depth, code`
	var locations []models.Location
	if err := r.db.SelectContext(ctx, &locations, query, rootID); err != nil {
		return nil, fmt.Errorf("list location subtree: %w", err)
	}
	return locations, nil
}
