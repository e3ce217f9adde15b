package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/studiodl/archivio-api/internal/models"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
)

type placementStore interface {
	GetActive(ctx context.Context, target models.TargetRef) (*models.Placement, error)
	ListByTarget(ctx context.Context, target models.TargetRef) ([]models.Placement, error)
	CloseActiveTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef, to time.Time) error
	InsertTx(ctx context.Context, tx *sqlx.Tx, placement *models.Placement) error
	DeleteMostRecentTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (*models.Placement, error)
	ReactivateMostRecentTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) error
	HasActiveTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (bool, error)
}

type placementLocationResolver interface {
	GetByID(ctx context.Context, id string) (*models.Location, error)
}

type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// PlacementService tracks the single current physical placement of any
// archived target and its history.
type PlacementService struct {
	repo      placementStore
	locations placementLocationResolver
	tx        txBeginner
	logger    *zap.Logger
}

// NewPlacementService constructs the service.
func NewPlacementService(repo placementStore, locations placementLocationResolver, tx txBeginner, logger *zap.Logger) *PlacementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlacementService{repo: repo, locations: locations, tx: tx, logger: logger}
}

// Assign closes any active placement for the target and records a new one,
// in a single transaction.
func (s *PlacementService) Assign(ctx context.Context, target models.TargetRef, locationID, note string) (placement *models.Placement, err error) {
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid placement target")
	}
	loc, err := s.locations.GetByID(ctx, locationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location")
	}
	if loc == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "location not found")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if err = s.repo.CloseActiveTx(ctx, tx, target, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close placements")
	}
	placement = &models.Placement{
		TargetKind: target.Kind,
		TargetID:   target.ID,
		LocationID: locationID,
		FromDate:   now,
		Note:       note,
	}
	if err = s.repo.InsertTx(ctx, tx, placement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record placement")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit placement")
	}
	return placement, nil
}

// Current returns the active placement for the target, or nil.
func (s *PlacementService) Current(ctx context.Context, target models.TargetRef) (*models.Placement, error) {
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid placement target")
	}
	placement, err := s.repo.GetActive(ctx, target)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load placement")
	}
	return placement, nil
}

// History returns every placement recorded for the target, newest first.
func (s *PlacementService) History(ctx context.Context, target models.TargetRef) ([]models.Placement, error) {
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid placement target")
	}
	placements, err := s.repo.ListByTarget(ctx, target)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list placements")
	}
	return placements, nil
}

// UndoLast removes the most recent placement. When that leaves the target
// with no active placement, the next-most-recent one is reopened. Manual
// correction only.
func (s *PlacementService) UndoLast(ctx context.Context, target models.TargetRef) (err error) {
	if !target.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid placement target")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.repo.DeleteMostRecentTx(ctx, tx, target); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "target has no placements")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete placement")
	}

	hasActive, err := s.repo.HasActiveTx(ctx, tx, target)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check placements")
	}
	if !hasActive {
		if err = s.repo.ReactivateMostRecentTx(ctx, tx, target); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate placement")
		}
	}

	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit undo")
	}
	return nil
}
