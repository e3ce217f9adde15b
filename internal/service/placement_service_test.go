package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiodl/archivio-api/internal/models"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (*txProviderMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type placementStoreStub struct {
	placements []*models.Placement
	nextID     int
}

func (s *placementStoreStub) activeFor(target models.TargetRef) *models.Placement {
	for _, p := range s.placements {
		if p.Active && p.Target() == target {
			return p
		}
	}
	return nil
}

func (s *placementStoreStub) GetActive(ctx context.Context, target models.TargetRef) (*models.Placement, error) {
	if p := s.activeFor(target); p != nil {
		copy := *p
		return &copy, nil
	}
	return nil, nil
}

func (s *placementStoreStub) GetActiveTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (*models.Placement, error) {
	return s.GetActive(ctx, target)
}

func (s *placementStoreStub) ListByTarget(ctx context.Context, target models.TargetRef) ([]models.Placement, error) {
	out := make([]models.Placement, 0)
	for i := len(s.placements) - 1; i >= 0; i-- {
		if s.placements[i].Target() == target {
			out = append(out, *s.placements[i])
		}
	}
	return out, nil
}

func (s *placementStoreStub) CloseActiveTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef, to time.Time) error {
	for _, p := range s.placements {
		if p.Active && p.Target() == target {
			p.Active = false
			end := to
			p.ToDate = &end
		}
	}
	return nil
}

func (s *placementStoreStub) InsertTx(ctx context.Context, tx *sqlx.Tx, placement *models.Placement) error {
	s.nextID++
	placement.ID = placementID(s.nextID)
	placement.Active = true
	if placement.CreatedAt.IsZero() {
		placement.CreatedAt = time.Now().UTC()
	}
	stored := *placement
	s.placements = append(s.placements, &stored)
	return nil
}

func (s *placementStoreStub) DeleteMostRecentTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (*models.Placement, error) {
	for i := len(s.placements) - 1; i >= 0; i-- {
		if s.placements[i].Target() == target {
			deleted := *s.placements[i]
			s.placements = append(s.placements[:i], s.placements[i+1:]...)
			return &deleted, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *placementStoreStub) ReactivateMostRecentTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) error {
	for i := len(s.placements) - 1; i >= 0; i-- {
		if s.placements[i].Target() == target {
			s.placements[i].Active = true
			s.placements[i].ToDate = nil
			return nil
		}
	}
	return nil
}

func (s *placementStoreStub) HasActiveTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (bool, error) {
	return s.activeFor(target) != nil, nil
}

func placementID(n int) string {
	return fmt.Sprintf("pl-%d", n)
}

type locationResolverStub struct {
	locations map[string]*models.Location
}

func (s *locationResolverStub) GetByID(ctx context.Context, id string) (*models.Location, error) {
	if loc, ok := s.locations[id]; ok {
		copy := *loc
		return &copy, nil
	}
	return nil, nil
}

func newPlacementFixture(t *testing.T) (*PlacementService, *placementStoreStub, sqlmock.Sqlmock) {
	store := &placementStoreStub{}
	locations := &locationResolverStub{locations: map[string]*models.Location{
		"loc-1": {ID: "loc-1", Type: models.LocationTypeShelf, Code: "RI1", FullPath: "UFF1/ST1/SC1/RI1"},
		"loc-2": {ID: "loc-2", Type: models.LocationTypeShelf, Code: "RI2", FullPath: "UFF1/ST1/SC1/RI2"},
	}}
	tx, mock := newTxProviderMock(t)
	return NewPlacementService(store, locations, tx, nil), store, mock
}

func TestPlacementServiceAssignClosesPrevious(t *testing.T) {
	svc, store, mock := newPlacementFixture(t)
	target := models.TargetRef{Kind: models.TargetKindDocument, ID: "doc-1"}

	mock.ExpectBegin()
	mock.ExpectCommit()
	first, err := svc.Assign(context.Background(), target, "loc-1", "initial filing")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	second, err := svc.Assign(context.Background(), target, "loc-2", "moved")
	require.NoError(t, err)

	active := store.activeFor(target)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, "loc-2", active.LocationID)

	history, err := svc.History(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[1].ID)
	assert.False(t, history[1].Active)
	require.NotNil(t, history[1].ToDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlacementServiceAssignUnknownLocation(t *testing.T) {
	svc, _, _ := newPlacementFixture(t)
	target := models.TargetRef{Kind: models.TargetKindDocument, ID: "doc-1"}

	_, err := svc.Assign(context.Background(), target, "missing", "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestPlacementServiceAssignInvalidTarget(t *testing.T) {
	svc, _, _ := newPlacementFixture(t)

	_, err := svc.Assign(context.Background(), models.TargetRef{Kind: "shelf", ID: "x"}, "loc-1", "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPlacementServiceCurrentNilWhenUnplaced(t *testing.T) {
	svc, _, _ := newPlacementFixture(t)

	placement, err := svc.Current(context.Background(), models.TargetRef{Kind: models.TargetKindFolder, ID: "fold-1"})
	require.NoError(t, err)
	assert.Nil(t, placement)
}

func TestPlacementServiceUndoLastReactivatesPrevious(t *testing.T) {
	svc, store, mock := newPlacementFixture(t)
	target := models.TargetRef{Kind: models.TargetKindDocument, ID: "doc-1"}

	mock.ExpectBegin()
	mock.ExpectCommit()
	first, err := svc.Assign(context.Background(), target, "loc-1", "")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err = svc.Assign(context.Background(), target, "loc-2", "")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, svc.UndoLast(context.Background(), target))

	active := store.activeFor(target)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)
	assert.Equal(t, "loc-1", active.LocationID)
	assert.Nil(t, active.ToDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlacementServiceUndoLastWithoutHistory(t *testing.T) {
	svc, _, mock := newPlacementFixture(t)
	target := models.TargetRef{Kind: models.TargetKindDocument, ID: "doc-1"}

	mock.ExpectBegin()
	mock.ExpectRollback()
	err := svc.UndoLast(context.Background(), target)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
