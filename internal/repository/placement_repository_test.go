package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiodl/archivio-api/internal/models"
)

func newPlacementMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func placementRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "target_kind", "target_id", "location_id", "active", "from_date", "to_date", "note", "created_at"})
}

func TestPlacementRepositoryGetActive(t *testing.T) {
	db, mock, cleanup := newPlacementMock(t)
	defer cleanup()
	repo := NewPlacementRepository(db)

	rows := placementRows().
		AddRow("pl-1", models.TargetKindDocument, "doc-1", "loc-1", true, time.Now(), nil, "", time.Now())
	mock.ExpectQuery("SELECT (.+) FROM placements").
		WithArgs(models.TargetKindDocument, "doc-1").
		WillReturnRows(rows)

	placement, err := repo.GetActive(context.Background(), models.TargetRef{Kind: models.TargetKindDocument, ID: "doc-1"})
	require.NoError(t, err)
	require.NotNil(t, placement)
	assert.Equal(t, "loc-1", placement.LocationID)
	assert.True(t, placement.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlacementRepositoryGetActiveNone(t *testing.T) {
	db, mock, cleanup := newPlacementMock(t)
	defer cleanup()
	repo := NewPlacementRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM placements").
		WithArgs(models.TargetKindFolder, "fold-1").
		WillReturnError(sql.ErrNoRows)

	placement, err := repo.GetActive(context.Background(), models.TargetRef{Kind: models.TargetKindFolder, ID: "fold-1"})
	require.NoError(t, err)
	assert.Nil(t, placement)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlacementRepositoryInsertTxDefaults(t *testing.T) {
	db, mock, cleanup := newPlacementMock(t)
	defer cleanup()
	repo := NewPlacementRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO placements").
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	placement := &models.Placement{TargetKind: models.TargetKindDocument, TargetID: "doc-1", LocationID: "loc-1"}
	err = repo.InsertTx(context.Background(), tx, placement)
	require.NoError(t, err)
	assert.NotEmpty(t, placement.ID)
	assert.True(t, placement.Active)
	assert.Equal(t, placement.CreatedAt, placement.FromDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlacementRepositoryCloseActiveTx(t *testing.T) {
	db, mock, cleanup := newPlacementMock(t)
	defer cleanup()
	repo := NewPlacementRepository(db)

	to := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE placements SET active = false").
		WithArgs(to, models.TargetKindDocument, "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	err = repo.CloseActiveTx(context.Background(), tx, models.TargetRef{Kind: models.TargetKindDocument, ID: "doc-1"}, to)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlacementRepositoryDeleteMostRecentTxMissing(t *testing.T) {
	db, mock, cleanup := newPlacementMock(t)
	defer cleanup()
	repo := NewPlacementRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM placements").
		WithArgs(models.TargetKindFolder, "fold-1").
		WillReturnError(sql.ErrNoRows)

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	_, err = repo.DeleteMostRecentTx(context.Background(), tx, models.TargetRef{Kind: models.TargetKindFolder, ID: "fold-1"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlacementRepositoryHasActiveTx(t *testing.T) {
	db, mock, cleanup := newPlacementMock(t)
	defer cleanup()
	repo := NewPlacementRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(models.TargetKindDocument, "doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	exists, err := repo.HasActiveTx(context.Background(), tx, models.TargetRef{Kind: models.TargetKindDocument, ID: "doc-1"})
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
