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

func newLocationMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func locationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "type", "parent_id", "name", "prefix", "sequence", "code", "full_path", "active", "created_at", "updated_at"})
}

func TestLocationRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newLocationMock(t)
	defer cleanup()
	repo := NewLocationRepository(db)

	rows := locationRows().
		AddRow("loc-1", models.LocationTypeOffice, nil, "Registry office", "UFF", 1, "UFF1", "UFF1", true, time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM locations WHERE id").
		WithArgs("loc-1").
		WillReturnRows(rows)

	loc, err := repo.GetByID(context.Background(), "loc-1")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "UFF1", loc.Code)
	assert.Equal(t, models.LocationTypeOffice, loc.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepositoryGetByIDMissing(t *testing.T) {
	db, mock, cleanup := newLocationMock(t)
	defer cleanup()
	repo := NewLocationRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM locations WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	loc, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, loc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepositoryNextSequenceRoot(t *testing.T) {
	db, mock, cleanup := newLocationMock(t)
	defer cleanup()
	repo := NewLocationRepository(db)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(sequence\\), 0\\) \\+ 1 FROM locations WHERE parent_id IS NULL").
		WithArgs("UFF").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))

	next, err := repo.NextSequence(context.Background(), nil, "UFF")
	require.NoError(t, err)
	assert.Equal(t, 3, next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepositoryNextSequenceSibling(t *testing.T) {
	db, mock, cleanup := newLocationMock(t)
	defer cleanup()
	repo := NewLocationRepository(db)

	parentID := "loc-1"
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(sequence\\), 0\\) \\+ 1 FROM locations WHERE parent_id = \\$1").
		WithArgs(parentID, "ST").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))

	next, err := repo.NextSequence(context.Background(), &parentID, "ST")
	require.NoError(t, err)
	assert.Equal(t, 1, next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepositoryInsertAssignsID(t *testing.T) {
	db, mock, cleanup := newLocationMock(t)
	defer cleanup()
	repo := NewLocationRepository(db)

	mock.ExpectExec("INSERT INTO locations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	loc := &models.Location{Type: models.LocationTypeOffice, Name: "Registry office", Prefix: "UFF", Sequence: 1, Code: "UFF1", FullPath: "UFF1", Active: true}
	err := repo.Insert(context.Background(), loc)
	require.NoError(t, err)
	assert.NotEmpty(t, loc.ID)
	assert.False(t, loc.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newLocationMock(t)
	defer cleanup()
	repo := NewLocationRepository(db)

	mock.ExpectExec("UPDATE locations SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Location{ID: "missing", Type: models.LocationTypeRoom})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepositoryListSubtree(t *testing.T) {
	db, mock, cleanup := newLocationMock(t)
	defer cleanup()
	repo := NewLocationRepository(db)

	rows := locationRows().
		AddRow("loc-1", models.LocationTypeOffice, nil, "Registry office", "UFF", 1, "UFF1", "UFF1", true, time.Now(), time.Now()).
		AddRow("loc-2", models.LocationTypeRoom, "loc-1", "Back room", "ST", 1, "ST1", "UFF1/ST1", true, time.Now(), time.Now())
	mock.ExpectQuery("WITH RECURSIVE subtree AS").
		WithArgs("loc-1").
		WillReturnRows(rows)

	locations, err := repo.ListSubtree(context.Background(), "loc-1")
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, "UFF1/ST1", locations[1].FullPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}
