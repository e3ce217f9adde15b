package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiodl/archivio-api/internal/models"
)

func newProtocolMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func protocolRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "document_id", "folder_id", "subject_id", "direction", "recorded_at", "year", "number",
		"operator", "counterpart", "counterpart_id", "location_id", "closed", "closes_id", "expected_return", "reason", "notes"})
}

func TestProtocolRepositoryInsertTxAssignsID(t *testing.T) {
	db, mock, cleanup := newProtocolMock(t)
	defer cleanup()
	repo := NewProtocolRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO protocol_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	docID := "doc-1"
	entry := &models.ProtocolEntry{DocumentID: &docID, SubjectID: "subject-1", Direction: models.DirectionOut, Year: 2026, Number: 1, Operator: "mrossi"}
	err = repo.InsertTx(context.Background(), tx, entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.RecordedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProtocolRepositoryEarliestForTarget(t *testing.T) {
	db, mock, cleanup := newProtocolMock(t)
	defer cleanup()
	repo := NewProtocolRepository(db)

	rows := protocolRows().
		AddRow("pe-1", "doc-1", nil, "subject-1", models.DirectionIn, time.Now(), 2026, 1, "mrossi", "", nil, "loc-1", false, nil, nil, "", "")
	mock.ExpectQuery("SELECT (.+) FROM protocol_entries WHERE document_id").
		WithArgs("doc-1").
		WillReturnRows(rows)

	entry, err := repo.EarliestForTarget(context.Background(), models.TargetRef{Kind: models.TargetKindDocument, ID: "doc-1"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.LocationID)
	assert.Equal(t, "loc-1", *entry.LocationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProtocolRepositoryExistsForFolder(t *testing.T) {
	db, mock, cleanup := newProtocolMock(t)
	defer cleanup()
	repo := NewProtocolRepository(db)

	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM protocol_entries WHERE folder_id").
		WithArgs("fold-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForTarget(context.Background(), models.TargetRef{Kind: models.TargetKindFolder, ID: "fold-1"})
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProtocolRepositoryOpenOutboundForTargetTxNone(t *testing.T) {
	db, mock, cleanup := newProtocolMock(t)
	defer cleanup()
	repo := NewProtocolRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM protocol_entries").
		WithArgs("doc-1", models.DirectionOut).
		WillReturnError(sql.ErrNoRows)

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	entry, err := repo.OpenOutboundForTargetTx(context.Background(), tx, models.TargetRef{Kind: models.TargetKindDocument, ID: "doc-1"})
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProtocolRepositoryMarkClosedTxMissing(t *testing.T) {
	db, mock, cleanup := newProtocolMock(t)
	defer cleanup()
	repo := NewProtocolRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE protocol_entries SET closed = true").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	err = repo.MarkClosedTx(context.Background(), tx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProtocolRepositoryListBuildsFilter(t *testing.T) {
	db, mock, cleanup := newProtocolMock(t)
	defer cleanup()
	repo := NewProtocolRepository(db)

	closed := false
	rows := protocolRows().
		AddRow("pe-1", nil, "fold-1", "subject-1", models.DirectionOut, time.Now(), 2026, 7, "mrossi", "Comune di Milano", nil, nil, false, nil, nil, "richiesta atti", "")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE subject_id = $1 AND year = $2 AND direction = $3 AND closed = $4 ORDER BY recorded_at DESC, number DESC LIMIT 50 OFFSET 0")).
		WithArgs("subject-1", 2026, models.DirectionOut, closed).
		WillReturnRows(rows)

	entries, err := repo.List(context.Background(), models.ProtocolFilter{
		SubjectID: "subject-1",
		Year:      2026,
		Direction: models.DirectionOut,
		Closed:    &closed,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProtocolRepositoryListHonorsLargeExplicitLimit(t *testing.T) {
	db, mock, cleanup := newProtocolMock(t)
	defer cleanup()
	repo := NewProtocolRepository(db)

	// register exports ask for the whole dataset in one page
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY recorded_at DESC, number DESC LIMIT 10000 OFFSET 0")).
		WillReturnRows(protocolRows())

	_, err := repo.List(context.Background(), models.ProtocolFilter{Limit: 10000})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProtocolRepositoryListCapsRunawayLimit(t *testing.T) {
	db, mock, cleanup := newProtocolMock(t)
	defer cleanup()
	repo := NewProtocolRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY recorded_at DESC, number DESC LIMIT 10000 OFFSET 0")).
		WillReturnRows(protocolRows())

	_, err := repo.List(context.Background(), models.ProtocolFilter{Limit: 500000})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
