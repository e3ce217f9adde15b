package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiodl/archivio-api/internal/dto"
	"github.com/studiodl/archivio-api/internal/models"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
)

type protocolStoreStub struct {
	entries []*models.ProtocolEntry
	nextID  int
	filter  models.ProtocolFilter
}

func (s *protocolStoreStub) InsertTx(ctx context.Context, tx *sqlx.Tx, entry *models.ProtocolEntry) error {
	s.nextID++
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("pe-%d", s.nextID)
	}
	stored := *entry
	s.entries = append(s.entries, &stored)
	return nil
}

func (s *protocolStoreStub) GetByID(ctx context.Context, id string) (*models.ProtocolEntry, error) {
	for _, e := range s.entries {
		if e.ID == id {
			copy := *e
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *protocolStoreStub) EarliestForTarget(ctx context.Context, target models.TargetRef) (*models.ProtocolEntry, error) {
	for _, e := range s.entries {
		if e.Target() == target {
			copy := *e
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *protocolStoreStub) ExistsForTarget(ctx context.Context, target models.TargetRef) (bool, error) {
	entry, _ := s.EarliestForTarget(ctx, target)
	return entry != nil, nil
}

func (s *protocolStoreStub) OpenOutboundForTargetTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (*models.ProtocolEntry, error) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.Target() == target && e.Direction == models.DirectionOut && !e.Closed {
			copy := *e
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *protocolStoreStub) MarkClosedTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	for _, e := range s.entries {
		if e.ID == id {
			e.Closed = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *protocolStoreStub) UpdateLocationTx(ctx context.Context, tx *sqlx.Tx, id string, locationID string) error {
	for _, e := range s.entries {
		if e.ID == id {
			loc := locationID
			e.LocationID = &loc
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *protocolStoreStub) List(ctx context.Context, filter models.ProtocolFilter) ([]models.ProtocolEntry, error) {
	s.filter = filter
	out := make([]models.ProtocolEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out, nil
}

type registryStoreStub struct {
	documents map[string]*models.Document
	folders   map[string]*models.Folder
	subjects  map[string]*models.Subject
	cleared   []string
}

func newRegistryStoreStub() *registryStoreStub {
	return &registryStoreStub{
		documents: make(map[string]*models.Document),
		folders:   make(map[string]*models.Folder),
		subjects:  make(map[string]*models.Subject),
	}
}

func (s *registryStoreStub) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	if doc, ok := s.documents[id]; ok {
		copy := *doc
		return &copy, nil
	}
	return nil, nil
}

func (s *registryStoreStub) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	if folder, ok := s.folders[id]; ok {
		copy := *folder
		return &copy, nil
	}
	return nil, nil
}

func (s *registryStoreStub) GetSubject(ctx context.Context, id string) (*models.Subject, error) {
	if subject, ok := s.subjects[id]; ok {
		copy := *subject
		return &copy, nil
	}
	return nil, nil
}

func (s *registryStoreStub) MarkDocumentOutstanding(ctx context.Context, id string) error {
	doc, ok := s.documents[id]
	if !ok || doc.OutOpen {
		return sql.ErrNoRows
	}
	doc.OutOpen = true
	return nil
}

func (s *registryStoreStub) ClearDocumentOutstanding(ctx context.Context, id string) error {
	if doc, ok := s.documents[id]; ok {
		doc.OutOpen = false
		s.cleared = append(s.cleared, id)
	}
	return nil
}

func (s *registryStoreStub) ClearDocumentOutstandingTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	return s.ClearDocumentOutstanding(ctx, id)
}

func (s *registryStoreStub) UpdateDocumentStatusTx(ctx context.Context, tx *sqlx.Tx, id, status string) error {
	doc, ok := s.documents[id]
	if !ok {
		return sql.ErrNoRows
	}
	doc.Status = status
	return nil
}

func (s *registryStoreStub) UpdateFolderStatusTx(ctx context.Context, tx *sqlx.Tx, id, status string) error {
	folder, ok := s.folders[id]
	if !ok {
		return sql.ErrNoRows
	}
	folder.Status = status
	return nil
}

type sequenceAllocatorStub struct {
	counters map[string]int64
	err      error
}

func newSequenceAllocatorStub() *sequenceAllocatorStub {
	return &sequenceAllocatorStub{counters: make(map[string]int64)}
}

func (s *sequenceAllocatorStub) NextTx(ctx context.Context, tx *sqlx.Tx, subjectID string, year int, direction models.Direction) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	key := fmt.Sprintf("%s|%d|%s", subjectID, year, direction)
	s.counters[key]++
	return s.counters[key], nil
}

type protocolFixture struct {
	svc      *ProtocolService
	store    *protocolStoreStub
	registry *registryStoreStub
	seq      *sequenceAllocatorStub
}

func newProtocolFixture(t *testing.T) *protocolFixture {
	store := &protocolStoreStub{}
	registry := newRegistryStoreStub()
	registry.subjects["subject-1"] = &models.Subject{ID: "subject-1", Name: "Comune di Milano"}
	seq := newSequenceAllocatorStub()
	tx, mock := newTxProviderMock(t)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 8; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	svc := NewProtocolService(store, registry, seq, tx, nil, nil)
	return &protocolFixture{svc: svc, store: store, registry: registry, seq: seq}
}

func (f *protocolFixture) addPaperDocument(id string) *models.Document {
	subjectID := "subject-1"
	doc := &models.Document{ID: id, Title: "Pratica " + id, Status: "Archiviato", SubjectID: &subjectID, Trackable: true}
	f.registry.documents[id] = doc
	return doc
}

func TestProtocolServiceRegisterOutbound(t *testing.T) {
	f := newProtocolFixture(t)
	f.addPaperDocument("doc-1")
	loc := "loc-1"

	entry, err := f.svc.RegisterOutbound(context.Background(), dto.RegisterMovementRequest{
		TargetKind:  models.TargetKindDocument,
		TargetID:    "doc-1",
		LocationID:  &loc,
		Counterpart: "Tribunale di Milano",
		Reason:      "richiesta atti",
	}, "mrossi")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Number)
	assert.Equal(t, time.Now().UTC().Year(), entry.Year)
	assert.Equal(t, models.DirectionOut, entry.Direction)
	assert.False(t, entry.Closed)
	require.NotNil(t, entry.DocumentID)
	assert.True(t, f.registry.documents["doc-1"].OutOpen)
}

func TestProtocolServiceRegisterOutboundAlreadyTracked(t *testing.T) {
	f := newProtocolFixture(t)
	f.addPaperDocument("doc-1")
	loc := "loc-1"
	req := dto.RegisterMovementRequest{TargetKind: models.TargetKindDocument, TargetID: "doc-1", LocationID: &loc}

	_, err := f.svc.RegisterOutbound(context.Background(), req, "mrossi")
	require.NoError(t, err)

	_, err = f.svc.RegisterOutbound(context.Background(), req, "mrossi")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAlreadyTracked.Code, appErr.Code)
}

func TestProtocolServiceRegisterOutboundAlreadyOutstanding(t *testing.T) {
	f := newProtocolFixture(t)
	doc := f.addPaperDocument("doc-1")
	doc.OutOpen = true
	loc := "loc-1"

	_, err := f.svc.RegisterOutbound(context.Background(), dto.RegisterMovementRequest{
		TargetKind: models.TargetKindDocument, TargetID: "doc-1", LocationID: &loc,
	}, "mrossi")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAlreadyOutstanding.Code, appErr.Code)
}

func TestProtocolServiceRegisterOutboundCompensatesFlag(t *testing.T) {
	f := newProtocolFixture(t)
	f.addPaperDocument("doc-1")
	f.seq.err = errors.New("partition unavailable")
	loc := "loc-1"

	_, err := f.svc.RegisterOutbound(context.Background(), dto.RegisterMovementRequest{
		TargetKind: models.TargetKindDocument, TargetID: "doc-1", LocationID: &loc,
	}, "mrossi")
	require.Error(t, err)
	assert.False(t, f.registry.documents["doc-1"].OutOpen)
	assert.Contains(t, f.registry.cleared, "doc-1")
}

func TestProtocolServiceRegisterInboundReconcilesOpenOutbound(t *testing.T) {
	f := newProtocolFixture(t)
	f.addPaperDocument("doc-1")
	loc := "loc-1"
	req := dto.RegisterMovementRequest{TargetKind: models.TargetKindDocument, TargetID: "doc-1", LocationID: &loc}

	outbound, err := f.svc.RegisterOutbound(context.Background(), req, "mrossi")
	require.NoError(t, err)

	inbound, err := f.svc.RegisterInbound(context.Background(), req, "gverdi")
	require.NoError(t, err)
	require.NotNil(t, inbound.ClosesID)
	assert.Equal(t, outbound.ID, *inbound.ClosesID)
	assert.Equal(t, models.DirectionIn, inbound.Direction)
	// directions number independently
	assert.Equal(t, int64(1), inbound.Number)

	stored, err := f.store.GetByID(context.Background(), outbound.ID)
	require.NoError(t, err)
	assert.True(t, stored.Closed)
	assert.False(t, f.registry.documents["doc-1"].OutOpen)
}

func TestProtocolServiceRegisterInboundAlreadyTracked(t *testing.T) {
	f := newProtocolFixture(t)
	f.addPaperDocument("doc-1")
	loc := "loc-1"
	req := dto.RegisterMovementRequest{TargetKind: models.TargetKindDocument, TargetID: "doc-1", LocationID: &loc}

	_, err := f.svc.RegisterInbound(context.Background(), req, "mrossi")
	require.NoError(t, err)

	// no open outbound to reconcile, so a second inbound is rejected
	_, err = f.svc.RegisterInbound(context.Background(), req, "mrossi")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAlreadyTracked.Code, appErr.Code)
}

func TestProtocolServiceDigitalDocumentCarriesNoLocation(t *testing.T) {
	f := newProtocolFixture(t)
	subjectID := "subject-1"
	f.registry.documents["doc-1"] = &models.Document{ID: "doc-1", Status: "Archiviato", SubjectID: &subjectID, Digital: true, Trackable: true}

	loc := "loc-1"
	_, err := f.svc.RegisterInbound(context.Background(), dto.RegisterMovementRequest{
		TargetKind: models.TargetKindDocument, TargetID: "doc-1", LocationID: &loc,
	}, "mrossi")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	entry, err := f.svc.RegisterInbound(context.Background(), dto.RegisterMovementRequest{
		TargetKind: models.TargetKindDocument, TargetID: "doc-1",
	}, "mrossi")
	require.NoError(t, err)
	assert.Nil(t, entry.LocationID)
}

func TestProtocolServicePaperDocumentRequiresLocation(t *testing.T) {
	f := newProtocolFixture(t)
	f.addPaperDocument("doc-1")

	_, err := f.svc.RegisterInbound(context.Background(), dto.RegisterMovementRequest{
		TargetKind: models.TargetKindDocument, TargetID: "doc-1",
	}, "mrossi")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrMissingLocation.Code, appErr.Code)
}

func TestProtocolServiceDocumentInheritsFolderLocation(t *testing.T) {
	f := newProtocolFixture(t)
	subjectID := "subject-1"
	f.registry.folders["fold-1"] = &models.Folder{ID: "fold-1", Code: "F-2026-1", Status: "Archiviato", SubjectID: &subjectID}
	folderID := "fold-1"
	f.registry.documents["doc-1"] = &models.Document{ID: "doc-1", Status: "Archiviato", FolderID: &folderID, Trackable: true}

	loc := "loc-1"
	_, err := f.svc.RegisterInbound(context.Background(), dto.RegisterMovementRequest{
		TargetKind: models.TargetKindFolder, TargetID: "fold-1", LocationID: &loc,
	}, "mrossi")
	require.NoError(t, err)

	// the document rides on the folder's registered location and subject
	entry, err := f.svc.RegisterInbound(context.Background(), dto.RegisterMovementRequest{
		TargetKind: models.TargetKindDocument, TargetID: "doc-1",
	}, "mrossi")
	require.NoError(t, err)
	require.NotNil(t, entry.LocationID)
	assert.Equal(t, "loc-1", *entry.LocationID)
	assert.Equal(t, "subject-1", entry.SubjectID)
}

func TestProtocolServiceRegisterNotTrackable(t *testing.T) {
	f := newProtocolFixture(t)
	subjectID := "subject-1"
	f.registry.documents["doc-1"] = &models.Document{ID: "doc-1", Status: "Bozza", SubjectID: &subjectID}

	loc := "loc-1"
	_, err := f.svc.RegisterOutbound(context.Background(), dto.RegisterMovementRequest{
		TargetKind: models.TargetKindDocument, TargetID: "doc-1", LocationID: &loc,
	}, "mrossi")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestProtocolServiceRegisterUnknownSubject(t *testing.T) {
	f := newProtocolFixture(t)
	subjectID := "ghost"
	f.registry.documents["doc-1"] = &models.Document{ID: "doc-1", Status: "Archiviato", SubjectID: &subjectID, Trackable: true}

	loc := "loc-1"
	_, err := f.svc.RegisterOutbound(context.Background(), dto.RegisterMovementRequest{
		TargetKind: models.TargetKindDocument, TargetID: "doc-1", LocationID: &loc,
	}, "mrossi")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidSubject.Code, appErr.Code)
}

func TestProtocolServiceNumbersArePerPartition(t *testing.T) {
	f := newProtocolFixture(t)
	f.registry.subjects["subject-2"] = &models.Subject{ID: "subject-2", Name: "Provincia di Varese"}
	subjectA, subjectB := "subject-1", "subject-2"
	f.registry.folders["fold-a"] = &models.Folder{ID: "fold-a", Status: "Archiviato", SubjectID: &subjectA}
	f.registry.folders["fold-b"] = &models.Folder{ID: "fold-b", Status: "Archiviato", SubjectID: &subjectA}
	f.registry.folders["fold-c"] = &models.Folder{ID: "fold-c", Status: "Archiviato", SubjectID: &subjectB}
	loc := "loc-1"

	first, err := f.svc.RegisterInbound(context.Background(), dto.RegisterMovementRequest{TargetKind: models.TargetKindFolder, TargetID: "fold-a", LocationID: &loc}, "mrossi")
	require.NoError(t, err)
	second, err := f.svc.RegisterInbound(context.Background(), dto.RegisterMovementRequest{TargetKind: models.TargetKindFolder, TargetID: "fold-b", LocationID: &loc}, "mrossi")
	require.NoError(t, err)
	other, err := f.svc.RegisterInbound(context.Background(), dto.RegisterMovementRequest{TargetKind: models.TargetKindFolder, TargetID: "fold-c", LocationID: &loc}, "mrossi")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Number)
	assert.Equal(t, int64(2), second.Number)
	assert.Equal(t, int64(1), other.Number)
}

func TestProtocolServiceListRejectsBadDirection(t *testing.T) {
	f := newProtocolFixture(t)

	_, err := f.svc.List(context.Background(), dto.ProtocolQuery{Direction: "SIDEWAYS"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestProtocolServiceListMapsFilter(t *testing.T) {
	f := newProtocolFixture(t)
	closed := true

	_, err := f.svc.List(context.Background(), dto.ProtocolQuery{SubjectID: "subject-1", Year: 2026, Direction: "OUT", Closed: &closed, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "subject-1", f.store.filter.SubjectID)
	assert.Equal(t, 2026, f.store.filter.Year)
	assert.Equal(t, models.DirectionOut, f.store.filter.Direction)
	require.NotNil(t, f.store.filter.Closed)
	assert.True(t, *f.store.filter.Closed)
	assert.Equal(t, 10, f.store.filter.Limit)
}
