package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/studiodl/archivio-api/internal/dto"
	"github.com/studiodl/archivio-api/internal/models"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
)

type batchStore interface {
	Create(ctx context.Context, batch *models.ArchiveBatch) error
	GetByID(ctx context.Context, id string) (*models.ArchiveBatch, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.ArchiveBatch, error)
	UpdateLineResolutionTx(ctx context.Context, tx *sqlx.Tx, line *models.BatchLine) error
	MarkProcessedTx(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error
	SetProofRef(ctx context.Context, id, ref string) error
}

type batchProtocolResolver interface {
	GetByID(ctx context.Context, id string) (*models.ProtocolEntry, error)
	EarliestForTarget(ctx context.Context, target models.TargetRef) (*models.ProtocolEntry, error)
	UpdateLocationTx(ctx context.Context, tx *sqlx.Tx, id string, locationID string) error
}

type batchRegistry interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetFolder(ctx context.Context, id string) (*models.Folder, error)
	UpdateDocumentStatusTx(ctx context.Context, tx *sqlx.Tx, id, status string) error
	UpdateFolderStatusTx(ctx context.Context, tx *sqlx.Tx, id, status string) error
}

type batchPlacements interface {
	GetActiveTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (*models.Placement, error)
	CloseActiveTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef, to time.Time) error
	InsertTx(ctx context.Context, tx *sqlx.Tx, placement *models.Placement) error
}

type batchLocationResolver interface {
	GetByID(ctx context.Context, id string) (*models.Location, error)
}

type proofFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
}

type proofURLSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

// ProofUpload carries the scanned proof metadata and stream reader.
type ProofUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.Reader
}

// ProofDownload bundles the proof file handle for streaming.
type ProofDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// BatchServiceConfig carries the deployment-wide engine settings.
type BatchServiceConfig struct {
	// DischargeLocationID is the configured fallback destination for
	// outbound lines without an explicit one.
	DischargeLocationID string
	ProofMaxFileSize    int64
}

// BatchService is the archive operation engine: it processes inbound,
// outbound and internal-transfer batches, deriving locations from the
// protocol ledger and moving statuses and placements atomically.
type BatchService struct {
	repo       batchStore
	protocol   batchProtocolResolver
	registry   batchRegistry
	placements batchPlacements
	locations  batchLocationResolver
	storage    proofFileStorage
	signer     proofURLSigner
	tx         txBeginner
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        BatchServiceConfig
}

// NewBatchService constructs the engine.
func NewBatchService(repo batchStore, protocol batchProtocolResolver, registry batchRegistry, placements batchPlacements, locations batchLocationResolver, storage proofFileStorage, signer proofURLSigner, tx txBeginner, metrics *MetricsService, logger *zap.Logger, cfg BatchServiceConfig) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProofMaxFileSize <= 0 {
		cfg.ProofMaxFileSize = 10 * 1024 * 1024
	}
	return &BatchService{
		repo:       repo,
		protocol:   protocol,
		registry:   registry,
		placements: placements,
		locations:  locations,
		storage:    storage,
		signer:     signer,
		tx:         tx,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Create stores a new batch with its ordered lines.
func (s *BatchService) Create(ctx context.Context, req dto.CreateBatchRequest, operator string) (*models.ArchiveBatch, error) {
	if !models.IsValidBatchKind(req.Kind) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "kind must be INBOUND, OUTBOUND or INTERNAL_TRANSFER")
	}
	if len(req.Lines) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a batch needs at least one line")
	}

	batch := &models.ArchiveBatch{
		Kind:        req.Kind,
		Operator:    operator,
		Counterpart: req.Counterpart,
		Note:        req.Note,
	}
	if req.OccurredAt != nil {
		batch.OccurredAt = req.OccurredAt.UTC()
	}
	for i, lineReq := range req.Lines {
		line := models.BatchLine{
			ProtocolEntryID:  lineReq.ProtocolEntryID,
			SourceLocationID: lineReq.SourceLocationID,
			DestLocationID:   lineReq.DestLocationID,
			NextStatus:       lineReq.NextStatus,
			Note:             lineReq.Note,
		}
		switch lineReq.TargetKind {
		case models.TargetKindDocument:
			id := lineReq.TargetID
			line.DocumentID = &id
		case models.TargetKindFolder:
			id := lineReq.TargetID
			line.FolderID = &id
		default:
			return nil, appErrors.Clone(appErrors.ErrInvalidLine, fmt.Sprintf("line %d: target kind must be document or folder", i+1))
		}
		batch.Lines = append(batch.Lines, line)
	}

	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	return batch, nil
}

// Get returns a batch with its lines.
func (s *BatchService) Get(ctx context.Context, id string) (*models.ArchiveBatch, error) {
	batch, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if batch == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	}
	return batch, nil
}

// List returns batches matching the query.
func (s *BatchService) List(ctx context.Context, query dto.BatchQuery) ([]models.ArchiveBatch, error) {
	filter := models.BatchFilter{Processed: query.Processed, Limit: query.Limit, Offset: query.Offset}
	if query.Kind != "" {
		kind := models.BatchKind(strings.ToUpper(query.Kind))
		if !models.IsValidBatchKind(kind) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown batch kind")
		}
		filter.Kind = kind
	}
	batches, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, nil
}

// Process runs the batch through the movement engine inside one
// transaction. Any line failure aborts the whole batch. Reprocessing an
// already-processed batch recomputes the same resolutions and ends up
// writing nothing new.
func (s *BatchService) Process(ctx context.Context, batchID string) (batch *models.ArchiveBatch, err error) {
	batch, err = s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var discharge *models.Location
	if batch.Kind == models.BatchKindOutbound {
		if discharge, err = s.resolveDischarge(ctx); err != nil {
			return nil, err
		}
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

	for i := range batch.Lines {
		if err = s.processLine(ctx, tx, batch, &batch.Lines[i], discharge); err != nil {
			return nil, err
		}
	}

	if batch.ProcessedAt == nil {
		now := time.Now().UTC()
		if err = s.repo.MarkProcessedTx(ctx, tx, batch.ID, now); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stamp batch")
		}
		batch.ProcessedAt = &now
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit batch")
	}

	s.metrics.IncBatchProcessed(string(batch.Kind), len(batch.Lines))
	s.logger.Info("batch processed",
		zap.String("batch_id", batch.ID),
		zap.String("kind", string(batch.Kind)),
		zap.Int("lines", len(batch.Lines)))
	return batch, nil
}

// processLine resolves one line per the engine's derivation table and
// applies the status transition and placement move.
func (s *BatchService) processLine(ctx context.Context, tx *sqlx.Tx, batch *models.ArchiveBatch, line *models.BatchLine, discharge *models.Location) error {
	target := line.Target()
	if !target.Valid() {
		return lineError(appErrors.ErrInvalidLine, line.Position, "neither document nor folder is set")
	}

	var document *models.Document
	var folder *models.Folder
	var currentStatus string
	switch target.Kind {
	case models.TargetKindDocument:
		doc, err := s.registry.GetDocument(ctx, target.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
		}
		if doc == nil {
			return lineError(appErrors.ErrInvalidLine, line.Position, "document not found")
		}
		document = doc
		currentStatus = doc.Status
	case models.TargetKindFolder:
		fld, err := s.registry.GetFolder(ctx, target.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
		}
		if fld == nil {
			return lineError(appErrors.ErrInvalidLine, line.Position, "folder not found")
		}
		folder = fld
		currentStatus = fld.Status
	}

	_ = folder

	digital := document != nil && document.Digital
	if digital && batch.Kind != models.BatchKindInbound {
		return lineError(appErrors.ErrInvalidLine, line.Position, "digital documents cannot be physically moved")
	}

	entry, err := s.resolveEntry(ctx, line, target)
	if err != nil {
		return err
	}

	var source, dest *string
	prevStatus := currentStatus
	nextStatus := line.NextStatus
	switch batch.Kind {
	case models.BatchKindInbound:
		if nextStatus == "" {
			return lineError(appErrors.ErrInvalidLine, line.Position, "next status is required for inbound lines")
		}
		// an inbound line opens the object's archive life, there is no
		// previous status to record
		prevStatus = ""
		dest = line.DestLocationID
		if dest == nil {
			dest = entry.LocationID
		}
		if dest == nil && !digital {
			return lineError(appErrors.ErrMissingLocation, line.Position, "no destination could be derived")
		}
	case models.BatchKindOutbound:
		source = entry.LocationID
		if source == nil {
			return lineError(appErrors.ErrMissingLocation, line.Position, "the protocol entry carries no location")
		}
		dest = line.DestLocationID
		if dest == nil {
			id := discharge.ID
			dest = &id
		}
		if nextStatus == "" {
			nextStatus = defaultDischargedStatus(target.Kind)
		}
	case models.BatchKindInternalTransfer:
		source = entry.LocationID
		if source == nil {
			return lineError(appErrors.ErrMissingLocation, line.Position, "the protocol entry carries no location")
		}
		dest = line.DestLocationID
		if dest == nil {
			return lineError(appErrors.ErrMissingLocation, line.Position, "internal transfers need an explicit destination")
		}
		if nextStatus == "" {
			nextStatus = currentStatus
		}
	}

	// An already-processed batch keeps the stored previous status so
	// reprocessing stays a no-op.
	if batch.ProcessedAt != nil {
		prevStatus = line.PrevStatus
	}

	if nextStatus != currentStatus {
		switch target.Kind {
		case models.TargetKindDocument:
			if err := s.registry.UpdateDocumentStatusTx(ctx, tx, target.ID, nextStatus); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
			}
		case models.TargetKindFolder:
			if err := s.registry.UpdateFolderStatusTx(ctx, tx, target.ID, nextStatus); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
			}
		}
	}

	if batch.Kind == models.BatchKindInternalTransfer {
		if err := s.protocol.UpdateLocationTx(ctx, tx, entry.ID, *dest); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move protocol entry")
		}
	}

	if dest != nil && !digital {
		if err := s.movePlacement(ctx, tx, batch, target, *dest); err != nil {
			return err
		}
	}

	line.ProtocolEntryID = &entry.ID
	line.SourceLocationID = source
	line.DestLocationID = dest
	line.PrevStatus = prevStatus
	line.NextStatus = nextStatus
	if err := s.repo.UpdateLineResolutionTx(ctx, tx, line); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist line resolution")
	}
	return nil
}

// resolveEntry picks the explicit protocol entry or the target's earliest.
func (s *BatchService) resolveEntry(ctx context.Context, line *models.BatchLine, target models.TargetRef) (*models.ProtocolEntry, error) {
	if line.ProtocolEntryID != nil {
		entry, err := s.protocol.GetByID(ctx, *line.ProtocolEntryID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load protocol entry")
		}
		if entry == nil {
			return nil, lineError(appErrors.ErrNotRegistered, line.Position, "referenced protocol entry does not exist")
		}
		if entry.Target() != target {
			return nil, lineError(appErrors.ErrInvalidLine, line.Position, "protocol entry belongs to a different target")
		}
		return entry, nil
	}
	entry, err := s.protocol.EarliestForTarget(ctx, target)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve protocol entry")
	}
	if entry == nil {
		return nil, lineError(appErrors.ErrNotRegistered, line.Position, "target has no protocol entry")
	}
	return entry, nil
}

// movePlacement records the target at the destination unless it already
// sits there.
func (s *BatchService) movePlacement(ctx context.Context, tx *sqlx.Tx, batch *models.ArchiveBatch, target models.TargetRef, locationID string) error {
	active, err := s.placements.GetActiveTx(ctx, tx, target)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check placement")
	}
	if active != nil && active.LocationID == locationID {
		return nil
	}
	now := time.Now().UTC()
	if err := s.placements.CloseActiveTx(ctx, tx, target, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close placement")
	}
	placement := &models.Placement{
		TargetKind: target.Kind,
		TargetID:   target.ID,
		LocationID: locationID,
		FromDate:   batch.OccurredAt,
		Note:       fmt.Sprintf("batch %s", batch.ID),
	}
	if err := s.placements.InsertTx(ctx, tx, placement); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record placement")
	}
	return nil
}

// resolveDischarge loads the configured discharge location.
func (s *BatchService) resolveDischarge(ctx context.Context) (*models.Location, error) {
	if s.cfg.DischargeLocationID == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingConfiguration, "no discharge location is configured")
	}
	loc, err := s.locations.GetByID(ctx, s.cfg.DischargeLocationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load discharge location")
	}
	if loc == nil {
		return nil, appErrors.Clone(appErrors.ErrMissingConfiguration, "the configured discharge location does not exist")
	}
	return loc, nil
}

// AttachProof stores the scanned proof for a batch and records its reference.
func (s *BatchService) AttachProof(ctx context.Context, batchID string, upload ProofUpload) (*models.ArchiveBatch, error) {
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if s.storage == nil {
		return nil, appErrors.Clone(appErrors.ErrMissingConfiguration, "proof storage is not configured")
	}
	if upload.Size > s.cfg.ProofMaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proof file exceeds the size limit")
	}
	name := filepath.Base(upload.Filename)
	if name == "" || name == "." {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proof filename is required")
	}
	relPath := filepath.Join("batches", batch.ID, name)
	if _, err := s.storage.SaveStream(relPath, upload.Content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store proof")
	}
	if err := s.repo.SetProofRef(ctx, batch.ID, relPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record proof")
	}
	batch.ProofRef = &relPath
	return batch, nil
}

// ProofURL returns a signed, expiring token URL path for the batch proof.
func (s *BatchService) ProofURL(ctx context.Context, batchID string) (string, time.Time, error) {
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return "", time.Time{}, err
	}
	if batch.ProofRef == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "batch has no proof attachment")
	}
	if s.signer == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrMissingConfiguration, "proof signing is not configured")
	}
	token, expiresAt, err := s.signer.Generate(batch.ID, *batch.ProofRef)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign proof URL")
	}
	return token, expiresAt, nil
}

// DownloadProof validates the signed token and opens the proof file.
func (s *BatchService) DownloadProof(ctx context.Context, batchID, token string) (*ProofDownload, error) {
	if s.signer == nil || s.storage == nil {
		return nil, appErrors.Clone(appErrors.ErrMissingConfiguration, "proof storage is not configured")
	}
	tokenBatchID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid proof token")
	}
	if tokenBatchID != batchID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match batch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "proof file not found")
	}
	return &ProofDownload{File: file, Filename: filepath.Base(relPath), ExpiresAt: expiresAt}, nil
}

func lineError(base *appErrors.Error, position int, message string) *appErrors.Error {
	return appErrors.Clone(base, fmt.Sprintf("line %d: %s", position, message))
}

func defaultDischargedStatus(kind models.TargetKind) string {
	if kind == models.TargetKindFolder {
		return models.FolderStatusDischarged
	}
	return models.DocumentStatusDischarged
}
