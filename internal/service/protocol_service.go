package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/studiodl/archivio-api/internal/dto"
	"github.com/studiodl/archivio-api/internal/models"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
)

type protocolStore interface {
	InsertTx(ctx context.Context, tx *sqlx.Tx, entry *models.ProtocolEntry) error
	GetByID(ctx context.Context, id string) (*models.ProtocolEntry, error)
	EarliestForTarget(ctx context.Context, target models.TargetRef) (*models.ProtocolEntry, error)
	ExistsForTarget(ctx context.Context, target models.TargetRef) (bool, error)
	OpenOutboundForTargetTx(ctx context.Context, tx *sqlx.Tx, target models.TargetRef) (*models.ProtocolEntry, error)
	MarkClosedTx(ctx context.Context, tx *sqlx.Tx, id string) error
	List(ctx context.Context, filter models.ProtocolFilter) ([]models.ProtocolEntry, error)
}

type registryStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetFolder(ctx context.Context, id string) (*models.Folder, error)
	GetSubject(ctx context.Context, id string) (*models.Subject, error)
	MarkDocumentOutstanding(ctx context.Context, id string) error
	ClearDocumentOutstanding(ctx context.Context, id string) error
	ClearDocumentOutstandingTx(ctx context.Context, tx *sqlx.Tx, id string) error
}

type sequenceAllocator interface {
	NextTx(ctx context.Context, tx *sqlx.Tx, subjectID string, year int, direction models.Direction) (int64, error)
}

// ProtocolService is the movement ledger: it registers inbound and
// outbound movements, numbering them gaplessly per subject, year and
// direction, and reconciling inbound entries against open outbound ones.
type ProtocolService struct {
	repo     protocolStore
	registry registryStore
	seq      sequenceAllocator
	tx       txBeginner
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewProtocolService constructs the service.
func NewProtocolService(repo protocolStore, registry registryStore, seq sequenceAllocator, tx txBeginner, metrics *MetricsService, logger *zap.Logger) *ProtocolService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProtocolService{repo: repo, registry: registry, seq: seq, tx: tx, metrics: metrics, logger: logger}
}

// movementTarget carries the resolved target pair for a registration.
type movementTarget struct {
	ref      models.TargetRef
	document *models.Document
	folder   *models.Folder
}

// RegisterOutbound records an outbound movement for a document or folder.
func (s *ProtocolService) RegisterOutbound(ctx context.Context, req dto.RegisterMovementRequest, operator string) (*models.ProtocolEntry, error) {
	target, err := s.resolveTarget(ctx, req.TargetKind, req.TargetID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsForTarget(ctx, target.ref)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check ledger")
	}
	if exists {
		return nil, appErrors.ErrAlreadyTracked
	}

	// The outstanding flag is taken with a conditional update before the
	// entry transaction: losing the race means another outbound is in
	// flight for the same document.
	flagged := false
	if target.document != nil {
		if err := s.registry.MarkDocumentOutstanding(ctx, target.document.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrAlreadyOutstanding
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flag document")
		}
		flagged = true
	}

	entry, err := s.register(ctx, target, req, operator, models.DirectionOut, nil)
	if err != nil && flagged {
		if clearErr := s.registry.ClearDocumentOutstanding(ctx, target.document.ID); clearErr != nil {
			s.logger.Error("failed to roll back outstanding flag",
				zap.String("document_id", target.document.ID), zap.Error(clearErr))
		}
	}
	return entry, err
}

// RegisterInbound records an inbound movement. When the target has an open
// outbound entry, that entry is closed, linked via closes, and the
// document's outstanding flag cleared, all in the same transaction.
func (s *ProtocolService) RegisterInbound(ctx context.Context, req dto.RegisterMovementRequest, operator string) (*models.ProtocolEntry, error) {
	target, err := s.resolveTarget(ctx, req.TargetKind, req.TargetID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsForTarget(ctx, target.ref)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check ledger")
	}

	reconcile := func(ctx context.Context, tx *sqlx.Tx, entry *models.ProtocolEntry) error {
		open, err := s.repo.OpenOutboundForTargetTx(ctx, tx, target.ref)
		if err != nil {
			return fmt.Errorf("find open outbound: %w", err)
		}
		if open == nil {
			if exists {
				// one root entry per target: further inbound movements are
				// only valid as reconciliation of an open outbound
				return appErrors.ErrAlreadyTracked
			}
			return nil
		}
		entry.ClosesID = &open.ID
		if err := s.repo.MarkClosedTx(ctx, tx, open.ID); err != nil {
			return fmt.Errorf("close outbound: %w", err)
		}
		if target.document != nil {
			if err := s.registry.ClearDocumentOutstandingTx(ctx, tx, target.document.ID); err != nil {
				return fmt.Errorf("clear outstanding flag: %w", err)
			}
		}
		return nil
	}

	return s.register(ctx, target, req, operator, models.DirectionIn, reconcile)
}

// Get returns a single ledger entry.
func (s *ProtocolService) Get(ctx context.Context, id string) (*models.ProtocolEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entry")
	}
	if entry == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "protocol entry not found")
	}
	return entry, nil
}

// List returns register entries matching the query.
func (s *ProtocolService) List(ctx context.Context, query dto.ProtocolQuery) ([]models.ProtocolEntry, error) {
	filter := models.ProtocolFilter{
		SubjectID: query.SubjectID,
		Year:      query.Year,
		Closed:    query.Closed,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	if query.Direction != "" {
		direction := models.Direction(query.Direction)
		if direction != models.DirectionIn && direction != models.DirectionOut {
			return nil, appErrors.Clone(appErrors.ErrValidation, "direction must be IN or OUT")
		}
		filter.Direction = direction
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list entries")
	}
	return entries, nil
}

// register performs the shared registration flow: subject resolution,
// location resolution, sequence allocation and entry insert, plus the
// direction-specific reconcile step, all in one transaction.
func (s *ProtocolService) register(ctx context.Context, target movementTarget, req dto.RegisterMovementRequest, operator string, direction models.Direction, reconcile func(context.Context, *sqlx.Tx, *models.ProtocolEntry) error) (entry *models.ProtocolEntry, err error) {
	subjectID, err := s.normalizeSubject(ctx, target)
	if err != nil {
		return nil, err
	}

	locationID, err := s.resolveLocation(ctx, target, req.LocationID)
	if err != nil {
		return nil, err
	}

	when := time.Now().UTC()
	if req.RecordedAt != nil {
		when = req.RecordedAt.UTC()
	}

	entry = &models.ProtocolEntry{
		SubjectID:      subjectID,
		Direction:      direction,
		RecordedAt:     when,
		Year:           when.Year(),
		Operator:       operator,
		Counterpart:    req.Counterpart,
		CounterpartID:  req.CounterpartID,
		LocationID:     locationID,
		ExpectedReturn: req.ExpectedReturn,
		Reason:         req.Reason,
		Notes:          req.Notes,
	}
	if target.document != nil {
		entry.DocumentID = &target.document.ID
	} else {
		entry.FolderID = &target.folder.ID
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

	if reconcile != nil {
		if err = reconcile(ctx, tx, entry); err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return nil, appErr
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile movement")
		}
	}

	number, err := s.seq.NextTx(ctx, tx, subjectID, entry.Year, direction)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate number")
	}
	entry.Number = number

	if err = s.repo.InsertTx(ctx, tx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to insert entry")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit entry")
	}

	s.metrics.IncProtocolEntry(string(direction))
	s.logger.Info("movement registered",
		zap.String("entry_id", entry.ID),
		zap.String("direction", string(direction)),
		zap.Int64("number", entry.Number),
		zap.Int("year", entry.Year),
		zap.String("subject_id", subjectID))
	return entry, nil
}

// resolveTarget loads the document or folder the movement refers to.
func (s *ProtocolService) resolveTarget(ctx context.Context, kind models.TargetKind, id string) (movementTarget, error) {
	target := movementTarget{ref: models.TargetRef{Kind: kind, ID: id}}
	if !target.ref.Valid() {
		return target, appErrors.Clone(appErrors.ErrValidation, "target kind must be document or folder")
	}
	switch kind {
	case models.TargetKindDocument:
		doc, err := s.registry.GetDocument(ctx, id)
		if err != nil {
			return target, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
		}
		if doc == nil {
			return target, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		if !doc.Trackable {
			return target, appErrors.Clone(appErrors.ErrValidation, "document is not trackable")
		}
		target.document = doc
	case models.TargetKindFolder:
		folder, err := s.registry.GetFolder(ctx, id)
		if err != nil {
			return target, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
		}
		if folder == nil {
			return target, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		target.folder = folder
	}
	return target, nil
}

// normalizeSubject resolves the registry subject a movement is billed to,
// walking the owning-folder chain for documents without their own subject.
func (s *ProtocolService) normalizeSubject(ctx context.Context, target movementTarget) (string, error) {
	var subjectID *string
	switch {
	case target.document != nil:
		subjectID = target.document.SubjectID
		if subjectID == nil && target.document.FolderID != nil {
			folder, err := s.registry.GetFolder(ctx, *target.document.FolderID)
			if err != nil {
				return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load owning folder")
			}
			if folder != nil {
				subjectID = folder.SubjectID
			}
		}
	case target.folder != nil:
		subjectID = target.folder.SubjectID
	}
	if subjectID == nil || *subjectID == "" {
		return "", appErrors.ErrInvalidSubject
	}
	subject, err := s.registry.GetSubject(ctx, *subjectID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject == nil {
		return "", appErrors.ErrInvalidSubject
	}
	return subject.ID, nil
}

// resolveLocation applies the carried-location rules: digital documents
// never carry one, paper documents inherit the owning folder's protocol
// location, and whenever nothing can be inherited the caller must supply
// one explicitly.
func (s *ProtocolService) resolveLocation(ctx context.Context, target movementTarget, supplied *string) (*string, error) {
	if target.document != nil && target.document.Digital {
		if supplied != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "digital documents cannot carry a physical location")
		}
		return nil, nil
	}

	var inherited *string
	if target.document != nil && target.document.FolderID != nil {
		folderRef := models.TargetRef{Kind: models.TargetKindFolder, ID: *target.document.FolderID}
		folderEntry, err := s.repo.EarliestForTarget(ctx, folderRef)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve folder location")
		}
		if folderEntry != nil {
			inherited = folderEntry.LocationID
		}
	}
	if target.folder != nil {
		folderEntry, err := s.repo.EarliestForTarget(ctx, target.ref)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve folder location")
		}
		if folderEntry != nil {
			inherited = folderEntry.LocationID
		}
	}

	if inherited != nil {
		return inherited, nil
	}
	if supplied == nil || *supplied == "" {
		return nil, appErrors.ErrMissingLocation
	}
	return supplied, nil
}
