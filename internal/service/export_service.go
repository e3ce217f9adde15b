package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/studiodl/archivio-api/internal/models"
	"github.com/studiodl/archivio-api/pkg/export"
	"github.com/studiodl/archivio-api/pkg/storage"
)

// registerPageSize caps the rows rendered into one export file.
const registerPageSize = 10000

type registerSource interface {
	List(ctx context.Context, filter models.ProtocolFilter) ([]models.ProtocolEntry, error)
}

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes register export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders protocol register slices and persists the files.
type ExportService struct {
	register registerSource
	storage  exportFileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(register registerSource, store exportFileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		register: register,
		storage:  store,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the register dataset for the job and stores the rendered file.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job.Params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/protocol/exports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildDataset(ctx context.Context, params models.ExportJobParams) (export.Dataset, string, error) {
	filter := models.ProtocolFilter{
		SubjectID: params.SubjectID,
		Year:      params.Year,
		Limit:     registerPageSize,
	}
	if params.Direction != "" {
		filter.Direction = models.Direction(strings.ToUpper(params.Direction))
	}
	entries, err := s.register.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", err
	}

	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		target := entry.Target()
		rows = append(rows, map[string]string{
			"Number":      fmt.Sprintf("%d/%d", entry.Number, entry.Year),
			"Direction":   string(entry.Direction),
			"Recorded At": entry.RecordedAt.UTC().Format("2006-01-02 15:04"),
			"Target":      fmt.Sprintf("%s %s", target.Kind, target.ID),
			"Counterpart": entry.Counterpart,
			"Operator":    entry.Operator,
			"Open":        fmt.Sprintf("%t", entry.Direction == models.DirectionOut && !entry.Closed),
			"Reason":      entry.Reason,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Number", "Direction", "Recorded At", "Target", "Counterpart", "Operator", "Open", "Reason"},
		Rows:    rows,
	}

	title := "Protocol Register"
	if params.Year > 0 {
		title = fmt.Sprintf("Protocol Register %d", params.Year)
	}
	return dataset, title, nil
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	yearPart := "all"
	if job.Params.Year > 0 {
		yearPart = fmt.Sprintf("%d", job.Params.Year)
	}
	return fmt.Sprintf("register_%s_%s.%s", yearPart, timestamp, job.Params.Format)
}
