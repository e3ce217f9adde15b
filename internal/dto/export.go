package dto

import "github.com/studiodl/archivio-api/internal/models"

// CreateExportRequest payload for queuing a register export.
type CreateExportRequest struct {
	SubjectID string              `json:"subjectId"`
	Year      int                 `json:"year"`
	Direction string              `json:"direction"`
	Format    models.ExportFormat `json:"format" binding:"required"`
}
