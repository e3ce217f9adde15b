package dto

import (
	"time"

	"github.com/studiodl/archivio-api/internal/models"
)

// CreateBatchRequest payload for creating an archive operation with its
// ordered lines. Lines are processed in the order submitted.
type CreateBatchRequest struct {
	Kind        models.BatchKind   `json:"kind" binding:"required"`
	OccurredAt  *time.Time         `json:"occurredAt"`
	Counterpart *string            `json:"counterpart"`
	Note        string             `json:"note"`
	Lines       []BatchLineRequest `json:"lines" binding:"required,min=1"`
}

// BatchLineRequest is one target within a batch. Explicit protocol entry,
// source and destination override the derived ones.
type BatchLineRequest struct {
	TargetKind       models.TargetKind `json:"targetKind" binding:"required"`
	TargetID         string            `json:"targetId" binding:"required"`
	ProtocolEntryID  *string           `json:"protocolEntryId"`
	SourceLocationID *string           `json:"sourceLocationId"`
	DestLocationID   *string           `json:"destLocationId"`
	NextStatus       string            `json:"nextStatus"`
	Note             string            `json:"note"`
}

// BatchQuery mirrors batch listing filters.
type BatchQuery struct {
	Kind      string `form:"kind"`
	Processed *bool  `form:"processed"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}
