package dto

import (
	"time"

	"github.com/studiodl/archivio-api/internal/models"
)

// RegisterMovementRequest payload shared by the outbound and inbound
// registration endpoints.
type RegisterMovementRequest struct {
	TargetKind     models.TargetKind `json:"targetKind" binding:"required"`
	TargetID       string            `json:"targetId" binding:"required"`
	RecordedAt     *time.Time        `json:"recordedAt"`
	Counterpart    string            `json:"counterpart"`
	CounterpartID  *string           `json:"counterpartId"`
	LocationID     *string           `json:"locationId"`
	ExpectedReturn *time.Time        `json:"expectedReturn"`
	Reason         string            `json:"reason"`
	Notes          string            `json:"notes"`
}

// ProtocolQuery mirrors the register listing filters.
type ProtocolQuery struct {
	SubjectID string `form:"subjectId"`
	Year      int    `form:"year"`
	Direction string `form:"direction"`
	Closed    *bool  `form:"closed"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}
