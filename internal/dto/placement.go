package dto

import "github.com/studiodl/archivio-api/internal/models"

// AssignPlacementRequest payload for recording a physical placement.
type AssignPlacementRequest struct {
	TargetKind models.TargetKind `json:"targetKind" binding:"required"`
	TargetID   string            `json:"targetId" binding:"required"`
	LocationID string            `json:"locationId" binding:"required"`
	Note       string            `json:"note"`
}

// PlacementQuery identifies the target of a placement lookup.
type PlacementQuery struct {
	TargetKind models.TargetKind `form:"targetKind" binding:"required"`
	TargetID   string            `form:"targetId" binding:"required"`
}
