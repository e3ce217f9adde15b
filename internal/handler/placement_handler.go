package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studiodl/archivio-api/internal/dto"
	"github.com/studiodl/archivio-api/internal/models"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
	"github.com/studiodl/archivio-api/pkg/response"
)

type placementService interface {
	Assign(ctx context.Context, target models.TargetRef, locationID, note string) (*models.Placement, error)
	Current(ctx context.Context, target models.TargetRef) (*models.Placement, error)
	History(ctx context.Context, target models.TargetRef) ([]models.Placement, error)
	UndoLast(ctx context.Context, target models.TargetRef) error
}

// PlacementHandler exposes REST endpoints for physical placements.
type PlacementHandler struct {
	service placementService
}

// NewPlacementHandler constructs the handler.
func NewPlacementHandler(service placementService) *PlacementHandler {
	return &PlacementHandler{service: service}
}

// Assign godoc
// @Summary Record where a document or folder is stored
// @Tags Placements
// @Accept json
// @Produce json
// @Param payload body dto.AssignPlacementRequest true "Placement payload"
// @Success 201 {object} response.Envelope
// @Router /placements [post]
func (h *PlacementHandler) Assign(c *gin.Context) {
	var req dto.AssignPlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid placement payload"))
		return
	}
	target := models.TargetRef{Kind: req.TargetKind, ID: req.TargetID}
	placement, err := h.service.Assign(c.Request.Context(), target, req.LocationID, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, placement, nil)
}

// Current godoc
// @Summary Get the active placement of a target
// @Tags Placements
// @Produce json
// @Param targetKind query string true "document or folder"
// @Param targetId query string true "Target ID"
// @Success 200 {object} response.Envelope
// @Router /placements/current [get]
func (h *PlacementHandler) Current(c *gin.Context) {
	target, ok := placementTarget(c)
	if !ok {
		return
	}
	placement, err := h.service.Current(c.Request.Context(), target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, placement, nil)
}

// History godoc
// @Summary List the placement history of a target, newest first
// @Tags Placements
// @Produce json
// @Param targetKind query string true "document or folder"
// @Param targetId query string true "Target ID"
// @Success 200 {object} response.Envelope
// @Router /placements/history [get]
func (h *PlacementHandler) History(c *gin.Context) {
	target, ok := placementTarget(c)
	if !ok {
		return
	}
	history, err := h.service.History(c.Request.Context(), target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// UndoLast godoc
// @Summary Undo the most recent placement of a target
// @Tags Placements
// @Produce json
// @Param targetKind query string true "document or folder"
// @Param targetId query string true "Target ID"
// @Success 200 {object} response.Envelope
// @Router /placements/last [delete]
func (h *PlacementHandler) UndoLast(c *gin.Context) {
	target, ok := placementTarget(c)
	if !ok {
		return
	}
	if err := h.service.UndoLast(c.Request.Context(), target); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"undone": true}, nil)
}

func placementTarget(c *gin.Context) (models.TargetRef, bool) {
	var query dto.PlacementQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "targetKind and targetId are required"))
		return models.TargetRef{}, false
	}
	target := models.TargetRef{Kind: query.TargetKind, ID: query.TargetID}
	if !target.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "targetKind must be document or folder"))
		return models.TargetRef{}, false
	}
	return target, true
}
