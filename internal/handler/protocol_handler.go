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

type protocolService interface {
	RegisterOutbound(ctx context.Context, req dto.RegisterMovementRequest, operator string) (*models.ProtocolEntry, error)
	RegisterInbound(ctx context.Context, req dto.RegisterMovementRequest, operator string) (*models.ProtocolEntry, error)
	Get(ctx context.Context, id string) (*models.ProtocolEntry, error)
	List(ctx context.Context, query dto.ProtocolQuery) ([]models.ProtocolEntry, error)
}

// ProtocolHandler exposes REST endpoints for the movement register.
type ProtocolHandler struct {
	service protocolService
}

// NewProtocolHandler constructs the handler.
func NewProtocolHandler(service protocolService) *ProtocolHandler {
	return &ProtocolHandler{service: service}
}

// RegisterOutbound godoc
// @Summary Register a document or folder leaving the office
// @Tags Protocol
// @Accept json
// @Produce json
// @Param payload body dto.RegisterMovementRequest true "Movement payload"
// @Success 201 {object} response.Envelope
// @Router /protocol/outbound [post]
func (h *ProtocolHandler) RegisterOutbound(c *gin.Context) {
	h.register(c, h.service.RegisterOutbound)
}

// RegisterInbound godoc
// @Summary Register a document or folder arriving at the office
// @Tags Protocol
// @Accept json
// @Produce json
// @Param payload body dto.RegisterMovementRequest true "Movement payload"
// @Success 201 {object} response.Envelope
// @Router /protocol/inbound [post]
func (h *ProtocolHandler) RegisterInbound(c *gin.Context) {
	h.register(c, h.service.RegisterInbound)
}

func (h *ProtocolHandler) register(c *gin.Context, fn func(ctx context.Context, req dto.RegisterMovementRequest, operator string) (*models.ProtocolEntry, error)) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RegisterMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid movement payload"))
		return
	}
	entry, err := fn(c.Request.Context(), req, claims.Label())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, entry, nil)
}

// Get godoc
// @Summary Get one protocol entry
// @Tags Protocol
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /protocol/{id} [get]
func (h *ProtocolHandler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// List godoc
// @Summary List protocol entries
// @Tags Protocol
// @Produce json
// @Param subjectId query string false "Subject ID"
// @Param year query int false "Protocol year"
// @Param direction query string false "IN or OUT"
// @Param closed query bool false "Reconciliation state"
// @Success 200 {object} response.Envelope
// @Router /protocol [get]
func (h *ProtocolHandler) List(c *gin.Context) {
	var query dto.ProtocolQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid protocol query"))
		return
	}
	entries, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
