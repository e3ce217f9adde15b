package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studiodl/archivio-api/internal/dto"
	"github.com/studiodl/archivio-api/internal/models"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
	"github.com/studiodl/archivio-api/pkg/response"
)

type locationService interface {
	Create(ctx context.Context, req dto.CreateLocationRequest) (*models.Location, error)
	Update(ctx context.Context, id string, req dto.UpdateLocationRequest) (*models.Location, error)
	Get(ctx context.Context, id string) (*models.Location, error)
	Tree(ctx context.Context) ([]*dto.LocationNode, error)
	Children(ctx context.Context, id string) ([]models.Location, error)
	AllowedChildren(t models.LocationType) ([]models.LocationType, error)
}

// LocationHandler exposes REST endpoints for the storage location tree.
type LocationHandler struct {
	service locationService
}

// NewLocationHandler constructs the handler.
func NewLocationHandler(service locationService) *LocationHandler {
	return &LocationHandler{service: service}
}

// Create godoc
// @Summary Add a storage unit to the location tree
// @Tags Locations
// @Accept json
// @Produce json
// @Param payload body dto.CreateLocationRequest true "Location payload"
// @Success 201 {object} response.Envelope
// @Router /locations [post]
func (h *LocationHandler) Create(c *gin.Context) {
	var req dto.CreateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid location payload"))
		return
	}
	location, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, location, nil)
}

// Update godoc
// @Summary Rename, move or archive a storage unit
// @Tags Locations
// @Accept json
// @Produce json
// @Param id path string true "Location ID"
// @Param payload body dto.UpdateLocationRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /locations/{id} [patch]
func (h *LocationHandler) Update(c *gin.Context) {
	var req dto.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid location payload"))
		return
	}
	location, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, location, nil)
}

// Get godoc
// @Summary Get one storage unit
// @Tags Locations
// @Produce json
// @Param id path string true "Location ID"
// @Success 200 {object} response.Envelope
// @Router /locations/{id} [get]
func (h *LocationHandler) Get(c *gin.Context) {
	location, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, location, nil)
}

// Tree godoc
// @Summary Get the full location tree
// @Tags Locations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /locations/tree [get]
func (h *LocationHandler) Tree(c *gin.Context) {
	tree, err := h.service.Tree(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tree, nil)
}

// Children godoc
// @Summary List the direct children of a storage unit
// @Tags Locations
// @Produce json
// @Param id path string true "Location ID"
// @Success 200 {object} response.Envelope
// @Router /locations/{id}/children [get]
func (h *LocationHandler) Children(c *gin.Context) {
	children, err := h.service.Children(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, children, nil)
}

// AllowedChildren godoc
// @Summary List the unit types a given type may contain
// @Tags Locations
// @Produce json
// @Param type query string true "Location type"
// @Success 200 {object} response.Envelope
// @Router /locations/allowed-children [get]
func (h *LocationHandler) AllowedChildren(c *gin.Context) {
	rawType := strings.ToUpper(strings.TrimSpace(c.Query("type")))
	if rawType == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "type query parameter is required"))
		return
	}
	types, err := h.service.AllowedChildren(models.LocationType(rawType))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, types, nil)
}
