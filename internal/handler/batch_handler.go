package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studiodl/archivio-api/internal/dto"
	"github.com/studiodl/archivio-api/internal/models"
	"github.com/studiodl/archivio-api/internal/service"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
	"github.com/studiodl/archivio-api/pkg/response"
)

type batchService interface {
	Create(ctx context.Context, req dto.CreateBatchRequest, operator string) (*models.ArchiveBatch, error)
	Get(ctx context.Context, id string) (*models.ArchiveBatch, error)
	List(ctx context.Context, query dto.BatchQuery) ([]models.ArchiveBatch, error)
	Process(ctx context.Context, batchID string) (*models.ArchiveBatch, error)
	AttachProof(ctx context.Context, batchID string, upload service.ProofUpload) (*models.ArchiveBatch, error)
	ProofURL(ctx context.Context, batchID string) (string, time.Time, error)
	DownloadProof(ctx context.Context, batchID, token string) (*service.ProofDownload, error)
}

// BatchHandler exposes REST endpoints for archive operations.
type BatchHandler struct {
	service batchService
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(service batchService) *BatchHandler {
	return &BatchHandler{service: service}
}

// Create godoc
// @Summary Create an archive operation with its lines
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body dto.CreateBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Router /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid batch payload"))
		return
	}
	batch, err := h.service.Create(c.Request.Context(), req, claims.Label())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, batch, nil)
}

// Get godoc
// @Summary Get one archive operation
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// List godoc
// @Summary List archive operations
// @Tags Batches
// @Produce json
// @Param kind query string false "INBOUND, OUTBOUND or INTERNAL_TRANSFER"
// @Param processed query bool false "Processing state"
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	var query dto.BatchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid batch query"))
		return
	}
	batches, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, nil)
}

// Process godoc
// @Summary Process an archive operation atomically
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/process [post]
func (h *BatchHandler) Process(c *gin.Context) {
	batch, err := h.service.Process(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// AttachProof godoc
// @Summary Attach a scanned proof to an archive operation
// @Tags Batches
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Batch ID"
// @Param file formData file true "Proof document"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/proof [post]
func (h *BatchHandler) AttachProof(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	upload := service.ProofUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  src,
	}
	batch, err := h.service.AttachProof(c.Request.Context(), c.Param("id"), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// ProofURL godoc
// @Summary Get a signed, expiring download token for the batch proof
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/proof/url [get]
func (h *BatchHandler) ProofURL(c *gin.Context) {
	token, expiresAt, err := h.service.ProofURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
	}, nil)
}

// DownloadProof godoc
// @Summary Download the batch proof with a signed token
// @Tags Batches
// @Produce octet-stream
// @Param id path string true "Batch ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /batches/{id}/proof/download [get]
func (h *BatchHandler) DownloadProof(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token query parameter is required"))
		return
	}
	result, err := h.service.DownloadProof(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close()

	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat proof file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", result.File, nil)
}
