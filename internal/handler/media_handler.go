package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/roster-gateway/internal/dto"
	"github.com/noah-isme/roster-gateway/internal/models"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
	"github.com/noah-isme/roster-gateway/pkg/response"
)

type mediaExportService interface {
	RecordMedia(ctx context.Context, req dto.RecordMediaRequest, actor models.Actor) (*dto.RecordMediaResponse, error)
	CreateJob(ctx context.Context, req dto.CreateExportRequest, actor models.Actor) (*dto.CreateExportResponse, error)
	Download(ctx context.Context, token string) (*os.File, string, error)
}

// MediaHandler records lesson media and serves exported archives.
type MediaHandler struct {
	service mediaExportService
}

// NewMediaHandler constructs the handler.
func NewMediaHandler(service mediaExportService) *MediaHandler {
	return &MediaHandler{service: service}
}

// RecordMedia godoc
// @Summary Record an uploaded lesson file
// @Tags Media
// @Accept json
// @Produce json
// @Param payload body dto.RecordMediaRequest true "Uploaded file"
// @Success 201 {object} response.Envelope
// @Router /media [post]
func (h *MediaHandler) RecordMedia(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RecordMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.service.RecordMedia(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// CreateExport godoc
// @Summary Announce a lesson's files for export
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.CreateExportRequest true "Lesson"
// @Success 201 {object} response.Envelope
// @Router /exports [post]
func (h *MediaHandler) CreateExport(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.service.CreateJob(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Download godoc
// @Summary Download a stored archive part via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *MediaHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read archive"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "application/zip", file, nil)
}
