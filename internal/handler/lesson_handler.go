package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/roster-gateway/internal/dto"
	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/internal/service"
	"github.com/noah-isme/roster-gateway/pkg/affordance"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
	"github.com/noah-isme/roster-gateway/pkg/response"
)

type lessonService interface {
	Prime(ctx context.Context, req dto.PrimeLessonRequest) (*dto.PrimeLessonResponse, error)
	Open(ctx context.Context, ref models.AddressRef, mode models.Mode, page int) (models.Rendering, error)
	Sheet(ctx context.Context, ref models.AddressRef, format string) (*service.SheetFile, error)
}

// LessonHandler exposes roster priming and listings.
type LessonHandler struct {
	lessons lessonService
}

// NewLessonHandler constructs the handler.
func NewLessonHandler(lessons lessonService) *LessonHandler {
	return &LessonHandler{lessons: lessons}
}

// Prime godoc
// @Summary Seed the roster of a lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.PrimeLessonRequest true "Pulled roster"
// @Success 201 {object} response.Envelope
// @Router /lessons [post]
func (h *LessonHandler) Prime(c *gin.Context) {
	var req dto.PrimeLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.lessons.Prime(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Render godoc
// @Summary Render a roster page
// @Tags Lessons
// @Produce json
// @Param ref path string true "Lesson code or legacy address"
// @Param mode query string false "first or correction"
// @Param page query int false "Zero based page"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{ref}/render [get]
func (h *LessonHandler) Render(c *gin.Context) {
	ref, err := affordance.ParseRefString(c.Param("ref"))
	if err != nil {
		response.Error(c, appErrors.ErrAddressNotFound)
		return
	}
	var query dto.RenderQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	mode, ok := models.ParseMode(query.Mode)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "mode must be first or correction"))
		return
	}
	r, err := h.lessons.Open(c.Request.Context(), ref, mode, query.Page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, r)
}

// Sheet godoc
// @Summary Download the roster sheet
// @Tags Lessons
// @Produce octet-stream
// @Param ref path string true "Lesson code or legacy address"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /lessons/{ref}/sheet [get]
func (h *LessonHandler) Sheet(c *gin.Context) {
	ref, err := affordance.ParseRefString(c.Param("ref"))
	if err != nil {
		response.Error(c, appErrors.ErrAddressNotFound)
		return
	}
	file, err := h.lessons.Sheet(c.Request.Context(), ref, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
