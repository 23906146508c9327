package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-gateway/internal/dto"
	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/internal/service"
)

type lessonServiceMock struct {
	primed  dto.PrimeLessonRequest
	ref     models.AddressRef
	mode    models.Mode
	page    int
	format  string
	openErr error
}

func (m *lessonServiceMock) Prime(ctx context.Context, req dto.PrimeLessonRequest) (*dto.PrimeLessonResponse, error) {
	m.primed = req
	return &dto.PrimeLessonResponse{Code: "ABCDE12345", Rendering: models.Rendering{Text: "Список"}}, nil
}

func (m *lessonServiceMock) Open(ctx context.Context, ref models.AddressRef, mode models.Mode, page int) (models.Rendering, error) {
	m.ref, m.mode, m.page = ref, mode, page
	return models.Rendering{Text: "Список"}, m.openErr
}

func (m *lessonServiceMock) Sheet(ctx context.Context, ref models.AddressRef, format string) (*service.SheetFile, error) {
	m.ref, m.format = ref, format
	return &service.SheetFile{Filename: "Sad 5_Bees_1000.csv", ContentType: "text/csv", Data: []byte("№,Ученик\n")}, nil
}

func TestLessonHandlerPrime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &lessonServiceMock{}
	h := NewLessonHandler(mock)

	payload, _ := json.Marshal(dto.PrimeLessonRequest{Location: "Sad 5", Group: "Bees", TimeSlot: "10:00"})
	c, w := newGinContext(http.MethodPost, "/lessons", payload)

	h.Prime(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Bees", mock.primed.Group)
	assert.Contains(t, w.Body.String(), "ABCDE12345")
}

func TestLessonHandlerRenderParsesModeAndPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &lessonServiceMock{}
	h := NewLessonHandler(mock)

	c, w := newGinContext(http.MethodGet, "/lessons/ABCDE12345/render?mode=correction&page=2", nil)
	c.Params = gin.Params{{Key: "ref", Value: "ABCDE12345"}}

	h.Render(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ABCDE12345", mock.ref.Code)
	assert.Equal(t, models.ModeCorrectionPass, mock.mode)
	assert.Equal(t, 2, mock.page)
}

func TestLessonHandlerRenderRejectsUnknownMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewLessonHandler(&lessonServiceMock{})

	c, w := newGinContext(http.MethodGet, "/lessons/ABCDE12345/render?mode=third", nil)
	c.Params = gin.Params{{Key: "ref", Value: "ABCDE12345"}}

	h.Render(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLessonHandlerRenderRejectsMalformedRef(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewLessonHandler(&lessonServiceMock{})

	c, w := newGinContext(http.MethodGet, "/lessons/x/render", nil)
	c.Params = gin.Params{{Key: "ref", Value: "x"}}

	h.Render(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLessonHandlerSheetDefaultsToCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &lessonServiceMock{}
	h := NewLessonHandler(mock)

	c, w := newGinContext(http.MethodGet, "/lessons/ABCDE12345/sheet", nil)
	c.Params = gin.Params{{Key: "ref", Value: "ABCDE12345"}}

	h.Sheet(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", mock.format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Sad%205_Bees_1000.csv")
}
