package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-gateway/internal/dto"
	"github.com/noah-isme/roster-gateway/internal/models"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

type mediaServiceMock struct {
	actor       models.Actor
	created     dto.CreateExportRequest
	path        string
	downloadErr error
}

func (m *mediaServiceMock) RecordMedia(ctx context.Context, req dto.RecordMediaRequest, actor models.Actor) (*dto.RecordMediaResponse, error) {
	m.actor = actor
	return &dto.RecordMediaResponse{ID: 1, Count: 3, Text: "✅ Файл #3 сохранен!"}, nil
}

func (m *mediaServiceMock) CreateJob(ctx context.Context, req dto.CreateExportRequest, actor models.Actor) (*dto.CreateExportResponse, error) {
	m.actor, m.created = actor, req
	return &dto.CreateExportResponse{JobID: 9, Notified: 2}, nil
}

func (m *mediaServiceMock) Download(ctx context.Context, token string) (*os.File, string, error) {
	if m.downloadErr != nil {
		return nil, "", m.downloadErr
	}
	f, err := os.Open(m.path)
	if err != nil {
		return nil, "", err
	}
	return f, filepath.Base(m.path), nil
}

func TestMediaHandlerRecordMedia(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &mediaServiceMock{}
	h := NewMediaHandler(mock)

	payload, _ := json.Marshal(dto.RecordMediaRequest{Location: "Sad 5", Group: "Bees", LessonDate: "2024-05-01", TimeSlot: "10:00", Handle: "f1", Kind: "photo"})
	c, w := newGinContext(http.MethodPost, "/media", payload)
	withStaff(c, models.RoleTeacher)

	h.RecordMedia(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Anna", mock.actor.FullName)
	assert.Contains(t, w.Body.String(), "Файл #3")
}

func TestMediaHandlerCreateExportRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMediaHandler(&mediaServiceMock{})

	payload, _ := json.Marshal(dto.CreateExportRequest{Location: "Sad 5"})
	c, w := newGinContext(http.MethodPost, "/exports", payload)

	h.CreateExport(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMediaHandlerCreateExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &mediaServiceMock{}
	h := NewMediaHandler(mock)

	payload, _ := json.Marshal(dto.CreateExportRequest{Location: "Sad 5", Group: "Bees", TimeSlot: "10:00", LessonDate: "2024-05-01", Module: "m1", Theme: "Осень"})
	c, w := newGinContext(http.MethodPost, "/exports", payload)
	withStaff(c, models.RoleTeacher)

	h.CreateExport(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Осень", mock.created.Theme)
	assert.Contains(t, w.Body.String(), `"job_id":9`)
}

func TestMediaHandlerDownloadStreamsArchive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "Sad 5_part1.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04zip"), 0o600))
	h := NewMediaHandler(&mediaServiceMock{path: path})

	c, w := newGinContext(http.MethodGet, "/exports/download?token=abc", nil)

	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Sad%205_part1.zip")
	assert.Equal(t, "PK\x03\x04zip", w.Body.String())
}

func TestMediaHandlerDownloadRejectsExpiredToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMediaHandler(&mediaServiceMock{downloadErr: appErrors.Clone(appErrors.ErrForbidden, "link expired")})

	c, w := newGinContext(http.MethodGet, "/exports/download?token=old", nil)

	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMediaHandlerDownloadRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMediaHandler(&mediaServiceMock{})

	c, w := newGinContext(http.MethodGet, "/exports/download", nil)

	h.Download(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
