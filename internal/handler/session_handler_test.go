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
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
	"github.com/noah-isme/roster-gateway/pkg/response"
)

type dispatcherMock struct {
	got    service.CallbackRequest
	result *service.DispatchResult
	err    error
}

func (m *dispatcherMock) Dispatch(ctx context.Context, req service.CallbackRequest) (*service.DispatchResult, error) {
	m.got = req
	return m.result, m.err
}

type formTextMock struct {
	got dto.TextRequest
	err error
}

func (m *formTextMock) Text(ctx context.Context, req dto.TextRequest) (models.Rendering, error) {
	m.got = req
	if m.err != nil {
		return models.Rendering{}, m.err
	}
	return models.Rendering{Text: "Выберите тип ученика " + req.Text + ":"}, nil
}

func decodeDispatch(t *testing.T, body []byte) dto.DispatchResponse {
	t.Helper()
	var env struct {
		Data dto.DispatchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	return env.Data
}

func TestSessionHandlerCallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &dispatcherMock{result: &service.DispatchResult{
		Rendering: &models.Rendering{Text: "Список"},
		Answer:    "ok",
	}}
	h := NewSessionHandler(mock, &formTextMock{})

	kb := models.Keyboard{{{Text: "Далее ➡️", Action: "page:next:0:ABCDE12345"}}}
	payload, _ := json.Marshal(dto.CallbackRequest{Data: "toggle:7:0", MessageID: 11, Keyboard: kb})
	c, w := newGinContext(http.MethodPost, "/callbacks", payload)
	withStaff(c, models.RoleTeacher)

	h.Callback(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "toggle:7:0", mock.got.Data)
	assert.Equal(t, models.MessageRef{ChatID: 42, MessageID: 11}, mock.got.Message)
	assert.Equal(t, "u-1", mock.got.Actor.UserID)
	assert.Equal(t, kb, mock.got.CurrentKeyboard)

	res := decodeDispatch(t, w.Body.Bytes())
	require.NotNil(t, res.Rendering)
	assert.Equal(t, "Список", res.Rendering.Text)
	assert.Equal(t, "ok", res.Answer)
}

func TestSessionHandlerCallbackRejectsEmptyData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &dispatcherMock{}
	h := NewSessionHandler(mock, &formTextMock{})

	payload, _ := json.Marshal(dto.CallbackRequest{MessageID: 11})
	c, w := newGinContext(http.MethodPost, "/callbacks", payload)
	withStaff(c, models.RoleTeacher)

	h.Callback(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mock.got.Data)
}

func TestSessionHandlerCallbackRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSessionHandler(&dispatcherMock{}, &formTextMock{})

	payload, _ := json.Marshal(dto.CallbackRequest{Data: "toggle:7:0"})
	c, w := newGinContext(http.MethodPost, "/callbacks", payload)

	h.Callback(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionHandlerCallbackPropagatesServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSessionHandler(&dispatcherMock{err: appErrors.ErrAddressNotFound}, &formTextMock{})

	payload, _ := json.Marshal(dto.CallbackRequest{Data: "send-first:ZZZZZ99999"})
	c, w := newGinContext(http.MethodPost, "/callbacks", payload)
	withStaff(c, models.RoleTeacher)

	h.Callback(c)
	require.Equal(t, appErrors.ErrAddressNotFound.Status, w.Code)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrAddressNotFound.Code, env.Error.Code)
}

func TestSessionHandlerTextFallsBackToActorChat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	forms := &formTextMock{}
	h := NewSessionHandler(&dispatcherMock{}, forms)

	payload, _ := json.Marshal(dto.TextRequest{Text: "Маша"})
	c, w := newGinContext(http.MethodPost, "/sessions/text", payload)
	withStaff(c, models.RoleTeacher)

	h.Text(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), forms.got.ChatID)

	res := decodeDispatch(t, w.Body.Bytes())
	require.NotNil(t, res.Rendering)
	assert.Equal(t, "Выберите тип ученика Маша:", res.Rendering.Text)
}
