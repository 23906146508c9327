package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/roster-gateway/internal/dto"
	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/internal/service"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
	"github.com/noah-isme/roster-gateway/pkg/response"
)

type callbackDispatcher interface {
	Dispatch(ctx context.Context, req service.CallbackRequest) (*service.DispatchResult, error)
}

type formTextHandler interface {
	Text(ctx context.Context, req dto.TextRequest) (models.Rendering, error)
}

// SessionHandler accepts button presses and form replies forwarded by the chat adapter.
type SessionHandler struct {
	dispatcher callbackDispatcher
	forms      formTextHandler
	validator  *validator.Validate
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(dispatcher callbackDispatcher, forms formTextHandler) *SessionHandler {
	return &SessionHandler{dispatcher: dispatcher, forms: forms, validator: validator.New()}
}

// Callback godoc
// @Summary Dispatch an inline button press
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CallbackRequest true "Button press"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /callbacks [post]
func (h *SessionHandler) Callback(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	chatID := req.ChatID
	if chatID == 0 {
		chatID = actor.ChatID
	}
	res, err := h.dispatcher.Dispatch(c.Request.Context(), service.CallbackRequest{
		Data:            req.Data,
		Actor:           actor,
		Message:         models.MessageRef{ChatID: chatID, MessageID: req.MessageID},
		CurrentKeyboard: req.Keyboard,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.DispatchResponse{Rendering: res.Rendering, Answer: res.Answer, Alert: res.Alert})
}

// Text godoc
// @Summary Reply to the pending add-student form
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.TextRequest true "Typed reply"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/text [post]
func (h *SessionHandler) Text(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.ChatID == 0 {
		req.ChatID = actor.ChatID
	}
	r, err := h.forms.Text(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.DispatchResponse{Rendering: &r})
}
