package dto

import "github.com/noah-isme/roster-gateway/internal/models"

// CallbackRequest is an inline button press forwarded by the chat adapter.
type CallbackRequest struct {
	Data      string          `json:"data" validate:"required,max=256"`
	ChatID    int64           `json:"chat_id"`
	MessageID int             `json:"message_id"`
	Keyboard  models.Keyboard `json:"keyboard"`
}

// TextRequest is a free-text reply typed into a chat with a pending form.
type TextRequest struct {
	ChatID int64  `json:"chat_id" validate:"required"`
	Text   string `json:"text" validate:"required,max=128"`
}

// DispatchResponse is what the adapter shows after a press or reply.
type DispatchResponse struct {
	Rendering *models.Rendering `json:"rendering,omitempty"`
	// Answer is a short toast for the button press.
	Answer string `json:"answer,omitempty"`
	// Alert asks the adapter to show Answer as a modal.
	Alert bool `json:"alert,omitempty"`
}

// PrimeStudent is one externally pulled student. The source reference is all-or-nothing.
type PrimeStudent struct {
	Name         string `json:"name" validate:"required,max=128"`
	SourceRowID  string `json:"source_row_id" validate:"required_with=SourceColumn"`
	SourceColumn string `json:"source_column" validate:"required_with=SourceRowID"`
}

// PrimeLessonRequest seeds the roster of one lesson.
type PrimeLessonRequest struct {
	Location string         `json:"location" validate:"required,max=128"`
	Group    string         `json:"group" validate:"required,max=64"`
	TimeSlot string         `json:"time_slot" validate:"required,max=32"`
	Students []PrimeStudent `json:"students" validate:"dive"`
}

// PrimeLessonResponse returns the minted code and the first roster page.
type PrimeLessonResponse struct {
	Code      string           `json:"code"`
	Rendering models.Rendering `json:"rendering"`
}

// RenderQuery selects a roster page.
type RenderQuery struct {
	Mode string `form:"mode" validate:"omitempty,oneof=first correction"`
	Page int    `form:"page" validate:"gte=0"`
}
