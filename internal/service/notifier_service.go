package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/models"
)

// messenger is the subset of the chat client the services drive.
type messenger interface {
	SendMessage(ctx context.Context, chatID int64, r models.Rendering) (int, error)
	EditText(ctx context.Context, msg models.MessageRef, r models.Rendering) error
	EditKeyboard(ctx context.Context, msg models.MessageRef, kb models.Keyboard) error
	SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error
}

// NotifierService fans advisory messages out to the administrators' chats.
type NotifierService struct {
	chat   messenger
	admins []int64
	logger *zap.Logger
}

// NewNotifierService constructs the notifier.
func NewNotifierService(chat messenger, adminChatIDs []int64, logger *zap.Logger) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifierService{chat: chat, admins: adminChatIDs, logger: logger}
}

// Admins returns the configured administrator chats.
func (s *NotifierService) Admins() []int64 {
	return s.admins
}

// Broadcast sends r to every administrator and returns how many deliveries succeeded.
// A failed delivery never stops the others.
func (s *NotifierService) Broadcast(ctx context.Context, r models.Rendering) int {
	if len(s.admins) == 0 {
		s.logger.Warn("no admin chats configured, alert dropped", zap.String("text", r.Text))
		return 0
	}
	sent := 0
	for _, chatID := range s.admins {
		if _, err := s.chat.SendMessage(ctx, chatID, r); err != nil {
			s.logger.Warn("admin alert failed", zap.Int64("chat_id", chatID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Edit replaces the text and keyboard of a message; failures are logged only.
func (s *NotifierService) Edit(ctx context.Context, msg models.MessageRef, r models.Rendering) {
	if msg.IsZero() {
		return
	}
	if err := s.chat.EditText(ctx, msg, r); err != nil {
		s.logger.Warn("edit message failed", zap.Int64("chat_id", msg.ChatID), zap.Int("message_id", msg.MessageID), zap.Error(err))
	}
}

// StripKeyboard removes the inline keyboard of a message; failures are logged only.
func (s *NotifierService) StripKeyboard(ctx context.Context, msg models.MessageRef) {
	if msg.IsZero() {
		return
	}
	if err := s.chat.EditKeyboard(ctx, msg, nil); err != nil {
		s.logger.Warn("strip keyboard failed", zap.Int64("chat_id", msg.ChatID), zap.Int("message_id", msg.MessageID), zap.Error(err))
	}
}
