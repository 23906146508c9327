package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/affordance"
	"github.com/noah-isme/roster-gateway/pkg/cache"
	"github.com/noah-isme/roster-gateway/pkg/config"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
	"github.com/noah-isme/roster-gateway/pkg/events"
)

type verificationStore interface {
	ListNewPending(ctx context.Context, addr models.LessonAddress) ([]models.RosterEntry, error)
	ListReleasable(ctx context.Context, addr models.LessonAddress) ([]models.RosterEntry, error)
	SetPermanence(ctx context.Context, id int64, permanence models.Permanence) error
	MarkSubmitted(ctx context.Context, ids []int64) (int64, error)
}

// ReleaseResult is the outcome of forwarding verified permanent students.
type ReleaseResult struct {
	Rendering models.Rendering `json:"rendering"`
	Sent      int              `json:"sent"`
	Answer    string           `json:"answer"`
}

// VerificationService lets administrators mark new students permanent and release them.
type VerificationService struct {
	roster    verificationStore
	sinks     sinkPoster
	locks     locker
	publisher eventPublisher
	url       string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewVerificationService constructs the verification hand-off. locks serialises releases
// of one lesson across administrators.
func NewVerificationService(roster verificationStore, sinks sinkPoster, locks locker, publisher eventPublisher, cfg config.SinksConfig, logger *zap.Logger) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VerificationService{roster: roster, sinks: sinks, locks: locks, publisher: publisher, url: cfg.VerifyURL, timeout: timeout, logger: logger}
}

// Render lists the pending new students as permanence toggles.
func (s *VerificationService) Render(ctx context.Context, addr models.LessonAddress, ref models.AddressRef) (models.Rendering, error) {
	pending, err := s.roster.ListNewPending(ctx, addr)
	if err != nil {
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load new students")
	}
	return renderVerification(addr, ref, pending), nil
}

// Toggle flips the permanence of the index-th pending student.
func (s *VerificationService) Toggle(ctx context.Context, addr models.LessonAddress, ref models.AddressRef, index int, actor models.Actor) (models.Rendering, error) {
	if !actor.Role.Privileged() {
		return models.Rendering{}, appErrors.ErrForbidden
	}
	pending, err := s.roster.ListNewPending(ctx, addr)
	if err != nil {
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load new students")
	}
	if index < 0 || index >= len(pending) {
		return models.Rendering{}, appErrors.Clone(appErrors.ErrNotFound, "Ученик не найден")
	}

	entry := &pending[index]
	next := entry.Permanence.Toggled()
	if err := s.roster.SetPermanence(ctx, entry.ID, next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Rendering{}, appErrors.Clone(appErrors.ErrNotFound, "Ученик не найден")
		}
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	entry.Permanence = next

	s.logger.Info("student permanence changed",
		zap.String("lesson", addr.String()),
		zap.Int64("entry_id", entry.ID),
		zap.String("permanence", next.String()),
		zap.String("user_id", actor.UserID),
	)
	return renderVerification(addr, ref, pending), nil
}

// Release forwards every present permanent new student and marks exactly those submitted.
func (s *VerificationService) Release(ctx context.Context, addr models.LessonAddress, actor models.Actor) (*ReleaseResult, error) {
	if !actor.Role.Privileged() {
		return nil, appErrors.ErrForbidden
	}

	lockKey := cache.Key("release", addr.Location, addr.Group, addr.TimeSlot)
	token, ok, err := s.locks.Acquire(ctx, lockKey, defaultSubmitLockTTL)
	if err != nil {
		s.logger.Warn("release lock unavailable, continuing without it", zap.String("lesson", addr.String()), zap.Error(err))
	} else if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "отправка уже выполняется")
	} else {
		defer func() {
			if err := s.locks.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
				s.logger.Warn("release verification lock failed", zap.String("lesson", addr.String()), zap.Error(err))
			}
		}()
	}

	eligible, err := s.roster.ListReleasable(ctx, addr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load permanent students")
	}
	if len(eligible) == 0 {
		text := "Нет выбранных постоянных учеников"
		return &ReleaseResult{Rendering: models.Rendering{Text: text, Notice: true}, Answer: text}, nil
	}

	teacher := actor.DisplayName()
	batch := Batch[KnownRecord]{Data: make([]KnownRecord, 0, len(eligible))}
	for _, e := range eligible {
		batch.Data = append(batch.Data, KnownRecord{
			Location: e.Address.Location,
			Group:    e.Address.Group,
			Name:     e.DisplayName,
			Present:  1,
			Teacher:  teacher,
		})
	}

	if _, err := s.sinks.PostJSON(ctx, s.url, s.timeout, batch); err != nil {
		s.logger.Error("release permanent students failed", zap.String("lesson", addr.String()), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrSinkUnavailable.Code, appErrors.ErrSinkUnavailable.Status, "не удалось отправить учеников")
	}

	ids := entryIDs(eligible)
	if _, err := s.roster.MarkSubmitted(ctx, ids); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark students as submitted")
	}

	if err := s.publisher.Publish(ctx, events.Event{
		Type: events.TypeRosterReleased,
		Key:  addr.String(),
		Data: map[string]interface{}{
			"location":  addr.Location,
			"group":     addr.Group,
			"time_slot": addr.TimeSlot,
			"released":  len(ids),
			"admin":     actor.UserID,
		},
	}); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", events.TypeRosterReleased), zap.Error(err))
	}

	text := fmt.Sprintf("✅ Информация отправлена\nСадик: %s\nГруппа: %s\nВремя: %s\nОтправлено учеников: %d",
		addr.Location, addr.Group, addr.TimeSlot, len(eligible))
	return &ReleaseResult{Rendering: models.Rendering{Text: text}, Sent: len(eligible), Answer: "Информация отправлена"}, nil
}

func renderVerification(addr models.LessonAddress, ref models.AddressRef, pending []models.RosterEntry) models.Rendering {
	if len(pending) == 0 {
		return models.Rendering{Text: "Новых учеников для проверки нет", Notice: true}
	}
	keyboard := make(models.Keyboard, 0, len(pending)+1)
	for i, e := range pending {
		mark := "❌ "
		if e.Permanence == models.PermanencePermanent {
			mark = "✅ "
		}
		keyboard = append(keyboard, []models.Button{{Text: mark + e.DisplayName, Action: affordance.Verify(ref, i)}})
	}
	keyboard = append(keyboard, []models.Button{{Text: "Отправить учеников", Action: affordance.Release(ref)}})
	return models.Rendering{
		Text:     fmt.Sprintf("Отметьте постоянных учеников\nСадик: %s\nГруппа: %s\nВремя: %s", addr.Location, addr.Group, addr.TimeSlot),
		Keyboard: keyboard,
	}
}
