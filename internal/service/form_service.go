package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/dto"
	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/affordance"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

const (
	askNameText = "Введите имя нового ученика:"
	noFormText  = "нет активной формы"
)

type formStore interface {
	Get(ctx context.Context, chatID int64) (*models.FormState, error)
	Save(ctx context.Context, state models.FormState) error
	Delete(ctx context.Context, chatID int64) error
}

type entryAppender interface {
	AppendEntry(ctx context.Context, addr models.LessonAddress, code, displayName string, permanence models.Permanence) (int64, error)
}

// FormResult is the outcome of a form step.
type FormResult struct {
	Rendering models.Rendering
	Answer    string
}

// FormService drives the two-step add-student form.
type FormService struct {
	forms     formStore
	roster    entryAppender
	presenter *PresenterService
	notifier  *NotifierService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFormService constructs the form service.
func NewFormService(forms formStore, roster entryAppender, presenter *PresenterService, notifier *NotifierService, validate *validator.Validate, logger *zap.Logger) *FormService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormService{forms: forms, roster: roster, presenter: presenter, notifier: notifier, validator: validate, logger: logger}
}

// Start opens a form for the chat, replacing any pending one.
func (s *FormService) Start(ctx context.Context, addr models.LessonAddress, ref models.AddressRef, mode models.Mode, msg models.MessageRef) (models.Rendering, error) {
	state := models.FormState{
		ChatID:    msg.ChatID,
		Address:   addr,
		Ref:       ref,
		Mode:      mode,
		Step:      models.FormStepName,
		MessageID: msg.MessageID,
	}
	if err := s.forms.Save(ctx, state); err != nil {
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open form")
	}
	return models.Rendering{Text: askNameText}, nil
}

// Text takes the typed student name and asks for the permanence.
func (s *FormService) Text(ctx context.Context, req dto.TextRequest) (models.Rendering, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid text payload")
	}
	state, err := s.load(ctx, req.ChatID)
	if err != nil {
		return models.Rendering{}, err
	}
	name := strings.Join(strings.Fields(req.Text), " ")
	if name == "" {
		return models.Rendering{}, appErrors.Clone(appErrors.ErrValidation, "имя не может быть пустым")
	}

	state.Name = name
	state.Step = models.FormStepKind
	if err := s.forms.Save(ctx, *state); err != nil {
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save form")
	}
	return models.Rendering{
		Text: fmt.Sprintf("Выберите тип ученика %s:", name),
		Keyboard: models.Keyboard{
			{{Text: "Разовый", Action: affordance.KindChoice(state.Mode, models.PermanenceTemporary)}},
			{{Text: "Постоянный", Action: affordance.KindChoice(state.Mode, models.PermanencePermanent)}},
		},
	}, nil
}

// Choose appends the student and returns the roster to page 0. The choice must carry the
// form's own mode.
func (s *FormService) Choose(ctx context.Context, mode models.Mode, permanence models.Permanence, msg models.MessageRef) (*FormResult, error) {
	state, err := s.load(ctx, msg.ChatID)
	if err != nil {
		return nil, err
	}
	if state.Step != models.FormStepKind || state.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "сначала введите имя ученика")
	}
	if mode != state.Mode {
		return nil, appErrors.Clone(appErrors.ErrValidation, "выбор не относится к текущей форме")
	}

	id, err := s.roster.AppendEntry(ctx, state.Address, state.Ref.Code, state.Name, permanence)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add student")
	}
	if err := s.forms.Delete(ctx, msg.ChatID); err != nil {
		s.logger.Warn("delete form failed", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}

	kind := "временный"
	if permanence == models.PermanencePermanent {
		kind = "постоянный"
	}
	answer := fmt.Sprintf("Ученик %s добавлен как %s", state.Name, kind)
	s.logger.Info("student appended",
		zap.Int64("entry_id", id),
		zap.String("lesson", state.Address.String()),
		zap.String("mode", string(state.Mode)),
	)

	roster, err := s.presenter.Render(ctx, RenderRequest{Address: state.Address, Ref: state.Ref, Mode: state.Mode})
	if err != nil {
		return nil, err
	}
	rosterMsg := models.MessageRef{ChatID: msg.ChatID, MessageID: state.MessageID}
	if rosterMsg.IsZero() || rosterMsg.MessageID == msg.MessageID {
		return &FormResult{Rendering: roster, Answer: answer}, nil
	}
	s.notifier.Edit(ctx, rosterMsg, roster)
	return &FormResult{Rendering: models.Rendering{Text: answer, Notice: true}, Answer: answer}, nil
}

func (s *FormService) load(ctx context.Context, chatID int64) (*models.FormState, error) {
	state, err := s.forms.Get(ctx, chatID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	if state == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, noFormText)
	}
	return state, nil
}
