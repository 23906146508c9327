package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/affordance"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

type presenceToggler interface {
	TogglePresence(ctx context.Context, id int64) (*models.RosterEntry, error)
}

// CallbackRequest is one button press.
type CallbackRequest struct {
	Data            string
	Actor           models.Actor
	Message         models.MessageRef
	CurrentKeyboard models.Keyboard
}

// DispatchResult is what the adapter should show: the new message body, a toast, or both.
type DispatchResult struct {
	Rendering *models.Rendering
	Answer    string
	Alert     bool
}

// DispatcherService routes button presses to the session services.
type DispatcherService struct {
	roster       presenceToggler
	addresses    *AddressService
	presenter    *PresenterService
	submissions  *SubmissionService
	verification *VerificationService
	forms        *FormService
	exports      *MediaExportService
	logger       *zap.Logger
}

// NewDispatcherService constructs the dispatcher.
func NewDispatcherService(
	roster presenceToggler,
	addresses *AddressService,
	presenter *PresenterService,
	submissions *SubmissionService,
	verification *VerificationService,
	forms *FormService,
	exports *MediaExportService,
	logger *zap.Logger,
) *DispatcherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispatcherService{
		roster:       roster,
		addresses:    addresses,
		presenter:    presenter,
		submissions:  submissions,
		verification: verification,
		forms:        forms,
		exports:      exports,
		logger:       logger,
	}
}

// Dispatch parses the identifier and performs the action it names.
func (s *DispatcherService) Dispatch(ctx context.Context, req CallbackRequest) (*DispatchResult, error) {
	action, err := affordance.Parse(req.Data)
	if err != nil {
		if errors.Is(err, affordance.ErrMalformedRef) {
			return nil, appErrors.ErrAddressNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported action")
	}
	log := s.logger.With(zap.String("action", string(action.Kind)), zap.String("user_id", req.Actor.UserID))

	switch action.Kind {
	case affordance.KindToggle:
		return s.toggle(ctx, req, action)
	case affordance.KindFirst, affordance.KindCorrection:
		mode, _ := action.Mode()
		res, err := s.forms.Choose(ctx, mode, action.Permanence, req.Message)
		if err != nil {
			return nil, err
		}
		return &DispatchResult{Rendering: &res.Rendering, Answer: res.Answer}, nil
	case affordance.KindExport:
		r, err := s.exports.RequestExport(ctx, action.JobID, req.Actor, req.Message)
		if err != nil {
			return nil, err
		}
		return rendered(r), nil
	}

	addr, err := s.addresses.Decode(ctx, action.Ref)
	if err != nil {
		log.Debug("stale lesson reference", zap.Error(err))
		return nil, err
	}

	switch action.Kind {
	case affordance.KindPage:
		page := action.Page + 1
		if action.Direction == affordance.Prev {
			page = action.Page - 1
		}
		r, err := s.presenter.Render(ctx, RenderRequest{
			Address:         addr,
			Ref:             action.Ref,
			Page:            page,
			Mode:            modeOf(req.CurrentKeyboard),
			CurrentKeyboard: req.CurrentKeyboard,
		})
		if err != nil {
			return nil, err
		}
		return rendered(r), nil
	case affordance.KindAddNew, affordance.KindAddKnown:
		mode, _ := action.Mode()
		r, err := s.forms.Start(ctx, addr, action.Ref, mode, req.Message)
		if err != nil {
			return nil, err
		}
		return rendered(r), nil
	case affordance.KindSendFirst, affordance.KindSendCorrection:
		mode, _ := action.Mode()
		res, err := s.submissions.Submit(ctx, SubmitRequest{
			Address: addr,
			Ref:     action.Ref,
			Mode:    mode,
			Actor:   req.Actor,
			Message: req.Message,
		})
		if err != nil {
			return nil, err
		}
		return rendered(res.Rendering), nil
	case affordance.KindVerify:
		r, err := s.verification.Toggle(ctx, addr, action.Ref, action.Index, req.Actor)
		if err != nil {
			return nil, err
		}
		return rendered(r), nil
	case affordance.KindRelease:
		res, err := s.verification.Release(ctx, addr, req.Actor)
		if err != nil {
			return nil, err
		}
		return &DispatchResult{Rendering: &res.Rendering, Answer: res.Answer, Alert: res.Sent == 0}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported action")
}

func (s *DispatcherService) toggle(ctx context.Context, req CallbackRequest, action affordance.Action) (*DispatchResult, error) {
	entry, err := s.roster.TogglePresence(ctx, action.EntryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Ученик не найден")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle presence")
	}
	r, err := s.presenter.Render(ctx, RenderRequest{
		Address:         entry.Address,
		Ref:             s.addresses.RefFor(ctx, entry.Address),
		Page:            action.Page,
		Mode:            modeOf(req.CurrentKeyboard),
		CurrentKeyboard: req.CurrentKeyboard,
	})
	if err != nil {
		return nil, err
	}
	return rendered(r), nil
}

// modeOf reads the session mode off the message being edited.
func modeOf(kb models.Keyboard) models.Mode {
	if mode, ok := affordance.ModeFromActions(kb.Actions()); ok {
		return mode
	}
	return models.ModeFirstPass
}

func rendered(r models.Rendering) *DispatchResult {
	return &DispatchResult{Rendering: &r}
}
