package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/affordance"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

const (
	defaultPageSize = 10
	emptyRosterText = "Список учеников пуст"
)

type rosterPager interface {
	ListPage(ctx context.Context, addr models.LessonAddress, page, size int, order models.RosterOrder) ([]models.RosterEntry, int, error)
	List(ctx context.Context, addr models.LessonAddress, filter models.RosterFilter) ([]models.RosterEntry, error)
}

// RenderRequest describes one roster page to draw.
type RenderRequest struct {
	Address models.LessonAddress
	Ref     models.AddressRef
	Page    int
	Mode    models.Mode
	// CurrentKeyboard is the keyboard of the message being edited, if any.
	CurrentKeyboard models.Keyboard
}

// PresenterService renders paginated roster sessions.
type PresenterService struct {
	roster   rosterPager
	pageSize int
	logger   *zap.Logger
}

// NewPresenterService constructs the presenter.
func NewPresenterService(roster rosterPager, pageSize int, logger *zap.Logger) *PresenterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &PresenterService{roster: roster, pageSize: pageSize, logger: logger}
}

// PageSize returns the number of entries per page.
func (s *PresenterService) PageSize() int {
	return s.pageSize
}

// Render draws the requested page, clamped to the existing range.
func (s *PresenterService) Render(ctx context.Context, req RenderRequest) (models.Rendering, error) {
	mode := req.Mode
	if !mode.Valid() {
		mode = models.ModeFirstPass
	}
	page := req.Page
	if page < 0 {
		page = 0
	}

	entries, total, err := s.roster.ListPage(ctx, req.Address, page, s.pageSize, models.OrderInsertion)
	if err != nil {
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	if total == 0 {
		return models.Rendering{Text: emptyRosterText, Notice: true}, nil
	}

	pages := (total + s.pageSize - 1) / s.pageSize
	if page >= pages {
		page = pages - 1
		entries, total, err = s.roster.ListPage(ctx, req.Address, page, s.pageSize, models.OrderInsertion)
		if err != nil {
			return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
		}
		if total == 0 {
			return models.Rendering{Text: emptyRosterText, Notice: true}, nil
		}
		pages = (total + s.pageSize - 1) / s.pageSize
	}

	keyboard := make(models.Keyboard, 0, len(entries)+3)
	for _, e := range entries {
		text := e.DisplayName
		if e.Present {
			text = "✅ " + e.DisplayName
		}
		keyboard = append(keyboard, []models.Button{{Text: text, Action: affordance.Toggle(e.ID, page)}})
	}

	var nav []models.Button
	if page > 0 {
		nav = append(nav, models.Button{Text: "⬅️ Назад", Action: affordance.Page(req.Ref, affordance.Prev, page)})
	}
	if page < pages-1 {
		nav = append(nav, models.Button{Text: "Вперед ➡️", Action: affordance.Page(req.Ref, affordance.Next, page)})
	}
	if len(nav) > 0 {
		keyboard = append(keyboard, nav)
	}

	keyboard = append(keyboard, []models.Button{{Text: "➕ Добавить ученика", Action: affordance.AddStudent(mode, req.Ref)}})

	send, ok := existingSendButton(req.CurrentKeyboard)
	if !ok {
		present, err := s.roster.List(ctx, req.Address, models.RosterFilter{PresentOnly: true})
		if err != nil {
			return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count present students")
		}
		send = models.Button{
			Text:   fmt.Sprintf("Отправить данные (%d/%d)", len(present), total),
			Action: affordance.Send(mode, req.Ref),
		}
	}
	keyboard = append(keyboard, []models.Button{send})

	s.checkFits(keyboard, req.Address)

	text := fmt.Sprintf("Отметьте присутствующих учеников (%s, %s)", req.Address.Group, req.Address.Location)
	if pages > 1 {
		text += fmt.Sprintf(" (Страница %d/%d)", page+1, pages)
	}
	return models.Rendering{Text: text + ":", Keyboard: keyboard}, nil
}

func (s *PresenterService) checkFits(keyboard models.Keyboard, addr models.LessonAddress) {
	for _, data := range keyboard.Actions() {
		if !affordance.Fits(data) {
			s.logger.Warn("affordance exceeds transport limit",
				zap.String("lesson", addr.String()),
				zap.String("data", data),
				zap.Int("bytes", len(data)),
			)
		}
	}
}

func existingSendButton(kb models.Keyboard) (models.Button, bool) {
	for _, row := range kb {
		for _, b := range row {
			if affordance.IsSend(b.Action) {
				return b, true
			}
		}
	}
	return models.Button{}, false
}
