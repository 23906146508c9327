package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/dto"
	"github.com/noah-isme/roster-gateway/internal/models"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
	"github.com/noah-isme/roster-gateway/pkg/export"
)

type rosterPrimer interface {
	Prime(ctx context.Context, addr models.LessonAddress, code string, entries []models.PrimeEntry) error
	AddressExists(ctx context.Context, addr models.LessonAddress) (bool, error)
	List(ctx context.Context, addr models.LessonAddress, filter models.RosterFilter) ([]models.RosterEntry, error)
}

// SheetFile is a rendered roster sheet.
type SheetFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RosterService seeds lesson rosters and serves their listings.
type RosterService struct {
	roster    rosterPrimer
	addresses *AddressService
	presenter *PresenterService
	renderers export.Registry
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRosterService constructs the roster service.
func NewRosterService(roster rosterPrimer, addresses *AddressService, presenter *PresenterService, renderers export.Registry, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		roster:    roster,
		addresses: addresses,
		presenter: presenter,
		renderers: renderers,
		validator: validate,
		logger:    logger,
	}
}

// Prime stores the pulled roster of a lesson under a fresh code and renders its first page.
// Priming a lesson that already has rows returns the existing session.
func (s *RosterService) Prime(ctx context.Context, req dto.PrimeLessonRequest) (*dto.PrimeLessonResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	addr := models.LessonAddress{
		Location: strings.TrimSpace(req.Location),
		Group:    strings.TrimSpace(req.Group),
		TimeSlot: strings.TrimSpace(req.TimeSlot),
	}

	exists, err := s.roster.AddressExists(ctx, addr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lesson")
	}
	if exists {
		ref := s.addresses.RefFor(ctx, addr)
		r, err := s.presenter.Render(ctx, RenderRequest{Address: addr, Ref: ref, Mode: models.ModeFirstPass})
		if err != nil {
			return nil, err
		}
		return &dto.PrimeLessonResponse{Code: ref.Code, Rendering: r}, nil
	}

	code, err := s.addresses.MintCode(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]models.PrimeEntry, 0, len(req.Students))
	for _, st := range req.Students {
		entry := models.PrimeEntry{DisplayName: strings.TrimSpace(st.Name)}
		if st.SourceRowID != "" {
			entry.Ref = &models.ExternalRef{SourceRowID: st.SourceRowID, SourceColumn: st.SourceColumn}
		}
		entries = append(entries, entry)
	}
	if err := s.roster.Prime(ctx, addr, code, entries); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prime roster")
	}
	s.logger.Info("roster primed", zap.String("lesson", addr.String()), zap.String("code", code), zap.Int("students", len(entries)))

	ref := models.CodeRef(code)
	r, err := s.presenter.Render(ctx, RenderRequest{Address: addr, Ref: ref, Mode: models.ModeFirstPass})
	if err != nil {
		return nil, err
	}
	return &dto.PrimeLessonResponse{Code: code, Rendering: r}, nil
}

// Open renders a page of an existing session in the given mode.
func (s *RosterService) Open(ctx context.Context, ref models.AddressRef, mode models.Mode, page int) (models.Rendering, error) {
	addr, err := s.addresses.Decode(ctx, ref)
	if err != nil {
		return models.Rendering{}, err
	}
	return s.presenter.Render(ctx, RenderRequest{Address: addr, Ref: ref, Page: page, Mode: mode})
}

// Sheet renders the roster ordered by name into the requested format.
func (s *RosterService) Sheet(ctx context.Context, ref models.AddressRef, format string) (*SheetFile, error) {
	renderer, err := s.renderers.Get(export.Format(strings.ToLower(format)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported sheet format")
	}
	addr, err := s.addresses.Decode(ctx, ref)
	if err != nil {
		return nil, err
	}
	entries, err := s.roster.List(ctx, addr, models.RosterFilter{Order: models.OrderDisplayName})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	data, err := renderer.Render(sheetDataset(addr, entries))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render sheet")
	}
	return &SheetFile{
		Filename:    sheetFilename(addr) + renderer.Extension(),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

var sheetHeaders = []string{"№", "Ученик", "Присутствие", "Тип", "Отправлен"}

func sheetDataset(addr models.LessonAddress, entries []models.RosterEntry) export.Dataset {
	rows := make([]map[string]string, 0, len(entries))
	for i, e := range entries {
		kind := "новый"
		if e.Known() {
			kind = "из таблицы"
		} else if e.Permanence == models.PermanencePermanent {
			kind = "новый, постоянный"
		}
		rows = append(rows, map[string]string{
			"№":           strconv.Itoa(i + 1),
			"Ученик":      e.DisplayName,
			"Присутствие": yesNo(e.Present),
			"Тип":         kind,
			"Отправлен":   yesNo(e.Submitted),
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%s, %s, %s", addr.Location, addr.Group, addr.TimeSlot),
		Headers: sheetHeaders,
		Rows:    rows,
	}
}

func yesNo(v bool) string {
	if v {
		return "да"
	}
	return "нет"
}

func sheetFilename(addr models.LessonAddress) string {
	name := ArchiveBaseName(models.ExportJob{Location: addr.Location, Group: addr.Group, TimeSlot: addr.TimeSlot})
	return strings.ReplaceAll(name, "__", "_")
}
