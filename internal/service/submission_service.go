package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/cache"
	"github.com/noah-isme/roster-gateway/pkg/config"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
	"github.com/noah-isme/roster-gateway/pkg/events"
	"github.com/noah-isme/roster-gateway/pkg/webhook"
)

const (
	defaultLowAttendance = 3
	defaultSubmitLockTTL = 2 * time.Minute
)

type submissionStore interface {
	List(ctx context.Context, addr models.LessonAddress, filter models.RosterFilter) ([]models.RosterEntry, error)
	MarkSubmitted(ctx context.Context, ids []int64) (int64, error)
}

type sinkPoster interface {
	PostJSON(ctx context.Context, url string, timeout time.Duration, payload interface{}) (*webhook.Response, error)
}

type locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type eventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type verificationRenderer interface {
	Render(ctx context.Context, addr models.LessonAddress, ref models.AddressRef) (models.Rendering, error)
}

// KnownRecord is one known student in an attendance batch.
type KnownRecord struct {
	Location       string `json:"location"`
	Group          string `json:"group"`
	Name           string `json:"name"`
	ExternalColumn string `json:"externalColumn"`
	Present        int    `json:"present"`
	Teacher        string `json:"teacher"`
}

// NewStudentRecord is one new student in a new-students batch.
type NewStudentRecord struct {
	Location  string `json:"location"`
	Group     string `json:"group"`
	Name      string `json:"name"`
	Permanent int    `json:"permanent"`
	Teacher   string `json:"teacher"`
}

// Batch is the envelope every sink receives.
type Batch[T any] struct {
	Data []T `json:"data"`
}

// SubmitRequest asks to forward a lesson's roster.
type SubmitRequest struct {
	Address models.LessonAddress
	Ref     models.AddressRef
	Mode    models.Mode
	Actor   models.Actor
	// Message is the roster message whose keyboard is stripped and replaced.
	Message models.MessageRef
}

// SubmitResult summarises what was forwarded.
type SubmitResult struct {
	Rendering       models.Rendering `json:"rendering"`
	Known           int              `json:"known"`
	New             int              `json:"new"`
	Marked          int64            `json:"marked"`
	TeacherNotFound bool             `json:"teacher_not_found"`
	LowAttendance   bool             `json:"low_attendance"`
	VerificationTo  int              `json:"verification_sent_to"`
}

// SubmissionService forwards roster sessions to the attendance sinks.
type SubmissionService struct {
	roster    submissionStore
	sinks     sinkPoster
	notifier  *NotifierService
	verify    verificationRenderer
	locks     locker
	publisher eventPublisher
	cfg       config.SinksConfig
	threshold int
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewSubmissionService constructs the pipeline.
func NewSubmissionService(
	roster submissionStore,
	sinks sinkPoster,
	notifier *NotifierService,
	verify verificationRenderer,
	locks locker,
	publisher eventPublisher,
	sinksCfg config.SinksConfig,
	rosterCfg config.RosterConfig,
	logger *zap.Logger,
) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if sinksCfg.FirstPassTimeout <= 0 {
		sinksCfg.FirstPassTimeout = 30 * time.Second
	}
	if sinksCfg.CorrectionTimeout <= 0 {
		sinksCfg.CorrectionTimeout = 50 * time.Second
	}
	if sinksCfg.DefaultTimeout <= 0 {
		sinksCfg.DefaultTimeout = 30 * time.Second
	}
	threshold := rosterCfg.LowAttendanceThreshold
	if threshold <= 0 {
		threshold = defaultLowAttendance
	}
	lockTTL := rosterCfg.SubmitLockTTL
	if lockTTL <= 0 {
		lockTTL = defaultSubmitLockTTL
	}
	return &SubmissionService{
		roster:    roster,
		sinks:     sinks,
		notifier:  notifier,
		verify:    verify,
		locks:     locks,
		publisher: publisher,
		cfg:       sinksCfg,
		threshold: threshold,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// Submit forwards the roster in the requested mode. Steps that succeeded before a sink
// failure stay done; nothing is retried automatically.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if !req.Mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown submission mode")
	}
	log := s.logger.With(zap.String("lesson", req.Address.String()), zap.String("mode", string(req.Mode)))

	lockKey := cache.Key("submit", string(req.Mode), req.Address.Location, req.Address.Group, req.Address.TimeSlot)
	token, ok, err := s.locks.Acquire(ctx, lockKey, s.lockTTL)
	if err != nil {
		log.Warn("submit lock unavailable, continuing without it", zap.Error(err))
	} else if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "отправка уже выполняется")
	} else {
		defer func() {
			if err := s.locks.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
				log.Warn("release submit lock failed", zap.Error(err))
			}
		}()
	}

	s.notifier.StripKeyboard(ctx, req.Message)

	entries, err := s.roster.List(ctx, req.Address, models.RosterFilter{PresentOnly: req.Mode == models.ModeFirstPass})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	known, fresh := partition(entries)
	teacher := req.Actor.DisplayName()
	result := &SubmitResult{Known: len(known), New: len(fresh)}

	if len(known) > 0 {
		url, timeout := s.cfg.AttendanceURL, s.cfg.FirstPassTimeout
		if req.Mode == models.ModeCorrectionPass {
			url, timeout = s.cfg.CorrectionURL, s.cfg.CorrectionTimeout
		}
		resp, err := s.sinks.PostJSON(ctx, url, timeout, knownBatch(known, teacher))
		if err != nil {
			log.Error("forward known students failed", zap.Int("count", len(known)), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrSinkUnavailable.Code, appErrors.ErrSinkUnavailable.Status, "не удалось отправить посещаемость")
		}
		if resp.ReportsError() {
			result.TeacherNotFound = true
			log.Warn("attendance sink did not find teacher", zap.String("teacher", teacher))
			s.notifier.Broadcast(ctx, models.Rendering{Text: fmt.Sprintf("Преподаватель %s в таблице не найден", teacher)})
		}
	}

	if len(fresh) > 0 {
		if _, err := s.sinks.PostJSON(ctx, s.cfg.NewStudentsURL, s.cfg.DefaultTimeout, newStudentBatch(fresh, teacher)); err != nil {
			log.Error("forward new students failed", zap.Int("count", len(fresh)), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrSinkUnavailable.Code, appErrors.ErrSinkUnavailable.Status, "не удалось отправить новых учеников")
		}
		if req.Mode == models.ModeCorrectionPass {
			marked, err := s.roster.MarkSubmitted(ctx, entryIDs(fresh))
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark students as submitted")
			}
			result.Marked = marked
		}
	}

	if req.Mode == models.ModeFirstPass {
		total := len(entries)
		if total < s.threshold {
			result.LowAttendance = true
			s.notifier.Broadcast(ctx, models.Rendering{Text: lowAttendanceText(req.Address, total)})
		}
		if len(fresh) > 0 {
			r, err := s.verify.Render(ctx, req.Address, req.Ref)
			if err != nil {
				log.Warn("render verification failed", zap.Error(err))
			} else if !r.Notice {
				result.VerificationTo = s.notifier.Broadcast(ctx, r)
			}
		}
	}

	result.Rendering = models.Rendering{
		Text: fmt.Sprintf("✅ Посещаемость для группы %s (%s) отправлена.", req.Address.Group, req.Address.Location),
	}
	s.notifier.Edit(ctx, req.Message, result.Rendering)

	s.publish(ctx, log, events.Event{
		Type: events.TypeRosterSubmitted,
		Key:  req.Address.String(),
		Data: map[string]interface{}{
			"location":  req.Address.Location,
			"group":     req.Address.Group,
			"time_slot": req.Address.TimeSlot,
			"mode":      req.Mode,
			"known":     result.Known,
			"new":       result.New,
			"teacher":   teacher,
		},
	})

	log.Info("roster submitted", zap.Int("known", result.Known), zap.Int("new", result.New), zap.Int64("marked", result.Marked))
	return result, nil
}

func (s *SubmissionService) publish(ctx context.Context, log *zap.Logger, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warn("publish event failed", zap.String("type", event.Type), zap.Error(err))
	}
}

// partition splits entries into known and new. New students already forwarded are skipped
// in every mode; submitted is write-once.
func partition(entries []models.RosterEntry) (known, fresh []models.RosterEntry) {
	for _, e := range entries {
		switch {
		case e.Known():
			known = append(known, e)
		case !e.Submitted:
			fresh = append(fresh, e)
		}
	}
	return known, fresh
}

func knownBatch(entries []models.RosterEntry, teacher string) Batch[KnownRecord] {
	batch := Batch[KnownRecord]{Data: make([]KnownRecord, 0, len(entries))}
	for _, e := range entries {
		rec := KnownRecord{
			Location: e.Address.Location,
			Group:    e.Address.Group,
			Name:     e.DisplayName,
			Teacher:  teacher,
		}
		if e.ExternalRef != nil {
			rec.ExternalColumn = e.ExternalRef.SourceColumn
		}
		if e.Present {
			rec.Present = 1
		}
		batch.Data = append(batch.Data, rec)
	}
	return batch
}

func newStudentBatch(entries []models.RosterEntry, teacher string) Batch[NewStudentRecord] {
	batch := Batch[NewStudentRecord]{Data: make([]NewStudentRecord, 0, len(entries))}
	for _, e := range entries {
		rec := NewStudentRecord{
			Location: e.Address.Location,
			Group:    e.Address.Group,
			Name:     e.DisplayName,
			Teacher:  teacher,
		}
		if e.Permanence == models.PermanencePermanent {
			rec.Permanent = 1
		}
		batch.Data = append(batch.Data, rec)
	}
	return batch
}

func entryIDs(entries []models.RosterEntry) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func lowAttendanceText(addr models.LessonAddress, total int) string {
	word := "ученика"
	if total == 1 {
		word = "ученик"
	}
	return fmt.Sprintf("В садике %s, в группе %s, в %s - присутствуют %d %s.", addr.Location, addr.Group, addr.TimeSlot, total, word)
}
