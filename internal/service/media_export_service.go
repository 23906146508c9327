package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/dto"
	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/affordance"
	"github.com/noah-isme/roster-gateway/pkg/cache"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
	"github.com/noah-isme/roster-gateway/pkg/jobs"
	"github.com/noah-isme/roster-gateway/pkg/storage"
)

// ExportJobType tags media export jobs on the queue.
const ExportJobType = "media_export"

const (
	defaultExportLockTTL = 30 * time.Minute
	processingText       = "🔄 Обрабатываю запрос...\nПожалуйста, не нажимайте кнопку повторно."
	noFilesText          = "Файлы не найдены"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	Get(ctx context.Context, id int64) (*models.ExportJob, error)
	UpdateStatus(ctx context.Context, id int64, status models.ExportStatus) error
	Complete(ctx context.Context, id int64, outcome models.ExportOutcome) error
}

type mediaIndex interface {
	Add(ctx context.Context, item *models.MediaItem) (int64, error)
	Count(ctx context.Context, key models.MediaKey) (int, error)
	List(ctx context.Context, key models.MediaKey) ([]models.MediaItem, error)
}

type exportDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

type downloadVerifier interface {
	Verify(token string) (storage.DownloadToken, error)
}

type partOpener interface {
	Open(name string) (*os.File, error)
}

// ExportTask is the queue payload of one export request.
type ExportTask struct {
	JobID     int64
	ChatID    int64
	MessageID int
	LockKey   string
	LockToken string
}

// MediaExportService records lesson media and schedules exports.
type MediaExportService struct {
	jobs      exportJobStore
	media     mediaIndex
	notifier  *NotifierService
	locks     locker
	queue     exportDispatcher
	verifier  downloadVerifier
	files     partOpener
	validator *validator.Validate
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewMediaExportService constructs the service. verifier and files may be nil when parts
// are delivered through the chat only.
func NewMediaExportService(
	jobStore exportJobStore,
	media mediaIndex,
	notifier *NotifierService,
	locks locker,
	queue exportDispatcher,
	verifier downloadVerifier,
	files partOpener,
	validate *validator.Validate,
	lockTTL time.Duration,
	logger *zap.Logger,
) *MediaExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockTTL <= 0 {
		lockTTL = defaultExportLockTTL
	}
	return &MediaExportService{
		jobs:      jobStore,
		media:     media,
		notifier:  notifier,
		locks:     locks,
		queue:     queue,
		verifier:  verifier,
		files:     files,
		validator: validate,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// RecordMedia appends an uploaded file to the lesson's media index.
func (s *MediaExportService) RecordMedia(ctx context.Context, req dto.RecordMediaRequest, actor models.Actor) (*dto.RecordMediaResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid media payload")
	}
	item := &models.MediaItem{
		MediaKey:    models.MediaKey{Location: req.Location, Group: req.Group, LessonDate: req.LessonDate, TimeSlot: req.TimeSlot},
		Handle:      req.Handle,
		ContentHash: req.ContentHash,
		SizeBytes:   req.SizeBytes,
		Kind:        models.MediaKind(req.Kind),
		UploadedBy:  actor.UserID,
	}
	id, err := s.media.Add(ctx, item)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record media")
	}
	count, err := s.media.Count(ctx, item.MediaKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count media")
	}
	return &dto.RecordMediaResponse{ID: id, Count: count, Text: fmt.Sprintf("✅ Файл #%d сохранен!", count)}, nil
}

// CreateJob records an export request and offers it to the administrators.
func (s *MediaExportService) CreateJob(ctx context.Context, req dto.CreateExportRequest, actor models.Actor) (*dto.CreateExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	job := &models.ExportJob{
		Location:   req.Location,
		Group:      req.Group,
		TimeSlot:   req.TimeSlot,
		LessonDate: req.LessonDate,
		Module:     req.Module,
		Theme:      req.Theme,
		Teacher:    actor.DisplayName(),
		Status:     models.ExportStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	text := fmt.Sprintf("📸 Файлы с урока загружены!\nСадик: %s\nГруппа: %s\nВремя: %s\nДата: %s\nПреподаватель: %s",
		job.Location, job.Group, job.TimeSlot, job.LessonDate, job.Teacher)
	notified := s.notifier.Broadcast(ctx, models.Rendering{
		Text:     text,
		Keyboard: models.Keyboard{{{Text: "Выгрузить файлы", Action: affordance.Export(job.ID)}}},
	})
	s.logger.Info("export job created", zap.Int64("job_id", job.ID), zap.Int("notified", notified))
	return &dto.CreateExportResponse{JobID: job.ID, Notified: notified}, nil
}

// RequestExport queues a build of the job's archives. A second press while a build for the
// same job is pending or running is rejected.
func (s *MediaExportService) RequestExport(ctx context.Context, jobID int64, actor models.Actor, msg models.MessageRef) (models.Rendering, error) {
	if !actor.Role.Privileged() {
		return models.Rendering{}, appErrors.ErrForbidden
	}
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Rendering{}, appErrors.Clone(appErrors.ErrNotFound, "Выгрузка не найдена")
		}
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	count, err := s.media.Count(ctx, job.MediaKey())
	if err != nil {
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count media")
	}
	if count == 0 {
		return models.Rendering{}, appErrors.Clone(appErrors.ErrNotFound, noFilesText)
	}

	lockKey := cache.Key("export", strconv.FormatInt(jobID, 10))
	token, ok, err := s.locks.Acquire(ctx, lockKey, s.lockTTL)
	if err != nil {
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock export")
	}
	if !ok {
		return models.Rendering{}, appErrors.Clone(appErrors.ErrConflict, "Выгрузка уже выполняется")
	}

	task := ExportTask{JobID: jobID, ChatID: actor.ChatID, MessageID: msg.MessageID, LockKey: lockKey, LockToken: token}
	if msg.ChatID != 0 {
		task.ChatID = msg.ChatID
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: strconv.FormatInt(jobID, 10), Type: ExportJobType, Payload: task}); err != nil {
		_ = s.locks.Release(ctx, lockKey, token)
		return models.Rendering{}, appErrors.Wrap(err, appErrors.ErrTooManyRequests.Code, appErrors.ErrTooManyRequests.Status, "очередь выгрузки переполнена")
	}
	if err := s.jobs.UpdateStatus(ctx, jobID, models.ExportStatusQueued); err != nil {
		s.logger.Warn("mark export queued failed", zap.Int64("job_id", jobID), zap.Error(err))
	}

	s.logger.Info("export queued", zap.Int64("job_id", jobID), zap.String("user_id", actor.UserID), zap.Int("items", count))
	return models.Rendering{Text: processingText}, nil
}

// Download resolves a signed link to a stored part.
func (s *MediaExportService) Download(ctx context.Context, token string) (*os.File, string, error) {
	if s.verifier == nil || s.files == nil {
		return nil, "", appErrors.ErrNotFound
	}
	claims, err := s.verifier.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenExpired):
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		default:
			return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
		}
	}
	file, err := s.files.Open(claims.Path)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "archive part not found")
	}
	return file, path.Base(claims.Path), nil
}
