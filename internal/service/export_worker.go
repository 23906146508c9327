package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/cache"
	"github.com/noah-isme/roster-gateway/pkg/config"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
	"github.com/noah-isme/roster-gateway/pkg/events"
	"github.com/noah-isme/roster-gateway/pkg/jobs"
)

type mediaPacker interface {
	Pack(ctx context.Context, items []models.MediaItem, base string) (models.PackResult, error)
	PackLegacy(ctx context.Context, items []models.MediaItem, base string) (models.PackResult, error)
}

type linkCache interface {
	Remember(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func(context.Context) (interface{}, error)) error
}

// ExportWorker builds and delivers the archives of queued export jobs.
type ExportWorker struct {
	jobs      exportJobStore
	media     mediaIndex
	packer    mediaPacker
	delivery  PartDelivery
	notifier  *NotifierService
	sinks     sinkPoster
	cache     linkCache
	locks     locker
	publisher eventPublisher
	metrics   *MetricsService
	cfg       config.ExportConfig
	logger    *zap.Logger
}

// ExportWorkerDeps groups the worker's collaborators.
type ExportWorkerDeps struct {
	Jobs      exportJobStore
	Media     mediaIndex
	Packer    mediaPacker
	Delivery  PartDelivery
	Notifier  *NotifierService
	Sinks     sinkPoster
	Cache     linkCache
	Locks     locker
	Publisher eventPublisher
	Metrics   *MetricsService
}

// NewExportWorker constructs the worker.
func NewExportWorker(deps ExportWorkerDeps, cfg config.ExportConfig, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if cfg.ThemeHookTimeout <= 0 {
		cfg.ThemeHookTimeout = 30 * time.Second
	}
	return &ExportWorker{
		jobs:      deps.Jobs,
		media:     deps.Media,
		packer:    deps.Packer,
		delivery:  deps.Delivery,
		notifier:  deps.Notifier,
		sinks:     deps.Sinks,
		cache:     deps.Cache,
		locks:     deps.Locks,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		cfg:       cfg,
		logger:    logger,
	}
}

// Handle is the queue handler. Failures are reported to the requester and never retried.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	task, ok := job.Payload.(ExportTask)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	defer func() {
		if task.LockKey == "" || w.locks == nil {
			return
		}
		if err := w.locks.Release(context.WithoutCancel(ctx), task.LockKey, task.LockToken); err != nil {
			w.logger.Warn("release export lock failed", zap.Int64("job_id", task.JobID), zap.Error(err))
		}
	}()

	msg := models.MessageRef{ChatID: task.ChatID, MessageID: task.MessageID}
	summary, err := w.Run(ctx, task)
	if err != nil {
		w.logger.Error("export failed", zap.Int64("job_id", task.JobID), zap.Error(err))
		if cerr := w.jobs.Complete(ctx, task.JobID, models.ExportOutcome{Status: models.ExportStatusFailed}); cerr != nil {
			w.logger.Warn("mark export failed", zap.Int64("job_id", task.JobID), zap.Error(cerr))
		}
		w.notifier.Edit(ctx, msg, models.Rendering{Text: "❌ Ошибка при создании ZIP архива: " + failureReason(err)})
		return nil
	}

	w.notifier.Edit(ctx, msg, models.Rendering{Text: SummaryText(*summary)})
	return nil
}

// Run packs and delivers one job.
func (w *ExportWorker) Run(ctx context.Context, task ExportTask) (*models.ExportSummary, error) {
	job, err := w.jobs.Get(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Выгрузка не найдена")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if err := w.jobs.UpdateStatus(ctx, job.ID, models.ExportStatusProcessing); err != nil {
		w.logger.Warn("mark export processing failed", zap.Int64("job_id", job.ID), zap.Error(err))
	}

	links := w.captionLinks(ctx, job)

	items, err := w.media.List(ctx, job.MediaKey())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list media")
	}
	if len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, noFilesText)
	}

	base := ArchiveBaseName(*job)
	res, err := w.packer.Pack(ctx, items, base)
	if err != nil {
		w.logger.Warn("packing failed, using single archive", zap.Int64("job_id", job.ID), zap.Error(err))
		res, err = w.packer.PackLegacy(ctx, items, base)
		if err != nil {
			return nil, err
		}
	}

	summary := &models.ExportSummary{
		JobID:      job.ID,
		BaseName:   base,
		Items:      res.Entries(),
		PartsTotal: len(res.Parts),
		Skipped:    len(res.Skipped),
		Fallback:   res.Fallback,
	}
	caption := Caption(*job, links, summary.Items)
	for _, part := range res.Parts {
		text := caption
		if part.TotalParts > 1 {
			text += fmt.Sprintf("\n\n📦 Архив %d из %d", part.Index, part.TotalParts)
		}
		delivered, err := w.delivery.Deliver(ctx, task.ChatID, job.ID, part, text)
		if err != nil {
			w.logger.Warn("part delivery failed", zap.Int64("job_id", job.ID), zap.String("part", part.Name), zap.Error(err))
			continue
		}
		summary.Delivered = append(summary.Delivered, delivered)
	}
	summary.PartsDelivered = len(summary.Delivered)
	w.metrics.RecordExport(summary.PartsDelivered, summary.PartsTotal-summary.PartsDelivered, summary.Skipped, summary.Fallback)

	if summary.PartsDelivered == 0 {
		return nil, appErrors.Clone(appErrors.ErrInternal, "не удалось отправить ни одного архива")
	}

	outcome := models.ExportOutcome{
		Status:         models.ExportStatusFinished,
		PartsTotal:     summary.PartsTotal,
		PartsDelivered: summary.PartsDelivered,
		ItemsSkipped:   summary.Skipped,
		Fallback:       summary.Fallback,
	}
	if err := w.jobs.Complete(ctx, job.ID, outcome); err != nil {
		w.logger.Warn("mark export finished failed", zap.Int64("job_id", job.ID), zap.Error(err))
	}
	if err := w.publisher.Publish(ctx, events.Event{
		Type:       events.TypeMediaExported,
		Key:        strconv.FormatInt(job.ID, 10),
		OccurredAt: time.Now().UTC(),
		Data:       summary,
	}); err != nil {
		w.logger.Warn("publish export event failed", zap.Int64("job_id", job.ID), zap.Error(err))
	}

	w.logger.Info("export delivered",
		zap.Int64("job_id", job.ID),
		zap.Int("parts", summary.PartsTotal),
		zap.Int("delivered", summary.PartsDelivered),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("fallback", summary.Fallback),
	)
	return summary, nil
}

// captionLinks asks the module's theme hook for the lesson links. Any failure leaves them empty.
func (w *ExportWorker) captionLinks(ctx context.Context, job *models.ExportJob) models.CaptionLinks {
	var links models.CaptionLinks
	url := w.cfg.ThemeHooks[job.Module]
	if url == "" || job.Theme == "" || w.sinks == nil {
		return links
	}
	load := func(ctx context.Context) (interface{}, error) {
		resp, err := w.sinks.PostJSON(ctx, url, w.cfg.ThemeHookTimeout, map[string]string{"theme": job.Theme})
		if err != nil {
			return nil, err
		}
		var out models.CaptionLinks
		if err := json.Unmarshal(resp.Body, &out); err != nil {
			return nil, fmt.Errorf("decode theme links: %w", err)
		}
		return out, nil
	}

	var err error
	if w.cache != nil {
		err = w.cache.Remember(ctx, cache.Key("links", job.Module, job.Theme), w.cfg.LinkCacheTTL, &links, load)
	} else {
		var value interface{}
		if value, err = load(ctx); err == nil {
			links = value.(models.CaptionLinks)
		}
	}
	if err != nil {
		w.logger.Warn("theme links unavailable", zap.String("module", job.Module), zap.Error(err))
		return models.CaptionLinks{}
	}
	return links
}

// ArchiveBaseName derives the archive base name from the lesson, keeping letters, digits,
// space, '-', '_' and '.'.
func ArchiveBaseName(job models.ExportJob) string {
	raw := fmt.Sprintf("%s_%s_%s_%s", job.Location, job.Group, job.LessonDate, job.TimeSlot)
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(" -_.", r) {
			b.WriteRune(r)
		}
	}
	name := strings.TrimRight(b.String(), " ")
	if strings.Trim(name, " _") == "" {
		return "export_" + strconv.FormatInt(job.ID, 10)
	}
	return name
}

// Caption is the HTML caption attached to every part. total counts archived files.
func Caption(job models.ExportJob, links models.CaptionLinks, total int) string {
	return fmt.Sprintf("📸 ZIP архив с файлами\nСадик: %s\nГруппа: %s\nВремя: %s\nДата: %s\nВсего файлов: %d\nСообщение: %s\nИмидж: %s",
		html.EscapeString(job.Location), html.EscapeString(job.Group), html.EscapeString(job.TimeSlot), html.EscapeString(job.LessonDate),
		total, linkOrDash(links.Message), linkOrDash(links.Image))
}

func linkOrDash(href string) string {
	if href == "" {
		return "_"
	}
	return fmt.Sprintf("<a href=\"%s\">ссылка</a>", html.EscapeString(href))
}

// SummaryText is the final status written into the requester's message.
func SummaryText(s models.ExportSummary) string {
	var text string
	if s.PartsTotal > 1 {
		text = fmt.Sprintf("✅ ZIP архивы созданы и отправлены!\nБазовое название: %s\nВсего файлов: %d\nАрхивов: %d/%d",
			s.BaseName, s.Items, s.PartsDelivered, s.PartsTotal)
	} else {
		text = fmt.Sprintf("✅ ZIP архив создан и отправлен!\nНазвание: %s.zip\nФайлов: %d", s.BaseName, s.Items)
	}
	if s.Skipped > 0 {
		text += fmt.Sprintf("\nПропущено файлов: %d", s.Skipped)
	}
	if s.Fallback {
		text += "\nИспользован резервный режим"
	}
	return text
}

func failureReason(err error) string {
	if typed := appErrors.FromError(err); typed != nil && typed.Err == nil {
		return typed.Message
	}
	return err.Error()
}
