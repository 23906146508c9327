package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/roster-gateway/internal/models"
)

const exportJobColumns = `id, location, group_name, time_slot, lesson_date, module, theme, teacher, status,
	parts_total, parts_delivered, items_skipped, fallback, created_at, updated_at`

// ExportJobRepository persists media export requests.
type ExportJobRepository struct {
	db *sqlx.DB
}

// NewExportJobRepository constructs the repository.
func NewExportJobRepository(db *sqlx.DB) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

// Create stores a pending job and sets its id.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.Status == "" {
		job.Status = models.ExportStatusPending
	}
	query := r.db.Rebind(`INSERT INTO export_jobs
	(location, group_name, time_slot, lesson_date, module, theme, teacher, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	err := r.db.QueryRowxContext(ctx, query,
		job.Location, job.Group, job.TimeSlot, job.LessonDate, job.Module, job.Theme, job.Teacher, string(job.Status),
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// Get returns one job.
func (r *ExportJobRepository) Get(ctx context.Context, id int64) (*models.ExportJob, error) {
	query := r.db.Rebind(`SELECT ` + exportJobColumns + ` FROM export_jobs WHERE id = ?`)
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateStatus moves a job to status.
func (r *ExportJobRepository) UpdateStatus(ctx context.Context, id int64, status models.ExportStatus) error {
	query := r.db.Rebind(`UPDATE export_jobs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
	return r.exec(ctx, "update export job status", query, string(status), id)
}

// Complete stores the outcome of a run.
func (r *ExportJobRepository) Complete(ctx context.Context, id int64, outcome models.ExportOutcome) error {
	query := r.db.Rebind(`UPDATE export_jobs SET status = ?, parts_total = ?, parts_delivered = ?, items_skipped = ?,
	fallback = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
	fallback := 0
	if outcome.Fallback {
		fallback = 1
	}
	return r.exec(ctx, "complete export job", query,
		string(outcome.Status), outcome.PartsTotal, outcome.PartsDelivered, outcome.ItemsSkipped, fallback, id)
}

func (r *ExportJobRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
