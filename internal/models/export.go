package models

import "time"

// ExportStatus captures the export job lifecycle.
type ExportStatus string

const (
	ExportStatusPending    ExportStatus = "pending"
	ExportStatusQueued     ExportStatus = "queued"
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusFinished   ExportStatus = "finished"
	ExportStatusFailed     ExportStatus = "failed"
)

// ExportJob is a request to package and deliver one lesson's media.
type ExportJob struct {
	ID             int64        `db:"id" json:"id"`
	Location       string       `db:"location" json:"location"`
	Group          string       `db:"group_name" json:"group"`
	TimeSlot       string       `db:"time_slot" json:"time_slot"`
	LessonDate     string       `db:"lesson_date" json:"lesson_date"`
	Module         string       `db:"module" json:"module"`
	Theme          string       `db:"theme" json:"theme"`
	Teacher        string       `db:"teacher" json:"teacher"`
	Status         ExportStatus `db:"status" json:"status"`
	PartsTotal     int          `db:"parts_total" json:"parts_total"`
	PartsDelivered int          `db:"parts_delivered" json:"parts_delivered"`
	ItemsSkipped   int          `db:"items_skipped" json:"items_skipped"`
	Fallback       bool         `db:"fallback" json:"fallback"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// MediaKey returns the media index key of the job's lesson.
func (j ExportJob) MediaKey() MediaKey {
	return MediaKey{Location: j.Location, Group: j.Group, LessonDate: j.LessonDate, TimeSlot: j.TimeSlot}
}

// ExportOutcome is written back to the job once delivery finished.
type ExportOutcome struct {
	Status         ExportStatus
	PartsTotal     int
	PartsDelivered int
	ItemsSkipped   int
	Fallback       bool
}

// CaptionLinks are the optional per-theme links printed in the archive caption.
type CaptionLinks struct {
	Message string `json:"mass"`
	Image   string `json:"picture"`
}

// DeliveredPart describes where one archive part ended up.
type DeliveredPart struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// ExportSummary reports the result of one export run.
type ExportSummary struct {
	JobID          int64           `json:"job_id"`
	BaseName       string          `json:"base_name"`
	Items          int             `json:"items"`
	PartsTotal     int             `json:"parts_total"`
	PartsDelivered int             `json:"parts_delivered"`
	Skipped        int             `json:"skipped"`
	Fallback       bool            `json:"fallback"`
	Delivered      []DeliveredPart `json:"delivered,omitempty"`
}
