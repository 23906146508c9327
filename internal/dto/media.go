package dto

// RecordMediaRequest registers an uploaded lesson file in the media index.
type RecordMediaRequest struct {
	Location    string `json:"location" validate:"required"`
	Group       string `json:"group" validate:"required"`
	LessonDate  string `json:"lesson_date" validate:"required"`
	TimeSlot    string `json:"time_slot" validate:"required"`
	Handle      string `json:"handle" validate:"required"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes" validate:"gte=0"`
	Kind        string `json:"kind" validate:"required,oneof=photo video"`
}

// RecordMediaResponse reports the running count of the lesson's files.
type RecordMediaResponse struct {
	ID    int64  `json:"id"`
	Count int    `json:"count"`
	Text  string `json:"text"`
}

// CreateExportRequest announces that a lesson's files are ready for export.
type CreateExportRequest struct {
	Location   string `json:"location" validate:"required"`
	Group      string `json:"group" validate:"required"`
	TimeSlot   string `json:"time_slot" validate:"required"`
	LessonDate string `json:"lesson_date" validate:"required"`
	Module     string `json:"module"`
	Theme      string `json:"theme"`
}

// CreateExportResponse identifies the created job.
type CreateExportResponse struct {
	JobID    int64 `json:"job_id"`
	Notified int   `json:"notified"`
}
