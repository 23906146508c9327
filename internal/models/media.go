package models

import "time"

// MediaKind is the type of an uploaded lesson file.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// Extension is the file suffix used for archive entries.
func (k MediaKind) Extension() string {
	if k == MediaPhoto {
		return ".jpg"
	}
	return ".mp4"
}

// Valid reports a supported kind.
func (k MediaKind) Valid() bool {
	return k == MediaPhoto || k == MediaVideo
}

// MediaKey groups media by lesson occurrence.
type MediaKey struct {
	Location   string `db:"location" json:"location"`
	Group      string `db:"group_name" json:"group"`
	LessonDate string `db:"lesson_date" json:"lesson_date"`
	TimeSlot   string `db:"time_slot" json:"time_slot"`
}

// MediaItem is one remotely stored blob recorded in the media index.
type MediaItem struct {
	ID int64 `db:"id" json:"id"`
	MediaKey
	Handle      string    `db:"handle" json:"handle"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	Kind        MediaKind `db:"kind" json:"kind"`
	UploadedBy  string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ArchivePart is one materialised zip archive.
type ArchivePart struct {
	Name          string `json:"name"`
	Index         int    `json:"index"`
	TotalParts    int    `json:"total_parts"`
	Entries       int    `json:"entries"`
	DeclaredBytes int64  `json:"declared_bytes"`
	Data          []byte `json:"-"`
}

// SkippedItem records a blob that could not be retrieved.
type SkippedItem struct {
	Handle string `json:"handle"`
	Reason string `json:"reason"`
}

// PackResult is the output of packing one export.
type PackResult struct {
	Parts    []ArchivePart `json:"parts"`
	Skipped  []SkippedItem `json:"skipped,omitempty"`
	Fallback bool          `json:"fallback"`
}

// Entries counts archive entries across all parts.
func (r PackResult) Entries() int {
	total := 0
	for _, p := range r.Parts {
		total += p.Entries
	}
	return total
}
