package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SourceKind string

const (
	SourceAudio SourceKind = "audio"
	SourceVideo SourceKind = "video"
	SourcePDF   SourceKind = "pdf"
	SourcePPTX  SourceKind = "pptx"
	SourceDOCX  SourceKind = "docx"
)

// IsMedia reports whether the kind runs the audio path of the pipeline.
func (k SourceKind) IsMedia() bool {
	return k == SourceAudio || k == SourceVideo
}

type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobProcessing  JobStatus = "processing"
	JobStructuring JobStatus = "structuring"
	JobCompleted   JobStatus = "completed"
	JobCanceled    JobStatus = "canceled"
	JobError       JobStatus = "error"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCanceled || s == JobError
}

// CanTransition encodes the one-directional job state machine. It is the only
// gate the runner uses before mutating a job's status.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobPending:
		return to == JobProcessing || to == JobCanceled
	case JobProcessing:
		return to == JobStructuring || to == JobError || to == JobCanceled
	case JobStructuring:
		return to == JobCompleted || to == JobError
	default:
		return false
	}
}

type Job struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	SourceKind       SourceKind     `gorm:"column:source_kind;not null" json:"source_kind"`
	OriginalName     string         `gorm:"column:original_name;not null" json:"original_name"`
	MimeType         string         `gorm:"column:mime_type" json:"mime_type"`
	SizeBytes        int64          `gorm:"column:size_bytes" json:"size_bytes"`
	LanguageHint     string         `gorm:"column:language_hint" json:"language_hint,omitempty"`
	StorageKey       string         `gorm:"column:storage_key;not null" json:"storage_key"`
	Status           JobStatus      `gorm:"column:status;not null;index" json:"status"`
	Progress         float64        `gorm:"column:progress;not null;default:0" json:"progress"`
	RawText          *string        `gorm:"column:raw_text" json:"raw_text,omitempty"`
	StructuredText   *string        `gorm:"column:structured_text" json:"structured_text,omitempty"`
	DetectedLanguage *string        `gorm:"column:detected_language" json:"detected_language,omitempty"`
	ErrorMessage     *string        `gorm:"column:error_message" json:"error_message,omitempty"`
	Metadata         datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Job) TableName() string { return "ingest_job" }

// KindForUpload maps an upload's MIME type and filename onto a source kind.
// Files outside the allow-list are rejected before a job is created.
func KindForUpload(mimeType, filename string) (SourceKind, bool) {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(extOf(filename))

	switch {
	case m == "application/pdf" || ext == ".pdf":
		return SourcePDF, true
	case m == "application/vnd.openxmlformats-officedocument.presentationml.presentation" || ext == ".pptx":
		return SourcePPTX, true
	case m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" || ext == ".docx":
		return SourceDOCX, true
	case strings.HasPrefix(m, "audio/"):
		return SourceAudio, true
	case strings.HasPrefix(m, "video/"):
		return SourceVideo, true
	}

	switch ext {
	case ".mp3", ".wav", ".m4a", ".flac", ".ogg", ".opus", ".aac":
		return SourceAudio, true
	case ".mp4", ".mov", ".mkv", ".webm", ".avi", ".m4v":
		return SourceVideo, true
	}
	return "", false
}

func extOf(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return name[i:]
}
