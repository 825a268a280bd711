package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is final: no further transitions
// are accepted once an entity reaches it.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

type ProcessKind string

const (
	KindTranscription ProcessKind = "transcription"
	KindAnalysis      ProcessKind = "analysis"
	KindUnknown       ProcessKind = "unknown"
)

// File is an uploaded source asset. The storage key is globally unique;
// the pipeline only ever mutates the upload status fields.
type File struct {
	ID                uuid.UUID  `db:"id"`
	UserID            uuid.UUID  `db:"user_id"`
	OriginalFilename  string     `db:"original_filename"`
	StorageKey        string     `db:"storage_key"`
	ContentType       string     `db:"content_type"`
	SizeBytes         int64      `db:"size_bytes"`
	UploadStatus      Status     `db:"upload_status"`
	ETag              string     `db:"etag"`
	UploadStartedAt   time.Time  `db:"upload_started_at"`
	UploadCompletedAt *time.Time `db:"upload_completed_at"`
}

// Process is one pipeline run over a File for a given kind. Once the
// status turns terminal, completed_at and duration_ms are frozen.
type Process struct {
	ID           uuid.UUID       `db:"id"`
	FileID       uuid.UUID       `db:"file_id"`
	UserID       uuid.UUID       `db:"user_id"`
	Kind         ProcessKind     `db:"kind"`
	Status       Status          `db:"status"`
	InitiatedAt  time.Time       `db:"initiated_at"`
	CompletedAt  *time.Time      `db:"completed_at"`
	DurationMS   *int64          `db:"duration_ms"`
	ErrorMessage string          `db:"error_message"`
	Result       json.RawMessage `db:"result"`
}

// Segment is one chunk produced by segmentation, owned by exactly one
// Process. File and user references are denormalized for filtering
// without joins. (process_id, segment_index) is unique.
type Segment struct {
	ID                   uuid.UUID  `db:"id"`
	ProcessID            uuid.UUID  `db:"process_id"`
	FileID               uuid.UUID  `db:"file_id"`
	UserID               uuid.UUID  `db:"user_id"`
	Index                int        `db:"segment_index"`
	StorageKey           string     `db:"storage_key"`
	Status               Status     `db:"status"`
	TranscriptStorageKey string     `db:"transcript_storage_key"`
	Summary              string     `db:"summary"`
	StartedAt            *time.Time `db:"started_at"`
	CompletedAt          *time.Time `db:"completed_at"`
	DurationMS           *int64     `db:"duration_ms"`
	ErrorMessage         string     `db:"error_message"`
}
