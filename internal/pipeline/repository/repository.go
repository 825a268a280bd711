package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
)

type FileStore interface {
	Create(ctx context.Context, f *models.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.File, error)
	GetByStorageKey(ctx context.Context, key string) (*models.File, error)
	// MarkUploadCompleted records the observed size and checksum reported
	// by the object store and stamps the completion time.
	MarkUploadCompleted(ctx context.Context, id uuid.UUID, sizeBytes int64, etag string) (*models.File, error)
	// Delete removes the file and, explicitly, everything it owns:
	// processes first lose their segments, then the processes, then the
	// file itself.
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProcessStore interface {
	Create(ctx context.Context, p *models.Process) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Process, error)
	// LatestByFile returns the most recently initiated process of the
	// given kind for a file, or ErrNotFound.
	LatestByFile(ctx context.Context, fileID uuid.UUID, kind models.ProcessKind) (*models.Process, error)
	// CreateOrGet returns the latest process of the kind for the file,
	// creating a fresh PROCESSING one when none exists yet.
	CreateOrGet(ctx context.Context, fileID, userID uuid.UUID, kind models.ProcessKind) (*models.Process, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Process, error)
	// UpdateStatus applies a status transition. The message updates the
	// free-form error/progress column when non-empty. A transition into a
	// terminal status stamps completed_at and freezes duration_ms;
	// re-applying the same terminal status is a harmless no-op. Returns
	// ErrNotFound when the process does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, message string) (*models.Process, error)
	UpdateResult(ctx context.Context, id uuid.UUID, result json.RawMessage) (*models.Process, error)
	// WithLock serializes fn against other WithLock calls for the same
	// process. Finalization runs its read-all/derive/write-one recompute
	// under this lock so two racing finalizers cannot both observe an
	// incomplete segment set and both decline to finalize.
	WithLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error
}

type SegmentStore interface {
	Create(ctx context.Context, s *models.Segment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Segment, error)
	// ListByProcess returns the process's segments in index order.
	ListByProcess(ctx context.Context, processID uuid.UUID) ([]models.Segment, error)
	// UpdateStatus applies a status transition. Entering PROCESSING stamps
	// started_at if unset; a terminal status stamps completed_at and the
	// duration. Returns ErrNotFound when the segment does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, errMessage string) (*models.Segment, error)
	// UpdateTranscription records the transcript location and summary
	// jointly with a status transition.
	UpdateTranscription(ctx context.Context, id uuid.UUID, status models.Status, transcriptKey, summary string) (*models.Segment, error)
}
