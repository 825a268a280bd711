// Package trigger is the boundary the API layer calls to start a
// pipeline run for an uploaded file.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/events"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/repository"
)

type Publisher interface {
	Publish(ctx context.Context, queue, key string, value []byte) error
}

type Trigger struct {
	files     repository.FileStore
	processes repository.ProcessStore
	publisher Publisher
	idGen     func() uuid.UUID
	clock     func() time.Time
	log       zerolog.Logger
}

func New(files repository.FileStore, processes repository.ProcessStore, publisher Publisher, logger zerolog.Logger) *Trigger {
	return &Trigger{
		files:     files,
		processes: processes,
		publisher: publisher,
		idGen:     uuid.New,
		clock:     time.Now,
		log:       logger.With().Str("component", "trigger").Logger(),
	}
}

// StartPipeline persists a PENDING Process and publishes the entry event
// with a fresh trace id. The Process row is committed before the publish;
// if the publish fails the Process is compensated to FAILED so no PENDING
// row is left behind for a run that never started.
//
// At most one pending/processing process of a kind may exist per file;
// that is enforced here, not inside the pipeline.
func (t *Trigger) StartPipeline(ctx context.Context, fileID, userID uuid.UUID, hardware string) (*models.Process, error) {
	if fileID == uuid.Nil || userID == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}

	f, err := t.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	if f.UploadStatus != models.StatusCompleted {
		return nil, fmt.Errorf("file upload not completed: %w", models.ErrConflict)
	}

	if existing, err := t.processes.LatestByFile(ctx, fileID, models.KindTranscription); err == nil {
		if existing.Status == models.StatusPending || existing.Status == models.StatusProcessing {
			return nil, fmt.Errorf("process %s already active: %w", existing.ID, models.ErrConflict)
		}
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("check active process: %w", err)
	}

	proc := &models.Process{
		ID:          t.idGen(),
		FileID:      fileID,
		UserID:      userID,
		Kind:        models.KindTranscription,
		Status:      models.StatusPending,
		InitiatedAt: t.clock(),
	}
	if err := t.processes.Create(ctx, proc); err != nil {
		return nil, fmt.Errorf("create process: %w", err)
	}

	traceID := t.idGen()
	ev := events.FileReadyForConversion{
		Base: events.Base{
			TraceID:        traceID,
			FileID:         fileID,
			UserID:         userID,
			TargetHardware: hardware,
		},
		StorageKey:       f.StorageKey,
		OriginalFilename: f.OriginalFilename,
	}
	body, err := events.Encode(&ev)
	if err != nil {
		t.compensate(ctx, proc.ID, "failed to encode conversion event: "+err.Error())
		return nil, err
	}

	if err := t.publisher.Publish(ctx, events.QueueConvert, fileID.String(), body); err != nil {
		t.compensate(ctx, proc.ID, "failed to enqueue conversion: "+err.Error())
		return nil, fmt.Errorf("publish entry event: %w", err)
	}

	t.log.Info().
		Str("trace_id", traceID.String()).
		Str("file_id", fileID.String()).
		Str("process_id", proc.ID.String()).
		Str("target_hardware", hardware).
		Msg("pipeline started")
	return proc, nil
}

func (t *Trigger) compensate(ctx context.Context, processID uuid.UUID, message string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := t.processes.UpdateStatus(ctx, processID, models.StatusFailed, message); err != nil {
		t.log.Error().Err(err).Str("process_id", processID.String()).Msg("failed to compensate process")
	}
}
