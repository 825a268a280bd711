package actors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/events"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/repository"
)

// Finalization consumes TranscriptionCompleted, once per segment, and
// recomputes the aggregate Process status from persisted segment state.
// The recompute is deterministic, so running it redundantly is safe; the
// per-process lock closes the race where the finalizers for the last two
// segments each observe an incomplete set and both decline to finalize.
//
// This actor never returns an error: it runs once per segment, and a
// poisoned finalization would otherwise stall bookkeeping for unrelated
// segments.
type Finalization struct {
	processes repository.ProcessStore
	segments  repository.SegmentStore
	log       zerolog.Logger
}

func NewFinalization(processes repository.ProcessStore, segments repository.SegmentStore, logger zerolog.Logger) *Finalization {
	return &Finalization{
		processes: processes,
		segments:  segments,
		log:       logger.With().Str("component", "finalization_actor").Logger(),
	}
}

func (a *Finalization) Handle(ctx context.Context, payload []byte) error {
	var ev events.TranscriptionCompleted
	if err := events.Decode(payload, &ev); err != nil {
		a.log.Error().Err(err).Msg("ignoring undecodable finalization payload")
		return nil
	}

	log := a.log.With().
		Str("trace_id", ev.TraceID.String()).
		Str("file_id", ev.FileID.String()).
		Str("segment_id", ev.SegmentID.String()).
		Logger()

	proc, err := a.processes.LatestByFile(ctx, ev.FileID, models.KindTranscription)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn().Msg("process not found for file, skipping finalization")
			return nil
		}
		log.Error().Err(err).Msg("failed to fetch process")
		return nil
	}

	err = a.processes.WithLock(ctx, proc.ID, func(ctx context.Context) error {
		return a.finalize(ctx, log, proc.ID)
	})
	if err != nil {
		log.Error().Err(err).Str("process_id", proc.ID.String()).Msg("finalization failed")
	}
	return nil
}

func (a *Finalization) finalize(ctx context.Context, log zerolog.Logger, processID uuid.UUID) error {
	segments, err := a.segments.ListByProcess(ctx, processID)
	if err != nil {
		return fmt.Errorf("list segments: %w", err)
	}

	var completed, failed int
	for _, s := range segments {
		switch s.Status {
		case models.StatusCompleted:
			completed++
		case models.StatusFailed:
			failed++
		}
	}
	total := len(segments)

	log.Info().
		Int("completed", completed).
		Int("failed", failed).
		Int("total", total).
		Msg("segment completion state")

	if total == 0 || completed+failed < total {
		// Not every segment is terminal yet; a later event finishes the
		// job.
		return nil
	}

	if failed == 0 {
		note := fmt.Sprintf("all %d segments transcribed successfully", completed)
		if _, err := a.processes.UpdateStatus(ctx, processID, models.StatusCompleted, note); err != nil {
			return fmt.Errorf("mark process completed: %w", err)
		}
		log.Info().Str("process_id", processID.String()).Msg("process completed")
		return nil
	}

	note := fmt.Sprintf("%d segments completed, %d segments failed", completed, failed)
	if _, err := a.processes.UpdateStatus(ctx, processID, models.StatusFailed, note); err != nil {
		return fmt.Errorf("mark process failed: %w", err)
	}
	log.Warn().Str("process_id", processID.String()).Msg("process failed due to segment failures")
	return nil
}
