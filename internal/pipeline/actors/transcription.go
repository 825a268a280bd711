package actors

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/events"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/fault"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/repository"
	"github.com/romariotrain/transcription-pipeline/internal/storage/objectstore"
)

// Transcription consumes SegmentCreated and produces
// TranscriptionCompleted. One invocation handles exactly one segment; a
// failure here marks only that segment FAILED and never blocks siblings.
type Transcription struct {
	segments   repository.SegmentStore
	store      objectstore.Store
	publisher  Publisher
	bucket     string
	transcribe Transcriber
	log        zerolog.Logger
}

func NewTranscription(segments repository.SegmentStore, store objectstore.Store, publisher Publisher, bucket string, logger zerolog.Logger) *Transcription {
	return &Transcription{
		segments:   segments,
		store:      store,
		publisher:  publisher,
		bucket:     bucket,
		transcribe: PlaceholderTranscriber,
		log:        logger.With().Str("component", "transcription_actor").Logger(),
	}
}

func (a *Transcription) Handle(ctx context.Context, payload []byte) error {
	var ev events.SegmentCreated
	if err := events.Decode(payload, &ev); err != nil {
		return err
	}

	log := a.log.With().
		Str("trace_id", ev.TraceID.String()).
		Str("file_id", ev.FileID.String()).
		Str("segment_id", ev.SegmentID.String()).
		Logger()
	log.Info().Int("segment_index", ev.SegmentIndex).Msg("transcription event received")

	if _, err := a.segments.GetByID(ctx, ev.SegmentID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fault.Permanent(fmt.Errorf("segment %s: %w", ev.SegmentID, err))
		}
		return fmt.Errorf("fetch segment: %w", err)
	}

	if err := a.run(ctx, log, ev); err != nil {
		a.markFailed(ctx, log, ev.SegmentID, "transcription failed: "+err.Error())
		return err
	}
	return nil
}

func (a *Transcription) run(ctx context.Context, log zerolog.Logger, ev events.SegmentCreated) error {
	if _, err := a.segments.UpdateStatus(ctx, ev.SegmentID, models.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	local, err := a.store.Download(ctx, a.bucket, ev.SegmentStorageKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return fault.Permanent(err)
		}
		return err
	}

	text, err := a.transcribe(ctx, local)
	if err != nil {
		os.Remove(local)
		return fmt.Errorf("transcribe: %w", err)
	}

	if err := os.Remove(local); err != nil {
		log.Warn().Err(err).Str("local", local).Msg("failed to remove local segment file")
	}

	key := objectstore.TranscriptKey(ev.FileID, ev.SegmentID)
	if err := objectstore.UploadText(ctx, a.store, text, a.bucket, key); err != nil {
		return err
	}
	log.Info().Str("transcript_key", key).Msg("transcript stored")

	summary := summarize(text)
	if _, err := a.segments.UpdateTranscription(ctx, ev.SegmentID, models.StatusCompleted, key, summary); err != nil {
		return fmt.Errorf("record transcription result: %w", err)
	}

	next := events.TranscriptionCompleted{
		Base:                 ev.Base,
		SegmentID:            ev.SegmentID,
		TranscriptStorageKey: key,
		Summary:              summary,
	}
	body, err := events.Encode(&next)
	if err != nil {
		return err
	}
	if err := a.publisher.Publish(ctx, events.QueueFinal, ev.SegmentID.String(), body); err != nil {
		return err
	}
	log.Info().Msg("transcription completed event published")
	return nil
}

func (a *Transcription) markFailed(ctx context.Context, log zerolog.Logger, segmentID uuid.UUID, message string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := a.segments.UpdateStatus(ctx, segmentID, models.StatusFailed, message); err != nil {
		log.Error().Err(err).Str("segment_id", segmentID.String()).Msg("failed to mark segment failed")
	}
}
