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

// Segmentation consumes ConversionCompleted and fans out one
// SegmentCreated per chunk, routed to a hardware-specific transcription
// queue chosen at publish time.
type Segmentation struct {
	processes repository.ProcessStore
	segments  repository.SegmentStore
	store     objectstore.Store
	publisher Publisher
	bucket    string
	segment   Segmenter
	idGen     func() uuid.UUID
	log       zerolog.Logger
}

func NewSegmentation(processes repository.ProcessStore, segments repository.SegmentStore, store objectstore.Store, publisher Publisher, bucket string, logger zerolog.Logger) *Segmentation {
	return &Segmentation{
		processes: processes,
		segments:  segments,
		store:     store,
		publisher: publisher,
		bucket:    bucket,
		segment:   DefaultSegmenter(),
		idGen:     uuid.New,
		log:       logger.With().Str("component", "segmentation_actor").Logger(),
	}
}

func (a *Segmentation) Handle(ctx context.Context, payload []byte) error {
	var ev events.ConversionCompleted
	if err := events.Decode(payload, &ev); err != nil {
		return err
	}

	log := a.log.With().
		Str("trace_id", ev.TraceID.String()).
		Str("file_id", ev.FileID.String()).
		Logger()
	log.Info().Str("converted_key", ev.ConvertedStorageKey).Msg("segmentation event received")

	proc, err := a.processes.LatestByFile(ctx, ev.FileID, models.KindTranscription)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Conversion commits the Process before this event is
			// published; its absence cannot heal on retry.
			return fault.Permanent(fmt.Errorf("process for file %s: %w", ev.FileID, err))
		}
		return fmt.Errorf("fetch process: %w", err)
	}

	if err := a.run(ctx, log, proc, ev); err != nil {
		a.markFailed(ctx, log, proc.ID, "segmentation failed: "+err.Error())
		return err
	}
	return nil
}

func (a *Segmentation) run(ctx context.Context, log zerolog.Logger, proc *models.Process, ev events.ConversionCompleted) error {
	if _, err := a.processes.UpdateStatus(ctx, proc.ID, models.StatusProcessing, "segmentation started"); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	local, err := a.store.Download(ctx, a.bucket, ev.ConvertedStorageKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return fault.Permanent(err)
		}
		return err
	}
	defer os.Remove(local)

	chunks, err := a.segment(ctx, local)
	if err != nil {
		return fmt.Errorf("segment: %w", err)
	}
	total := len(chunks)
	log.Info().Int("total_segments", total).Msg("segmenting file")

	queue := a.transcribeQueue(log, ev.TargetHardware)

	for i, chunk := range chunks {
		segmentID := a.idGen()
		key := objectstore.SegmentKey(ev.FileID, proc.ID, segmentID, ev.ConvertedFormat)

		// Chunks share the downloaded source file for now, so it is
		// removed together with the last upload only.
		last := i == total-1
		err := a.store.Upload(ctx, chunk.Path, a.bucket, key, objectstore.UploadOptions{
			RemoveLocal: last || chunk.Path != local,
			Metadata: map[string]string{
				"file_id":       ev.FileID.String(),
				"user_id":       ev.UserID.String(),
				"process_id":    proc.ID.String(),
				"segment_index": fmt.Sprintf("%d", chunk.Index),
			},
		})
		if err != nil {
			return err
		}

		seg := &models.Segment{
			ID:         segmentID,
			ProcessID:  proc.ID,
			FileID:     ev.FileID,
			UserID:     ev.UserID,
			Index:      chunk.Index,
			StorageKey: key,
			Status:     models.StatusPending,
		}
		if err := a.segments.Create(ctx, seg); err != nil {
			return fmt.Errorf("create segment %d: %w", chunk.Index, err)
		}

		next := events.SegmentCreated{
			Base:              ev.Base,
			ParentStorageKey:  ev.ConvertedStorageKey,
			SegmentID:         segmentID,
			SegmentStorageKey: key,
			SegmentIndex:      chunk.Index,
			TotalSegments:     total,
		}
		body, err := events.Encode(&next)
		if err != nil {
			return err
		}
		if err := a.publisher.Publish(ctx, queue, segmentID.String(), body); err != nil {
			return err
		}
		log.Info().
			Str("segment_id", segmentID.String()).
			Int("segment_index", chunk.Index).
			Str("queue", queue).
			Msg("segment created event published")
	}

	note := fmt.Sprintf("segmentation completed, %d segments created, pending transcription", total)
	if _, err := a.processes.UpdateStatus(ctx, proc.ID, models.StatusProcessing, note); err != nil {
		return fmt.Errorf("mark segmented: %w", err)
	}
	return nil
}

func (a *Segmentation) transcribeQueue(log zerolog.Logger, hardware string) string {
	normalized, ok := events.NormalizeHardware(hardware)
	if !ok {
		log.Warn().Str("target_hardware", hardware).Msg("unsupported target hardware, falling back to cpu queue")
	}
	return events.TranscribeQueue(normalized)
}

func (a *Segmentation) markFailed(ctx context.Context, log zerolog.Logger, processID uuid.UUID, message string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := a.processes.UpdateStatus(ctx, processID, models.StatusFailed, message); err != nil {
		log.Error().Err(err).Str("process_id", processID.String()).Msg("failed to mark process failed")
	}
}
