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

// Conversion consumes FileReadyForConversion and produces
// ConversionCompleted. It lazily creates the Process when the trigger
// boundary did not, so store-driven entry points can feed the pipeline
// directly.
type Conversion struct {
	processes repository.ProcessStore
	store     objectstore.Store
	publisher Publisher
	bucket    string
	convert   Converter
	idGen     func() uuid.UUID
	log       zerolog.Logger
}

func NewConversion(processes repository.ProcessStore, store objectstore.Store, publisher Publisher, bucket string, logger zerolog.Logger) *Conversion {
	return &Conversion{
		processes: processes,
		store:     store,
		publisher: publisher,
		bucket:    bucket,
		convert:   CopyConverter,
		idGen:     uuid.New,
		log:       logger.With().Str("component", "conversion_actor").Logger(),
	}
}

func (a *Conversion) Handle(ctx context.Context, payload []byte) error {
	var ev events.FileReadyForConversion
	if err := events.Decode(payload, &ev); err != nil {
		return err
	}

	log := a.log.With().
		Str("trace_id", ev.TraceID.String()).
		Str("file_id", ev.FileID.String()).
		Logger()
	log.Info().Str("storage_key", ev.StorageKey).Msg("conversion event received")

	proc, err := a.processes.CreateOrGet(ctx, ev.FileID, ev.UserID, models.KindTranscription)
	if err != nil {
		return fmt.Errorf("create or get process: %w", err)
	}

	if err := a.run(ctx, log, proc, ev); err != nil {
		a.markFailed(ctx, log, proc.ID, "conversion failed: "+err.Error())
		return err
	}
	return nil
}

func (a *Conversion) run(ctx context.Context, log zerolog.Logger, proc *models.Process, ev events.FileReadyForConversion) error {
	if _, err := a.processes.UpdateStatus(ctx, proc.ID, models.StatusProcessing, "conversion started"); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	local, err := a.store.Download(ctx, a.bucket, ev.StorageKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			// The source object is gone; no retry can bring it back.
			return fault.Permanent(err)
		}
		return err
	}
	// The converter may return the source path itself; the upload below
	// then removes it. This remove covers the case where it produced a
	// separate output file.
	defer os.Remove(local)

	converted, format, err := a.convert(ctx, local)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	key := objectstore.ConvertedKey(ev.FileID, a.idGen(), format)
	err = a.store.Upload(ctx, converted, a.bucket, key, objectstore.UploadOptions{
		RemoveLocal: true,
		Metadata: map[string]string{
			"file_id":           ev.FileID.String(),
			"user_id":           ev.UserID.String(),
			"conversion_format": format,
		},
	})
	if err != nil {
		return err
	}
	log.Info().Str("converted_key", key).Msg("file converted and uploaded")

	if _, err := a.processes.UpdateStatus(ctx, proc.ID, models.StatusProcessing, "conversion completed, pending segmentation"); err != nil {
		return fmt.Errorf("mark converted: %w", err)
	}

	next := events.ConversionCompleted{
		Base:                ev.Base,
		ConvertedStorageKey: key,
		ConvertedFormat:     format,
	}
	body, err := events.Encode(&next)
	if err != nil {
		return err
	}
	if err := a.publisher.Publish(ctx, events.QueueSplit, ev.FileID.String(), body); err != nil {
		return err
	}
	log.Info().Msg("conversion completed event published")
	return nil
}

func (a *Conversion) markFailed(ctx context.Context, log zerolog.Logger, processID uuid.UUID, message string) {
	// Best effort, detached from the (possibly expired) handler context.
	ctx = context.WithoutCancel(ctx)
	if _, err := a.processes.UpdateStatus(ctx, processID, models.StatusFailed, message); err != nil {
		log.Error().Err(err).Str("process_id", processID.String()).Msg("failed to mark process failed")
	}
}
