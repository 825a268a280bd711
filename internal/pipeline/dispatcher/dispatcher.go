// Package dispatcher consumes the object store's bucket-notification
// stream and marks File uploads completed. The store publishes S3-style
// notifications to a Kafka topic; only ObjectCreated events matter here.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/repository"
)

// Notification is the S3 bucket-notification envelope, trimmed to the
// fields the dispatcher reads.
type Notification struct {
	Records []Record `json:"Records"`
}

type Record struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
			ETag string `json:"eTag"`
		} `json:"object"`
	} `json:"s3"`
}

type Dispatcher struct {
	files repository.FileStore
	log   zerolog.Logger
}

func New(files repository.FileStore, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		files: files,
		log:   logger.With().Str("component", "upload_dispatcher").Logger(),
	}
}

// Handle processes one notification payload. Malformed payloads and
// notifications for untracked objects are skipped, never retried:
// replaying them cannot make the upload known. Database errors are
// returned so the queue runtime retries the delivery.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) error {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		d.log.Warn().Err(err).Msg("skipping malformed bucket notification")
		return nil
	}
	if len(n.Records) == 0 {
		d.log.Debug().Msg("notification without records, skipping")
		return nil
	}

	for _, rec := range n.Records {
		if err := d.handleRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) handleRecord(ctx context.Context, rec Record) error {
	if !strings.Contains(rec.EventName, "s3:ObjectCreated") {
		d.log.Debug().Str("event_name", rec.EventName).Msg("skipping non-ObjectCreated event")
		return nil
	}

	key := rec.S3.Object.Key
	log := d.log.With().
		Str("bucket", rec.S3.Bucket.Name).
		Str("storage_key", key).
		Logger()

	f, err := d.files.GetByStorageKey(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidArgument) {
			// Either the pre-association step in the upload API failed
			// or the object belongs to an untracked upload.
			log.Warn().Msg("no file record for storage key, ignoring notification")
			return nil
		}
		return fmt.Errorf("fetch file by storage key: %w", err)
	}

	if f.UploadStatus == models.StatusCompleted {
		// Duplicate notification, the store delivers at least once too.
		log.Debug().Str("file_id", f.ID.String()).Msg("upload already completed, ignoring")
		return nil
	}

	updated, err := d.files.MarkUploadCompleted(ctx, f.ID, rec.S3.Object.Size, rec.S3.Object.ETag)
	if err != nil {
		return fmt.Errorf("mark upload completed: %w", err)
	}

	log.Info().
		Str("file_id", updated.ID.String()).
		Int64("size_bytes", updated.SizeBytes).
		Str("etag", updated.ETag).
		Msg("file upload completed")
	return nil
}
