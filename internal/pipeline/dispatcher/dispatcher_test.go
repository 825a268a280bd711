package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/repository"
)

func notification(t *testing.T, eventName, key string, size int64, etag string) []byte {
	t.Helper()
	var rec Record
	rec.EventName = eventName
	rec.S3.Bucket.Name = "media"
	rec.S3.Object.Key = key
	rec.S3.Object.Size = size
	rec.S3.Object.ETag = etag

	body, err := json.Marshal(Notification{Records: []Record{rec}})
	require.NoError(t, err)
	return body
}

func seedFile(t *testing.T, files *repository.MemoryFiles, key string) *models.File {
	t.Helper()
	f := &models.File{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		StorageKey:      key,
		UploadStatus:    models.StatusPending,
		UploadStartedAt: time.Now(),
	}
	require.NoError(t, files.Create(context.Background(), f))
	return f
}

func TestHandleMarksUploadCompleted(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	files := mem.Files()
	d := New(files, zerolog.Nop())

	f := seedFile(t, files, "uploads/recording.mp3")
	payload := notification(t, "s3:ObjectCreated:Put", f.StorageKey, 8192, "etag-42")
	require.NoError(t, d.Handle(ctx, payload))

	got, err := files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.UploadStatus)
	assert.Equal(t, int64(8192), got.SizeBytes)
	assert.Equal(t, "etag-42", got.ETag)
	require.NotNil(t, got.UploadCompletedAt)
}

func TestHandleDuplicateNotification(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	files := mem.Files()
	d := New(files, zerolog.Nop())

	f := seedFile(t, files, "uploads/recording.mp3")
	payload := notification(t, "s3:ObjectCreated:Put", f.StorageKey, 8192, "etag-42")
	require.NoError(t, d.Handle(ctx, payload))

	// The store delivers at least once; a replay keeps the first result.
	replay := notification(t, "s3:ObjectCreated:Put", f.StorageKey, 9999, "etag-other")
	require.NoError(t, d.Handle(ctx, replay))

	got, err := files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), got.SizeBytes)
	assert.Equal(t, "etag-42", got.ETag)
}

func TestHandleIgnoresNonObjectCreated(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	files := mem.Files()
	d := New(files, zerolog.Nop())

	f := seedFile(t, files, "uploads/recording.mp3")
	payload := notification(t, "s3:ObjectRemoved:Delete", f.StorageKey, 0, "")
	require.NoError(t, d.Handle(ctx, payload))

	got, err := files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.UploadStatus)
}

func TestHandleUntrackedObject(t *testing.T) {
	d := New(repository.NewMemory().Files(), zerolog.Nop())
	payload := notification(t, "s3:ObjectCreated:Put", "uploads/unknown.mp3", 1, "e")
	require.NoError(t, d.Handle(context.Background(), payload))
}

func TestHandleMalformedPayload(t *testing.T) {
	d := New(repository.NewMemory().Files(), zerolog.Nop())
	require.NoError(t, d.Handle(context.Background(), []byte("{broken")))
	require.NoError(t, d.Handle(context.Background(), []byte(`{"Records":[]}`)))
}
