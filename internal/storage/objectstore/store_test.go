package objectstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	fileID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	processID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	segmentID := uuid.MustParse("33333333-3333-3333-3333-333333333333")

	assert.Equal(t,
		"converted/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222.wav",
		ConvertedKey(fileID, processID, "wav"))
	assert.Equal(t,
		"segments/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222/33333333-3333-3333-3333-333333333333.wav",
		SegmentKey(fileID, processID, segmentID, "wav"))
	assert.Equal(t,
		"transcriptions/11111111-1111-1111-1111-111111111111/33333333-3333-3333-3333-333333333333.txt",
		TranscriptKey(fileID, segmentID))
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	store.Put("media", "uploads/a.mp3", []byte("audio bytes"))

	local, err := store.Download(ctx, "media", "uploads/a.mp3")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(local) })

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "audio bytes", string(data))
}

func TestMemoryDownloadMissing(t *testing.T) {
	store := NewMemory()
	_, err := store.Download(context.Background(), "media", "uploads/missing.mp3")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUploadRemovesLocal(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	f, err := os.CreateTemp(t.TempDir(), "chunk-*.wav")
	require.NoError(t, err)
	_, err = f.WriteString("chunk")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, store.Upload(ctx, f.Name(), "media", "segments/a/0.wav", UploadOptions{RemoveLocal: true}))

	_, err = os.Stat(f.Name())
	assert.True(t, os.IsNotExist(err))
	data, ok := store.Get("media", "segments/a/0.wav")
	require.True(t, ok)
	assert.Equal(t, "chunk", string(data))
}

func TestUploadText(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the content", func(t *testing.T) {
		store := NewMemory()
		require.NoError(t, UploadText(ctx, store, "transcript body", "media", "transcriptions/a/0.txt"))

		data, ok := store.Get("media", "transcriptions/a/0.txt")
		require.True(t, ok)
		assert.Equal(t, "transcript body", string(data))
	})

	t.Run("propagates upload failure", func(t *testing.T) {
		store := NewMemory()
		store.UploadHook = func(string, string) error { return errors.New("store down") }
		err := UploadText(ctx, store, "transcript body", "media", "transcriptions/a/0.txt")
		require.Error(t, err)
	})
}
