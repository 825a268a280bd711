package actors

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/events"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/repository"
	"github.com/romariotrain/transcription-pipeline/internal/storage/objectstore"
)

// queueHarness is a synchronous stand-in for the broker: published
// messages are buffered and drained in FIFO order through the actor
// registered for their queue.
type queueHarness struct {
	mu       sync.Mutex
	pending  []harnessMessage
	handlers map[string]func(ctx context.Context, payload []byte) error
}

type harnessMessage struct {
	queue string
	value []byte
}

func newQueueHarness() *queueHarness {
	return &queueHarness{handlers: make(map[string]func(context.Context, []byte) error)}
}

func (h *queueHarness) Publish(_ context.Context, queue, _ string, value []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = append(h.pending, harnessMessage{queue: queue, value: value})
	return nil
}

func (h *queueHarness) register(queue string, fn func(context.Context, []byte) error) {
	h.handlers[queue] = fn
}

// drain delivers messages until the queues are empty, ignoring handler
// errors the way the real runtime does after its retries are spent.
func (h *queueHarness) drain(t *testing.T, ctx context.Context) {
	t.Helper()
	for i := 0; ; i++ {
		require.Less(t, i, 100, "pipeline did not settle")

		h.mu.Lock()
		if len(h.pending) == 0 {
			h.mu.Unlock()
			return
		}
		msg := h.pending[0]
		h.pending = h.pending[1:]
		h.mu.Unlock()

		handler, ok := h.handlers[msg.queue]
		require.True(t, ok, "no handler for queue %s", msg.queue)
		_ = handler(ctx, msg.value)
	}
}

type pipelineFixture struct {
	mem     *repository.Memory
	store   *objectstore.Memory
	harness *queueHarness

	transcription *Transcription

	fileID uuid.UUID
	userID uuid.UUID
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	mem := repository.NewMemory()
	store := objectstore.NewMemory()
	harness := newQueueHarness()

	conversion := NewConversion(mem.Processes(), store, harness, testBucket, testLogger())
	segmentation := NewSegmentation(mem.Processes(), mem.Segments(), store, harness, testBucket, testLogger())
	transcription := NewTranscription(mem.Segments(), store, harness, testBucket, testLogger())
	finalization := NewFinalization(mem.Processes(), mem.Segments(), testLogger())

	harness.register(events.QueueConvert, conversion.Handle)
	harness.register(events.QueueSplit, segmentation.Handle)
	for _, q := range events.TranscribeQueues() {
		harness.register(q, transcription.Handle)
	}
	harness.register(events.QueueFinal, finalization.Handle)

	fileID, userID := uuid.New(), uuid.New()
	store.Put(testBucket, "uploads/recording.mp3", []byte("source audio"))

	return &pipelineFixture{
		mem: mem, store: store, harness: harness,
		transcription: transcription,
		fileID:        fileID, userID: userID,
	}
}

func (f *pipelineFixture) start(t *testing.T, ctx context.Context) {
	t.Helper()
	ev := events.FileReadyForConversion{
		Base: events.Base{
			TraceID: uuid.New(), FileID: f.fileID, UserID: f.userID,
			TargetHardware: events.HardwareCPU,
		},
		StorageKey:       "uploads/recording.mp3",
		OriginalFilename: "recording.mp3",
	}
	body, err := events.Encode(&ev)
	require.NoError(t, err)
	require.NoError(t, f.harness.Publish(ctx, events.QueueConvert, f.fileID.String(), body))
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	f.start(t, ctx)
	f.harness.drain(t, ctx)

	proc, err := f.mem.Processes().LatestByFile(ctx, f.fileID, models.KindTranscription)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, proc.Status)
	assert.Equal(t, "all 3 segments transcribed successfully", proc.ErrorMessage)
	require.NotNil(t, proc.CompletedAt)

	segs, err := f.mem.Segments().ListByProcess(ctx, proc.ID)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	for i, s := range segs {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, models.StatusCompleted, s.Status)
		assert.NotEmpty(t, s.TranscriptStorageKey)
		assert.LessOrEqual(t, len([]rune(s.Summary)), 103)

		_, ok := f.store.Get(testBucket, s.TranscriptStorageKey)
		assert.True(t, ok, "transcript object must exist")
	}
}

func TestPipelinePartialSegmentFailure(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	// Fail exactly one of the three segments.
	var mu sync.Mutex
	calls := 0
	f.transcription.transcribe = func(ctx context.Context, path string) (string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			return "", errors.New("model crashed")
		}
		return PlaceholderTranscriber(ctx, path)
	}

	f.start(t, ctx)
	f.harness.drain(t, ctx)

	proc, err := f.mem.Processes().LatestByFile(ctx, f.fileID, models.KindTranscription)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, proc.Status)
	assert.Equal(t, "2 segments completed, 1 segments failed", proc.ErrorMessage)

	segs, err := f.mem.Segments().ListByProcess(ctx, proc.ID)
	require.NoError(t, err)
	var completed, failed int
	for _, s := range segs {
		switch s.Status {
		case models.StatusCompleted:
			completed++
			assert.NotEmpty(t, s.TranscriptStorageKey)
		case models.StatusFailed:
			failed++
			assert.True(t, strings.Contains(s.ErrorMessage, "model crashed"))
		}
	}
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, failed)
}
