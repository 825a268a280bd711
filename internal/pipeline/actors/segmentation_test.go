package actors

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/events"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/fault"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/models"
	"github.com/romariotrain/transcription-pipeline/internal/pipeline/repository"
	"github.com/romariotrain/transcription-pipeline/internal/storage/objectstore"
)

type segmentationFixture struct {
	mem   *repository.Memory
	store *objectstore.Memory
	pub   *capturingPublisher
	actor *Segmentation
	proc  *models.Process
	ev    events.ConversionCompleted
}

func newSegmentationFixture(t *testing.T, hardware string) *segmentationFixture {
	t.Helper()

	mem := repository.NewMemory()
	store := objectstore.NewMemory()
	pub := newCapturingPublisher()
	actor := NewSegmentation(mem.Processes(), mem.Segments(), store, pub, testBucket, testLogger())

	fileID, userID := uuid.New(), uuid.New()
	proc, err := mem.Processes().CreateOrGet(context.Background(), fileID, userID, models.KindTranscription)
	require.NoError(t, err)

	ev := events.ConversionCompleted{
		Base: events.Base{
			TraceID:        uuid.New(),
			FileID:         fileID,
			UserID:         userID,
			TargetHardware: hardware,
		},
		ConvertedStorageKey: fmt.Sprintf("converted/%s/%s.wav", fileID, uuid.New()),
		ConvertedFormat:     "wav",
	}
	store.Put(testBucket, ev.ConvertedStorageKey, []byte("converted audio"))

	return &segmentationFixture{mem: mem, store: store, pub: pub, actor: actor, proc: proc, ev: ev}
}

func (f *segmentationFixture) handle(t *testing.T) error {
	t.Helper()
	body, err := events.Encode(&f.ev)
	require.NoError(t, err)
	return f.actor.Handle(context.Background(), body)
}

func TestSegmentationFanOut(t *testing.T) {
	f := newSegmentationFixture(t, events.HardwareCPU)
	require.NoError(t, f.handle(t))

	segs, err := f.mem.Segments().ListByProcess(context.Background(), f.proc.ID)
	require.NoError(t, err)
	require.Len(t, segs, 3)

	seenKeys := make(map[string]bool)
	for i, s := range segs {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, models.StatusPending, s.Status)
		assert.Equal(t, f.proc.ID, s.ProcessID)
		assert.False(t, seenKeys[s.StorageKey], "segment keys must be unique")
		seenKeys[s.StorageKey] = true

		_, ok := f.store.Get(testBucket, s.StorageKey)
		assert.True(t, ok, "segment object must be uploaded")
	}

	out := f.pub.queue("transcribe_cpu")
	require.Len(t, out, 3)
	for i, msg := range out {
		var next events.SegmentCreated
		require.NoError(t, events.Decode(msg.value, &next))
		assert.Equal(t, i, next.SegmentIndex)
		assert.Equal(t, 3, next.TotalSegments)
		assert.Equal(t, f.ev.TraceID, next.TraceID)
		assert.Equal(t, next.SegmentID.String(), msg.key)
	}

	proc, err := f.mem.Processes().GetByID(context.Background(), f.proc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, proc.Status)
	assert.Equal(t, "segmentation completed, 3 segments created, pending transcription", proc.ErrorMessage)
}

func TestSegmentationHardwareRouting(t *testing.T) {
	cases := []struct {
		hardware string
		queue    string
	}{
		{"cpu", "transcribe_cpu"},
		{"gpu", "transcribe_cuda"},
		{"cuda", "transcribe_cuda"},
		{"rocm", "transcribe_rocm"},
		{"npu", "transcribe_cpu"},
	}

	for _, tc := range cases {
		t.Run(tc.hardware, func(t *testing.T) {
			f := newSegmentationFixture(t, tc.hardware)
			require.NoError(t, f.handle(t))
			assert.Len(t, f.pub.queue(tc.queue), 3)
		})
	}
}

func TestSegmentationMissingProcessIsPermanent(t *testing.T) {
	mem := repository.NewMemory()
	store := objectstore.NewMemory()
	actor := NewSegmentation(mem.Processes(), mem.Segments(), store, newCapturingPublisher(), testBucket, testLogger())

	ev := events.ConversionCompleted{
		Base: events.Base{
			TraceID: uuid.New(), FileID: uuid.New(), UserID: uuid.New(),
			TargetHardware: events.HardwareCPU,
		},
		ConvertedStorageKey: "converted/x/y.wav",
		ConvertedFormat:     "wav",
	}
	body, err := events.Encode(&ev)
	require.NoError(t, err)

	err = actor.Handle(context.Background(), body)
	require.Error(t, err)
	assert.True(t, fault.IsPermanent(err))
}

func TestSegmentationMissingConvertedObject(t *testing.T) {
	f := newSegmentationFixture(t, events.HardwareCPU)
	f.ev.ConvertedStorageKey = fmt.Sprintf("converted/%s/%s.wav", f.ev.FileID, uuid.New())

	err := f.handle(t)
	require.Error(t, err)
	assert.True(t, fault.IsPermanent(err))

	proc, err := f.mem.Processes().GetByID(context.Background(), f.proc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, proc.Status)
	assert.Contains(t, proc.ErrorMessage, "segmentation failed")
}
