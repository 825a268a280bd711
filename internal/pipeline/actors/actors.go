// Package actors holds the four independently schedulable pipeline
// stages. Each actor consumes one event kind, performs its store and
// database side effects, and emits the next event(s). Failures mark the
// owning entity FAILED before the error is returned to the queue runtime,
// whose retry policy then applies.
package actors

import (
	"context"
	"fmt"
	"time"
)

// Publisher is the explicit broker handle actors emit through.
type Publisher interface {
	Publish(ctx context.Context, queue, key string, value []byte) error
}

// Chunk describes one slice of the source audio produced by a Segmenter.
// Path points at a local file holding the chunk bytes; segmenters may
// return the source path itself when they do not cut real files yet.
type Chunk struct {
	Index int
	Start time.Duration
	End   time.Duration
	Path  string
}

// Converter turns a downloaded source file into the format the segmenter
// expects and reports that format.
type Converter func(ctx context.Context, localPath string) (convertedPath, format string, err error)

// Segmenter cuts a converted file into ordered chunks.
type Segmenter func(ctx context.Context, localPath string) ([]Chunk, error)

// Transcriber produces the transcript text for one chunk file.
type Transcriber func(ctx context.Context, localPath string) (string, error)

// CopyConverter passes the source through unchanged and declares it wav.
// Stands in until real conversion (ffmpeg) is wired up.
func CopyConverter(_ context.Context, localPath string) (string, string, error) {
	return localPath, "wav", nil
}

// FixedWindowSegmenter slices the input into n fixed windows. It does not
// cut the audio yet: every chunk points at the source file. Real
// segmentation should derive windows from the actual audio duration.
func FixedWindowSegmenter(window time.Duration, n int) Segmenter {
	return func(_ context.Context, localPath string) ([]Chunk, error) {
		if n <= 0 {
			return nil, fmt.Errorf("segment count must be positive, got %d", n)
		}
		chunks := make([]Chunk, 0, n)
		for i := 0; i < n; i++ {
			chunks = append(chunks, Chunk{
				Index: i,
				Start: time.Duration(i) * window,
				End:   time.Duration(i+1) * window,
				Path:  localPath,
			})
		}
		return chunks, nil
	}
}

// PlaceholderTranscriber returns a canned transcript until a real
// speech-to-text backend is wired up.
func PlaceholderTranscriber(_ context.Context, localPath string) (string, error) {
	return fmt.Sprintf(
		"Placeholder transcription for %s. This would contain the actual transcribed text from the audio segment once a speech-to-text backend is configured.",
		localPath,
	), nil
}

// DefaultSegmenter mirrors the current placeholder behavior: three 30s
// windows per file.
func DefaultSegmenter() Segmenter {
	return FixedWindowSegmenter(30*time.Second, 3)
}

const summaryLimit = 100

// summarize returns the first 100 characters of the transcript, with an
// ellipsis when it was truncated.
func summarize(text string) string {
	runes := []rune(text)
	if len(runes) <= summaryLimit {
		return text
	}
	return string(runes[:summaryLimit]) + "..."
}
