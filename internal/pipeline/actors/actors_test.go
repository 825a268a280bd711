package actors

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingPublisher records published messages per queue and optionally
// fails every publish.
type capturingPublisher struct {
	mu       sync.Mutex
	messages map[string][]published
	err      error
}

type published struct {
	key   string
	value []byte
}

func newCapturingPublisher() *capturingPublisher {
	return &capturingPublisher{messages: make(map[string][]published)}
}

func (p *capturingPublisher) Publish(_ context.Context, queue, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages[queue] = append(p.messages[queue], published{key: key, value: value})
	return nil
}

func (p *capturingPublisher) queue(name string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.messages[name]...)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSummarize(t *testing.T) {
	t.Run("short text passes through", func(t *testing.T) {
		assert.Equal(t, "short", summarize("short"))
	})

	t.Run("long text truncates to 100 runes", func(t *testing.T) {
		long := strings.Repeat("a", 250)
		got := summarize(long)
		assert.Equal(t, strings.Repeat("a", 100)+"...", got)
		assert.Len(t, []rune(got), 103)
	})

	t.Run("exactly at the limit is untouched", func(t *testing.T) {
		text := strings.Repeat("b", 100)
		assert.Equal(t, text, summarize(text))
	})

	t.Run("multibyte text counts runes not bytes", func(t *testing.T) {
		long := strings.Repeat("я", 150)
		got := summarize(long)
		assert.Equal(t, strings.Repeat("я", 100)+"...", got)
	})
}

func TestFixedWindowSegmenter(t *testing.T) {
	seg := FixedWindowSegmenter(30*time.Second, 3)
	chunks, err := seg(context.Background(), "/tmp/audio.wav")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, time.Duration(i)*30*time.Second, c.Start)
		assert.Equal(t, time.Duration(i+1)*30*time.Second, c.End)
		assert.Equal(t, "/tmp/audio.wav", c.Path)
	}

	_, err = FixedWindowSegmenter(30*time.Second, 0)(context.Background(), "/tmp/audio.wav")
	require.Error(t, err)
}
