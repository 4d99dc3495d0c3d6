package synthesis

import (
	"io"
	"sync"
)

// Sink is the audio output the speaker plays into.
type Sink interface {
	// WritePCM appends 16-bit mono PCM to the active playback.
	WritePCM(pcm []byte) error
	// Reset stops playback and drops any queued audio. Idempotent.
	Reset()
}

// ProgressiveSink reports whether the sink can start playing before the full
// payload has arrived. Sinks that cannot are fed one fully-buffered write.
type ProgressiveSink interface {
	Sink
	SupportsProgressive() bool
}

// SupportsProgressive returns the sink's capability, defaulting to false for
// plain Sinks.
func SupportsProgressive(s Sink) bool {
	if ps, ok := s.(ProgressiveSink); ok {
		return ps.SupportsProgressive()
	}
	return false
}

// WriterSink streams PCM to an io.Writer (a sound-device pipe in the role
// binaries). Progressive by nature.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) WritePCM(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	_, err := s.w.Write(pcm)
	return err
}

func (s *WriterSink) Reset() {
	// A raw writer has no queue to clear.
}

func (s *WriterSink) SupportsProgressive() bool { return true }
