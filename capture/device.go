package capture

import "context"

// MicStream is an open microphone stream delivering 32-bit float frames at
// the device sample rate. The frames channel is closed when the stream ends.
type MicStream interface {
	Frames() <-chan []float32
	SampleRate() int
	Close() error // must be safe to call more than once
}

// MicDevice opens microphone streams. Implementations must wrap
// core.ErrPermissionDenied when the user or OS refuses device access, so the
// orchestrator can skip the fallback tier.
type MicDevice interface {
	Open(ctx context.Context) (MicStream, error)
}
