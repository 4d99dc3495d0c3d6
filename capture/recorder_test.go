package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carelink/core"
)

type fakeStream struct {
	frames     chan []float32
	sampleRate int
	closeOnce  sync.Once
	closed     chan struct{}
}

func newFakeStream(sampleRate int) *fakeStream {
	return &fakeStream{
		frames:     make(chan []float32, 64),
		sampleRate: sampleRate,
		closed:     make(chan struct{}),
	}
}

func (s *fakeStream) Frames() <-chan []float32 { return s.frames }
func (s *fakeStream) SampleRate() int          { return s.sampleRate }
func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		close(s.frames)
	})
	return nil
}

type fakeDevice struct {
	stream  *fakeStream
	openErr error
	opens   int
}

func (d *fakeDevice) Open(ctx context.Context) (MicStream, error) {
	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.stream, nil
}

// feed pushes n frames of constant amplitude into the stream.
func feed(s *fakeStream, n, samplesPerFrame int) {
	for i := 0; i < n; i++ {
		frame := make([]float32, samplesPerFrame)
		for j := range frame {
			frame[j] = 0.25
		}
		s.frames <- frame
	}
}

func TestRecorderProducesWAVClip(t *testing.T) {
	stream := newFakeStream(16000)
	device := &fakeDevice{stream: stream}
	recorder := NewRecorder(device, DefaultRecorderConfig(), core.NewDevelopmentLogger())

	capture, err := recorder.Start(context.Background())
	require.NoError(t, err)

	// 20 frames of 320 samples = 12800 bytes of PCM, over the threshold.
	feed(stream, 20, 320)

	clip, err := capture.Stop()
	require.NoError(t, err)
	require.NotEmpty(t, clip.ID)
	require.Equal(t, "audio/wav", clip.ContentType)
	require.Equal(t, 16000, clip.SampleRate)
	require.Equal(t, 20*320*2, clip.ByteLength)
	require.Len(t, clip.WAV, 44+clip.ByteLength)
	require.Equal(t, "RIFF", string(clip.WAV[0:4]))
}

func TestRecorderRejectsShortClip(t *testing.T) {
	stream := newFakeStream(16000)
	device := &fakeDevice{stream: stream}
	recorder := NewRecorder(device, DefaultRecorderConfig(), core.NewDevelopmentLogger())

	capture, err := recorder.Start(context.Background())
	require.NoError(t, err)

	// 2400 bytes of PCM, under the 5000-byte threshold.
	feed(stream, 3, 400)

	clip, err := capture.Stop()
	require.Nil(t, clip)
	require.ErrorIs(t, err, core.ErrEmptyResult)
}

func TestRecorderStopIsIdempotent(t *testing.T) {
	stream := newFakeStream(16000)
	device := &fakeDevice{stream: stream}
	recorder := NewRecorder(device, DefaultRecorderConfig(), core.NewDevelopmentLogger())

	capture, err := recorder.Start(context.Background())
	require.NoError(t, err)
	feed(stream, 20, 320)

	first, err1 := capture.Stop()
	second, err2 := capture.Stop()
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Same(t, first, second)
}

func TestRecorderKeepsFramesQueuedAtStop(t *testing.T) {
	stream := newFakeStream(16000)
	device := &fakeDevice{stream: stream}
	recorder := NewRecorder(device, DefaultRecorderConfig(), core.NewDevelopmentLogger())

	capture, err := recorder.Start(context.Background())
	require.NoError(t, err)

	// Stop immediately after feeding: frames the collector has not drained
	// yet arrived before the stop and must still end up in the clip.
	feed(stream, 40, 320)
	clip, err := capture.Stop()
	require.NoError(t, err)
	require.Equal(t, 40*320*2, clip.ByteLength)
}

func TestRecorderAutoStopsAtCeiling(t *testing.T) {
	stream := newFakeStream(16000)
	device := &fakeDevice{stream: stream}
	config := DefaultRecorderConfig()
	config.MaxDuration = 30 * time.Millisecond
	recorder := NewRecorder(device, config, core.NewDevelopmentLogger())

	capture, err := recorder.Start(context.Background())
	require.NoError(t, err)
	feed(stream, 20, 320)

	require.Eventually(t, capture.AutoStopped, time.Second, 5*time.Millisecond)

	clip, err := capture.Stop()
	require.NoError(t, err)
	require.NotNil(t, clip)
}

func TestRecorderPermissionDeniedPassesThrough(t *testing.T) {
	device := &fakeDevice{openErr: core.PermissionDeniedError("microphone")}
	recorder := NewRecorder(device, DefaultRecorderConfig(), core.NewDevelopmentLogger())

	_, err := recorder.Start(context.Background())
	require.ErrorIs(t, err, core.ErrPermissionDenied)
}

func TestRecorderCancelDiscardsClip(t *testing.T) {
	stream := newFakeStream(16000)
	device := &fakeDevice{stream: stream}
	recorder := NewRecorder(device, DefaultRecorderConfig(), core.NewDevelopmentLogger())

	capture, err := recorder.Start(context.Background())
	require.NoError(t, err)
	feed(stream, 20, 320)

	capture.Cancel()
	capture.Cancel()

	clip, err := capture.Stop()
	require.Nil(t, clip)
	require.Error(t, err)

	// A finished capture frees the recorder for the next one.
	stream2 := newFakeStream(16000)
	device.stream = stream2
	_, err = recorder.Start(context.Background())
	require.NoError(t, err)
}

func TestRecorderResamplesDeviceRate(t *testing.T) {
	stream := newFakeStream(48000)
	device := &fakeDevice{stream: stream}
	recorder := NewRecorder(device, DefaultRecorderConfig(), core.NewDevelopmentLogger())

	capture, err := recorder.Start(context.Background())
	require.NoError(t, err)

	// 48kHz frames shrink 3x on the way to 16kHz.
	feed(stream, 30, 960)

	clip, err := capture.Stop()
	require.NoError(t, err)
	require.Equal(t, 30*960/3*2, clip.ByteLength)
}
