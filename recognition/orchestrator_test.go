package recognition

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carelink/capture"
	"carelink/core"
)

type stubStream struct {
	frames    chan []float32
	rate      int
	closeOnce sync.Once
}

func newStubStream(rate int) *stubStream {
	return &stubStream{frames: make(chan []float32, 64), rate: rate}
}

func (s *stubStream) Frames() <-chan []float32 { return s.frames }
func (s *stubStream) SampleRate() int          { return s.rate }
func (s *stubStream) Close() error {
	s.closeOnce.Do(func() { close(s.frames) })
	return nil
}

type stubDevice struct {
	mu      sync.Mutex
	openErr error
	opens   int
}

func (d *stubDevice) Open(ctx context.Context) (capture.MicStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	return newStubStream(16000), nil
}

func (d *stubDevice) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// stubRecognizer scripts a streaming session: start may fail, and results
// are pushed by the test through the captured channels. StartSession runs on
// the orchestrator's goroutine, so the emit helpers block until it happened
// and never send while holding the mutex.
type stubRecognizer struct {
	mu          sync.Mutex
	startErr    error
	finalizeErr error
	finals      chan<- string
	interims    chan<- string
	errs        chan<- error
	started     chan struct{}
	closed      int
	// onFinalize, when set, runs on Finalize; used to emit the final result.
	onFinalize func()
}

func (r *stubRecognizer) startedCh() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started == nil {
		r.started = make(chan struct{})
	}
	return r.started
}

func (r *stubRecognizer) StartSession(finalChan chan<- string, interimChan chan<- string, errorChan chan<- error) error {
	started := r.startedCh()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.finals = finalChan
	r.interims = interimChan
	r.errs = errorChan
	select {
	case <-started:
	default:
		close(started)
	}
	return nil
}

func (r *stubRecognizer) SendAudio(pcm []byte) error { return nil }

func (r *stubRecognizer) Finalize() error {
	r.mu.Lock()
	fn := r.onFinalize
	err := r.finalizeErr
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
	return err
}

func (r *stubRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *stubRecognizer) emitFinal(text string) {
	<-r.startedCh()
	r.mu.Lock()
	ch := r.finals
	r.mu.Unlock()
	ch <- text
}

func (r *stubRecognizer) emitInterim(text string) {
	<-r.startedCh()
	r.mu.Lock()
	ch := r.interims
	r.mu.Unlock()
	ch <- text
}

func (r *stubRecognizer) emitError(err error) {
	<-r.startedCh()
	r.mu.Lock()
	ch := r.errs
	r.mu.Unlock()
	ch <- err
}

type capturedCallbacks struct {
	mu       sync.Mutex
	partials []string
	finals   []string
	notices  []error
	idles    int
}

func (c *capturedCallbacks) callbacks() Callbacks {
	return Callbacks{
		OnPartial: func(text string) {
			c.mu.Lock()
			c.partials = append(c.partials, text)
			c.mu.Unlock()
		},
		OnThinking: func(text string) {
			c.mu.Lock()
			c.finals = append(c.finals, text)
			c.mu.Unlock()
		},
		OnNotice: func(err error) {
			c.mu.Lock()
			c.notices = append(c.notices, err)
			c.mu.Unlock()
		},
		OnIdle: func() {
			c.mu.Lock()
			c.idles++
			c.mu.Unlock()
		},
	}
}

func (c *capturedCallbacks) finalTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.finals...)
}

func (c *capturedCallbacks) firstNotice() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.notices) == 0 {
		return nil
	}
	return c.notices[0]
}

func (c *capturedCallbacks) idleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idles
}

func fastConfig() Config {
	return Config{
		Language:         "en",
		EmptyResultDelay: 10 * time.Millisecond,
		PermissionDelay:  10 * time.Millisecond,
		FinalizeTimeout:  200 * time.Millisecond,
	}
}

func TestOrchestratorStreamingFinalMovesToThinking(t *testing.T) {
	device := &stubDevice{}
	rec := &stubRecognizer{}
	cb := &capturedCallbacks{}
	o := NewOrchestrator(device, rec, nil, nil, fastConfig(), cb.callbacks(), core.NewDevelopmentLogger())

	require.NoError(t, o.StartListening(context.Background()))
	require.Equal(t, core.CapabilityStreamingRecognizer, o.Capability())

	rec.emitInterim("how")
	rec.emitFinal("how are you")

	require.Eventually(t, func() bool { return o.State() == StateThinking }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"how are you"}, cb.finalTexts())

	o.Reset()
	require.Equal(t, StateIdle, o.State())
}

func TestOrchestratorRejectsConcurrentStart(t *testing.T) {
	device := &stubDevice{}
	rec := &stubRecognizer{}
	o := NewOrchestrator(device, rec, nil, nil, fastConfig(), Callbacks{}, core.NewDevelopmentLogger())

	require.NoError(t, o.StartListening(context.Background()))
	require.ErrorIs(t, o.StartListening(context.Background()), core.ErrPhaseBusy)
	o.Cancel()
}

func TestOrchestratorPermissionDeniedNeverFallsBack(t *testing.T) {
	device := &stubDevice{openErr: core.PermissionDeniedError("microphone")}
	rec := &stubRecognizer{}
	cb := &capturedCallbacks{}
	recorder := capture.NewRecorder(device, capture.DefaultRecorderConfig(), core.NewDevelopmentLogger())
	o := NewOrchestrator(device, rec, recorder, nil, fastConfig(), cb.callbacks(), core.NewDevelopmentLogger())

	require.NoError(t, o.StartListening(context.Background()))

	require.Eventually(t, func() bool { return cb.idleCount() > 0 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, cb.firstNotice(), core.ErrPermissionDenied)

	// The capture tier would need the same microphone; exactly one open
	// attempt means no fallback happened.
	require.Equal(t, 1, device.openCount())
	require.Equal(t, StateIdle, o.State())
}

func TestOrchestratorStreamingFailureFallsBackToCapture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transcript": "captured text"}`))
	}))
	defer server.Close()

	device := &stubDevice{}
	rec := &stubRecognizer{startErr: core.TransportError("recognizer dial", nil)}
	cb := &capturedCallbacks{}
	recorder := capture.NewRecorder(device, capture.DefaultRecorderConfig(), core.NewDevelopmentLogger())
	transcriber := NewTranscriptionClient(server.URL, "")
	o := NewOrchestrator(device, rec, recorder, transcriber, fastConfig(), cb.callbacks(), core.NewDevelopmentLogger())

	require.NoError(t, o.StartListening(context.Background()))

	require.Eventually(t, func() bool {
		return o.Capability() == core.CapabilityCapturePipeline
	}, time.Second, 5*time.Millisecond)

	// The recorder resamples and quantizes what the device produced; feed it
	// enough frames by stopping only after the capture tier had a moment.
	time.Sleep(20 * time.Millisecond)
	o.StopListening()

	require.Eventually(t, func() bool {
		state := o.State()
		return state == StateThinking || cb.idleCount() > 0
	}, 2*time.Second, 5*time.Millisecond)

	// Both outcomes are legitimate: a transcript when the stub device produced
	// enough audio, or an empty-result notice when it did not. Either way the
	// fallback tier ran.
	require.Equal(t, 2, device.openCount())
}

func TestOrchestratorEmptyFinalNoticesAndIdles(t *testing.T) {
	device := &stubDevice{}
	rec := &stubRecognizer{}
	cb := &capturedCallbacks{}
	o := NewOrchestrator(device, rec, nil, nil, fastConfig(), cb.callbacks(), core.NewDevelopmentLogger())

	require.NoError(t, o.StartListening(context.Background()))
	rec.emitFinal("   ")

	require.Eventually(t, func() bool { return cb.idleCount() > 0 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, cb.firstNotice(), core.ErrEmptyResult)
	require.Empty(t, cb.finalTexts())
	require.Equal(t, StateIdle, o.State())
}

func TestOrchestratorFinalizeTimeoutNotices(t *testing.T) {
	device := &stubDevice{}
	rec := &stubRecognizer{} // never emits a final
	cb := &capturedCallbacks{}
	o := NewOrchestrator(device, rec, nil, nil, fastConfig(), cb.callbacks(), core.NewDevelopmentLogger())

	require.NoError(t, o.StartListening(context.Background()))
	o.StopListening()

	require.Eventually(t, func() bool { return cb.idleCount() > 0 }, 2*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, cb.firstNotice(), core.ErrEmptyResult)
}

func TestOrchestratorMidListenErrorFallsBackToCapture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transcript": "captured text"}`))
	}))
	defer server.Close()

	device := &stubDevice{}
	rec := &stubRecognizer{}
	cb := &capturedCallbacks{}
	recorder := capture.NewRecorder(device, capture.DefaultRecorderConfig(), core.NewDevelopmentLogger())
	transcriber := NewTranscriptionClient(server.URL, "")
	o := NewOrchestrator(device, rec, recorder, transcriber, fastConfig(), cb.callbacks(), core.NewDevelopmentLogger())

	require.NoError(t, o.StartListening(context.Background()))
	rec.emitError(core.TransportError("socket", nil))

	// An error before any stop still falls back to the capture tier.
	require.Eventually(t, func() bool {
		return o.Capability() == core.CapabilityCapturePipeline
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 2, device.openCount())

	o.StopListening()
	require.Eventually(t, func() bool {
		return o.State() == StateThinking || cb.idleCount() > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOrchestratorStopThenFinalizeFailureDegradesToIdle(t *testing.T) {
	device := &stubDevice{}
	rec := &stubRecognizer{finalizeErr: core.TransportError("finalize", nil)}
	cb := &capturedCallbacks{}
	recorder := capture.NewRecorder(device, capture.DefaultRecorderConfig(), core.NewDevelopmentLogger())
	o := NewOrchestrator(device, rec, recorder, nil, fastConfig(), cb.callbacks(), core.NewDevelopmentLogger())

	require.NoError(t, o.StartListening(context.Background()))
	<-rec.startedCh()
	o.StopListening()

	// The user already stopped, so the failure must surface as a notice and
	// the session must land in Idle, not restart on the capture tier.
	require.Eventually(t, func() bool { return cb.idleCount() > 0 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, cb.firstNotice(), core.ErrTransportFailure)
	require.Equal(t, StateIdle, o.State())
	require.Equal(t, 1, device.openCount())

	// A second stop on the finished session stays a no-op.
	o.StopListening()
	require.Equal(t, StateIdle, o.State())
}

func TestOrchestratorMirrorsRecorderCeiling(t *testing.T) {
	device := &stubDevice{}
	cb := &capturedCallbacks{}
	config := capture.DefaultRecorderConfig()
	config.MaxDuration = 30 * time.Millisecond
	recorder := capture.NewRecorder(device, config, core.NewDevelopmentLogger())
	o := NewOrchestrator(device, nil, recorder, nil, fastConfig(), cb.callbacks(), core.NewDevelopmentLogger())

	require.NoError(t, o.StartListening(context.Background()))

	// No stop is issued; the configured ceiling alone must finalize the
	// attempt. The silent stub stream yields an empty-result notice.
	require.Eventually(t, func() bool { return cb.idleCount() > 0 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, cb.firstNotice(), core.ErrEmptyResult)
	require.Equal(t, StateIdle, o.State())
}

func TestOrchestratorCancelReturnsToIdle(t *testing.T) {
	device := &stubDevice{}
	rec := &stubRecognizer{}
	cb := &capturedCallbacks{}
	o := NewOrchestrator(device, rec, nil, nil, fastConfig(), cb.callbacks(), core.NewDevelopmentLogger())

	require.NoError(t, o.StartListening(context.Background()))
	o.Cancel()

	require.Eventually(t, func() bool { return o.State() == StateIdle }, time.Second, 5*time.Millisecond)
	require.Nil(t, cb.firstNotice())
}
