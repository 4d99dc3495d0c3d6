package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"carelink/core"
	"carelink/utils/audio"

	"github.com/google/uuid"
)

const (
	// TargetSampleRate is the rate every clip is resampled to before
	// quantization, matching what the transcription endpoint expects.
	TargetSampleRate = 16000

	// MinClipBytes is the rejection threshold: clips whose PCM section is
	// shorter than this are treated as noise and never sent for
	// transcription.
	MinClipBytes = 5000

	// MaxRecordingDuration is the hard ceiling for one recording. The
	// recorder auto-stops when it is reached.
	MaxRecordingDuration = 10 * time.Second

	clipContentType = "audio/wav"
)

// RecorderConfig holds configuration for the microphone recorder.
type RecorderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	MinClipBytes     int           `json:"min_clip_bytes"`
	MaxDuration      time.Duration `json:"max_duration"`
}

// DefaultRecorderConfig returns a RecorderConfig with the standard limits.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		TargetSampleRate: TargetSampleRate,
		MinClipBytes:     MinClipBytes,
		MaxDuration:      MaxRecordingDuration,
	}
}

// Recorder records microphone input into WAV clips. One Recorder may run one
// capture at a time; Start while a capture is active returns an error.
type Recorder struct {
	device MicDevice
	config RecorderConfig
	logger *core.Logger

	mu     sync.Mutex
	active *Capture
}

func NewRecorder(device MicDevice, config RecorderConfig, logger *core.Logger) *Recorder {
	if config.TargetSampleRate == 0 {
		config.TargetSampleRate = TargetSampleRate
	}
	if config.MinClipBytes == 0 {
		config.MinClipBytes = MinClipBytes
	}
	if config.MaxDuration == 0 {
		config.MaxDuration = MaxRecordingDuration
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Recorder{
		device: device,
		config: config,
		logger: logger,
	}
}

// Config returns the recorder's effective configuration after defaulting.
func (r *Recorder) Config() RecorderConfig {
	return r.config
}

// Start opens the microphone and begins buffering frames. The returned
// Capture auto-stops when the duration ceiling is reached or ctx is
// cancelled; in both cases the device stream is released immediately.
func (r *Recorder) Start(ctx context.Context) (*Capture, error) {
	r.mu.Lock()
	if r.active != nil && !r.active.finished() {
		r.mu.Unlock()
		return nil, errors.New("recorder: capture already in progress")
	}
	r.mu.Unlock()

	stream, err := r.device.Open(ctx)
	if err != nil {
		if errors.Is(err, core.ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("recorder: open microphone: %w", err)
	}

	c := &Capture{
		recorder:   r,
		stream:     stream,
		deviceRate: stream.SampleRate(),
		done:       make(chan struct{}),
	}

	r.mu.Lock()
	r.active = c
	r.mu.Unlock()

	go c.collect(ctx, r.config.MaxDuration)
	return c, nil
}

// Capture is one in-flight recording. It owns the device stream exclusively
// and releases it on Stop, Cancel, ceiling auto-stop, or context
// cancellation, whichever comes first.
type Capture struct {
	recorder   *Recorder
	stream     MicStream
	deviceRate int

	mu          sync.Mutex
	buffers     [][]float32
	stopped     bool
	autoStopped bool
	clip        *core.CapturedClip
	clipErr     error

	done chan struct{} // closed when the collect loop has exited
}

// collect buffers incoming frames until the stream closes, the ceiling is
// reached, or the context is cancelled.
func (c *Capture) collect(ctx context.Context, maxDuration time.Duration) {
	defer close(c.done)
	defer c.stream.Close()

	ceiling := time.NewTimer(maxDuration)
	defer ceiling.Stop()

	for {
		select {
		case frames, ok := <-c.stream.Frames():
			if !ok {
				return
			}
			// Frames still queued when Stop closes the stream were delivered
			// before the stop; keep them. The close bounds the drain.
			c.mu.Lock()
			// Copy: the device may reuse the frame buffer.
			buf := make([]float32, len(frames))
			copy(buf, frames)
			c.buffers = append(c.buffers, buf)
			c.mu.Unlock()
		case <-ceiling.C:
			c.mu.Lock()
			c.autoStopped = true
			c.mu.Unlock()
			return
		case <-ctx.Done():
			return
		}
	}
}

// AutoStopped reports whether the recording hit the duration ceiling.
func (c *Capture) AutoStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoStopped
}

// Stop finalizes the recording: releases the device stream, merges the
// buffered frames, resamples to the target rate, quantizes to PCM16 and
// wraps the result in a WAV container. Clips below the rejection threshold
// yield core.ErrEmptyResult. Stop is idempotent; repeated calls return the
// first result.
func (c *Capture) Stop() (*core.CapturedClip, error) {
	c.mu.Lock()
	if c.stopped {
		clip, err := c.clip, c.clipErr
		c.mu.Unlock()
		return clip, err
	}
	c.stopped = true
	c.mu.Unlock()

	c.stream.Close()
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.recorder.config
	merged := audio.MergeFloat32Buffers(c.buffers)
	c.buffers = nil

	resampled, err := audio.ResampleFloat32Mono(merged, c.deviceRate, cfg.TargetSampleRate)
	if err != nil {
		c.clipErr = fmt.Errorf("recorder: resample: %w", err)
		return nil, c.clipErr
	}
	pcm := audio.Float32ToPCM16Bytes(resampled)

	if len(pcm) < cfg.MinClipBytes {
		c.recorder.logger.Debug("recorder: clip below noise threshold",
			"bytes", len(pcm), "threshold", cfg.MinClipBytes)
		c.clipErr = core.EmptyResultError("clip too short")
		return nil, c.clipErr
	}

	wav, err := audio.PCMBytesToWavBytes(pcm, 1, cfg.TargetSampleRate)
	if err != nil {
		c.clipErr = fmt.Errorf("recorder: wrap wav: %w", err)
		return nil, c.clipErr
	}

	c.clip = &core.CapturedClip{
		ID:          uuid.New().String(),
		WAV:         wav,
		ByteLength:  len(pcm),
		SampleRate:  cfg.TargetSampleRate,
		ContentType: clipContentType,
	}
	return c.clip, nil
}

// Cancel discards the recording and releases the device stream without
// producing a clip. Safe to call at any time, any number of times.
func (c *Capture) Cancel() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.clipErr = errors.New("recorder: capture cancelled")
	c.mu.Unlock()

	c.stream.Close()
	<-c.done

	c.mu.Lock()
	c.buffers = nil
	c.mu.Unlock()
}

func (c *Capture) finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
