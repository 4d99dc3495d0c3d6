package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"carelink/utils/audio"
)

const fileFrameSamples = 320 // 20ms at 16kHz

// WAVFileDevice replays a recorded WAV file as if it were a live microphone,
// pacing frames in real time. Used by the demo binaries and in environments
// without an audio stack.
type WAVFileDevice struct {
	Path string
	// Realtime paces frames at the wall clock when set; otherwise frames are
	// delivered as fast as the consumer reads them.
	Realtime bool
}

func (d *WAVFileDevice) Open(ctx context.Context) (MicStream, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio source %q: %w", d.Path, err)
	}
	if len(data) < 44 || string(data[:4]) != "RIFF" {
		return nil, fmt.Errorf("audio source %q is not a WAV file", d.Path)
	}
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	pcm, err := audio.StripWAVHeaderIfPresent(data)
	if err != nil {
		return nil, fmt.Errorf("audio source %q: %w", d.Path, err)
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}

	stream := &fileStream{
		frames:     make(chan []float32, 8),
		sampleRate: sampleRate,
		done:       make(chan struct{}),
	}
	go stream.pump(ctx, samples, d.Realtime)
	return stream, nil
}

type fileStream struct {
	frames     chan []float32
	sampleRate int

	done      chan struct{}
	closeOnce sync.Once
}

func (s *fileStream) Frames() <-chan []float32 { return s.frames }
func (s *fileStream) SampleRate() int          { return s.sampleRate }

func (s *fileStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *fileStream) pump(ctx context.Context, samples []float32, realtime bool) {
	defer close(s.frames)

	frameSamples := fileFrameSamples * s.sampleRate / 16000
	if frameSamples <= 0 {
		frameSamples = fileFrameSamples
	}
	interval := time.Duration(frameSamples) * time.Second / time.Duration(s.sampleRate)

	for offset := 0; offset < len(samples); offset += frameSamples {
		end := offset + frameSamples
		if end > len(samples) {
			end = len(samples)
		}
		frame := make([]float32, end-offset)
		copy(frame, samples[offset:end])

		select {
		case s.frames <- frame:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
		if realtime {
			select {
			case <-time.After(interval):
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
