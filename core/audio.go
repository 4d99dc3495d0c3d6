package core

type AudioEncodingFormat int

const (
	PCM  AudioEncodingFormat = iota // Pulse-code modulation format.
	ULAW                            // Mu-law encoding format.
	ALAW                            // A-law encoding format.
)

type AudioChunk struct {
	Data       *[]byte             // Raw audio data.
	SampleRate int                 // Sample rate of the audio data.
	Channels   int                 // Number of audio channels.
	Format     AudioEncodingFormat // Encoding format of the audio data.
}

func (ac *AudioChunk) GetDurationInSeconds() float64 {
	if ac.SampleRate == 0 || ac.Channels == 0 {
		return 0.0
	}
	bytesPerSample := 2 // Assuming 16-bit audio (2 bytes per sample)
	totalSamples := len(*ac.Data) / (bytesPerSample * ac.Channels)
	return float64(totalSamples) / float64(ac.SampleRate)
}

// CapturedClip is one finished microphone recording: PCM16 mono at 16 kHz
// wrapped in a WAV container. Transient: consumed once by the transcription
// call, then discarded.
type CapturedClip struct {
	ID          string // Unique clip identifier.
	WAV         []byte // Complete WAV file (44-byte header + data).
	ByteLength  int    // Length of the PCM data section, excluding the header.
	SampleRate  int
	ContentType string // MIME type sent to the transcription endpoint.
}

// DurationSeconds returns the clip length derived from the PCM data section.
func (c *CapturedClip) DurationSeconds() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(c.ByteLength/2) / float64(c.SampleRate)
}
