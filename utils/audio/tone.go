package audio

import (
	"encoding/binary"
	"math"
)

// GenerateTonePCM produces 16-bit mono PCM of a sine tone at the given
// frequency. amplitude is in [0, 1].
func GenerateTonePCM(freqHz float64, durationMs, sampleRate int, amplitude float64) []byte {
	if amplitude > 1 {
		amplitude = 1
	}
	if amplitude < 0 {
		amplitude = 0
	}
	samples := sampleRate * durationMs / 1000
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}

// GenerateAlertPattern produces the emergency alert audio: alternating
// high/low beeps separated by short silences. Returned as 16-bit mono PCM.
func GenerateAlertPattern(sampleRate int) []byte {
	high := GenerateTonePCM(880, 200, sampleRate, 0.8)
	low := GenerateTonePCM(660, 200, sampleRate, 0.8)
	gap := make([]byte, sampleRate*80/1000*2) // 80 ms of silence

	var out []byte
	for i := 0; i < 3; i++ {
		out = append(out, high...)
		out = append(out, gap...)
		out = append(out, low...)
		out = append(out, gap...)
	}
	return out
}
