package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"carelink/core"

	"github.com/zaf/g711"
)

// PCM constants
const (
	pcmMax = 32767  // Max 16-bit PCM value
	pcmMin = -32768 // Min 16-bit PCM value
)

// Pool for WAV header buffers (typically 44-46 bytes)
var wavHeaderPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 64))
	},
}

// getWavHeaderBuffer retrieves a buffer from the WAV header pool
func getWavHeaderBuffer() *bytes.Buffer {
	return wavHeaderPool.Get().(*bytes.Buffer)
}

// putWavHeaderBuffer returns a buffer to the WAV header pool
func putWavHeaderBuffer(buf *bytes.Buffer) {
	buf.Reset()
	wavHeaderPool.Put(buf)
}

// Float32ToPCM16Bytes quantizes 32-bit float frames in [-1, 1] to 16-bit
// little-endian PCM, clamping out-of-range values.
func Float32ToPCM16Bytes(frames []float32) []byte {
	out := make([]byte, len(frames)*2)
	for i, f := range frames {
		s := int(f * 32767)
		if s > pcmMax {
			s = pcmMax
		}
		if s < pcmMin {
			s = pcmMin
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}

// MergeFloat32Buffers concatenates buffered float frames into one slice.
func MergeFloat32Buffers(buffers [][]float32) []float32 {
	total := 0
	for _, b := range buffers {
		total += len(b)
	}
	merged := make([]float32, 0, total)
	for _, b := range buffers {
		merged = append(merged, b...)
	}
	return merged
}

// PCMBytesToULaw converts PCM bytes to mu-law
func PCMBytesToULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeUlaw(pcm), nil
}

// ULawBytesToPCM converts mu-law bytes to PCM bytes
func ULawBytesToPCM(uBytes []byte) []byte {
	return g711.DecodeUlaw(uBytes)
}

// PCMBytesToALaw converts PCM bytes to A-law
func PCMBytesToALaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeAlaw(pcm), nil
}

// ALawBytesToPCM converts A-law bytes to PCM bytes
func ALawBytesToPCM(aBytes []byte) []byte {
	return g711.DecodeAlaw(aBytes)
}

// PCMBytesToWavBytes wraps PCM []byte into WAV []byte (16-bit little endian).
// Supports mono or stereo.
func PCMBytesToWavBytes(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("PCM data is empty")
	}
	if numChannels <= 0 || numChannels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	buf := getWavHeaderBuffer()
	defer putWavHeaderBuffer(buf)

	// WAV format constants
	const (
		bitsPerSample  = 16
		audioFormatPCM = 1
		subchunk1Size  = 16
	)

	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm)
	fileSize := 36 + dataSize // 36 = WAV header size

	// Write RIFF header
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(fileSize))
	buf.WriteString("WAVE")

	// Write fmt sub-chunk
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	// Write data sub-chunk
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	// Combine header and PCM data
	result := make([]byte, buf.Len()+len(pcm))
	copy(result, buf.Bytes())
	copy(result[buf.Len():], pcm)

	return result, nil
}

// ValidatePCMData validates PCM byte array for basic integrity
func ValidatePCMData(pcm []byte, numChannels int) error {
	if len(pcm)%2 != 0 {
		return errors.New("PCM data must have even length (16-bit samples)")
	}
	if len(pcm) == 0 {
		return errors.New("PCM data is empty")
	}
	if numChannels <= 0 {
		return errors.New("invalid number of channels")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return errors.New("PCM data length doesn't match channel count")
	}
	return nil
}

// GetPCMDurationSeconds returns duration in seconds
func GetPCMDurationSeconds(pcm []byte, numChannels, sampleRate int) (float64, error) {
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return 0, err
	}
	if sampleRate <= 0 {
		return 0, errors.New("invalid sample rate")
	}
	frameCount := len(pcm) / 2 / numChannels
	return float64(frameCount) / float64(sampleRate), nil
}

// StripWAVHeaderIfPresent returns raw PCM bytes if input starts with a RIFF/WAVE header.
// If the input is not a WAV file, it returns the input unchanged.
// Only extracts the "data" chunk and ignores other subchunks.
func StripWAVHeaderIfPresent(chunk []byte) ([]byte, error) {
	// Minimum RIFF header size: 12 bytes ("RIFF" + size + "WAVE")
	if len(chunk) < 12 {
		return chunk, nil
	}
	if !bytes.HasPrefix(chunk, []byte("RIFF")) || !bytes.Equal(chunk[8:12], []byte("WAVE")) {
		return chunk, nil
	}

	i := 12
	for i+8 <= len(chunk) {
		chunkID := string(chunk[i : i+4])
		chunkSize := binary.LittleEndian.Uint32(chunk[i+4 : i+8])
		next := i + 8 + int(chunkSize)

		if chunkID == "data" {
			if next > len(chunk) {
				return nil, errors.New("invalid WAV: data chunk exceeds buffer length")
			}
			return chunk[i+8 : next], nil
		}

		// Account for padding to even boundary
		if chunkSize%2 != 0 {
			next++
		}
		if next > len(chunk) {
			break
		}
		i = next
	}

	return nil, errors.New("invalid WAV: data chunk not found")
}

// ConvertAudioChunk converts audio data between formats, sample rates, and channel counts
func ConvertAudioChunk(
	input core.AudioChunk,
	targetFormat core.AudioEncodingFormat,
	targetChannels int,
	targetSampleRate int,
) (core.AudioChunk, error) {
	needToConvertFormat := input.Format != targetFormat
	needToConvertSampleRate := input.SampleRate != targetSampleRate
	needToConvertChannels := input.Channels != targetChannels

	if !needToConvertFormat && !needToConvertSampleRate && !needToConvertChannels {
		return input, nil
	}

	// First convert everything to PCM as intermediate format
	if input.Format != core.PCM {
		pcmBytes, err := convertToPCM(input)
		if err != nil {
			return core.AudioChunk{}, err
		}
		input.Data = &pcmBytes
		input.Format = core.PCM
	}

	if needToConvertChannels {
		pcmBytes, err := convertChannels(*input.Data, input.Channels, targetChannels)
		if err != nil {
			return core.AudioChunk{}, err
		}
		input.Data = &pcmBytes
		input.Channels = targetChannels
	}

	if needToConvertSampleRate {
		resampledBytes, err := ResamplePCMBytes(*input.Data, input.Channels, input.SampleRate, targetSampleRate)
		if err != nil {
			return core.AudioChunk{}, err
		}
		input.Data = &resampledBytes
		input.SampleRate = targetSampleRate
	}

	if needToConvertFormat && targetFormat != core.PCM {
		convertedBytes, err := convertFromPCM(*input.Data, targetFormat)
		if err != nil {
			return core.AudioChunk{}, err
		}
		input.Data = &convertedBytes
		input.Format = targetFormat
	}

	return input, nil
}

// convertToPCM converts encoded audio to PCM
func convertToPCM(input core.AudioChunk) ([]byte, error) {
	switch input.Format {
	case core.ULAW:
		return ULawBytesToPCM(*input.Data), nil
	case core.ALAW:
		return ALawBytesToPCM(*input.Data), nil
	default:
		return nil, errors.New("unsupported format for PCM conversion")
	}
}

// convertFromPCM converts PCM to target format
func convertFromPCM(pcm []byte, targetFormat core.AudioEncodingFormat) ([]byte, error) {
	switch targetFormat {
	case core.ULAW:
		return PCMBytesToULaw(pcm)
	case core.ALAW:
		return PCMBytesToALaw(pcm)
	default:
		return nil, errors.New("unsupported target format")
	}
}

// convertChannels converts between mono and stereo PCM
func convertChannels(pcm []byte, fromChannels, toChannels int) ([]byte, error) {
	if fromChannels == toChannels {
		return pcm, nil
	}
	if fromChannels == 1 && toChannels == 2 {
		return monoToStereo(pcm), nil
	}
	if fromChannels == 2 && toChannels == 1 {
		return stereoToMono(pcm), nil
	}
	return nil, fmt.Errorf("unsupported channel conversion: %d to %d", fromChannels, toChannels)
}

// monoToStereo converts mono PCM to stereo by duplicating channels
func monoToStereo(monoPCM []byte) []byte {
	samples := len(monoPCM) / 2
	result := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		// Copy left channel
		result[i*4] = monoPCM[i*2]
		result[i*4+1] = monoPCM[i*2+1]
		// Copy right channel (same as left)
		result[i*4+2] = monoPCM[i*2]
		result[i*4+3] = monoPCM[i*2+1]
	}
	return result
}

// stereoToMono converts stereo PCM to mono by averaging channels
func stereoToMono(stereoPCM []byte) []byte {
	samples := len(stereoPCM) / 4
	result := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		left := int16(binary.LittleEndian.Uint16(stereoPCM[i*4 : i*4+2]))
		right := int16(binary.LittleEndian.Uint16(stereoPCM[i*4+2 : i*4+4]))
		mono := (int(left) + int(right)) / 2
		binary.LittleEndian.PutUint16(result[i*2:], uint16(int16(mono)))
	}
	return result
}
