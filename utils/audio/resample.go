package audio

import (
	"encoding/binary"
	"errors"
)

// ResamplePCMBytes converts 16-bit PCM between sample rates using linear
// interpolation. Good enough for speech; callers needing archival quality
// should resample at the edge instead.
func ResamplePCMBytes(pcm []byte, channels, fromRate, toRate int) ([]byte, error) {
	if err := ValidatePCMData(pcm, channels); err != nil {
		return nil, err
	}
	if fromRate <= 0 || toRate <= 0 {
		return nil, errors.New("sample rates must be positive")
	}
	if fromRate == toRate {
		return pcm, nil
	}

	frameCount := len(pcm) / 2 / channels
	outFrames := int(int64(frameCount) * int64(toRate) / int64(fromRate))
	if outFrames == 0 {
		return []byte{}, nil
	}

	out := make([]byte, outFrames*channels*2)
	ratio := float64(fromRate) / float64(toRate)

	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		i1 := i0 + 1
		if i1 >= frameCount {
			i1 = frameCount - 1
		}
		frac := srcPos - float64(i0)

		for c := 0; c < channels; c++ {
			s0 := int16(binary.LittleEndian.Uint16(pcm[(i0*channels+c)*2:]))
			s1 := int16(binary.LittleEndian.Uint16(pcm[(i1*channels+c)*2:]))
			v := float64(s0) + (float64(s1)-float64(s0))*frac
			binary.LittleEndian.PutUint16(out[(i*channels+c)*2:], uint16(int16(v)))
		}
	}

	return out, nil
}

// ResampleFloat32Mono converts float frames between sample rates using linear
// interpolation. Used by the capture path before PCM16 quantization.
func ResampleFloat32Mono(frames []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, errors.New("sample rates must be positive")
	}
	if fromRate == toRate || len(frames) == 0 {
		return frames, nil
	}

	outLen := int(int64(len(frames)) * int64(toRate) / int64(fromRate))
	if outLen == 0 {
		return []float32{}, nil
	}

	out := make([]float32, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		i1 := i0 + 1
		if i1 >= len(frames) {
			i1 = len(frames) - 1
		}
		frac := float32(srcPos - float64(i0))
		out[i] = frames[i0] + (frames[i1]-frames[i0])*frac
	}
	return out, nil
}
