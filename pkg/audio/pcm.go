package audio

import (
	"encoding/binary"
	"math"
)

// BytesToFloat32 converts 16-bit little-endian PCM to float32 samples
// normalized to [-1, 1).
func BytesToFloat32(pcm []byte) []float32 {
	out := make([]float32, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		out = append(out, float32(s)/32768.0)
	}
	return out
}

// Float32ToBytes converts normalized float32 samples back to 16-bit
// little-endian PCM, clamping out-of-range values.
func Float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// RMS returns the root mean square of 16-bit PCM, normalized to [0, 1].
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}

// PeakAmplitude returns the largest absolute normalized sample value.
func PeakAmplitude(pcm []byte) float64 {
	var peak float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		f := math.Abs(float64(s) / 32768.0)
		if f > peak {
			peak = f
		}
	}
	return peak
}

// Silence returns n samples worth of silent 16-bit PCM.
func Silence(samples int) []byte {
	if samples < 0 {
		samples = 0
	}
	return make([]byte, samples*2)
}

// DurationMillis returns the millisecond length of pcm at the given rate.
func DurationMillis(pcm []byte, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return len(pcm) / 2 * 1000 / sampleRate
}
