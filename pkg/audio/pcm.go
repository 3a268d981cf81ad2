package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOddLength is returned by [DecodePCM16] when the payload cannot hold a
// whole number of 16-bit samples.
var ErrOddLength = errors.New("audio: odd PCM byte count")

// LoudnessGain scales raw RMS into the 0..~1 range used for level meters.
const LoudnessGain = 5

// EncodePCM16 converts float samples to signed 16-bit little-endian PCM.
// Samples are clamped to [-1, 1], scaled by 32767 and rounded to nearest.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := max(-1, min(1, float64(s)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v*32767))))
	}
	return out
}

// DecodePCM16 converts signed 16-bit little-endian PCM to float samples in
// [-1, 1) by dividing by 32768.
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out, nil
}

// RMS returns the root-mean-square amplitude of samples. An empty block has
// zero energy.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Loudness is the level-meter value for a capture block: RMS scaled by
// [LoudnessGain]. It is not clamped; callers render values above 1 as full scale.
func Loudness(samples []float32) float64 {
	return RMS(samples) * LoudnessGain
}
