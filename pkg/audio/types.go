// Package audio holds the PCM primitives shared by the capture and playback
// pipelines: the [AudioFrame] unit, the 16-bit little-endian codec, loudness
// measurement and sample-rate conversion.
//
// Outbound (microphone) audio is 16 kHz mono; inbound (agent speech) audio is
// 24 kHz mono. Nothing in this package holds state.
package audio

import "time"

const (
	// CaptureRate is the sample rate of microphone audio sent to the agent.
	CaptureRate = 16000

	// PlaybackRate is the sample rate of synthesized speech received from the agent.
	PlaybackRate = 24000
)

// AudioFrame is an immutable block of PCM audio.
type AudioFrame struct {
	// Data is signed 16-bit little-endian PCM.
	Data []byte

	// SampleRate in Hz (CaptureRate outbound, PlaybackRate inbound).
	SampleRate int

	// Channels is always 1 in this system.
	Channels int

	// Timestamp marks when the block was captured, relative to capture start.
	Timestamp time.Duration
}

// Samples returns the number of samples per channel held by the frame.
func (f AudioFrame) Samples() int {
	if f.Channels <= 0 {
		return len(f.Data) / 2
	}
	return len(f.Data) / 2 / f.Channels
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return SamplesDuration(f.Samples(), f.SampleRate)
}

// SamplesDuration converts a sample count at rate into wall-clock time.
func SamplesDuration(samples, rate int) time.Duration {
	return time.Duration(int64(samples) * int64(time.Second) / int64(rate))
}
