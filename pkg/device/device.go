// Package device defines the host capture and output devices used by a voice
// session: a microphone, a speaker and an optional camera.
//
// Each opened stream is owned by exactly one session and must be released with
// Close. Implementations live in sub-packages (portaudio, gocvcam); the mock
// sub-package provides recorders for tests.
package device

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrPermissionDenied is returned when the host refuses access to a device.
	ErrPermissionDenied = errors.New("device: permission denied")

	// ErrUnavailable is returned when no matching device exists or it is disabled
	// in configuration.
	ErrUnavailable = errors.New("device: unavailable")

	// ErrClosed is returned by reads on a stream that has been closed.
	ErrClosed = errors.New("device: stream closed")
)

// CaptureStream delivers fixed-size blocks of mono float samples.
type CaptureStream interface {
	// Read blocks until buf is filled with the next block of samples in [-1, 1].
	// After Close, Read returns ErrClosed.
	Read(buf []float32) error

	// Close stops capture and releases the device. Safe to call more than once.
	Close() error
}

// Microphone opens capture streams.
type Microphone interface {
	// OpenCapture opens a mono stream at sampleRate delivering blocks of
	// blockSize samples. ctx bounds the acquisition only.
	OpenCapture(ctx context.Context, sampleRate, blockSize int) (CaptureStream, error)
}

// RenderFunc fills out with the next mono samples to be played. It is invoked
// on a device thread and must not block.
type RenderFunc func(out []float32)

// PlaybackStream is an open output stream that pulls samples from a RenderFunc.
type PlaybackStream interface {
	// Close stops output and releases the device. Safe to call more than once.
	Close() error
}

// Speaker opens output streams.
type Speaker interface {
	// OpenPlayback opens a mono output stream at sampleRate. render is called
	// with buffers of bufferSize samples until the stream is closed.
	OpenPlayback(ctx context.Context, sampleRate, bufferSize int, render RenderFunc) (PlaybackStream, error)
}

// VideoConstraints is the requested capture resolution. Devices may deliver a
// different size.
type VideoConstraints struct {
	Width  int
	Height int
}

// VideoStream yields still frames from an open camera.
type VideoStream interface {
	// Grab returns the most recent frame.
	Grab() (image.Image, error)

	// Close releases the camera. Safe to call more than once.
	Close() error
}

// Camera opens video streams.
type Camera interface {
	OpenVideo(ctx context.Context, c VideoConstraints) (VideoStream, error)
}
