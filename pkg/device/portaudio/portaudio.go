// Package portaudio implements [device.Microphone] and [device.Speaker] on top
// of the PortAudio host API.
//
// PortAudio must be initialised once per process; [Host] reference-counts
// Initialize/Terminate so that every open stream keeps the library alive.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/quilang-hardware/hardy/pkg/device"
)

var (
	_ device.Microphone = (*Host)(nil)
	_ device.Speaker    = (*Host)(nil)
)

// Host opens PortAudio default input and output devices.
type Host struct {
	mu   sync.Mutex
	refs int
}

// New returns a Host. PortAudio is not initialised until a stream is opened.
func New() *Host { return &Host{} }

func (h *Host) acquire() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	h.refs++
	return nil
}

func (h *Host) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return
	}
	h.refs--
	if h.refs == 0 {
		_ = portaudio.Terminate()
	}
}

// OpenCapture opens the default input device as a blocking mono stream.
func (h *Host) OpenCapture(ctx context.Context, sampleRate, blockSize int) (device.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.acquire(); err != nil {
		return nil, err
	}

	buf := make([]float32, blockSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), blockSize, buf)
	if err != nil {
		h.release()
		return nil, fmt.Errorf("portaudio: open input: %w", classify(err))
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		h.release()
		return nil, fmt.Errorf("portaudio: start input: %w", classify(err))
	}
	return &captureStream{host: h, stream: stream, buf: buf}, nil
}

// OpenPlayback opens the default output device with a callback stream that
// pulls samples from render.
func (h *Host) OpenPlayback(ctx context.Context, sampleRate, bufferSize int, render device.RenderFunc) (device.PlaybackStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.acquire(); err != nil {
		return nil, err
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), bufferSize, func(out []float32) {
		render(out)
	})
	if err != nil {
		h.release()
		return nil, fmt.Errorf("portaudio: open output: %w", classify(err))
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		h.release()
		return nil, fmt.Errorf("portaudio: start output: %w", classify(err))
	}
	return &playbackStream{host: h, stream: stream}, nil
}

// classify maps host errors that indicate missing access onto
// device.ErrPermissionDenied.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return errors.Join(device.ErrPermissionDenied, err)
	}
	if errors.Is(err, portaudio.DeviceUnavailable) || errors.Is(err, portaudio.InvalidDevice) {
		return errors.Join(device.ErrUnavailable, err)
	}
	return err
}

// ── capture ─────────────────────────────────────────────────────────────────

type captureStream struct {
	host   *Host
	stream *portaudio.Stream
	buf    []float32

	mu     sync.Mutex
	closed bool
}

func (s *captureStream) Read(buf []float32) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return device.ErrClosed
	}
	s.mu.Unlock()

	// Overflow still delivers a block.
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return device.ErrClosed
		}
		return fmt.Errorf("portaudio: read: %w", err)
	}
	copy(buf, s.buf)
	return nil
}

func (s *captureStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := errors.Join(s.stream.Stop(), s.stream.Close())
	s.host.release()
	if err != nil {
		return fmt.Errorf("portaudio: close input: %w", err)
	}
	return nil
}

// ── playback ────────────────────────────────────────────────────────────────

type playbackStream struct {
	host      *Host
	stream    *portaudio.Stream
	closeOnce sync.Once
	err       error
}

func (s *playbackStream) Close() error {
	s.closeOnce.Do(func() {
		s.err = errors.Join(s.stream.Stop(), s.stream.Close())
		s.host.release()
	})
	if s.err != nil {
		return fmt.Errorf("portaudio: close output: %w", s.err)
	}
	return nil
}
