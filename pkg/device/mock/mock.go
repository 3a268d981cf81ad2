// Package mock provides in-memory implementations of the [device.Microphone],
// [device.Speaker] and [device.Camera] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record opens and closes so tests
// can assert that every acquired device is released exactly once, and expose
// error fields to simulate permission denial.
//
// Typical usage:
//
//	mic := mock.NewMicrophone()
//	stream, _ := mic.OpenCapture(ctx, 16000, 4096)
//	mic.Feed(block) // next Read returns block
package mock

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/quilang-hardware/hardy/pkg/device"
)

var (
	_ device.Microphone = (*Microphone)(nil)
	_ device.Speaker    = (*Speaker)(nil)
	_ device.Camera     = (*Camera)(nil)
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// OpenCaptureCall records the arguments of a single OpenCapture invocation.
type OpenCaptureCall struct {
	SampleRate int
	BlockSize  int
}

// Microphone is a mock [device.Microphone]. Blocks pushed with Feed are
// returned by Read on the most recently opened stream.
type Microphone struct {
	mu sync.Mutex

	// OpenError is returned by OpenCapture when non-nil.
	OpenError error

	// OpenCalls records every OpenCapture invocation.
	OpenCalls []OpenCaptureCall

	blocks  chan []float32
	streams []*CaptureStream
	peak    int
}

// NewMicrophone returns a Microphone with a buffered feed.
func NewMicrophone() *Microphone {
	return &Microphone{blocks: make(chan []float32, 64)}
}

// OpenCapture implements [device.Microphone].
func (m *Microphone) OpenCapture(_ context.Context, sampleRate, blockSize int) (device.CaptureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls = append(m.OpenCalls, OpenCaptureCall{SampleRate: sampleRate, BlockSize: blockSize})
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	s := &CaptureStream{blocks: m.blocks, done: make(chan struct{})}
	m.streams = append(m.streams, s)
	open := 0
	for _, st := range m.streams {
		if !st.Closed() {
			open++
		}
	}
	m.peak = max(m.peak, open)
	return s, nil
}

// Feed queues a block for the next Read.
func (m *Microphone) Feed(block []float32) { m.blocks <- block }

// PeakOpen returns the largest number of streams that were open at once.
func (m *Microphone) PeakOpen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Streams returns every stream opened so far.
func (m *Microphone) Streams() []*CaptureStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*CaptureStream(nil), m.streams...)
}

// CaptureStream is the mock stream returned by [Microphone.OpenCapture].
type CaptureStream struct {
	blocks <-chan []float32
	done   chan struct{}

	mu         sync.Mutex
	closed     bool
	closeCount int
}

// Read returns the next fed block, or device.ErrClosed once closed.
func (s *CaptureStream) Read(buf []float32) error {
	select {
	case <-s.done:
		return device.ErrClosed
	case b := <-s.blocks:
		copy(buf, b)
		return nil
	}
}

// Close implements [device.CaptureStream].
func (s *CaptureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *CaptureStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCount returns how many times Close was called.
func (s *CaptureStream) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker is a mock [device.Speaker]. Tests drive output by calling Pull,
// which invokes the render callback of the most recently opened stream.
type Speaker struct {
	mu sync.Mutex

	// OpenError is returned by OpenPlayback when non-nil.
	OpenError error

	// OpenCount records how many times OpenPlayback was called.
	OpenCount int

	streams []*PlaybackStream
}

// OpenPlayback implements [device.Speaker].
func (s *Speaker) OpenPlayback(_ context.Context, sampleRate, bufferSize int, render device.RenderFunc) (device.PlaybackStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCount++
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	ps := &PlaybackStream{SampleRate: sampleRate, BufferSize: bufferSize, render: render}
	s.streams = append(s.streams, ps)
	return ps, nil
}

// Streams returns every stream opened so far.
func (s *Speaker) Streams() []*PlaybackStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*PlaybackStream(nil), s.streams...)
}

// PlaybackStream is the mock stream returned by [Speaker.OpenPlayback].
type PlaybackStream struct {
	SampleRate int
	BufferSize int

	render device.RenderFunc

	mu         sync.Mutex
	closed     bool
	closeCount int
}

// Pull renders n samples through the stream's callback and returns them.
// A closed stream renders nothing.
func (p *PlaybackStream) Pull(n int) []float32 {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil
	}
	out := make([]float32, n)
	p.render(out)
	return out
}

// Close implements [device.PlaybackStream].
func (p *PlaybackStream) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCount++
	p.closed = true
	return nil
}

// CloseCount returns how many times Close was called.
func (p *PlaybackStream) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount
}

// ─── Camera ───────────────────────────────────────────────────────────────────

// Camera is a mock [device.Camera] whose streams return a solid-colour frame.
type Camera struct {
	mu sync.Mutex

	// OpenError is returned by OpenVideo when non-nil, e.g. device.ErrPermissionDenied.
	OpenError error

	// Frame is returned by Grab. Defaults to a 640x480 grey image.
	Frame image.Image

	// OpenCalls records the constraints of every OpenVideo invocation.
	OpenCalls []device.VideoConstraints

	streams []*VideoStream
}

// OpenVideo implements [device.Camera].
func (c *Camera) OpenVideo(_ context.Context, vc device.VideoConstraints) (device.VideoStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.OpenCalls = append(c.OpenCalls, vc)
	if c.OpenError != nil {
		return nil, c.OpenError
	}
	frame := c.Frame
	if frame == nil {
		frame = solid(640, 480, color.Gray{Y: 128})
	}
	vs := &VideoStream{frame: frame}
	c.streams = append(c.streams, vs)
	return vs, nil
}

// Streams returns every stream opened so far.
func (c *Camera) Streams() []*VideoStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*VideoStream(nil), c.streams...)
}

// VideoStream is the mock stream returned by [Camera.OpenVideo].
type VideoStream struct {
	frame image.Image

	mu         sync.Mutex
	grabs      int
	closed     bool
	closeCount int
}

// Grab implements [device.VideoStream].
func (v *VideoStream) Grab() (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, device.ErrClosed
	}
	v.grabs++
	return v.frame, nil
}

// Close implements [device.VideoStream].
func (v *VideoStream) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeCount++
	v.closed = true
	return nil
}

// Grabs returns how many frames were grabbed.
func (v *VideoStream) Grabs() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.grabs
}

// CloseCount returns how many times Close was called.
func (v *VideoStream) CloseCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closeCount
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}
