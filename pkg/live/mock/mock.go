// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Open calls and hand out controlled sessions. Use
// Session to inject events as if they arrived from the remote agent and to
// inspect everything the consumer sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Sessions: []*mock.Session{sess}}
//	s, _ := p.Open(ctx, cfg)
//	sess.Emit(live.Event{Type: live.EventOpen})
package mock

import (
	"context"
	"sync"

	"github.com/quilang-hardware/hardy/pkg/audio"
	"github.com/quilang-hardware/hardy/pkg/live"
	"github.com/quilang-hardware/hardy/pkg/video"
)

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*Session)(nil)
)

// ─── Provider ─────────────────────────────────────────────────────────────────

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are handed out by Open in order. When exhausted, Open creates a
	// fresh Session.
	Sessions []*Session

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// Gate, if non-nil, makes Open block until it is closed or ctx ends.
	Gate chan struct{}

	// Hold, if non-nil, makes Open block until it is closed regardless of
	// ctx, like a dialer stuck in a call that cannot be interrupted.
	Hold chan struct{}

	// OpenCalls records the Config of every Open call in order.
	OpenCalls []live.Config

	opened []*Session
}

// Open records the call and returns the next session.
func (p *Provider) Open(ctx context.Context, cfg live.Config) (live.Session, error) {
	p.mu.Lock()
	p.OpenCalls = append(p.OpenCalls, cfg)
	gate, hold := p.Gate, p.Hold
	p.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	var s *Session
	if len(p.Sessions) > 0 {
		s, p.Sessions = p.Sessions[0], p.Sessions[1:]
	} else {
		s = NewSession()
	}
	p.opened = append(p.opened, s)
	return s, nil
}

// Name implements live.Provider.
func (p *Provider) Name() string { return "mock" }

// Opened returns every session handed out so far.
func (p *Provider) Opened() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.opened...)
}

// OpenCount returns the number of Open calls.
func (p *Provider) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.OpenCalls)
}

// ─── Session ──────────────────────────────────────────────────────────────────

// Session is a mock implementation of live.Session.
type Session struct {
	mu sync.Mutex

	events chan live.Event
	ended  bool

	// VideoErr, if non-nil, is returned by SendVideoFrame.
	VideoErr error

	// SendErr, if non-nil, is returned by every Send method.
	SendErr error

	audio   []audio.AudioFrame
	frames  []video.Frame
	results []live.ToolResult

	closeCount int
	sent       chan struct{}
}

// NewSession returns a Session with a buffered event stream.
func NewSession() *Session {
	return &Session{
		events: make(chan live.Event, 64),
		sent:   make(chan struct{}, 256),
	}
}

// Emit delivers ev on the event stream. Terminal events close the stream
// after delivery. Events emitted after the stream ended are dropped.
func (s *Session) Emit(ev live.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.events <- ev
	if ev.Type == live.EventClose || ev.Type == live.EventError {
		s.ended = true
		close(s.events)
	}
}

// Events implements live.Session.
func (s *Session) Events() <-chan live.Event { return s.events }

// SendAudio implements live.Session.
func (s *Session) SendAudio(f audio.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sendErr(); err != nil {
		return err
	}
	s.audio = append(s.audio, f)
	s.notify()
	return nil
}

// SendVideoFrame implements live.Session.
func (s *Session) SendVideoFrame(f video.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sendErr(); err != nil {
		return err
	}
	if s.VideoErr != nil {
		return s.VideoErr
	}
	s.frames = append(s.frames, f)
	s.notify()
	return nil
}

// SendToolResult implements live.Session.
func (s *Session) SendToolResult(r live.ToolResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sendErr(); err != nil {
		return err
	}
	s.results = append(s.results, r)
	s.notify()
	return nil
}

// Close implements live.Session. The event stream is closed without a
// terminal event if it is still open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	if !s.ended {
		s.ended = true
		close(s.events)
	}
	return nil
}

// Sent is signalled after every successful Send call.
func (s *Session) Sent() <-chan struct{} { return s.sent }

// Audio returns the audio frames sent so far.
func (s *Session) Audio() []audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.AudioFrame(nil), s.audio...)
}

// Frames returns the video frames sent so far.
func (s *Session) Frames() []video.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]video.Frame(nil), s.frames...)
}

// Results returns the tool results sent so far.
func (s *Session) Results() []live.ToolResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]live.ToolResult(nil), s.results...)
}

// CloseCount returns how many times Close was called.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

func (s *Session) sendErr() error {
	if s.closeCount > 0 {
		return live.ErrSessionClosed
	}
	return s.SendErr
}

func (s *Session) notify() {
	select {
	case s.sent <- struct{}{}:
	default:
	}
}
