// Package video samples still frames from a camera for vision grounding.
//
// A [Sampler] grabs one frame per interval (1 s by default), fits it inside
// 640x480, encodes it as JPEG at quality 60 and offers it to a sink. Frames are
// never queued: when the sink declines a frame it is dropped.
package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/quilang-hardware/hardy/pkg/device"
)

// MIMEJPEG is the MIME type of every frame produced by this package.
const MIMEJPEG = "image/jpeg"

const (
	DefaultInterval  = time.Second
	DefaultQuality   = 60
	DefaultMaxWidth  = 640
	DefaultMaxHeight = 480
)

// Frame is one compressed still image.
type Frame struct {
	MIMEType   string
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Encoding controls frame compression.
type Encoding struct {
	Quality   int
	MaxWidth  int
	MaxHeight int
}

// DefaultEncoding returns quality 60 within 640x480.
func DefaultEncoding() Encoding {
	return Encoding{Quality: DefaultQuality, MaxWidth: DefaultMaxWidth, MaxHeight: DefaultMaxHeight}
}

// Compress downsizes img to fit enc's bounds, preserving aspect ratio, and
// encodes it as JPEG. Images already within bounds are not scaled.
func Compress(img image.Image, enc Encoding) (Frame, error) {
	b := img.Bounds()
	if enc.MaxWidth > 0 && enc.MaxHeight > 0 && (b.Dx() > enc.MaxWidth || b.Dy() > enc.MaxHeight) {
		img = imaging.Fit(img, enc.MaxWidth, enc.MaxHeight, imaging.Box)
		b = img.Bounds()
	}
	q := enc.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return Frame{}, fmt.Errorf("video: encode jpeg: %w", err)
	}
	return Frame{
		MIMEType: MIMEJPEG,
		Data:     buf.Bytes(),
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// Sink is offered each sampled frame and reports whether it accepted it.
// It is called from the sampling goroutine.
type Sink func(Frame) bool

// Option configures a [Sampler].
type Option func(*Sampler)

// WithInterval sets the sampling period.
func WithInterval(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithEncoding overrides [DefaultEncoding].
func WithEncoding(enc Encoding) Option {
	return func(s *Sampler) { s.enc = enc }
}

// WithResolution sets the capture resolution requested by [Open]. Defaults
// to the maximum encoded size.
func WithResolution(width, height int) Option {
	return func(s *Sampler) {
		if width > 0 && height > 0 {
			s.res = device.VideoConstraints{Width: width, Height: height}
		}
	}
}

// WithLogger sets the logger for grab and compression failures. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithObserver registers a callback invoked after every tick with whether the
// frame was sent. Used for metrics.
func WithObserver(fn func(sent bool)) Option {
	return func(s *Sampler) { s.observe = fn }
}

// Sampler periodically grabs, compresses and offers frames.
type Sampler struct {
	stream   device.VideoStream
	sink     Sink
	interval time.Duration
	enc      Encoding
	res      device.VideoConstraints
	observe  func(sent bool)
	log      *slog.Logger

	stopOnce sync.Once
	stopErr  error
	quit     chan struct{}
	wg       sync.WaitGroup
}

// Open acquires the camera at the requested resolution and starts sampling
// into sink. Camera errors (including device.ErrPermissionDenied) are returned and
// nothing is retained.
func Open(ctx context.Context, cam device.Camera, sink Sink, opts ...Option) (*Sampler, error) {
	want := Sampler{res: device.VideoConstraints{Width: DefaultMaxWidth, Height: DefaultMaxHeight}}
	for _, o := range opts {
		o(&want)
	}
	stream, err := cam.OpenVideo(ctx, want.res)
	if err != nil {
		return nil, fmt.Errorf("video: open camera: %w", err)
	}
	return Start(stream, sink, opts...), nil
}

// Start begins sampling an already-open stream. The Sampler takes ownership of
// the stream and closes it on Stop.
func Start(stream device.VideoStream, sink Sink, opts ...Option) *Sampler {
	s := &Sampler{
		stream:   stream,
		sink:     sink,
		interval: DefaultInterval,
		enc:      DefaultEncoding(),
		log:      slog.Default(),
		quit:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.wg.Go(s.loop)
	return s
}

func (s *Sampler) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Sampler) tick(now time.Time) {
	img, err := s.stream.Grab()
	if err != nil {
		s.log.Warn("video: grab frame failed", "err", err)
		return
	}
	frame, err := Compress(img, s.enc)
	if err != nil {
		s.log.Warn("video: compress frame failed", "err", err)
		return
	}
	frame.CapturedAt = now

	select {
	case <-s.quit:
		return
	default:
	}
	sent := s.sink(frame)
	if s.observe != nil {
		s.observe(sent)
	}
}

// Stop halts sampling, waits for an in-flight tick to finish and releases the
// camera. Only the first call has any effect.
func (s *Sampler) Stop() error {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		if err := s.stream.Close(); err != nil {
			s.stopErr = fmt.Errorf("video: close camera: %w", err)
		}
	})
	return s.stopErr
}
