// Package capture turns a microphone stream into outbound PCM frames and a
// live loudness level.
//
// An [Encoder] reads fixed blocks (4096 samples at 16 kHz by default), publishes
// RMS x5 as the current level, encodes the block to PCM16 and hands the frame
// to a sink. The Encoder owns the stream: [Encoder.Stop] releases it exactly
// once, from any goroutine.
package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quilang-hardware/hardy/pkg/audio"
	"github.com/quilang-hardware/hardy/pkg/device"
)

// DefaultBlockSize is the number of samples per capture block.
const DefaultBlockSize = 4096

// Sink receives encoded frames. It is called from the Run goroutine and must
// not block for long; dropping is the sink's decision.
type Sink func(audio.AudioFrame)

// Option configures an [Encoder].
type Option func(*Encoder)

// WithBlockSize overrides [DefaultBlockSize].
func WithBlockSize(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.blockSize = n
		}
	}
}

// WithSampleRate overrides [audio.CaptureRate].
func WithSampleRate(rate int) Option {
	return func(e *Encoder) {
		if rate > 0 {
			e.rate = rate
		}
	}
}

// Encoder reads blocks from a capture stream and emits PCM frames.
type Encoder struct {
	stream    device.CaptureStream
	blockSize int
	rate      int

	level atomic.Uint64 // math.Float64bits of the last loudness

	stopOnce sync.Once
	stopErr  error
	stopped  chan struct{}
}

// Open acquires the microphone and returns an Encoder that owns it. Callers
// must eventually call Stop.
func Open(ctx context.Context, mic device.Microphone, opts ...Option) (*Encoder, error) {
	e := &Encoder{
		blockSize: DefaultBlockSize,
		rate:      audio.CaptureRate,
		stopped:   make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	stream, err := mic.OpenCapture(ctx, e.rate, e.blockSize)
	if err != nil {
		return nil, fmt.Errorf("capture: open microphone: %w", err)
	}
	e.stream = stream
	return e, nil
}

// Run reads blocks until ctx is cancelled, Stop is called or the stream fails.
// It returns nil on cancellation or Stop. Run must be called at most once.
func (e *Encoder) Run(ctx context.Context, sink Sink) error {
	buf := make([]float32, e.blockSize)
	blockDur := audio.SamplesDuration(e.blockSize, e.rate)
	var ts time.Duration

	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			_ = e.Stop()
		case <-e.stopped:
		case <-exited:
		}
	}()

	for {
		if err := e.stream.Read(buf); err != nil {
			if errors.Is(err, device.ErrClosed) || e.isStopped() {
				return nil
			}
			return fmt.Errorf("capture: read: %w", err)
		}
		if e.isStopped() {
			return nil
		}

		e.level.Store(math.Float64bits(audio.Loudness(buf)))
		sink(audio.AudioFrame{
			Data:       audio.EncodePCM16(buf),
			SampleRate: e.rate,
			Channels:   1,
			Timestamp:  ts,
		})
		ts += blockDur
	}
}

// Level returns the loudness of the most recent block (RMS x5). It is zero
// before the first block and after Stop.
func (e *Encoder) Level() float64 {
	return math.Float64frombits(e.level.Load())
}

// Stop releases the microphone. Only the first call closes the stream; later
// calls return the same result.
func (e *Encoder) Stop() error {
	e.stopOnce.Do(func() {
		close(e.stopped)
		e.level.Store(0)
		if err := e.stream.Close(); err != nil {
			e.stopErr = fmt.Errorf("capture: close microphone: %w", err)
		}
	})
	return e.stopErr
}

func (e *Encoder) isStopped() bool {
	select {
	case <-e.stopped:
		return true
	default:
		return false
	}
}
