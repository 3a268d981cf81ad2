// Package playout is a sample-clock software output: it owns the playback
// clock, mixes scheduled units of mono audio into buffers pulled by a device
// and reports when each unit finishes naturally.
//
// The clock is the number of samples rendered so far. It only advances when
// [Output.Render] is called, so a stalled device stalls the clock too; units
// are never played early or skipped.
//
// All exported methods are safe for concurrent use.
package playout

import (
	"sync"
	"time"
)

// HandleID identifies a scheduled unit for the lifetime of an [Output].
type HandleID uint64

const defaultCompletedCap = 256

// Option configures an [Output] during construction.
type Option func(*Output)

// WithCompletedBuffer sets the capacity of the completion channel. Reports
// that do not fit are dropped; [Handle.Done] remains authoritative.
func WithCompletedBuffer(n int) Option {
	return func(o *Output) {
		if n > 0 {
			o.completed = make(chan HandleID, n)
		}
	}
}

// Output mixes scheduled units against a sample clock.
type Output struct {
	rate int

	mu     sync.Mutex
	clock  int64
	nextID HandleID
	units  map[HandleID]*unit
	closed bool

	completed chan HandleID
}

type unit struct {
	samples []float32
	start   int64
}

// New returns an Output running at rate samples per second.
func New(rate int, opts ...Option) *Output {
	o := &Output{
		rate:      rate,
		units:     make(map[HandleID]*unit),
		completed: make(chan HandleID, defaultCompletedCap),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Rate returns the sample rate of the clock.
func (o *Output) Rate() int { return o.rate }

// Now returns the current clock position in samples.
func (o *Output) Now() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clock
}

// Elapsed returns the clock position as wall time.
func (o *Output) Elapsed() time.Duration {
	return time.Duration(o.Now() * int64(time.Second) / int64(o.rate))
}

// Schedule queues samples to start at clock position at. A position in the
// past is moved to the current clock. Scheduling on a closed Output returns a
// handle that is already done.
func (o *Output) Schedule(samples []float32, at int64) *Handle {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	start := max(at, o.clock)
	h := &Handle{id: id, out: o, start: start, end: start + int64(len(samples))}
	if o.closed {
		return h
	}
	o.units[id] = &unit{samples: samples, start: start}
	return h
}

// Render mixes every unit overlapping the next len(buf) samples into buf and
// advances the clock. Units that end inside the rendered window are reported
// on [Output.Completed]. Silence is written where nothing is scheduled.
func (o *Output) Render(buf []float32) {
	clear(buf)

	o.mu.Lock()
	from := o.clock
	to := from + int64(len(buf))
	var finished []HandleID
	for id, u := range o.units {
		end := u.start + int64(len(u.samples))
		if u.start < to && end > from {
			lo := max(u.start, from)
			hi := min(end, to)
			for t := lo; t < hi; t++ {
				buf[t-from] += u.samples[t-u.start]
			}
		}
		if end <= to {
			delete(o.units, id)
			finished = append(finished, id)
		}
	}
	o.clock = to
	o.mu.Unlock()

	for i := range buf {
		buf[i] = max(-1, min(1, buf[i]))
	}
	for _, id := range finished {
		select {
		case o.completed <- id:
		default:
		}
	}
}

// Completed delivers the IDs of units that finished playing naturally. Stopped
// units are not reported. The channel is never closed.
func (o *Output) Completed() <-chan HandleID { return o.completed }

// Pending returns the number of units scheduled and not yet finished.
func (o *Output) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.units)
}

// Close stops every pending unit. Subsequent Schedule calls are no-ops.
// Idempotent.
func (o *Output) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	clear(o.units)
}

func (o *Output) stop(id HandleID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.units[id]; !ok {
		return false
	}
	delete(o.units, id)
	return true
}

func (o *Output) active(id HandleID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.units[id]
	return ok
}

// Handle refers to one scheduled unit.
type Handle struct {
	id         HandleID
	out        *Output
	start, end int64
}

// ID returns the unit's identifier.
func (h *Handle) ID() HandleID { return h.id }

// Start returns the clock position at which the unit begins.
func (h *Handle) Start() int64 { return h.start }

// End returns the clock position just past the unit's last sample.
func (h *Handle) End() int64 { return h.end }

// Stop removes the unit from the output. It reports whether the unit was still
// pending. Stopping a finished or stopped unit is a no-op.
func (h *Handle) Stop() bool { return h.out.stop(h.id) }

// Done reports whether the unit has finished or been stopped.
func (h *Handle) Done() bool { return !h.out.active(h.id) }
