// Package playback schedules inbound speech chunks for gapless playout and
// flushes them on interruption.
//
// Each chunk starts at max(clock now, cursor) and advances the cursor by its
// length, so consecutive chunks play back to back with no gap and no overlap
// and nothing is ever scheduled in the past. [Scheduler.Interrupt] stops every
// pending chunk and resets the cursor to the current clock.
//
// A Scheduler is owned by a single goroutine and is not safe for concurrent use.
package playback

import (
	"fmt"

	"github.com/quilang-hardware/hardy/pkg/audio"
	"github.com/quilang-hardware/hardy/pkg/audio/playout"
)

// Output is the clock and mixer a Scheduler writes to.
// [*playout.Output] satisfies it.
type Output interface {
	Now() int64
	Schedule(samples []float32, at int64) *playout.Handle
}

var _ Output = (*playout.Output)(nil)

// Scheduler tracks the playback cursor and the set of pending chunks.
type Scheduler struct {
	out     Output
	cursor  int64
	handles map[playout.HandleID]*playout.Handle
}

// New returns a Scheduler whose cursor starts at the output's current clock.
func New(out Output) *Scheduler {
	return &Scheduler{
		out:     out,
		cursor:  out.Now(),
		handles: make(map[playout.HandleID]*playout.Handle),
	}
}

// Schedule decodes a PCM16 chunk and queues it immediately after the
// previously scheduled chunk, or at the current clock if that is later.
// An empty chunk schedules nothing and returns a nil handle. Decode errors
// leave the cursor and pending set unchanged.
func (s *Scheduler) Schedule(chunk []byte) (*playout.Handle, error) {
	samples, err := audio.DecodePCM16(chunk)
	if err != nil {
		return nil, fmt.Errorf("playback: decode chunk: %w", err)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	s.prune()
	start := max(s.out.Now(), s.cursor)
	h := s.out.Schedule(samples, start)
	s.cursor = h.End()
	s.handles[h.ID()] = h
	return h, nil
}

// Reap forgets a chunk that finished playing naturally. Unknown IDs are ignored.
func (s *Scheduler) Reap(id playout.HandleID) {
	delete(s.handles, id)
}

// Interrupt stops every pending chunk, clears the set and resets the cursor to
// the current clock. It returns the number of chunks that were stopped.
func (s *Scheduler) Interrupt() int {
	n := 0
	for id, h := range s.handles {
		if h.Stop() {
			n++
		}
		delete(s.handles, id)
	}
	s.cursor = s.out.Now()
	return n
}

// Pending returns the number of chunks scheduled and not yet reaped.
func (s *Scheduler) Pending() int { return len(s.handles) }

// Cursor returns the clock position at which the next chunk would start if
// the clock has not passed it.
func (s *Scheduler) Cursor() int64 { return s.cursor }

// Close stops every pending chunk. The Scheduler may not be reused.
func (s *Scheduler) Close() { s.Interrupt() }

// prune drops handles whose completion report was lost.
func (s *Scheduler) prune() {
	for id, h := range s.handles {
		if h.Done() {
			delete(s.handles, id)
		}
	}
}
