package playout_test

import (
	"testing"
	"time"

	"github.com/quilang-hardware/hardy/pkg/audio/playout"
)

func ones(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.25
	}
	return s
}

func TestRender_AdvancesClock(t *testing.T) {
	t.Parallel()

	o := playout.New(24000)
	buf := make([]float32, 480)
	o.Render(buf)
	o.Render(buf)
	if got := o.Now(); got != 960 {
		t.Errorf("Now = %d, want 960", got)
	}
	if got := o.Elapsed(); got != 40*time.Millisecond {
		t.Errorf("Elapsed = %v, want 40ms", got)
	}
}

func TestSchedule_PastStartsNow(t *testing.T) {
	t.Parallel()

	o := playout.New(24000)
	o.Render(make([]float32, 100))
	h := o.Schedule(ones(10), 20)
	if h.Start() != 100 || h.End() != 110 {
		t.Errorf("handle = [%d,%d), want [100,110)", h.Start(), h.End())
	}
}

func TestRender_MixesAtStartOffset(t *testing.T) {
	t.Parallel()

	o := playout.New(24000)
	o.Schedule(ones(4), 2)
	buf := make([]float32, 8)
	o.Render(buf)

	want := []float32{0, 0, 0.25, 0.25, 0.25, 0.25, 0, 0}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("buf[%d] = %v, want %v", i, buf[i], want[i])
		}
	}
}

func TestRender_SpansBuffers(t *testing.T) {
	t.Parallel()

	o := playout.New(24000)
	h := o.Schedule(ones(6), 0)
	buf := make([]float32, 4)

	o.Render(buf)
	if h.Done() {
		t.Fatal("unit done after first buffer")
	}
	o.Render(buf)
	if buf[0] != 0.25 || buf[1] != 0.25 || buf[2] != 0 {
		t.Errorf("second buffer = %v", buf)
	}
	if !h.Done() {
		t.Error("unit not done after last sample rendered")
	}

	select {
	case id := <-o.Completed():
		if id != h.ID() {
			t.Errorf("completed id = %d, want %d", id, h.ID())
		}
	default:
		t.Fatal("no completion reported")
	}
}

func TestHandle_StopSilencesAndSkipsReport(t *testing.T) {
	t.Parallel()

	o := playout.New(24000)
	h := o.Schedule(ones(4), 0)
	if !h.Stop() {
		t.Fatal("Stop on pending unit returned false")
	}
	if h.Stop() {
		t.Error("second Stop returned true")
	}

	buf := make([]float32, 4)
	o.Render(buf)
	for i, v := range buf {
		if v != 0 {
			t.Errorf("buf[%d] = %v after stop, want 0", i, v)
		}
	}
	select {
	case id := <-o.Completed():
		t.Errorf("stopped unit %d reported as completed", id)
	default:
	}
}

func TestRender_ClampsMix(t *testing.T) {
	t.Parallel()

	o := playout.New(24000)
	loud := []float32{0.8, 0.8}
	o.Schedule(loud, 0)
	o.Schedule(loud, 0)
	buf := make([]float32, 2)
	o.Render(buf)
	if buf[0] != 1 {
		t.Errorf("mixed sample = %v, want clamp to 1", buf[0])
	}
}

func TestClose_DropsPending(t *testing.T) {
	t.Parallel()

	o := playout.New(24000)
	h := o.Schedule(ones(10), 0)
	o.Close()
	o.Close()
	if !h.Done() {
		t.Error("unit pending after Close")
	}
	if late := o.Schedule(ones(10), 0); !late.Done() {
		t.Error("Schedule after Close returned pending unit")
	}
	if got := o.Pending(); got != 0 {
		t.Errorf("Pending = %d, want 0", got)
	}
}

func TestCompleted_DropsWhenFull(t *testing.T) {
	t.Parallel()

	o := playout.New(24000, playout.WithCompletedBuffer(1))
	a := o.Schedule(ones(1), 0)
	b := o.Schedule(ones(1), 0)
	o.Render(make([]float32, 1))

	if !a.Done() || !b.Done() {
		t.Fatal("units not done")
	}
	if got := len(o.Completed()); got != 1 {
		t.Errorf("buffered completions = %d, want 1", got)
	}
}
