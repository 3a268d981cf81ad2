package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quilang-hardware/hardy/pkg/audio"
	"github.com/quilang-hardware/hardy/pkg/audio/capture"
	"github.com/quilang-hardware/hardy/pkg/audio/playback"
	"github.com/quilang-hardware/hardy/pkg/audio/playout"
	"github.com/quilang-hardware/hardy/pkg/device"
	"github.com/quilang-hardware/hardy/pkg/live"
	"github.com/quilang-hardware/hardy/pkg/video"
)

// conn is everything held by one session. Fields other than the
// goroutine-shared ones are owned by the actor.
type conn struct {
	id      string
	gen     uint64
	started time.Time

	out     *playout.Output
	speaker device.PlaybackStream
	enc     *capture.Encoder
	sess    live.Session
	sched   *playback.Scheduler
	camera  *video.Sampler

	events <-chan live.Event
	queue  chan audio.AudioFrame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	releaseOnce sync.Once
	releaseErr  error
}

// release frees resources in order: camera, microphone, audio output,
// pending playback, transport. Only the first call has any effect; nil
// fields from a partial acquisition are skipped.
func (cn *conn) release() error {
	cn.releaseOnce.Do(func() {
		var errs []error
		if cn.camera != nil {
			errs = append(errs, cn.camera.Stop())
			cn.camera = nil
		}
		if cn.enc != nil {
			errs = append(errs, cn.enc.Stop())
		}
		if cn.out != nil {
			cn.out.Close()
		}
		if cn.speaker != nil {
			if err := cn.speaker.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close speaker: %w", err))
			}
		}
		if cn.sched != nil {
			cn.sched.Close()
		}
		if cn.sess != nil {
			if err := cn.sess.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close transport: %w", err))
			}
		}
		cn.releaseErr = errors.Join(errs...)
	})
	return cn.releaseErr
}
