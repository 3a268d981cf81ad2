// Package session runs a live voice conversation: it owns the microphone,
// speaker, optional camera and the transport session, and moves between
// [StateIdle], [StateConnecting], [StateActive] and back.
//
// A [Controller] is an actor. One goroutine owns all mutable state; API calls,
// transport events, playout completions and results of off-actor work
// (device acquisition, transport dial, camera open) reach it as messages.
// Nothing that can block on I/O runs on the actor.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quilang-hardware/hardy/internal/observe"
	"github.com/quilang-hardware/hardy/internal/tools"
	"github.com/quilang-hardware/hardy/pkg/audio"
	"github.com/quilang-hardware/hardy/pkg/audio/capture"
	"github.com/quilang-hardware/hardy/pkg/audio/playback"
	"github.com/quilang-hardware/hardy/pkg/audio/playout"
	"github.com/quilang-hardware/hardy/pkg/device"
	"github.com/quilang-hardware/hardy/pkg/live"
	"github.com/quilang-hardware/hardy/pkg/video"
)

var (
	// ErrNotActive is returned by operations that need a live session.
	ErrNotActive = errors.New("session: not active")

	// ErrAborted is returned by Connect when the attempt was cancelled by
	// Disconnect or by the caller's context.
	ErrAborted = errors.New("session: connect aborted")

	// ErrClosed is returned after the Controller has been closed.
	ErrClosed = errors.New("session: controller closed")
)

const (
	// DefaultRenderBuffer is the speaker buffer size in samples.
	DefaultRenderBuffer = 1024

	// DefaultSendQueue is the number of microphone frames buffered for the
	// transport before new frames are dropped.
	DefaultSendQueue = 8

	// DefaultConnectTimeout bounds device acquisition, dial and the open
	// acknowledgment together.
	DefaultConnectTimeout = 30 * time.Second
)

// Connect outcomes recorded on the connect counter.
const (
	connectOK             = "ok"
	connectDeviceError    = "device_error"
	connectTransportError = "transport_error"
	connectCancelled      = "cancelled"
)

// Devices are the host devices a session acquires.
type Devices struct {
	Microphone device.Microphone
	Speaker    device.Speaker

	// Camera is optional. When nil, SetCamera(true) fails with
	// device.ErrUnavailable.
	Camera device.Camera
}

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics sets the metric instruments. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithVideoOptions configures the camera sampler.
func WithVideoOptions(opts ...video.Option) Option {
	return func(c *Controller) { c.videoOpts = append(c.videoOpts, opts...) }
}

// WithCaptureOptions configures the microphone encoder.
func WithCaptureOptions(opts ...capture.Option) Option {
	return func(c *Controller) { c.captureOpts = append(c.captureOpts, opts...) }
}

// WithSendQueue overrides [DefaultSendQueue].
func WithSendQueue(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.sendQueue = n
		}
	}
}

// WithRenderBuffer overrides [DefaultRenderBuffer].
func WithRenderBuffer(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.renderBuffer = n
		}
	}
}

// WithConnectTimeout overrides [DefaultConnectTimeout].
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// Controller drives one conversation at a time. All exported methods are
// safe for concurrent use.
type Controller struct {
	provider   live.Provider
	devices    Devices
	dispatcher *tools.Dispatcher
	cfg        live.Config

	log            *slog.Logger
	metrics        *observe.Metrics
	videoOpts      []video.Option
	captureOpts    []capture.Option
	sendQueue      int
	renderBuffer   int
	connectTimeout time.Duration

	mailbox   chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	attempts  sync.WaitGroup

	// Read by observers without going through the actor.
	status    atomic.Pointer[Status]
	encoder   atomic.Pointer[capture.Encoder]
	published atomic.Pointer[conn]

	// Owned by the actor goroutine.
	state   State
	since   time.Time
	gen     uint64
	cancel  context.CancelFunc
	waiters []chan error
	cur     *conn
	lastErr error

	// An aborted attempt keeps the Controller in StateClosing until its
	// goroutine reports back, so its devices are released before anyone
	// waiting in drained is answered or the next attempt starts.
	draining bool
	drainGen uint64
	drained  []chan error
}

// New returns a running Controller in [StateIdle]. cfg.Tools defaults to the
// dispatcher's definitions. Callers must Close it.
func New(provider live.Provider, devs Devices, d *tools.Dispatcher, cfg live.Config, opts ...Option) *Controller {
	c := &Controller{
		provider:       provider,
		devices:        devs,
		dispatcher:     d,
		cfg:            cfg,
		log:            slog.Default(),
		metrics:        observe.DefaultMetrics(),
		sendQueue:      DefaultSendQueue,
		renderBuffer:   DefaultRenderBuffer,
		connectTimeout: DefaultConnectTimeout,
		mailbox:        make(chan func()),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		since:          time.Now(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.dispatcher == nil {
		c.dispatcher, _ = tools.NewDispatcher(nil)
	}
	if len(c.cfg.Tools) == 0 {
		c.cfg.Tools = c.dispatcher.Definitions()
	}
	c.publish()
	go c.loop()
	return c
}

// ─── API ─────────────────────────────────────────────────────────────────────

// Connect starts a session and waits for the outcome: nil once Active, or the
// device or transport error. While Connecting it joins the pending attempt;
// while an aborted attempt is still releasing it starts once that is done;
// while Active it returns nil. If ctx ends first the attempt is aborted.
func (c *Controller) Connect(ctx context.Context) error {
	reply := make(chan error, 1)
	err := c.send(ctx, func() {
		switch {
		case c.state == StateIdle:
			c.waiters = append(c.waiters, reply)
			c.startAttempt()
		case c.state == StateConnecting, c.draining:
			c.waiters = append(c.waiters, reply)
		default:
			reply <- nil
		}
	})
	if err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		_ = c.send(context.Background(), func() { c.abandon(reply) })
		return ctx.Err()
	}
}

// Disconnect ends the current session, or aborts a pending attempt, and
// returns once every resource has been released. An aborted attempt blocked
// in a device or transport call holds Disconnect until that call returns.
// Idempotent.
func (c *Controller) Disconnect(ctx context.Context) error {
	reply := make(chan error, 1)
	err := c.send(ctx, func() {
		switch {
		case c.state == StateConnecting:
			c.abortAttempt(ErrAborted)
			c.drained = append(c.drained, reply)
			return
		case c.draining:
			c.drained = append(c.drained, reply)
			return
		case c.state == StateActive:
			c.log.Info("session: disconnect requested", "session_id", c.cur.id)
			c.teardown()
		}
		reply <- nil
	})
	if err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetCamera turns vision sampling on or off. It fails with [ErrNotActive]
// outside a session. If the camera cannot be opened the error is returned,
// the camera stays off and the audio path is untouched.
func (c *Controller) SetCamera(ctx context.Context, on bool) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, func() { c.setCamera(ctx, on, reply) }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetConfig replaces the session configuration used by the next Connect. A
// running session keeps the configuration it was opened with. Empty Tools
// keep the current tool schema.
func (c *Controller) SetConfig(ctx context.Context, cfg live.Config) error {
	return c.send(ctx, func() {
		if len(cfg.Tools) == 0 {
			cfg.Tools = c.cfg.Tools
		}
		c.cfg = cfg
	})
}

// Status returns the latest snapshot with the live microphone level and
// playback position.
func (c *Controller) Status() Status {
	st := *c.status.Load()
	if enc := c.encoder.Load(); enc != nil {
		st.Level = enc.Level()
	}
	if cn := c.published.Load(); cn != nil {
		st.Played = cn.out.Elapsed()
	}
	return st
}

// Close tears down any session and stops the actor. Idempotent.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.done
		c.attempts.Wait()
	})
	return nil
}

// send hands fn to the actor.
func (c *Controller) send(ctx context.Context, fn func()) error {
	select {
	case c.mailbox <- fn:
		return nil
	case <-c.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post is send for background goroutines. It reports false when fn will
// never run, in which case the caller owns any resources fn would have taken.
func (c *Controller) post(ctx context.Context, fn func()) bool {
	select {
	case c.mailbox <- fn:
		return true
	case <-c.quit:
		return false
	case <-ctx.Done():
		return false
	}
}

// ─── Actor ───────────────────────────────────────────────────────────────────

func (c *Controller) loop() {
	defer close(c.done)
	for {
		var (
			events    <-chan live.Event
			completed <-chan playout.HandleID
		)
		if c.cur != nil {
			events = c.cur.events
			completed = c.cur.out.Completed()
		}

		select {
		case <-c.quit:
			if c.state == StateConnecting {
				c.abortAttempt(ErrClosed)
			}
			if c.draining {
				// post fails from here on, so the attempt releases its
				// own resources.
				c.attempts.Wait()
				c.resolve(ErrClosed)
				c.endDrain()
			}
			c.teardown()
			return
		case fn := <-c.mailbox:
			fn()
		case ev, ok := <-events:
			c.handleEvent(ev, ok)
		case id := <-completed:
			c.cur.sched.Reap(id)
		}
		c.publish()
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.log.Debug("session: state change", "from", c.state, "to", s)
	c.state = s
	c.since = time.Now()
	c.publish()
}

func (c *Controller) publish() {
	st := &Status{
		State:    c.state,
		Provider: c.provider.Name(),
		Since:    c.since,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	if cn := c.cur; cn != nil {
		st.SessionID = cn.id
		st.Camera = cn.camera != nil
		if cn.sched != nil {
			st.Scheduled = cn.sched.Pending()
			if ahead := cn.sched.Cursor() - cn.out.Now(); ahead > 0 {
				st.Buffered = time.Duration(ahead * int64(time.Second) / int64(cn.out.Rate()))
			}
		}
	}
	c.status.Store(st)
}

// resolve answers every pending Connect caller.
func (c *Controller) resolve(err error) {
	for _, w := range c.waiters {
		w <- err
	}
	c.waiters = nil
}

// ─── Connecting ──────────────────────────────────────────────────────────────

func (c *Controller) startAttempt() {
	c.gen++
	gen, cfg := c.gen, c.cfg
	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	c.cancel = cancel
	c.lastErr = nil
	c.setState(StateConnecting)

	c.attempts.Go(func() {
		defer cancel()
		cn, outcome, err := c.acquire(ctx, gen, cfg)
		if !c.post(context.Background(), func() { c.finishAttempt(gen, cn, outcome, err) }) && cn != nil {
			c.release(cn)
		}
	})
}

// acquire opens the speaker, microphone and transport in that order and
// waits for the open acknowledgment. On failure everything already acquired
// is released and outcome classifies the error.
func (c *Controller) acquire(ctx context.Context, gen uint64, cfg live.Config) (_ *conn, outcome string, err error) {
	cn := &conn{id: uuid.NewString(), gen: gen}
	defer func() {
		if err != nil {
			c.release(cn)
		}
	}()

	if c.devices.Speaker == nil || c.devices.Microphone == nil {
		return nil, connectDeviceError, fmt.Errorf("session: audio devices: %w", device.ErrUnavailable)
	}

	cn.out = playout.New(audio.PlaybackRate)
	cn.speaker, err = c.devices.Speaker.OpenPlayback(ctx, audio.PlaybackRate, c.renderBuffer, cn.out.Render)
	if err != nil {
		return nil, connectDeviceError, fmt.Errorf("session: open speaker: %w", err)
	}

	cn.enc, err = capture.Open(ctx, c.devices.Microphone, c.captureOpts...)
	if err != nil {
		return nil, connectDeviceError, fmt.Errorf("session: %w", err)
	}

	cn.sess, err = c.provider.Open(ctx, cfg)
	if err != nil {
		return nil, connectTransportError, fmt.Errorf("session: open %s: %w", c.provider.Name(), err)
	}

	select {
	case ev, ok := <-cn.sess.Events():
		switch {
		case !ok, ev.Type == live.EventClose:
			return nil, connectTransportError, fmt.Errorf("session: %s closed before open: %w", c.provider.Name(), live.ErrSessionClosed)
		case ev.Type == live.EventError:
			return nil, connectTransportError, fmt.Errorf("session: %s: %w", c.provider.Name(), ev.Err)
		case ev.Type != live.EventOpen:
			return nil, connectTransportError, fmt.Errorf("session: %s: unexpected %s before open", c.provider.Name(), ev.Type)
		}
	case <-ctx.Done():
		return nil, connectTransportError, fmt.Errorf("session: waiting for %s: %w", c.provider.Name(), ctx.Err())
	}
	return cn, connectOK, nil
}

func (c *Controller) finishAttempt(gen uint64, cn *conn, outcome string, err error) {
	if c.draining && gen == c.drainGen {
		if cn != nil {
			c.release(cn)
		}
		c.endDrain()
		return
	}
	if gen != c.gen || c.state != StateConnecting {
		// Disconnect or Close won the race; nothing acquired may survive.
		if cn != nil {
			c.release(cn)
		}
		return
	}
	c.cancel = nil
	c.metrics.RecordConnect(context.Background(), outcome)

	if err != nil {
		c.lastErr = err
		if outcome == connectTransportError {
			c.log.Error("session: connect failed", "provider", c.provider.Name(), "err", err)
			c.setState(StateError)
		} else {
			c.log.Warn("session: device unavailable", "err", err)
		}
		c.setState(StateIdle)
		c.resolve(err)
		return
	}

	c.activate(cn)
	c.resolve(nil)
}

// abortAttempt cancels the pending attempt and answers its callers with
// cause. The Controller stays in StateClosing until finishAttempt has seen the
// attempt's outcome and everything it acquired is released.
func (c *Controller) abortAttempt(cause error) {
	c.drainGen = c.gen
	c.draining = true
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.metrics.RecordConnect(context.Background(), connectCancelled)
	c.log.Info("session: connect aborted", "reason", cause)
	c.setState(StateClosing)
	c.resolve(cause)
}

// endDrain returns to StateIdle after an aborted attempt has released its
// resources, answers the Disconnect callers that waited for it and starts the
// attempt Connect callers queued meanwhile.
func (c *Controller) endDrain() {
	c.draining = false
	c.setState(StateIdle)
	for _, r := range c.drained {
		r <- nil
	}
	c.drained = nil
	if len(c.waiters) > 0 {
		c.startAttempt()
	}
}

// abandon drops a Connect caller whose context ended. The attempt is
// aborted once nobody is waiting for it.
func (c *Controller) abandon(reply chan error) {
	i := slices.Index(c.waiters, reply)
	if i < 0 {
		return
	}
	c.waiters = slices.Delete(c.waiters, i, i+1)
	if len(c.waiters) == 0 && c.state == StateConnecting {
		c.abortAttempt(ErrAborted)
	}
}

// ─── Active ──────────────────────────────────────────────────────────────────

func (c *Controller) activate(cn *conn) {
	cn.ctx, cn.cancel = context.WithCancel(observe.WithSessionID(context.Background(), cn.id))
	cn.sched = playback.New(cn.out)
	cn.queue = make(chan audio.AudioFrame, c.sendQueue)
	cn.events = cn.sess.Events()
	cn.started = time.Now()
	c.cur = cn

	cn.wg.Go(func() { c.sendLoop(cn) })
	cn.wg.Go(func() {
		err := cn.enc.Run(cn.ctx, func(f audio.AudioFrame) { c.enqueue(cn, f) })
		if err != nil {
			c.post(cn.ctx, func() { c.fail(cn, err) })
		}
	})

	c.encoder.Store(cn.enc)
	c.published.Store(cn)
	c.metrics.ActiveSessions.Add(context.Background(), 1)
	c.log.Info("session: connected", "session_id", cn.id, "provider", c.provider.Name())
	c.setState(StateActive)
}

// enqueue runs on the capture goroutine.
func (c *Controller) enqueue(cn *conn, f audio.AudioFrame) {
	select {
	case cn.queue <- f:
	default:
		c.metrics.AudioFramesDropped.Add(context.Background(), 1)
	}
}

func (c *Controller) sendLoop(cn *conn) {
	ctx := context.Background()
	for {
		select {
		case <-cn.ctx.Done():
			return
		case f := <-cn.queue:
			if err := cn.sess.SendAudio(f); err != nil {
				c.metrics.AudioFramesDropped.Add(ctx, 1)
				if errors.Is(err, live.ErrSessionClosed) {
					return
				}
				c.log.Warn("session: send audio failed", "session_id", cn.id, "err", err)
				continue
			}
			c.metrics.AudioFramesSent.Add(ctx, 1)
		}
	}
}

func (c *Controller) handleEvent(ev live.Event, ok bool) {
	cn := c.cur
	if !ok {
		c.log.Warn("session: event stream ended without close", "session_id", cn.id)
		c.teardown()
		return
	}

	switch ev.Type {
	case live.EventAudio:
		if _, err := cn.sched.Schedule(ev.Audio); err != nil {
			c.log.Warn("session: dropping audio chunk", "session_id", cn.id, "err", err)
			return
		}
		c.metrics.PlaybackChunks.Add(context.Background(), 1)
	case live.EventInterrupted:
		n := cn.sched.Interrupt()
		c.metrics.PlaybackInterruptions.Add(context.Background(), 1)
		c.log.Debug("session: playback interrupted", "session_id", cn.id, "stopped", n)
	case live.EventToolCall:
		for _, call := range ev.ToolCalls {
			cn.wg.Go(func() { c.answer(cn, call) })
		}
	case live.EventClose:
		c.log.Info("session: closed by remote", "session_id", cn.id)
		c.teardown()
	case live.EventError:
		c.fail(cn, ev.Err)
	}
}

// fail handles a transport or device failure of a live session.
func (c *Controller) fail(cn *conn, err error) {
	if c.cur != cn {
		return
	}
	c.log.Error("session: failed", "session_id", cn.id, "err", err)
	c.lastErr = err
	c.setState(StateError)
	c.teardown()
}

// answer runs on its own goroutine. A result for a session that has gone
// away is discarded.
func (c *Controller) answer(cn *conn, call live.ToolCall) {
	res := c.dispatcher.Dispatch(cn.ctx, call)
	if err := cn.sess.SendToolResult(res); err != nil {
		c.log.Debug("session: discarding tool result",
			"session_id", cn.id,
			"tool", call.Name,
			"call_id", call.ID,
			"err", err,
		)
	}
}

// teardown releases the current session and returns to StateIdle.
func (c *Controller) teardown() {
	cn := c.cur
	if cn == nil {
		return
	}
	c.setState(StateClosing)
	c.published.Store(nil)
	c.encoder.Store(nil)
	c.release(cn)
	cn.cancel()
	cn.wg.Wait()

	c.cur = nil
	c.metrics.ActiveSessions.Add(context.Background(), -1)
	c.log.Info("session: ended", "session_id", cn.id, "duration", time.Since(cn.started).Round(time.Millisecond))
	c.setState(StateIdle)
}

func (c *Controller) release(cn *conn) {
	if err := cn.release(); err != nil {
		c.log.Warn("session: release resources", "session_id", cn.id, "err", err)
	}
}

// ─── Camera ──────────────────────────────────────────────────────────────────

func (c *Controller) setCamera(ctx context.Context, on bool, reply chan<- error) {
	cn := c.cur
	if c.state != StateActive || cn == nil {
		reply <- ErrNotActive
		return
	}
	if !on {
		if cn.camera != nil {
			if err := cn.camera.Stop(); err != nil {
				c.log.Warn("session: stop camera", "session_id", cn.id, "err", err)
			}
			cn.camera = nil
			c.log.Info("session: camera off", "session_id", cn.id)
		}
		reply <- nil
		return
	}
	if cn.camera != nil {
		reply <- nil
		return
	}
	if c.devices.Camera == nil {
		reply <- fmt.Errorf("session: camera: %w", device.ErrUnavailable)
		return
	}

	cam := c.devices.Camera
	opts := append([]video.Option{video.WithLogger(c.log)}, c.videoOpts...)
	opts = append(opts, video.WithObserver(func(sent bool) {
		c.metrics.RecordVideoFrame(context.Background(), sent)
	}))
	cn.wg.Go(func() {
		octx, cancel := context.WithCancel(cn.ctx)
		stop := context.AfterFunc(ctx, cancel)
		s, err := video.Open(octx, cam, c.videoSink(cn), opts...)
		stop()
		cancel()
		if !c.post(cn.ctx, func() { c.cameraOpened(cn, s, err, reply) }) {
			if s != nil {
				_ = s.Stop()
			}
			reply <- ErrNotActive
		}
	})
}

func (c *Controller) cameraOpened(cn *conn, s *video.Sampler, err error, reply chan<- error) {
	switch {
	case c.cur != cn || c.state != StateActive:
		if s != nil {
			_ = s.Stop()
		}
		reply <- ErrNotActive
	case err != nil:
		c.log.Warn("session: camera unavailable", "session_id", cn.id, "err", err)
		reply <- fmt.Errorf("session: %w", err)
	case cn.camera != nil:
		_ = s.Stop()
		reply <- nil
	default:
		cn.camera = s
		c.log.Info("session: camera on", "session_id", cn.id)
		reply <- nil
	}
}

// videoSink offers frames to the published session only.
func (c *Controller) videoSink(cn *conn) video.Sink {
	return func(f video.Frame) bool {
		if c.published.Load() != cn {
			return false
		}
		if err := cn.sess.SendVideoFrame(f); err != nil {
			if !errors.Is(err, live.ErrUnsupported) && !errors.Is(err, live.ErrSessionClosed) {
				c.log.Debug("session: send video frame failed", "session_id", cn.id, "err", err)
			}
			return false
		}
		return true
	}
}
