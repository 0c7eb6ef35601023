// Package game runs the tick loop that connects a sensor source to the
// motion core and fans the results out to the presentation side.
package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tiltgame/internal/geom"
	"tiltgame/internal/indicator"
	"tiltgame/internal/logging"
	"tiltgame/internal/motion"
	"tiltgame/internal/sensor"
)

// DefaultAdvisoryCooldown matches how long the UI keeps a toast on screen.
const DefaultAdvisoryCooldown = 1200 * time.Millisecond

// failureWarnEvery escalates consecutive sensor failures from Debug to Warn.
const failureWarnEvery = 50

type Config struct {
	Orientation motion.OrientationConfig
	Integrator  motion.IntegratorConfig
	Playfield   geom.Size
	// AdvisoryCooldown limits advisories forwarded to the presentation side.
	// The monitor still raises one per tilted sample. It is measured on the
	// wall clock, matching the toast lifetime, so a replay at speed != 1 is
	// limited in real time rather than log time. Negative disables the limit.
	AdvisoryCooldown time.Duration
}

// Frame is what the presentation side needs to draw one tick.
type Frame struct {
	Session          string                  `json:"session"`
	Seq              uint64                  `json:"seq"`
	At               time.Time               `json:"at"`
	Position         geom.Point              `json:"position"`
	Inside           bool                    `json:"inside"`
	Orientation      motion.OrientationState `json:"orientation"`
	OrientationKnown bool                    `json:"orientation_known"`
	PitchDeg         int                     `json:"pitch_deg"`
	DotDiameter      float64                 `json:"dot_diameter"`
	Target           geom.Circle             `json:"target"`
	Playfield        geom.Size               `json:"playfield"`
}

type Stats struct {
	Ticks            uint64 `json:"ticks"`
	AttitudeFailures uint64 `json:"attitude_failures"`
	AccelFailures    uint64 `json:"accel_failures"`
	Advisories       uint64 `json:"advisories"`
	LastError        string `json:"last_error,omitempty"`
}

type FrameSink interface {
	PublishFrame(Frame)
}

type AdvisorySink interface {
	PublishAdvisory(motion.Advisory)
}

type Publisher interface {
	FrameSink
	AdvisorySink
}

// Publishers fans out to each member in order.
type Publishers []Publisher

func (ps Publishers) PublishFrame(f Frame) {
	for _, p := range ps {
		p.PublishFrame(f)
	}
}

func (ps Publishers) PublishAdvisory(a motion.Advisory) {
	for _, p := range ps {
		p.PublishAdvisory(a)
	}
}

// Outputs are the presentation collaborators. Nil members are skipped.
type Outputs struct {
	Frames     FrameSink
	Advisories AdvisorySink
	Indicator  indicator.Indicator
}

type Runner struct {
	cfg     Config
	src     sensor.Source
	out     Outputs
	log     *zap.Logger
	session string

	monitor    *motion.OrientationMonitor
	integrator *motion.PositionIntegrator

	// Loop-owned state.
	lastAdvisoryAt  time.Time
	ledOn           bool
	ledKnown        bool
	attFailStreak   int
	accelFailStreak int
	pendingAdvisory *motion.Advisory

	cmdCh   chan command
	stopped chan struct{}
	runOnce sync.Once

	mu    sync.RWMutex
	last  Frame
	stats Stats
}

type command struct {
	resize *geom.Size
	reset  bool
	done   chan error
}

func New(cfg Config, src sensor.Source, out Outputs, log *zap.Logger) (*Runner, error) {
	if src == nil {
		return nil, fmt.Errorf("game: source is nil")
	}
	if cfg.AdvisoryCooldown == 0 {
		cfg.AdvisoryCooldown = DefaultAdvisoryCooldown
	}
	integrator, err := motion.NewPositionIntegrator(cfg.Integrator, cfg.Playfield)
	if err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	r := &Runner{
		cfg:        cfg,
		src:        src,
		out:        out,
		session:    uuid.NewString(),
		integrator: integrator,
		cmdCh:      make(chan command, 4),
		stopped:    make(chan struct{}),
	}
	r.log = logging.OrNop(log).With(zap.String("session", r.session))
	r.monitor = motion.NewOrientationMonitor(cfg.Orientation, r.onAdvisory)
	r.last = r.frame(time.Now().UTC(), 0)
	return r, nil
}

func (r *Runner) Session() string { return r.session }

// Run drives the loop until ctx is cancelled or the source ends. It returns
// nil when a finite source is exhausted. Run may only be called once.
func (r *Runner) Run(ctx context.Context) error {
	started := false
	r.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("game: runner already started")
	}
	defer close(r.stopped)

	r.log.Info("game loop starting",
		zap.Float64("playfield_w", r.cfg.Playfield.Width),
		zap.Float64("playfield_h", r.cfg.Playfield.Height),
		zap.Int("tilt_threshold_deg", r.monitor.Threshold()),
	)
	for {
		r.drainCommands()
		reading, err := r.src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.log.Info("sensor source exhausted")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("game: sensor source: %w", err)
		}
		r.Step(reading)
	}
}

// Step processes one reading synchronously. It is exported for callers that
// drive the core themselves (tests, tools); it must not run concurrently with
// Run.
func (r *Runner) Step(reading sensor.Reading) Frame {
	at := reading.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, attErr := r.monitor.Observe(reading.Attitude, reading.AttitudeErr)
	r.attFailStreak = r.noteFailure("attitude", attErr, r.attFailStreak)

	_, _, accErr := r.integrator.Observe(reading.Accel, reading.AccelErr)
	r.accelFailStreak = r.noteFailure("acceleration", accErr, r.accelFailStreak)

	r.mu.Lock()
	r.stats.Ticks++
	if attErr != nil {
		r.stats.AttitudeFailures++
		r.stats.LastError = attErr.Error()
	}
	if accErr != nil {
		r.stats.AccelFailures++
		r.stats.LastError = accErr.Error()
	}
	f := r.frame(at, r.stats.Ticks)
	r.last = f
	adv := r.pendingAdvisory
	r.pendingAdvisory = nil
	if adv != nil {
		r.stats.Advisories++
	}
	r.mu.Unlock()

	if r.out.Frames != nil {
		r.out.Frames.PublishFrame(f)
	}
	if adv != nil && r.out.Advisories != nil {
		r.out.Advisories.PublishAdvisory(*adv)
	}
	r.updateIndicator(f.Inside)
	return f
}

// onAdvisory runs synchronously inside monitor.Classify on the loop goroutine.
func (r *Runner) onAdvisory(a motion.Advisory) {
	if r.cfg.AdvisoryCooldown > 0 && !r.lastAdvisoryAt.IsZero() && a.At.Sub(r.lastAdvisoryAt) < r.cfg.AdvisoryCooldown {
		return
	}
	r.lastAdvisoryAt = a.At
	r.pendingAdvisory = &a
	r.log.Debug("device not level", zap.Int("pitch_deg", a.PitchDeg))
}

func (r *Runner) noteFailure(stream string, err error, streak int) int {
	if err == nil {
		if streak >= failureWarnEvery {
			r.log.Info("sensor recovered", zap.String("stream", stream), zap.Int("failed_ticks", streak))
		}
		return 0
	}
	streak++
	if streak%failureWarnEvery == 0 {
		r.log.Warn("sensor failing", zap.String("stream", stream), zap.Int("consecutive", streak), zap.Error(err))
	} else {
		r.log.Debug("sensor tick skipped", zap.String("stream", stream), zap.Error(err))
	}
	return streak
}

func (r *Runner) updateIndicator(inside bool) {
	if r.out.Indicator == nil || (r.ledKnown && r.ledOn == inside) {
		return
	}
	if err := r.out.Indicator.Set(inside); err != nil {
		r.log.Warn("indicator update failed", zap.Error(err))
		return
	}
	r.ledOn = inside
	r.ledKnown = true
}

func (r *Runner) frame(at time.Time, seq uint64) Frame {
	return Frame{
		Session:          r.session,
		Seq:              seq,
		At:               at,
		Position:         r.integrator.Position(),
		Inside:           r.integrator.Inside(),
		Orientation:      r.monitor.State(),
		OrientationKnown: r.monitor.Known(),
		PitchDeg:         r.monitor.PitchDeg(),
		DotDiameter:      r.integrator.Config().DotDiameter,
		Target:           r.integrator.Target(),
		Playfield:        r.integrator.Playfield(),
	}
}

// Resize asks the loop to switch playfield bounds. It waits until the loop
// has applied the change (at the start of the next tick).
func (r *Runner) Resize(ctx context.Context, size geom.Size) error {
	if !size.Valid() {
		return fmt.Errorf("game: invalid playfield %vx%v", size.Width, size.Height)
	}
	return r.submit(ctx, command{resize: &size})
}

// Reset recentres the dot.
func (r *Runner) Reset(ctx context.Context) error {
	return r.submit(ctx, command{reset: true})
}

func (r *Runner) submit(ctx context.Context, cmd command) error {
	if ctx == nil {
		return fmt.Errorf("game: ctx is nil")
	}
	cmd.done = make(chan error, 1)
	select {
	case r.cmdCh <- cmd:
	case <-r.stopped:
		return fmt.Errorf("game: loop not running")
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("game: too many pending commands")
	}
	select {
	case err := <-cmd.done:
		return err
	case <-r.stopped:
		return fmt.Errorf("game: loop stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) drainCommands() {
	for {
		select {
		case cmd := <-r.cmdCh:
			cmd.done <- r.apply(cmd)
		default:
			return
		}
	}
}

func (r *Runner) apply(cmd command) error {
	var err error
	switch {
	case cmd.resize != nil:
		err = r.integrator.Resize(*cmd.resize)
		if err == nil {
			r.log.Info("playfield resized", zap.Float64("w", cmd.resize.Width), zap.Float64("h", cmd.resize.Height))
		}
	case cmd.reset:
		r.integrator.Reset()
	}
	if err != nil {
		return fmt.Errorf("game: %w", err)
	}
	r.mu.Lock()
	r.last = r.frame(time.Now().UTC(), r.stats.Ticks)
	r.mu.Unlock()
	return nil
}

// Snapshot returns the most recent frame and counters. Safe for concurrent use.
func (r *Runner) Snapshot() (Frame, Stats) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.stats
}
