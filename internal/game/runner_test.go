package game

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tiltgame/internal/geom"
	"tiltgame/internal/motion"
	"tiltgame/internal/sensor"
)

// scriptedSource returns its readings in order, then io.EOF.
type scriptedSource struct {
	readings []sensor.Reading
	i        int
	closed   bool
}

func (s *scriptedSource) Next(ctx context.Context) (sensor.Reading, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Reading{}, err
	}
	if s.i >= len(s.readings) {
		return sensor.Reading{}, io.EOF
	}
	r := s.readings[s.i]
	s.i++
	return r, nil
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

// blockingSource ticks on demand so tests can interleave commands.
type blockingSource struct {
	ch chan sensor.Reading
}

func (s *blockingSource) Next(ctx context.Context) (sensor.Reading, error) {
	select {
	case <-ctx.Done():
		return sensor.Reading{}, ctx.Err()
	case r, ok := <-s.ch:
		if !ok {
			return sensor.Reading{}, io.EOF
		}
		return r, nil
	}
}

func (s *blockingSource) Close() error { return nil }

type recorder struct {
	mu         sync.Mutex
	frames     []Frame
	advisories []motion.Advisory
	led        []bool
}

func (r *recorder) PublishFrame(f Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) PublishAdvisory(a motion.Advisory) {
	r.mu.Lock()
	r.advisories = append(r.advisories, a)
	r.mu.Unlock()
}

func (r *recorder) Set(on bool) error {
	r.mu.Lock()
	r.led = append(r.led, on)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Close() error { return nil }

func testConfig() Config {
	return Config{
		Orientation: motion.OrientationConfig{TiltThresholdDeg: 10},
		Integrator: motion.IntegratorConfig{
			AccelGain:       10,
			DeadbandEpsilon: 1,
			TargetRadius:    70,
			DotDiameter:     50,
		},
		Playfield: geom.Size{Width: 300, Height: 600},
	}
}

func newTestRunner(t *testing.T, cfg Config, src sensor.Source) (*Runner, *recorder) {
	t.Helper()
	rec := &recorder{}
	r, err := New(cfg, src, Outputs{Frames: rec, Advisories: rec, Indicator: rec}, nil)
	require.NoError(t, err)
	return r, rec
}

func TestNew_Validation(t *testing.T) {
	_, err := New(testConfig(), nil, Outputs{}, nil)
	require.Error(t, err)

	cfg := testConfig()
	cfg.Playfield = geom.Size{}
	_, err = New(cfg, &scriptedSource{}, Outputs{}, nil)
	require.Error(t, err)
}

func TestRun_PublishesFramePerReading(t *testing.T) {
	src := &scriptedSource{readings: []sensor.Reading{
		{Accel: motion.AccelerationSample{X: 0.5, Y: 0.3}},
		{Accel: motion.AccelerationSample{X: 0.01, Y: 0.01}},
		{Accel: motion.AccelerationSample{X: -50}},
	}}
	r, rec := newTestRunner(t, testConfig(), src)

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, rec.frames, 3)
	require.InDelta(t, 155.0, rec.frames[0].Position.X, 1e-9)
	require.InDelta(t, 297.0, rec.frames[0].Position.Y, 1e-9)
	require.True(t, rec.frames[0].Inside)
	require.Equal(t, rec.frames[0].Position, rec.frames[1].Position, "deadband holds position")
	require.Equal(t, 25.0, rec.frames[2].Position.X)
	require.False(t, rec.frames[2].Inside)
	for i, f := range rec.frames {
		require.Equal(t, uint64(i+1), f.Seq)
		require.Equal(t, r.Session(), f.Session)
		require.Equal(t, 50.0, f.DotDiameter)
	}

	// LED only toggles on change.
	require.Equal(t, []bool{true, false}, rec.led)

	last, stats := r.Snapshot()
	require.Equal(t, rec.frames[2], last)
	require.Equal(t, uint64(3), stats.Ticks)
}

func TestRun_SecondCallFails(t *testing.T) {
	r, _ := newTestRunner(t, testConfig(), &scriptedSource{})
	require.NoError(t, r.Run(context.Background()))
	require.Error(t, r.Run(context.Background()))
}

func TestRun_ReturnsContextError(t *testing.T) {
	r, _ := newTestRunner(t, testConfig(), &blockingSource{ch: make(chan sensor.Reading)})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.Run(ctx), context.DeadlineExceeded)
}

type brokenSource struct{}

func (brokenSource) Next(context.Context) (sensor.Reading, error) {
	return sensor.Reading{}, errors.New("device unplugged")
}
func (brokenSource) Close() error { return nil }

func TestRun_PropagatesSourceError(t *testing.T) {
	r, _ := newTestRunner(t, testConfig(), brokenSource{})
	err := r.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "device unplugged")
}

func TestStep_SensorFailureRetainsState(t *testing.T) {
	r, rec := newTestRunner(t, testConfig(), &scriptedSource{})

	f := r.Step(sensor.Reading{Attitude: motion.AttitudeSample{Pitch: 0.2}, Accel: motion.AccelerationSample{X: 1}})
	require.Equal(t, motion.Tilted, f.Orientation)
	require.InDelta(t, 160.0, f.Position.X, 1e-9)

	f = r.Step(sensor.Reading{
		Attitude:    motion.AttitudeSample{Pitch: 0},
		AttitudeErr: sensor.ErrDropout,
		Accel:       motion.AccelerationSample{X: 5},
		AccelErr:    sensor.ErrDropout,
	})
	require.Equal(t, motion.Tilted, f.Orientation)
	require.InDelta(t, 160.0, f.Position.X, 1e-9)

	_, stats := r.Snapshot()
	require.Equal(t, uint64(1), stats.AttitudeFailures)
	require.Equal(t, uint64(1), stats.AccelFailures)
	require.Contains(t, stats.LastError, "sensor read failed")
	require.Len(t, rec.frames, 2)
}

func TestStep_AdvisoryCooldown(t *testing.T) {
	tilted := sensor.Reading{Attitude: motion.AttitudeSample{Pitch: 0.3}}

	cfg := testConfig()
	cfg.AdvisoryCooldown = time.Hour
	r, rec := newTestRunner(t, cfg, &scriptedSource{})
	for i := 0; i < 5; i++ {
		r.Step(tilted)
	}
	require.Len(t, rec.advisories, 1)
	require.Equal(t, motion.AdvisoryNotLevel, rec.advisories[0].Message)
	require.Equal(t, 17, rec.advisories[0].PitchDeg)

	cfg.AdvisoryCooldown = -1
	r, rec = newTestRunner(t, cfg, &scriptedSource{})
	for i := 0; i < 5; i++ {
		r.Step(tilted)
	}
	r.Step(sensor.Reading{})
	require.Len(t, rec.advisories, 5)
	_, stats := r.Snapshot()
	require.Equal(t, uint64(5), stats.Advisories)
}

func TestStep_AdvisoryCooldownIgnoresReadingTime(t *testing.T) {
	cfg := testConfig()
	cfg.AdvisoryCooldown = time.Hour
	r, rec := newTestRunner(t, cfg, &scriptedSource{})
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		// Readings a full day apart in log time.
		r.Step(sensor.Reading{
			At:       start.Add(time.Duration(i) * 24 * time.Hour),
			Attitude: motion.AttitudeSample{Pitch: 0.3},
		})
	}
	require.Len(t, rec.advisories, 1)
}

// waitQueued blocks until the command is queued or already answered.
func waitQueued(t *testing.T, r *Runner, answered chan error) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.cmdCh) > 0 || len(answered) > 0
	}, time.Second, time.Millisecond)
}

func TestResizeAndReset(t *testing.T) {
	src := &blockingSource{ch: make(chan sensor.Reading)}
	r, _ := newTestRunner(t, testConfig(), src)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	src.ch <- sensor.Reading{Accel: motion.AccelerationSample{X: 100}}

	resizeErr := make(chan error, 1)
	go func() { resizeErr <- r.Resize(ctx, geom.Size{Width: 200, Height: 400}) }()
	// Commands are applied between ticks.
	waitQueued(t, r, resizeErr)
	src.ch <- sensor.Reading{}
	require.NoError(t, <-resizeErr)

	last, _ := r.Snapshot()
	require.Equal(t, geom.Size{Width: 200, Height: 400}, last.Playfield)
	require.Equal(t, 175.0, last.Position.X)

	resetErr := make(chan error, 1)
	go func() { resetErr <- r.Reset(ctx) }()
	waitQueued(t, r, resetErr)
	src.ch <- sensor.Reading{}
	require.NoError(t, <-resetErr)
	last, _ = r.Snapshot()
	require.Equal(t, geom.Point{X: 100, Y: 200}, last.Position)

	badErr := make(chan error, 1)
	go func() { badErr <- r.Resize(ctx, geom.Size{Width: 10, Height: 10}) }()
	waitQueued(t, r, badErr)
	src.ch <- sensor.Reading{}
	require.Error(t, <-badErr)

	close(src.ch)
	require.NoError(t, <-errCh)

	require.Error(t, r.Reset(ctx), "loop has stopped")
}

func TestResize_RejectsInvalidSizeUpFront(t *testing.T) {
	r, _ := newTestRunner(t, testConfig(), &scriptedSource{})
	require.Error(t, r.Resize(context.Background(), geom.Size{Width: -1, Height: 5}))
}

func TestPublishers_FanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	ps := Publishers{a, b}
	ps.PublishFrame(Frame{Seq: 1})
	ps.PublishAdvisory(motion.Advisory{Message: motion.AdvisoryNotLevel})
	for _, r := range []*recorder{a, b} {
		require.Len(t, r.frames, 1)
		require.Len(t, r.advisories, 1)
	}
}
