package sensor

import (
	"context"
	"math"
	"sync"
	"time"

	"tiltgame/internal/motion"
)

type SimConfig struct {
	Interval time.Duration
	// Period of one full loop of the simulated hand motion.
	Period time.Duration
	// AmplitudeG is the peak tilt acceleration on each axis.
	AmplitudeG float64
	// PitchAmplitudeDeg is the peak pitch; above the tilt threshold the
	// simulated player periodically holds the device off level.
	PitchAmplitudeDeg float64
	// FailEvery > 0 drops every Nth tick (both streams) to exercise the
	// read-failure path.
	FailEvery int
}

func (c SimConfig) withDefaults() SimConfig {
	c.Interval = ClampInterval(c.Interval)
	if c.Period <= 0 {
		c.Period = 8 * time.Second
	}
	if c.AmplitudeG == 0 {
		c.AmplitudeG = 0.3
	}
	if c.PitchAmplitudeDeg == 0 {
		c.PitchAmplitudeDeg = 14
	}
	return c
}

// Sim is a deterministic stand-in for a handheld device: the acceleration
// traces an ellipse, and pitch swings at half that rate.
type Sim struct {
	cfg    SimConfig
	start  time.Time
	ticker *time.Ticker
	tick   int

	stopOnce sync.Once
}

func NewSim(cfg SimConfig) *Sim {
	cfg = cfg.withDefaults()
	return &Sim{cfg: cfg, start: time.Now().UTC(), ticker: time.NewTicker(cfg.Interval)}
}

func (s *Sim) Next(ctx context.Context) (Reading, error) {
	now, err := waitTick(ctx, s.ticker.C)
	if err != nil {
		return Reading{}, err
	}
	s.tick++
	r := SimReading(s.cfg, now.Sub(s.start))
	r.At = now
	if s.cfg.FailEvery > 0 && s.tick%s.cfg.FailEvery == 0 {
		r.AttitudeErr = ErrDropout
		r.AccelErr = ErrDropout
	}
	return r, nil
}

func (s *Sim) Close() error {
	s.stopOnce.Do(s.ticker.Stop)
	return nil
}

// SimReading is the simulated sample at the given time since start.
func SimReading(cfg SimConfig, elapsed time.Duration) Reading {
	cfg = cfg.withDefaults()
	phase := float64(elapsed%cfg.Period) / float64(cfg.Period)
	w := 2 * math.Pi * phase

	pitchDeg := cfg.PitchAmplitudeDeg * math.Sin(w/2)
	return Reading{
		Attitude: motion.AttitudeSample{Pitch: pitchDeg * math.Pi / 180},
		Accel: motion.AccelerationSample{
			X: cfg.AmplitudeG * math.Cos(w),
			Y: 0.5 * cfg.AmplitudeG * math.Sin(w),
		},
	}
}

func (s *Sim) Info() map[string]any {
	return map[string]any{
		"period":              s.cfg.Period.String(),
		"amplitude_g":         s.cfg.AmplitudeG,
		"pitch_amplitude_deg": s.cfg.PitchAmplitudeDeg,
		"fail_every":          s.cfg.FailEvery,
	}
}
