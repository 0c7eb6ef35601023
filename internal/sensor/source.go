// Package sensor adapts motion-sensor hardware (or stand-ins for it) into a
// pull-based stream of readings paced at the sensor's own rate.
package sensor

import (
	"context"
	"errors"
	"time"

	"tiltgame/internal/motion"
)

// Reading is one sensor tick. The attitude and acceleration streams fail
// independently; a non-nil *Err field means that half of the tick is unusable.
type Reading struct {
	At          time.Time
	Attitude    motion.AttitudeSample
	AttitudeErr error
	Accel       motion.AccelerationSample
	AccelErr    error
}

// Source delivers readings. Next blocks until the next sample is due.
// A non-nil error ends the stream: io.EOF when a finite source is exhausted,
// ctx.Err() on cancellation. Per-tick read failures are reported inside the
// Reading, never as an error from Next.
type Source interface {
	Next(ctx context.Context) (Reading, error)
	Close() error
}

// ErrDropout is the per-tick failure injected by the simulator and replay
// sources.
var ErrDropout = errors.New("sensor: sample dropped")

const (
	MinInterval = 10 * time.Millisecond
	MaxInterval = 50 * time.Millisecond
)

// ClampInterval keeps a requested sample period inside the supported
// 10-50ms window.
func ClampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return 20 * time.Millisecond
	}
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}

// waitTick blocks on a ticker channel or ctx.
func waitTick(ctx context.Context, c <-chan time.Time) (time.Time, error) {
	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case t := <-c:
		return t.UTC(), nil
	}
}
