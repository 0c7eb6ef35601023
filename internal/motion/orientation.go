package motion

import (
	"fmt"
	"math"
	"time"
)

// DefaultTiltThresholdDeg is the pitch magnitude above which the device
// counts as tilted.
const DefaultTiltThresholdDeg = 10

type OrientationConfig struct {
	// TiltThresholdDeg is compared against the truncated absolute pitch with a
	// strict '>' so exactly 10° is still level.
	TiltThresholdDeg int
}

// OrientationMonitor classifies attitude samples as Level or Tilted.
// There is no filtering across samples; the stored state is only used to
// report the last known value and to survive failed ticks.
type OrientationMonitor struct {
	cfg      OrientationConfig
	advise   func(Advisory)
	now      func() time.Time
	state    OrientationState
	known    bool
	pitchDeg int
}

// NewOrientationMonitor returns a monitor that calls onAdvisory (if non-nil)
// synchronously for every sample classified Tilted.
func NewOrientationMonitor(cfg OrientationConfig, onAdvisory func(Advisory)) *OrientationMonitor {
	if cfg.TiltThresholdDeg <= 0 {
		cfg.TiltThresholdDeg = DefaultTiltThresholdDeg
	}
	return &OrientationMonitor{cfg: cfg, advise: onAdvisory, now: time.Now}
}

// maxPitchDeg saturates PitchMagnitudeDeg so the int conversion never
// overflows.
const maxPitchDeg = math.MaxInt32

// PitchMagnitudeDeg converts pitch to degrees, takes the absolute value and
// truncates toward zero. Magnitudes beyond maxPitchDeg (and NaN) saturate.
func PitchMagnitudeDeg(pitchRad float64) int {
	deg := math.Abs(pitchRad * 180.0 / math.Pi)
	if !(deg < maxPitchDeg) {
		return maxPitchDeg
	}
	return int(deg)
}

func ClassifyPitch(pitchRad float64, thresholdDeg int) OrientationState {
	return classifyDeg(PitchMagnitudeDeg(pitchRad), thresholdDeg)
}

func classifyDeg(deg, thresholdDeg int) OrientationState {
	if deg > thresholdDeg {
		return Tilted
	}
	return Level
}

// Classify records and returns the state for a single good sample.
func (m *OrientationMonitor) Classify(a AttitudeSample) OrientationState {
	deg := PitchMagnitudeDeg(a.Pitch)
	st := classifyDeg(deg, m.cfg.TiltThresholdDeg)
	m.state = st
	m.known = true
	m.pitchDeg = deg
	if st == Tilted && m.advise != nil {
		m.advise(Advisory{Message: AdvisoryNotLevel, PitchDeg: deg, At: m.now().UTC()})
	}
	return st
}

// Observe is the per-tick entry point. A read error or a pitch that is
// non-finite or outside [-π, π]
// skips classification and returns the retained state together with an error
// wrapping ErrSensorRead or ErrInvalidSample.
func (m *OrientationMonitor) Observe(a AttitudeSample, readErr error) (OrientationState, error) {
	if readErr != nil {
		return m.state, fmt.Errorf("%w: attitude: %v", ErrSensorRead, readErr)
	}
	if !a.valid() {
		return m.state, fmt.Errorf("%w: pitch=%v", ErrInvalidSample, a.Pitch)
	}
	return m.Classify(a), nil
}

func (m *OrientationMonitor) State() OrientationState { return m.state }

// Known reports whether at least one sample has been classified.
func (m *OrientationMonitor) Known() bool { return m.known }

// PitchDeg is the truncated pitch magnitude of the last classified sample.
func (m *OrientationMonitor) PitchDeg() int { return m.pitchDeg }

func (m *OrientationMonitor) Threshold() int { return m.cfg.TiltThresholdDeg }
