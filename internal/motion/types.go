// Package motion turns raw motion-sensor samples into game state: whether the
// device is held level, and where the tracked dot sits on the playfield.
//
// Both components are single-owner and are meant to be driven synchronously
// from one goroutine, one call per sensor sample.
package motion

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrSensorRead marks a tick where the sensor collaborator failed to
	// deliver a sample. The tick is skipped and state is retained.
	ErrSensorRead = errors.New("motion: sensor read failed")

	// ErrInvalidSample marks a non-finite or out-of-range sample. Handled
	// like ErrSensorRead.
	ErrInvalidSample = errors.New("motion: invalid sample")
)

// AttitudeSample carries device pitch in radians (device frame, signed).
type AttitudeSample struct {
	Pitch float64
}

func (a AttitudeSample) valid() bool {
	return finite(a.Pitch) && math.Abs(a.Pitch) <= math.Pi
}

// AccelerationSample is linear acceleration in g along the device X/Y axes.
type AccelerationSample struct {
	X float64
	Y float64
}

func (a AccelerationSample) valid() bool {
	return finite(a.X) && finite(a.Y)
}

type OrientationState int

const (
	Level OrientationState = iota
	Tilted
)

func (s OrientationState) String() string {
	switch s {
	case Level:
		return "level"
	case Tilted:
		return "tilted"
	default:
		return "unknown"
	}
}

// MarshalText lets the state appear as "level"/"tilted" in JSON.
func (s OrientationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrientationState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "level":
		*s = Level
	case "tilted":
		*s = Tilted
	default:
		return fmt.Errorf("motion: unknown orientation %q", b)
	}
	return nil
}

// Advisory is raised whenever a sample is classified Tilted.
type Advisory struct {
	Message  string    `json:"message"`
	PitchDeg int       `json:"pitch_deg"`
	At       time.Time `json:"at"`
}

// AdvisoryNotLevel is the message shown to the player while tilted.
const AdvisoryNotLevel = "Not Horizontal"

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
