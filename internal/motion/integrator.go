package motion

import (
	"fmt"
	"math"

	"tiltgame/internal/geom"
)

const (
	DefaultAccelGain       = 10.0
	DefaultDeadbandEpsilon = 1.0
	DefaultTargetRadius    = 70
	DefaultDotDiameter     = 50.0
)

type IntegratorConfig struct {
	// AccelGain (K) scales g into a per-tick displacement.
	AccelGain float64
	// DeadbandEpsilon is compared against |dx|+|dy| after scaling.
	DeadbandEpsilon float64
	TargetRadius    int
	DotDiameter     float64
}

func (c IntegratorConfig) withDefaults() IntegratorConfig {
	if c.AccelGain == 0 {
		c.AccelGain = DefaultAccelGain
	}
	if c.TargetRadius == 0 {
		c.TargetRadius = DefaultTargetRadius
	}
	if c.DotDiameter == 0 {
		c.DotDiameter = DefaultDotDiameter
	}
	return c
}

func (c IntegratorConfig) validate() error {
	if !finite(c.AccelGain) || c.AccelGain <= 0 {
		return fmt.Errorf("motion: accel gain must be > 0")
	}
	if !finite(c.DeadbandEpsilon) || c.DeadbandEpsilon < 0 {
		return fmt.Errorf("motion: deadband epsilon must be >= 0")
	}
	if c.TargetRadius <= 0 {
		return fmt.Errorf("motion: target radius must be > 0")
	}
	if !finite(c.DotDiameter) || c.DotDiameter <= 0 {
		return fmt.Errorf("motion: dot diameter must be > 0")
	}
	return nil
}

// PositionIntegrator accumulates tilt into a dot position that is always kept
// inside the playfield, and hit-tests it against a target centred on the
// playfield. Position follows tilt directly; there is no velocity term.
type PositionIntegrator struct {
	cfg       IntegratorConfig
	playfield geom.Size
	target    geom.Circle
	pos       geom.Point
	inside    bool
}

// NewPositionIntegrator places the dot at the playfield centre.
// DeadbandEpsilon is taken as given (zero disables the deadband); other zero
// fields fall back to the package defaults.
func NewPositionIntegrator(cfg IntegratorConfig, playfield geom.Size) (*PositionIntegrator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &PositionIntegrator{cfg: cfg}
	if err := p.setPlayfield(playfield); err != nil {
		return nil, err
	}
	p.pos = playfield.Center()
	p.inside = p.target.ContainsTruncated(p.pos)
	return p, nil
}

func (p *PositionIntegrator) setPlayfield(s geom.Size) error {
	if !s.Valid() {
		return fmt.Errorf("motion: invalid playfield %vx%v", s.Width, s.Height)
	}
	if s.Width < p.cfg.DotDiameter || s.Height < p.cfg.DotDiameter {
		return fmt.Errorf("motion: playfield %vx%v smaller than dot diameter %v", s.Width, s.Height, p.cfg.DotDiameter)
	}
	p.playfield = s
	p.target = geom.Circle{Center: s.Center(), Radius: p.cfg.TargetRadius}
	return nil
}

// Delta scales a sample into a per-tick displacement and applies the
// deadband. Y is inverted so that tilting forward moves the dot up.
func (p *PositionIntegrator) Delta(a AccelerationSample) geom.Point {
	d := geom.Point{X: a.X * p.cfg.AccelGain, Y: a.Y * -p.cfg.AccelGain}
	if math.Abs(d.X)+math.Abs(d.Y) < p.cfg.DeadbandEpsilon {
		return geom.Point{}
	}
	return d
}

// Update integrates one acceleration sample and reports the clamped position
// and whether it lies inside the target. Non-finite samples are ignored: the
// previous position and inside flag are returned unchanged.
func (p *PositionIntegrator) Update(a AccelerationSample) (geom.Point, bool) {
	if !a.valid() {
		return p.pos, p.inside
	}
	next := p.clamp(p.pos.Add(p.Delta(a)))
	if !next.IsFinite() {
		// Gain * huge finite input can still overflow.
		return p.pos, p.inside
	}
	p.pos = next
	p.inside = p.target.ContainsTruncated(p.pos)
	return p.pos, p.inside
}

// Observe is the per-tick entry point matching OrientationMonitor.Observe.
func (p *PositionIntegrator) Observe(a AccelerationSample, readErr error) (geom.Point, bool, error) {
	if readErr != nil {
		return p.pos, p.inside, fmt.Errorf("%w: acceleration: %v", ErrSensorRead, readErr)
	}
	if !a.valid() {
		return p.pos, p.inside, fmt.Errorf("%w: accel=(%v,%v)", ErrInvalidSample, a.X, a.Y)
	}
	pos, inside := p.Update(a)
	return pos, inside, nil
}

// Resize switches to new playfield bounds. The target re-centres on the new
// playfield and the current position is re-clamped, not reset.
func (p *PositionIntegrator) Resize(s geom.Size) error {
	if err := p.setPlayfield(s); err != nil {
		return err
	}
	p.pos = p.clamp(p.pos)
	p.inside = p.target.ContainsTruncated(p.pos)
	return nil
}

// Reset moves the dot back to the playfield centre.
func (p *PositionIntegrator) Reset() {
	p.pos = p.playfield.Center()
	p.inside = p.target.ContainsTruncated(p.pos)
}

func (p *PositionIntegrator) clamp(pt geom.Point) geom.Point {
	h := p.HalfExtent()
	return geom.Point{
		X: geom.Clamp(pt.X, h, p.playfield.Width-h),
		Y: geom.Clamp(pt.Y, h, p.playfield.Height-h),
	}
}

func (p *PositionIntegrator) HalfExtent() float64 { return p.cfg.DotDiameter * 0.5 }
func (p *PositionIntegrator) Position() geom.Point { return p.pos }
func (p *PositionIntegrator) Inside() bool { return p.inside }
func (p *PositionIntegrator) Target() geom.Circle { return p.target }
func (p *PositionIntegrator) Playfield() geom.Size { return p.playfield }
func (p *PositionIntegrator) Config() IntegratorConfig { return p.cfg }
