package sensor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"tiltgame/internal/i2c"
	"tiltgame/internal/motion"
	"tiltgame/internal/sensors/icm20948"
)

type IMUConfig struct {
	// I2CBus selects /dev/i2c-N as given; 0 is a valid bus.
	I2CBus   int
	Addr     uint16
	Interval time.Duration
}

// accelReader is the subset of *icm20948.Device the IMU source uses.
type accelReader interface {
	ReadAccel() (icm20948.Accel, error)
}

// IMU samples an ICM-20948 accelerometer. Pitch is derived from the gravity
// vector, so it is only meaningful while the device is not being shaken.
type IMU struct {
	dev    accelReader
	bus    *i2c.Bus
	addr   uint16
	ticker *time.Ticker

	closeOnce sync.Once
}

func NewIMU(cfg IMUConfig) (*IMU, error) {
	if cfg.Addr == 0 {
		cfg.Addr = icm20948.DefaultAddress()
	}
	interval := ClampInterval(cfg.Interval)

	bus, err := i2c.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("sensor: imu: %w", err)
	}
	regs := bus.Dev(cfg.Addr)
	dev, err := icm20948.New(regs, icm20948.Options{
		// Run the chip at twice the polling rate so every poll sees a fresh sample.
		SampleRateHz: 2 * float64(time.Second) / float64(interval),
	})
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("sensor: imu: %w", err)
	}
	m := newIMU(dev, bus, interval)
	m.addr = regs.Addr()
	return m, nil
}

func newIMU(dev accelReader, bus *i2c.Bus, interval time.Duration) *IMU {
	return &IMU{dev: dev, bus: bus, ticker: time.NewTicker(interval)}
}

func (m *IMU) Next(ctx context.Context) (Reading, error) {
	now, err := waitTick(ctx, m.ticker.C)
	if err != nil {
		return Reading{}, err
	}
	a, err := m.dev.ReadAccel()
	if err != nil {
		return Reading{At: now, AttitudeErr: err, AccelErr: err}, nil
	}
	return ReadingFromGravity(now, a.X, a.Y, a.Z), nil
}

// ReadingFromGravity builds a reading from a raw accelerometer vector in g.
// Pitch is the rotation about the device X axis (0 when lying flat); the
// X/Y components double as the tilt acceleration that steers the dot.
func ReadingFromGravity(at time.Time, ax, ay, az float64) Reading {
	return Reading{
		At:       at,
		Attitude: motion.AttitudeSample{Pitch: math.Atan2(ay, math.Hypot(ax, az))},
		Accel:    motion.AccelerationSample{X: ax, Y: ay},
	}
}

// Info describes the adapter and device address for status reporting.
func (m *IMU) Info() map[string]any {
	return map[string]any{
		"device": m.bus.Path(),
		"addr":   fmt.Sprintf("0x%02X", m.addr),
	}
}

func (m *IMU) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.ticker.Stop()
		if m.bus != nil {
			err = m.bus.Close()
		}
	})
	return err
}
