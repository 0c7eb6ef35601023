// Package icm20948 is a minimal accelerometer-only driver for the TDK
// ICM-20948. The gyro and magnetometer are left at their reset defaults.
package icm20948

import (
	"fmt"
	"time"

	"tiltgame/internal/i2c"
)

var sleep = time.Sleep

const (
	addrDefault = 0x68

	regBankSel = 0x7F

	// Bank 0.
	regWhoAmI     = 0x00
	whoAmIVal     = 0xEA
	regPwrMgmt1   = 0x06
	regPwrMgmt2   = 0x07
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D

	bitDeviceReset = 0x80
	clkAutoSelect  = 0x01
	disableGyro    = 0x07

	// Bank 2.
	regAccelSmplrtDiv1 = 0x10
	regAccelSmplrtDiv2 = 0x11
	regAccelConfig     = 0x14

	accelBaseRateHz = 1125.0
)

// accelRanges maps a full-scale range in g to ACCEL_FS_SEL bits.
var accelRanges = map[int]byte{2: 0x00, 4: 0x02, 8: 0x04, 16: 0x06}

func DefaultAddress() uint16 { return addrDefault }

type Options struct {
	// SampleRateHz is rounded to the nearest rate the divider can produce.
	// Default 50.
	SampleRateHz float64
	// FullScaleG is one of 2, 4, 8, 16. Default 4.
	FullScaleG int
}

// Accel is one acceleration reading in g, device frame.
type Accel struct {
	X, Y, Z float64
	At      time.Time
}

type Device struct {
	io      registers
	bank    byte
	scale   float64
	rateHz  float64
	rangeFS int
}

type registers interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func New(dev *i2c.Dev, opts Options) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	return open(dev, opts)
}

func open(io registers, opts Options) (*Device, error) {
	if opts.SampleRateHz <= 0 {
		opts.SampleRateHz = 50
	}
	if opts.FullScaleG == 0 {
		opts.FullScaleG = 4
	}
	fsBits, ok := accelRanges[opts.FullScaleG]
	if !ok {
		return nil, fmt.Errorf("icm20948: unsupported full scale %dg", opts.FullScaleG)
	}

	d := &Device{io: io, bank: 0xFF}
	if err := d.selectBank(0); err != nil {
		return nil, err
	}
	who, err := io.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := io.WriteReg(regPwrMgmt1, bitDeviceReset); err != nil {
		return nil, fmt.Errorf("icm20948: reset: %w", err)
	}
	sleep(100 * time.Millisecond)
	// Reset returns the chip to bank 0.
	d.bank = 0

	if err := io.WriteReg(regPwrMgmt1, clkAutoSelect); err != nil {
		return nil, fmt.Errorf("icm20948: wake: %w", err)
	}
	sleep(10 * time.Millisecond)
	if err := io.WriteReg(regPwrMgmt2, disableGyro); err != nil {
		return nil, fmt.Errorf("icm20948: power gyro down: %w", err)
	}
	_ = io.WriteReg(regIntEnable, 0x00)

	div := divider(opts.SampleRateHz)
	if err := d.selectBank(2); err != nil {
		return nil, err
	}
	if err := io.WriteReg(regAccelSmplrtDiv1, byte(div>>8)); err != nil {
		return nil, fmt.Errorf("icm20948: rate div: %w", err)
	}
	if err := io.WriteReg(regAccelSmplrtDiv2, byte(div)); err != nil {
		return nil, fmt.Errorf("icm20948: rate div: %w", err)
	}
	if err := io.WriteReg(regAccelConfig, fsBits); err != nil {
		return nil, fmt.Errorf("icm20948: accel config: %w", err)
	}
	if err := d.selectBank(0); err != nil {
		return nil, err
	}

	d.rangeFS = opts.FullScaleG
	d.scale = float64(opts.FullScaleG) / 32768.0
	d.rateHz = accelBaseRateHz / float64(div+1)
	return d, nil
}

// divider returns the 12-bit ACCEL_SMPLRT_DIV for the requested rate.
func divider(rateHz float64) uint16 {
	div := int(accelBaseRateHz/rateHz+0.5) - 1
	if div < 0 {
		div = 0
	}
	if div > 0x0FFF {
		div = 0x0FFF
	}
	return uint16(div)
}

func (d *Device) selectBank(bank byte) error {
	if d.bank == bank {
		return nil
	}
	if err := d.io.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: select bank %d: %w", bank, err)
	}
	d.bank = bank
	return nil
}

// SampleRateHz is the output data rate actually configured.
func (d *Device) SampleRateHz() float64 { return d.rateHz }

func (d *Device) FullScaleG() int { return d.rangeFS }

func (d *Device) ReadAccel() (Accel, error) {
	if d == nil {
		return Accel{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.selectBank(0); err != nil {
		return Accel{}, err
	}
	var buf [6]byte
	if err := d.io.ReadReg(regAccelXoutH, buf[:]); err != nil {
		return Accel{}, fmt.Errorf("icm20948: read accel: %w", err)
	}
	return Accel{
		X:  float64(int16(uint16(buf[0])<<8|uint16(buf[1]))) * d.scale,
		Y:  float64(int16(uint16(buf[2])<<8|uint16(buf[3]))) * d.scale,
		Z:  float64(int16(uint16(buf[4])<<8|uint16(buf[5]))) * d.scale,
		At: time.Now(),
	}, nil
}
