// Package indicator mirrors the target highlight on a physical LED.
package indicator

import "fmt"

// Indicator shows whether the dot is inside the target.
type Indicator interface {
	Set(on bool) error
	Close() error
}

// Nop is used when no LED is configured.
type Nop struct{}

func (Nop) Set(bool) error { return nil }
func (Nop) Close() error   { return nil }

// Open drives BCM GPIO pin as the target LED. It fails on platforms
// without a GPIO character device.
func Open(pin int) (Indicator, error) {
	if pin < 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", pin)
	}
	return openLEDFn(pin)
}
