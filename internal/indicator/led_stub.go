//go:build !linux || (!arm && !arm64)

package indicator

import "fmt"

func openLED(pin int) (Indicator, error) {
	return nil, fmt.Errorf("indicator: gpio unsupported on this platform")
}

var openLEDFn = openLED
