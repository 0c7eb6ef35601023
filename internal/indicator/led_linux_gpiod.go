//go:build linux && (arm || arm64)

package indicator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

func openLED(pin int) (Indicator, error) {
	lineName := fmt.Sprintf("GPIO%d", pin)
	for _, chipPath := range candidateChips() {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("tiltgame-led"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &led{chip: chip, line: line}, nil
	}
	return nil, fmt.Errorf("indicator: gpio line %q not found (or busy)", lineName)
}

// candidateChips lists gpiochip0 and gpiochip4 (header pins on Pi 5 kernels)
// first, then any other chip, without duplicates.
func candidateChips() []string {
	chips := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	seen := map[string]bool{chips[0]: true, chips[1]: true}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		p := filepath.Join("/dev", e.Name())
		if strings.HasPrefix(e.Name(), "gpiochip") && !seen[p] {
			seen[p] = true
			chips = append(chips, p)
		}
	}
	return chips
}

var openLEDFn = openLED

type led struct {
	mu   sync.Mutex
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (l *led) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return fmt.Errorf("indicator: led closed")
	}
	v := 0
	if on {
		v = 1
	}
	return l.line.SetValue(v)
}

func (l *led) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return nil
	}
	_ = l.line.SetValue(0)
	err := l.line.Close()
	l.line = nil
	if l.chip != nil {
		_ = l.chip.Close()
		l.chip = nil
	}
	return err
}
