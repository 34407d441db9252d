//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads pins through the Linux GPIO character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	pins  []Pin
	lines map[int]*gpiocdev.Line
}

// NewRealReader requests every pin as an input on chipName.
func NewRealReader(chipName string, pins []Pin) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealReader{chip: chip, pins: pins, lines: map[int]*gpiocdev.Line{}}
	for _, pin := range pins {
		// Active-low inputs idle high, so they get a pull-up.
		bias := gpiocdev.WithPullDown
		if pin.ActiveLow {
			bias = gpiocdev.WithPullUp
		}
		line, err := chip.RequestLine(pin.Number, gpiocdev.AsInput, bias)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request pin %d: %w", pin.Number, err)
		}
		r.lines[pin.Number] = line
	}
	return r, nil
}

// Read returns the logical level of every pin.
func (r *RealReader) Read() (map[int]bool, error) {
	levels := make(map[int]bool, len(r.pins))
	for _, pin := range r.pins {
		raw, err := r.lines[pin.Number].Value()
		if err != nil {
			return nil, fmt.Errorf("read pin %d: %w", pin.Number, err)
		}
		levels[pin.Number] = (raw == 1) != pin.ActiveLow
	}
	return levels, nil
}

// Close returns every line to a pulled-down input and releases the chip.
func (r *RealReader) Close() error {
	var errs []error

	for number, line := range r.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", number, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", number, err))
		}
	}
	r.lines = map[int]*gpiocdev.Line{}

	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
