// Package pinctrl reads trigger inputs through the Raspberry Pi `pinctrl`
// tool. It is the fallback backend for boards where the GPIO character
// device is not usable by the service user.
package pinctrl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/thatsimonsguy/automation-presence/internal/gpio"
)

type PinState struct {
	Pin     int
	Mode    string // e.g., "ip", "op", "no"
	Pull    string // e.g., "pu", "pd", "pn"
	Drive   string // e.g., "dh", "dl", ""
	Level   string // e.g., "hi", "lo", "--"
	Comment string // full comment, typically includes // GPIO#
}

var pinLineRegex = regexp.MustCompile(`^\s*(\d+):\s+(\S+)\s+(.*?)\s+\|\s+(\S+)\s+//\s+(.*GPIO(\d+).*)$`)

// Runner executes pinctrl with args and returns its stdout.
type Runner func(args ...string) ([]byte, error)

func execRunner(args ...string) ([]byte, error) {
	cmd := exec.Command("pinctrl", args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pinctrl %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// Reader implements gpio.Reader on top of `pinctrl get`.
type Reader struct {
	run  Runner
	pins []gpio.Pin
}

// NewReader configures every pin as an input and returns a reader for them.
func NewReader(pins []gpio.Pin) (*Reader, error) {
	return newReaderWith(execRunner, pins)
}

func newReaderWith(run Runner, pins []gpio.Pin) (*Reader, error) {
	r := &Reader{run: run, pins: pins}
	for _, pin := range pins {
		pull := "pd"
		if pin.ActiveLow {
			pull = "pu"
		}
		if err := r.SetPin(pin.Number, "ip", pull); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Read takes one `pinctrl get` sample and returns the logical level of every
// configured pin.
func (r *Reader) Read() (map[int]bool, error) {
	out, err := r.run("get")
	if err != nil {
		return nil, err
	}
	states, err := parseGetOutput(bytes.NewReader(out))
	if err != nil {
		return nil, err
	}

	levels := make(map[int]bool, len(r.pins))
	for _, pin := range r.pins {
		state, ok := states[pin.Number]
		if !ok {
			return nil, fmt.Errorf("pin %d not found in pinctrl output", pin.Number)
		}
		high, err := parseLevel(state.Level)
		if err != nil {
			return nil, fmt.Errorf("pin %d: %w", pin.Number, err)
		}
		levels[pin.Number] = high != pin.ActiveLow
	}
	return levels, nil
}

// Close leaves the pins configured as inputs.
func (r *Reader) Close() error {
	return nil
}

// SetPin applies one or more pinctrl set options to the specified GPIO pin
// Example: SetPin(17, "ip", "pu") sets pin 17 as input with pull-up
func (r *Reader) SetPin(pin int, opts ...string) error {
	args := append([]string{"set", strconv.Itoa(pin)}, opts...)
	if _, err := r.run(args...); err != nil {
		return fmt.Errorf("pinctrl set failed: %w", err)
	}
	return nil
}

func parseGetOutput(r io.Reader) (map[int]PinState, error) {
	result := make(map[int]PinState)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		matches := pinLineRegex.FindStringSubmatch(scanner.Text())
		if len(matches) != 7 {
			continue
		}

		index, _ := strconv.Atoi(matches[1])
		state := PinState{
			Pin:     index,
			Mode:    matches[2],
			Level:   matches[4],
			Comment: matches[5],
		}

		for _, opt := range strings.Fields(matches[3]) {
			if state.Pull == "" && (opt == "pu" || opt == "pd" || opt == "pn") {
				state.Pull = opt
			} else if state.Drive == "" && (opt == "dh" || opt == "dl") {
				state.Drive = opt
			}
		}

		result[state.Pin] = state
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning pinctrl output: %w", err)
	}
	return result, nil
}

func parseLevel(level string) (bool, error) {
	switch level {
	case "hi":
		return true, nil
	case "lo":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected level %q", level)
	}
}
