package gpiocontroller

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/automation-presence/internal/config"
	"github.com/thatsimonsguy/automation-presence/internal/gpio"
	"github.com/thatsimonsguy/automation-presence/internal/state"
)

// TriggerHandler is the engine entry point for hardware events.
type TriggerHandler interface {
	HandleTriggerEvent(ctx context.Context, zoneID, triggerID string, value, notifyExternally bool) error
}

// Binding ties one GPIO pin to one trigger. Pulse bindings never forward a
// release and rely on the trigger's reset_after to clear; while the input
// stays active they re-forward it every half ResetAfter so the trigger does
// not lapse under a sensor that is still seeing motion.
type Binding struct {
	ZoneID     string
	TriggerID  string
	Name       string
	Pin        int
	ActiveLow  bool
	Pulse      bool
	ResetAfter time.Duration
}

// BindingsFromConfig collects every trigger that declares a gpio block.
func BindingsFromConfig(cfg *config.Config) []Binding {
	var bindings []Binding
	for _, zone := range cfg.Zones {
		zoneName := strings.TrimSpace(zone.Name)
		zoneID := state.ZoneID(zoneName)
		for _, trigger := range zone.Triggers {
			if trigger.GPIO == nil {
				continue
			}
			triggerName := strings.TrimSpace(trigger.Name)
			bindings = append(bindings, Binding{
				ZoneID:     zoneID,
				TriggerID:  state.TriggerID(zoneID, triggerName),
				Name:       zoneName + "/" + triggerName,
				Pin:        trigger.GPIO.Pin,
				ActiveLow:  trigger.GPIO.ActiveLow,
				Pulse:      trigger.ResetAfter > 0,
				ResetAfter: trigger.ResetAfter,
			})
		}
	}
	return bindings
}

// Pins lists the reader configuration for bindings.
func Pins(bindings []Binding) []gpio.Pin {
	pins := make([]gpio.Pin, 0, len(bindings))
	for _, b := range bindings {
		pins = append(pins, gpio.Pin{Number: b.Pin, ActiveLow: b.ActiveLow})
	}
	return pins
}

// shouldForward decides whether a debounced change becomes a trigger event.
func shouldForward(b Binding, change gpio.Change) bool {
	if b.Pulse {
		return change.Value
	}
	return true
}

// RunGPIOController polls reader, debounces every pin and forwards stable
// changes to handler until ctx is done. The reader is closed on exit.
func RunGPIOController(ctx context.Context, reader gpio.Reader, handler TriggerHandler, bindings []Binding, clk clockwork.Clock, poll, debounce time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := clk.NewTicker(poll)
	p := newPoller(reader, handler, bindings, debounce)

	go func() {
		defer close(done)
		defer ticker.Stop()
		defer func() {
			if err := reader.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to release GPIO lines")
			}
		}()

		log.Info().Int("pins", len(bindings)).Dur("poll", poll).Dur("debounce", debounce).Msg("Starting GPIO controller")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("GPIO controller stopped")
				return
			case <-ticker.Chan():
				p.sample(ctx, clk.Now())
			}
		}
	}()

	return done
}

type poller struct {
	reader    gpio.Reader
	handler   TriggerHandler
	debouncer *gpio.Debouncer
	byPin     map[int]Binding

	// lastActive is when each pulse pin last forwarded true.
	lastActive map[int]time.Time
}

func newPoller(reader gpio.Reader, handler TriggerHandler, bindings []Binding, debounce time.Duration) *poller {
	byPin := make(map[int]Binding, len(bindings))
	for _, b := range bindings {
		byPin[b.Pin] = b
	}
	return &poller{
		reader:     reader,
		handler:    handler,
		debouncer:  gpio.NewDebouncer(debounce),
		byPin:      byPin,
		lastActive: map[int]time.Time{},
	}
}

func (p *poller) sample(ctx context.Context, now time.Time) {
	levels, err := p.reader.Read()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read GPIO inputs")
		return
	}

	changed := map[int]bool{}
	for _, change := range p.debouncer.Process(levels, now) {
		b, ok := p.byPin[change.Pin]
		if !ok {
			continue
		}
		changed[change.Pin] = true

		log.Debug().
			Int("pin", change.Pin).
			Str("trigger", b.Name).
			Bool("value", change.Value).
			Bool("baseline", change.Baseline).
			Msg("GPIO input changed")

		if !shouldForward(b, change) {
			continue
		}
		p.forward(ctx, b, change.Value, true, now)
	}

	for pin, b := range p.byPin {
		if changed[pin] || !p.heldActive(b, now) {
			continue
		}
		log.Debug().Int("pin", pin).Str("trigger", b.Name).Msg("GPIO input still active, refreshing trigger")
		p.forward(ctx, b, true, false, now)
	}
}

// heldActive reports whether a pulse pin has stayed high long enough that its
// trigger needs refreshing before reset_after runs out.
func (p *poller) heldActive(b Binding, now time.Time) bool {
	if !b.Pulse {
		return false
	}
	level, known := p.debouncer.Stable(b.Pin)
	if !known || !level {
		return false
	}
	last, ok := p.lastActive[b.Pin]
	return ok && now.Sub(last) >= b.ResetAfter/2
}

func (p *poller) forward(ctx context.Context, b Binding, value, notify bool, now time.Time) {
	if b.Pulse && value {
		p.lastActive[b.Pin] = now
	}
	if err := p.handler.HandleTriggerEvent(ctx, b.ZoneID, b.TriggerID, value, notify); err != nil {
		log.Error().Err(err).Str("trigger", b.Name).Msg("Failed to apply GPIO trigger event")
	}
}
