// Package service assembles the presence engine and everything around it:
// persistence, history, notification sinks and the background controllers.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/automation-presence/db"
	"github.com/thatsimonsguy/automation-presence/internal/api"
	"github.com/thatsimonsguy/automation-presence/internal/config"
	"github.com/thatsimonsguy/automation-presence/internal/controllers/expirycontroller"
	"github.com/thatsimonsguy/automation-presence/internal/controllers/gpiocontroller"
	"github.com/thatsimonsguy/automation-presence/internal/controllers/snapshotcontroller"
	"github.com/thatsimonsguy/automation-presence/internal/datadog"
	"github.com/thatsimonsguy/automation-presence/internal/engine"
	"github.com/thatsimonsguy/automation-presence/internal/gpio"
	"github.com/thatsimonsguy/automation-presence/internal/logging"
	"github.com/thatsimonsguy/automation-presence/internal/model"
	"github.com/thatsimonsguy/automation-presence/internal/mqtt"
	"github.com/thatsimonsguy/automation-presence/internal/notifications"
	"github.com/thatsimonsguy/automation-presence/internal/pinctrl"
	"github.com/thatsimonsguy/automation-presence/internal/state"
	"github.com/thatsimonsguy/automation-presence/internal/store"
	"github.com/thatsimonsguy/automation-presence/internal/version"
)

const mqttConnectTimeout = 10 * time.Second

type Options struct {
	ConfigPath string
	Overrides  config.Overrides

	// Console forces log lines onto stderr in addition to the log file. Debug
	// mode turns it on as well.
	Console bool
	Clock   clockwork.Clock
}

// logToConsole reports whether log lines are mirrored to stderr. Without a
// log file they always are.
func logToConsole(cfg *config.Config, opts Options) bool {
	return opts.Console || cfg.Debug
}

// Run starts the service and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath, opts.Overrides)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogFile, logToConsole(cfg, opts)); err != nil {
		return err
	}

	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	log.Info().
		Str("version", version.Short()).
		Str("config", cfg.ConfigFile).
		Str("state_file", cfg.StateFile).
		Int("zones", len(cfg.Zones)).
		Msg("Starting presence service")

	fresh, err := state.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("build topology: %w", err)
	}

	st := store.New(cfg.StateFile)
	persisted, err := st.Load()
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info().Str("path", st.Path()).Msg("No persisted state, starting fresh")
	case err != nil:
		log.Warn().Err(err).Str("path", st.Path()).Msg("Failed to load persisted state, starting fresh")
	}
	merged := state.Merge(persisted, fresh)

	eventLog := logging.NewEventLog()
	engineOpts := engine.Options{Clock: clk, Store: st, Events: eventLog}
	sinks := []snapshotcontroller.Sink{eventLog}

	var history api.HistorySource
	if cfg.HistoryDB != "" {
		dbConn, err := openHistory(cfg, clk)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		recorder := db.NewHistoryStore(dbConn)
		engineOpts.History = append(engineOpts.History, recorder)
		history = recorder
	}

	var binding *mqtt.Binding
	var mqttClient *mqtt.PahoClient
	if cfg.MQTT.Broker != "" {
		mqttClient = mqtt.NewPahoClient(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		defer mqttClient.Close()

		binding = mqtt.NewBinding(mqttClient, cfg.MQTT.TopicPrefix, clk)
		engineOpts.Notifiers = append(engineOpts.Notifiers, binding)
		engineOpts.History = append(engineOpts.History, binding)
	}

	if cfg.Datadog.Enabled {
		dd, err := datadog.New(cfg.Datadog.AgentAddr, cfg.Datadog.Namespace, cfg.Datadog.Tags)
		if err != nil {
			log.Error().Err(err).Msg("Datadog disabled")
		} else {
			defer dd.Close()
			dd.Describe(merged)
			engineOpts.Notifiers = append(engineOpts.Notifiers, dd)
			sinks = append(sinks, dd)
		}
	}

	if ntfy := notifications.New(cfg.Ntfy.Server, cfg.Ntfy.Topic, cfg.Name); ntfy != nil {
		engineOpts.Notifiers = append(engineOpts.Notifiers, ntfy)
	}

	e := engine.New(merged, engineOpts)
	defer e.Close()

	e.Reconcile(ctx)
	logState(e.GetState())
	eventLog.Snapshot(e.GetState())

	var running []<-chan struct{}
	running = append(running, expirycontroller.RunExpiryController(ctx, e, clk, cfg.ScanInterval))
	running = append(running, snapshotcontroller.RunSnapshotController(ctx, e, sinks, clk, cfg.SnapshotInterval))

	if cfg.HasGPIO() {
		if done, err := startGPIO(ctx, cfg, e, clk); err != nil {
			log.Error().Err(err).Msg("GPIO inputs disabled")
		} else {
			running = append(running, done)
		}
	}

	if binding != nil {
		if err := binding.Start(e); err != nil {
			return fmt.Errorf("start mqtt binding: %w", err)
		}
		go func() {
			if err := mqttClient.Connect(mqttConnectTimeout); err != nil {
				log.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT broker not reachable yet, retrying in background")
			}
		}()
	}

	if cfg.API.Enabled {
		server := api.NewServer(e, history)
		apiDone := make(chan struct{})
		go func() {
			defer close(apiDone)
			if err := server.Start(ctx, cfg.API.Host, cfg.API.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("REST API server failed")
			}
		}()
		running = append(running, apiDone)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down presence service")

	for _, done := range running {
		<-done
	}
	return nil
}

func openHistory(cfg *config.Config, clk clockwork.Clock) (*sql.DB, error) {
	dbConn, err := db.Open(cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if cfg.HistoryRetention > 0 {
		removed, err := db.PruneHistory(dbConn, clk.Now().Add(-cfg.HistoryRetention))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prune history")
		} else if removed > 0 {
			log.Info().Int64("removed", removed).Dur("retention", cfg.HistoryRetention).Msg("Pruned master history")
		}
	}

	last, err := db.LastTransition(dbConn)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Failed to read last master transition")
	case last != nil:
		log.Info().Time("at", last.Timestamp).Bool("status", last.Status).Msg("Last recorded master transition")
	}
	return dbConn, nil
}

func startGPIO(ctx context.Context, cfg *config.Config, e *engine.Engine, clk clockwork.Clock) (<-chan struct{}, error) {
	bindings := gpiocontroller.BindingsFromConfig(cfg)
	pins := gpiocontroller.Pins(bindings)

	var reader gpio.Reader
	var err error
	switch cfg.GPIO.Backend {
	case config.GPIOBackendPinctrl:
		reader, err = pinctrl.NewReader(pins)
	default:
		reader, err = gpio.NewRealReader(cfg.GPIO.Chip, pins)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s inputs: %w", cfg.GPIO.Backend, err)
	}
	return gpiocontroller.RunGPIOController(ctx, reader, e, bindings, clk, cfg.GPIO.PollInterval, cfg.GPIO.Debounce), nil
}

func logState(st *model.State) {
	active := 0
	for _, zone := range st.Zones {
		if zone.Triggered {
			active++
		}
	}
	log.Info().
		Bool("master", st.Master.Triggered).
		Int("zones", len(st.Zones)).
		Int("active_zones", active).
		Msg("Presence state restored")
}
