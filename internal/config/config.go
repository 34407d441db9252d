package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile       = "config.yaml"
	DefaultStateFile        = "data/state.json"
	DefaultHistoryDB        = "data/history.db"
	DefaultLogFile          = "data/automation-presence.log"
	DefaultName             = "Presence"
	DefaultMasterOffDelay   = 5
	DefaultScanInterval     = time.Second
	DefaultSnapshotInterval = 10 * time.Minute
	DefaultAPIPort          = 8080
	DefaultMQTTPrefix       = "automation-presence"
	DefaultNtfyServer       = "https://ntfy.sh"
	DefaultGPIOChip         = "gpiochip0"
	GPIOBackendCdev         = "gpiocdev"
	GPIOBackendPinctrl      = "pinctrl"
	DefaultGPIOPoll         = 100 * time.Millisecond
	DefaultGPIODebounce     = 250 * time.Millisecond
)

type GPIOBinding struct {
	Pin       int  `yaml:"pin"`
	ActiveLow bool `yaml:"active_low"`
}

type Trigger struct {
	Name       string        `yaml:"name"`
	ResetAfter time.Duration `yaml:"reset_after"`
	GPIO       *GPIOBinding  `yaml:"gpio"`
}

type Zone struct {
	Name     string    `yaml:"name"`
	Triggers []Trigger `yaml:"triggers"`
}

type API struct {
	Enabled bool   `yaml:"enabled" env:"PRESENCE_API_ENABLED"`
	Host    string `yaml:"host" env:"PRESENCE_API_HOST"`
	Port    int    `yaml:"port" env:"PRESENCE_API_PORT"`
}

type MQTT struct {
	Broker      string `yaml:"broker" env:"PRESENCE_MQTT_BROKER"`
	ClientID    string `yaml:"client_id" env:"PRESENCE_MQTT_CLIENT_ID"`
	TopicPrefix string `yaml:"topic_prefix" env:"PRESENCE_MQTT_TOPIC_PREFIX"`
}

type Datadog struct {
	Enabled   bool     `yaml:"enabled" env:"PRESENCE_DD_ENABLED"`
	AgentAddr string   `yaml:"agent_addr" env:"PRESENCE_DD_AGENT_ADDR"`
	Namespace string   `yaml:"namespace" env:"PRESENCE_DD_NAMESPACE"`
	Tags      []string `yaml:"tags" env:"PRESENCE_DD_TAGS"`
}

type Ntfy struct {
	Server string `yaml:"server" env:"PRESENCE_NTFY_SERVER"`
	Topic  string `yaml:"topic" env:"PRESENCE_NTFY_TOPIC"`
}

type GPIO struct {
	Backend      string        `yaml:"backend" env:"PRESENCE_GPIO_BACKEND"`
	Chip         string        `yaml:"chip" env:"PRESENCE_GPIO_CHIP"`
	PollInterval time.Duration `yaml:"poll_interval" env:"PRESENCE_GPIO_POLL_INTERVAL"`
	Debounce     time.Duration `yaml:"debounce" env:"PRESENCE_GPIO_DEBOUNCE"`
}

type Config struct {
	ConfigFile string        `yaml:"-"`
	LogLevel   zerolog.Level `yaml:"-"`

	Name                   string        `yaml:"name" env:"PRESENCE_NAME"`
	Zones                  []Zone        `yaml:"zones"`
	MasterPresenceOffDelay int           `yaml:"master_presence_off_delay" env:"PRESENCE_MASTER_OFF_DELAY"`
	Debug                  bool          `yaml:"debug" env:"PRESENCE_DEBUG"`
	LogLevelName           string        `yaml:"log_level" env:"PRESENCE_LOG_LEVEL"`
	LogFile                string        `yaml:"log_file" env:"PRESENCE_LOG_FILE"`
	StateFile              string        `yaml:"state_file" env:"PRESENCE_STATE_FILE"`
	HistoryDB              string        `yaml:"history_db" env:"PRESENCE_HISTORY_DB"`
	HistoryRetention       time.Duration `yaml:"history_retention" env:"PRESENCE_HISTORY_RETENTION"`
	ScanInterval           time.Duration `yaml:"scan_interval" env:"PRESENCE_SCAN_INTERVAL"`
	SnapshotInterval       time.Duration `yaml:"snapshot_interval" env:"PRESENCE_SNAPSHOT_INTERVAL"`

	API     API     `yaml:"api"`
	MQTT    MQTT    `yaml:"mqtt"`
	Datadog Datadog `yaml:"datadog"`
	Ntfy    Ntfy    `yaml:"ntfy"`
	GPIO    GPIO    `yaml:"gpio"`
}

// Overrides carries command-line values; empty fields leave the file and
// environment values in place.
type Overrides struct {
	StateFile string
	LogLevel  string
	Debug     bool
}

// Default returns a config with every optional field populated.
func Default() Config {
	return Config{
		ConfigFile:             DefaultConfigFile,
		Name:                   DefaultName,
		MasterPresenceOffDelay: DefaultMasterOffDelay,
		LogLevelName:           "info",
		LogFile:                DefaultLogFile,
		StateFile:              DefaultStateFile,
		HistoryDB:              DefaultHistoryDB,
		ScanInterval:           DefaultScanInterval,
		SnapshotInterval:       DefaultSnapshotInterval,
		API:                    API{Enabled: true, Host: "0.0.0.0", Port: DefaultAPIPort},
		MQTT:                   MQTT{ClientID: "automation-presence", TopicPrefix: DefaultMQTTPrefix},
		Datadog:                Datadog{AgentAddr: "127.0.0.1:8125", Namespace: "automation_presence."},
		Ntfy:                   Ntfy{Server: DefaultNtfyServer},
		GPIO:                   GPIO{Backend: GPIOBackendCdev, Chip: DefaultGPIOChip, PollInterval: DefaultGPIOPoll, Debounce: DefaultGPIODebounce},
	}
}

// Load reads the YAML file at path, applies PRESENCE_* environment variables
// and the command-line overrides, then validates the result.
func Load(path string, overrides Overrides) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	cfg := Default()
	cfg.ConfigFile = path

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.apply(overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) apply(o Overrides) {
	if o.StateFile != "" {
		cfg.StateFile = o.StateFile
	}
	if o.LogLevel != "" {
		cfg.LogLevelName = o.LogLevel
	}
	if o.Debug {
		cfg.Debug = true
	}
	cfg.LogLevel = ParseLogLevel(cfg.LogLevelName)
	if cfg.Debug && cfg.LogLevel > zerolog.DebugLevel {
		cfg.LogLevel = zerolog.DebugLevel
	}
}

// MasterResetAfter is the master switch-off debounce delay.
func (cfg *Config) MasterResetAfter() time.Duration {
	return time.Duration(cfg.MasterPresenceOffDelay) * time.Second
}

func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Validate reports every problem found rather than stopping at the first.
func (cfg *Config) Validate() error {
	var problems []string

	if len(cfg.Zones) == 0 {
		problems = append(problems, "at least one zone must be configured")
	}
	if cfg.MasterPresenceOffDelay < 0 {
		problems = append(problems, "master_presence_off_delay must not be negative")
	}
	if cfg.StateFile == "" {
		problems = append(problems, "state_file must be set")
	}
	if cfg.HistoryRetention < 0 {
		problems = append(problems, "history_retention must not be negative")
	}
	if cfg.ScanInterval <= 0 {
		problems = append(problems, "scan_interval must be positive")
	}
	if cfg.SnapshotInterval <= 0 {
		problems = append(problems, "snapshot_interval must be positive")
	}
	if cfg.API.Enabled && (cfg.API.Port <= 0 || cfg.API.Port > 65535) {
		problems = append(problems, fmt.Sprintf("api.port %d is out of range", cfg.API.Port))
	}

	usedPins := map[int]string{}
	for i, zone := range cfg.Zones {
		if strings.TrimSpace(zone.Name) == "" {
			problems = append(problems, fmt.Sprintf("zones[%d] has no name", i))
		}
		for j, trigger := range zone.Triggers {
			label := fmt.Sprintf("%s/%s", zone.Name, trigger.Name)
			if strings.TrimSpace(trigger.Name) == "" {
				problems = append(problems, fmt.Sprintf("zones[%d].triggers[%d] has no name", i, j))
			}
			if trigger.ResetAfter < 0 {
				problems = append(problems, fmt.Sprintf("%s: reset_after must not be negative", label))
			}
			if trigger.GPIO == nil {
				continue
			}
			if trigger.GPIO.Pin < 0 {
				problems = append(problems, fmt.Sprintf("%s: gpio pin must not be negative", label))
				continue
			}
			if other, exists := usedPins[trigger.GPIO.Pin]; exists {
				problems = append(problems, fmt.Sprintf("%s and %s both use pin %d", label, other, trigger.GPIO.Pin))
			} else {
				usedPins[trigger.GPIO.Pin] = label
			}
		}
	}

	if len(usedPins) > 0 && (cfg.GPIO.PollInterval <= 0 || cfg.GPIO.Debounce < 0) {
		problems = append(problems, "gpio.poll_interval must be positive and gpio.debounce not negative")
	}
	if len(usedPins) > 0 && cfg.GPIO.Backend != GPIOBackendCdev && cfg.GPIO.Backend != GPIOBackendPinctrl {
		problems = append(problems, fmt.Sprintf("gpio.backend %q must be %s or %s", cfg.GPIO.Backend, GPIOBackendCdev, GPIOBackendPinctrl))
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// HasGPIO reports whether any trigger is wired to a GPIO pin.
func (cfg *Config) HasGPIO() bool {
	for _, zone := range cfg.Zones {
		for _, trigger := range zone.Triggers {
			if trigger.GPIO != nil {
				return true
			}
		}
	}
	return false
}
