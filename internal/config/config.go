// Package config loads process configuration: runtime knobs from
// environment variables plus the DataStore schema from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RTConfig controls the RT process: cycle timing and fieldbus/watchdog setup.
type RTConfig struct {
	CyclePeriodUS    int    `env:"MXRC_RT_CYCLE_PERIOD_US"`
	JitterBudgetUS   int    `env:"MXRC_RT_JITTER_BUDGET_US"`
	ConsecutiveMiss  int    `env:"MXRC_RT_CONSECUTIVE_MISS_LIMIT"`
	FieldbusDriver   string `env:"MXRC_FIELDBUS_DRIVER"`
	SharedMemoryName string `env:"MXRC_SHM_NAME"`
	LogRingCapacity  int    `env:"MXRC_LOG_RING_CAPACITY"`
	IPCRingCapacity  int    `env:"MXRC_IPC_RING_CAPACITY"`
}

// NonRTConfig controls the Non-RT process: event bus, bag recorder, metrics.
type NonRTConfig struct {
	EventBusCriticalCapacity int    `env:"MXRC_EVENTBUS_CRITICAL_CAPACITY"`
	EventBusNormalCapacity   int    `env:"MXRC_EVENTBUS_NORMAL_CAPACITY"`
	EventBusDebugCapacity    int    `env:"MXRC_EVENTBUS_DEBUG_CAPACITY"`
	BackpressurePolicy       string `env:"MXRC_EVENTBUS_BACKPRESSURE_POLICY"`
	BagDirectory             string `env:"MXRC_BAG_DIR"`
	BagEnabled               bool   `env:"MXRC_BAG_ENABLED"`
	MetricsAddr              string `env:"MXRC_METRICS_ADDR"`
}

// WatchdogConfig controls supervisor keep-alive behavior.
type WatchdogConfig struct {
	Interval        time.Duration `env:"MXRC_WATCHDOG_INTERVAL"`
	MaxMissedBeats  int           `env:"MXRC_WATCHDOG_MAX_MISSED"`
	NotifySocket    string        `env:"NOTIFY_SOCKET"`
}

// LoggingConfig controls mxlog output.
type LoggingConfig struct {
	Level  string `env:"MXRC_LOG_LEVEL"`
	Format string `env:"MXRC_LOG_FORMAT"`
}

// Config is the top-level process configuration, loaded by both rtcycled
// and orchestratord (each reads only the sub-config relevant to its role).
type Config struct {
	RT        RTConfig       `yaml:"rt"`
	NonRT     NonRTConfig    `yaml:"nonrt"`
	Watchdog  WatchdogConfig `yaml:"watchdog"`
	Logging   LoggingConfig  `yaml:"logging"`
	SchemaFile string        `yaml:"schema_file" env:"MXRC_SCHEMA_FILE"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		RT: RTConfig{
			CyclePeriodUS:    1000,
			JitterBudgetUS:   100,
			ConsecutiveMiss:  5,
			SharedMemoryName: "/mxrc_shm",
			LogRingCapacity:  4096,
			IPCRingCapacity:  1024,
		},
		NonRT: NonRTConfig{
			EventBusCriticalCapacity: 256,
			EventBusNormalCapacity:   1024,
			EventBusDebugCapacity:    2048,
			BackpressurePolicy:       "drop_newest",
			BagDirectory:             "bags",
			BagEnabled:               true,
			MetricsAddr:              "127.0.0.1:9090",
		},
		Watchdog: WatchdogConfig{
			Interval:       2 * time.Second,
			MaxMissedBeats: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		SchemaFile: "configs/datastore_schema.yaml",
	}
}

// Load loads configuration from an optional YAML file (MXRC_CONFIG_FILE,
// default configs/mxrc.yaml) and applies environment overrides. A missing
// config file is not an error — defaults apply.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("MXRC_CONFIG_FILE"))
	if path == "" {
		path = "configs/mxrc.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
