// Package config loads serialflash settings from flags, environment and an
// optional YAML file through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	serial "github.com/allbin/serialflash"
)

// EnvPrefix is prepended to every environment override, e.g. SERIALFLASH_BAUD
const EnvPrefix = "SERIALFLASH"

var ErrInvalid = errors.New("invalid configuration")

// Config is the application configuration
type Config struct {
	Port      string `mapstructure:"port"`
	Baud      int    `mapstructure:"baud"`
	FlashBaud int    `mapstructure:"flash_baud"`
	Erase     bool   `mapstructure:"erase"`

	Catalog      string `mapstructure:"catalog"`
	CatalogIndex string `mapstructure:"catalog_index"` // relative to Catalog
	Device       string `mapstructure:"device"`
	Firmware     string `mapstructure:"firmware"`
	Version      string `mapstructure:"version"`
	Esptool      string `mapstructure:"esptool"`

	Timing TimingConfig `mapstructure:"timing"`
	Log    LogConfig    `mapstructure:"log"`
	Trace  TraceConfig  `mapstructure:"trace"`
}

// TimingConfig holds the settle and reset delays
type TimingConfig struct {
	ConnectSettle time.Duration `mapstructure:"connect_settle"`
	ReadSettle    time.Duration `mapstructure:"read_settle"`
	ResetHold     time.Duration `mapstructure:"reset_hold"`
	ResetGap      time.Duration `mapstructure:"reset_gap"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type TraceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("baud", 115200)
	v.SetDefault("flash_baud", 921600)
	v.SetDefault("erase", false)
	v.SetDefault("catalog", ".")
	v.SetDefault("catalog_index", "firmware/config.json")
	v.SetDefault("esptool", "esptool.py")

	v.SetDefault("timing.connect_settle", 200*time.Millisecond)
	v.SetDefault("timing.read_settle", 100*time.Millisecond)
	v.SetDefault("timing.reset_hold", 100*time.Millisecond)
	v.SetDefault("timing.reset_gap", 3000*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.exporter", "stdout")
}

// BindEnv wires SERIALFLASH_* variables, mapping nested keys with underscores
// (SERIALFLASH_TIMING_RESET_GAP).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if !serial.ValidBaudRate(c.Baud) {
		return fmt.Errorf("%w: baud %d", ErrInvalid, c.Baud)
	}
	if !serial.ValidBaudRate(c.FlashBaud) {
		return fmt.Errorf("%w: flash_baud %d", ErrInvalid, c.FlashBaud)
	}

	for name, d := range map[string]time.Duration{
		"timing.connect_settle": c.Timing.ConnectSettle,
		"timing.read_settle":    c.Timing.ReadSettle,
		"timing.reset_hold":     c.Timing.ResetHold,
		"timing.reset_gap":      c.Timing.ResetGap,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, name)
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}

	switch c.Trace.Exporter {
	case "", "noop", "stdout":
	default:
		return fmt.Errorf("%w: trace.exporter %q", ErrInvalid, c.Trace.Exporter)
	}
	return nil
}
