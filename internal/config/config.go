// Package config loads daemon settings with the precedence
// flags > OVEN_* environment > TOML file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"github.com/sweeney/oven-heater/internal/gpio"
	"github.com/sweeney/oven-heater/internal/ledstrip"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "/etc/oven-heater.toml"

const envPrefix = "OVEN_"

// Config is the daemon configuration. Fields tagged with flag, env and toml
// are filled by Load.
type Config struct {
	Board   string `toml:"board" env:"BOARD" flag:"board"`
	Chip    string `toml:"door.chip" env:"DOOR_CHIP" flag:"chip"`
	Line    int    `toml:"door.line" env:"DOOR_LINE" flag:"line"`
	SPIPort string `toml:"heater.spi_port" env:"SPI_PORT" flag:"spi-port"`
	SPIHz   int    `toml:"heater.spi_hz" env:"SPI_HZ" flag:"spi-hz"`

	SettleMs    int `toml:"door.settle_ms" env:"SETTLE_MS" flag:"settle-ms"`
	CadenceMs   int `toml:"heater.cadence_ms" env:"CADENCE_MS" flag:"cadence-ms"`
	HeartbeatMs int `toml:"status.heartbeat_ms" env:"HEARTBEAT_MS" flag:"heartbeat-ms"`

	StatusFile  string `toml:"status.file" env:"STATUS_FILE" flag:"status-file"`
	MetricsFile string `toml:"status.metrics_file" env:"METRICS_FILE" flag:"metrics-file"`

	LogLevel  string `toml:"logging.level" env:"LOG_LEVEL" flag:"log-level"`
	LogFormat string `toml:"logging.format" env:"LOG_FORMAT" flag:"log-format"`
}

// Board is the per-board wiring: which GPIO chip and line carry the door
// switch, and which SPI port drives the strip.
type Board struct {
	Chip    string
	Line    int
	SPIPort string
}

// Boards are the known presets. "custom" has none and requires chip, line
// and spi_port to be set.
var Boards = map[string]Board{
	"pi4": {Chip: gpio.DefaultChip, Line: gpio.DefaultLine, SPIPort: "SPI0.0"},
	"pi5": {Chip: "gpiochip4", Line: gpio.DefaultLine, SPIPort: "SPI0.0"},
}

// Defaults returns the built-in configuration. Chip, Line and SPIPort are
// left unset so the board preset can fill them.
func Defaults() Config {
	return Config{
		Board:       "pi4",
		Line:        -1,
		SPIHz:       ledstrip.DefaultSPIHz,
		SettleMs:    100,
		CadenceMs:   10,
		HeartbeatMs: 60_000,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Settle returns the debounce window.
func (c Config) Settle() time.Duration { return ms(c.SettleMs) }

// Cadence returns the animation frame delay.
func (c Config) Cadence() time.Duration { return ms(c.CadenceMs) }

// Heartbeat returns the heartbeat interval.
func (c Config) Heartbeat() time.Duration { return ms(c.HeartbeatMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// BindFlags registers one flag per Config field on fs, plus --config.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.StringP("config", "c", DefaultPath, "TOML config file")
	fs.String("board", d.Board, "board preset: pi4, pi5 or custom")
	fs.String("chip", d.Chip, "GPIO chip of the door switch (default from board)")
	fs.Int("line", d.Line, "GPIO line offset of the door switch (default from board)")
	fs.String("spi-port", d.SPIPort, "SPI port driving the LED strip (default from board)")
	fs.Int("spi-hz", d.SPIHz, "SPI clock in Hz")
	fs.Int("settle-ms", d.SettleMs, "door debounce window in milliseconds")
	fs.Int("cadence-ms", d.CadenceMs, "delay between animation frames in milliseconds")
	fs.Int("heartbeat-ms", d.HeartbeatMs, "heartbeat interval in milliseconds")
	fs.String("status-file", d.StatusFile, "write the JSON status to this file on every heartbeat")
	fs.String("metrics-file", d.MetricsFile, "write Prometheus metrics to this textfile on every heartbeat")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn or error")
	fs.String("log-format", d.LogFormat, "log format: text or json")
}

// Path returns the config file named by fs, and whether it was set
// explicitly.
func Path(fs *pflag.FlagSet) (string, bool) {
	f := fs.Lookup("config")
	if f == nil {
		return DefaultPath, false
	}
	return f.Value.String(), f.Changed
}

// Load builds the configuration from defaults, the config file named by
// fs, the environment and the flags explicitly set on fs. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	path, explicit := DefaultPath, false
	if fs != nil {
		path, explicit = Path(fs)
	}
	return LoadFile(path, explicit, fs)
}

// LoadFile is Load with the file path given directly. A missing file is an
// error only when required is set.
func LoadFile(path string, required bool, fs *pflag.FlagSet) (Config, error) {
	cfg := Defaults()
	v := reflect.ValueOf(&cfg).Elem()
	t := v.Type()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var tree map[string]any
			if err := toml.Unmarshal(data, &tree); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
			for i := 0; i < t.NumField(); i++ {
				if key := t.Field(i).Tag.Get("toml"); key != "" {
					if value := nestedValue(tree, key); value != nil {
						if err := setValue(v.Field(i), value); err != nil {
							return Config{}, fmt.Errorf("%s: %s: %w", path, key, err)
						}
					}
				}
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("env")
		if key == "" {
			continue
		}
		if s, ok := os.LookupEnv(envPrefix + key); ok && s != "" {
			if err := setString(v.Field(i), s); err != nil {
				return Config{}, fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
		}
	}

	if fs != nil {
		for i := 0; i < t.NumField(); i++ {
			f := fs.Lookup(t.Field(i).Tag.Get("flag"))
			if f == nil || !f.Changed {
				continue
			}
			if err := setString(v.Field(i), f.Value.String()); err != nil {
				return Config{}, fmt.Errorf("--%s: %w", f.Name, err)
			}
		}
	}

	if err := cfg.resolve(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolve fills unset wiring from the board preset and validates the result.
func (c *Config) resolve() error {
	if c.Board != "custom" {
		b, ok := Boards[c.Board]
		if !ok {
			return fmt.Errorf("unknown board %q", c.Board)
		}
		if c.Chip == "" {
			c.Chip = b.Chip
		}
		if c.Line < 0 {
			c.Line = b.Line
		}
		if c.SPIPort == "" {
			c.SPIPort = b.SPIPort
		}
	}
	return c.Validate()
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Chip == "":
		return errors.New("door chip not set")
	case c.Line < 0:
		return errors.New("door line not set")
	case c.SPIPort == "":
		return errors.New("spi port not set")
	case c.SPIHz <= 0:
		return fmt.Errorf("spi_hz must be positive, got %d", c.SPIHz)
	case c.SettleMs <= 0:
		return fmt.Errorf("settle_ms must be positive, got %d", c.SettleMs)
	case c.CadenceMs <= 0:
		return fmt.Errorf("cadence_ms must be positive, got %d", c.CadenceMs)
	case c.HeartbeatMs <= 0:
		return fmt.Errorf("heartbeat_ms must be positive, got %d", c.HeartbeatMs)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("log format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// nestedValue looks up a dotted key in a decoded TOML tree.
func nestedValue(tree map[string]any, key string) any {
	parts := strings.Split(key, ".")
	cur := tree
	for i, part := range parts {
		if i == len(parts)-1 {
			return cur[part]
		}
		next, ok := cur[part].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return nil
}

func setValue(field reflect.Value, value any) error {
	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", value)
		}
		field.SetString(s)
	case reflect.Int:
		n, ok := value.(int64)
		if !ok {
			return fmt.Errorf("want integer, got %T", value)
		}
		field.SetInt(n)
	}
	return nil
}

func setString(field reflect.Value, s string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Int:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	}
	return nil
}
