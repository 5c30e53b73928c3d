// Package config loads the bench tool configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"watchy/bma423"
	"watchy/host/serial"
)

// Config is the top-level YAML document.
type Config struct {
	Serial SerialConfig `yaml:"serial"`
	Sensor SensorConfig `yaml:"sensor"`
	Bridge BridgeConfig `yaml:"bridge"`
	Log    LogConfig    `yaml:"log"`
}

type SerialConfig struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMS int    `yaml:"read_timeout_ms"`
}

type SensorConfig struct {
	// Address is the 7-bit I2C address; 0 selects bma423.PrimaryAddress.
	Address uint16 `yaml:"address"`

	// ConfigFile is a path to the vendor feature firmware. Optional.
	ConfigFile string `yaml:"config_file"`
}

type BridgeConfig struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads and parses a YAML configuration file, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration data, then applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	def := serial.DefaultConfig("/dev/ttyACM0")
	if cfg.Serial.Device == "" {
		cfg.Serial.Device = def.Device
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = def.Baud
	}
	if cfg.Serial.ReadTimeoutMS == 0 {
		cfg.Serial.ReadTimeoutMS = def.ReadTimeout
	}

	if cfg.Sensor.Address == 0 {
		cfg.Sensor.Address = bma423.PrimaryAddress
	}

	if cfg.Bridge.TimeoutMS == 0 {
		cfg.Bridge.TimeoutMS = 500
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks value ranges. It does not modify cfg.
func Validate(cfg *Config) error {
	if cfg.Sensor.Address > 0x7F {
		return fmt.Errorf("config: sensor.address 0x%x is not a 7-bit address", cfg.Sensor.Address)
	}
	if cfg.Serial.Baud < 0 || cfg.Serial.ReadTimeoutMS < 0 || cfg.Bridge.TimeoutMS < 0 {
		return fmt.Errorf("config: negative baud or timeout")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", cfg.Log.Level)
	}
	return nil
}

// SerialPort converts the serial section for serial.Open.
func (c *Config) SerialPort() *serial.Config {
	return &serial.Config{
		Device:      c.Serial.Device,
		Baud:        c.Serial.Baud,
		ReadTimeout: c.Serial.ReadTimeoutMS,
	}
}
