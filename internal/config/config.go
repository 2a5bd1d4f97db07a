// Package config loads the relay daemon's YAML configuration.
package config

import (
	"net"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Monitor configures the websocket event monitor.
type Monitor struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Config holds all relay daemon configuration.
type Config struct {
	// ListenAddress is where the TURN dispatcher accepts client traffic.
	ListenAddress string `yaml:"listen_address"`

	// RelayIP is the local IP relay sockets bind to. "auto" selects the
	// preferred outbound address at startup.
	RelayIP string `yaml:"relay_ip"`

	// PublicIP, when set, is reported to clients instead of the bound
	// address (1:1 NAT deployments).
	PublicIP string `yaml:"public_ip"`

	// MinPort/MaxPort, when both set, confine relay ports to a range. The
	// range is not applied when PublicIP is set.
	MinPort int `yaml:"min_port"`
	MaxPort int `yaml:"max_port"`

	// Realm is the authentication realm handed to the dispatcher.
	Realm string `yaml:"realm"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Monitor Monitor `yaml:"monitor"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddress: "0.0.0.0:3478",
		RelayIP:       "auto",
		Realm:         "relay",
		LogLevel:      "info",
		Monitor: Monitor{
			Enabled: false,
			Address: "127.0.0.1:8086",
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return errors.New("listen_address must be set")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return errors.Wrapf(err, "invalid listen_address %q", c.ListenAddress)
	}

	if c.RelayIP == "" {
		return errors.New("relay_ip must be set (use \"auto\" to pick one)")
	}
	if c.RelayIP != "auto" && net.ParseIP(c.RelayIP) == nil {
		return errors.Errorf("invalid relay_ip %q", c.RelayIP)
	}

	if c.PublicIP != "" && net.ParseIP(c.PublicIP) == nil {
		return errors.Errorf("invalid public_ip %q", c.PublicIP)
	}

	if (c.MinPort == 0) != (c.MaxPort == 0) {
		return errors.New("min_port and max_port must be set together")
	}
	if c.MinPort != 0 {
		switch {
		case c.MinPort < 1 || c.MinPort > 65535:
			return errors.Errorf("min_port %d out of range", c.MinPort)
		case c.MaxPort < 1 || c.MaxPort > 65535:
			return errors.Errorf("max_port %d out of range", c.MaxPort)
		case c.MinPort > c.MaxPort:
			return errors.Errorf("min_port %d above max_port %d", c.MinPort, c.MaxPort)
		}
	}

	if c.Monitor.Enabled {
		if _, _, err := net.SplitHostPort(c.Monitor.Address); err != nil {
			return errors.Wrapf(err, "invalid monitor address %q", c.Monitor.Address)
		}
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unknown log_level %q", c.LogLevel)
	}

	return nil
}
