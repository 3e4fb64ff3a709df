// Package config loads cosmoview settings from a YAML file, the environment
// and command-line flags, and watches the file for edits.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultWSURL          = "ws://localhost:8001/ws"
	DefaultAPIURL         = "http://localhost:8001"
	DefaultLogFile        = "cosmoview.log"
	DefaultRequestTimeout = 10 * time.Second

	// FileName is the config file looked up by Discover.
	FileName = ".cosmoview.yaml"
)

// Environment variables.
const (
	EnvConfig = "COSMOVIEW_CONFIG"
	EnvWSURL  = "COSMOVIEW_WS_URL"
	EnvAPIURL = "COSMOVIEW_API_URL"
)

// Config is the resolved client configuration.
type Config struct {
	WSURL          string        `yaml:"ws_url"`
	APIURL         string        `yaml:"api_url"`
	LogFile        string        `yaml:"log_file"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.WSURL == "" {
		c.WSURL = DefaultWSURL
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// LoadFile reads a YAML configuration file. Unset fields take defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Load resolves the configuration file and applies environment overrides.
// explicit, when non-empty, names the file and must exist. Otherwise Discover
// locates it; finding none is fine and yields the defaults. The returned path
// is the file actually read, or "".
func Load(explicit string) (*Config, string, error) {
	path := explicit
	if path == "" {
		p, err := Discover()
		switch {
		case errors.Is(err, ErrNoConfig):
		case err != nil:
			return nil, "", err
		default:
			path = p
		}
	}

	cfg := Default()
	if path != "" {
		c, err := LoadFile(path)
		if err != nil {
			return nil, "", err
		}
		cfg = c
	}
	cfg.applyEnv()
	return cfg, path, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvWSURL); v != "" {
		c.WSURL = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
}

// Validate checks the endpoints and timeout.
func (c *Config) Validate() error {
	if err := checkURL("ws_url", c.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if err := checkURL("api_url", c.APIURL, "http", "https"); err != nil {
		return err
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s %q: missing host", field, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s %q: scheme must be %s or %s", field, raw, schemes[0], schemes[1])
}
