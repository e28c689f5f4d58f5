package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Raven-tu/expo-http-server/errors"
	"github.com/Raven-tu/expo-http-server/gateway"
)

// Config represents the complete bridge configuration.
type Config struct {
	Port        int    `json:"port" yaml:"port"`
	MetricsPort int    `json:"metricsPort,omitempty" yaml:"metricsPort,omitempty"`
	MetricsPath string `json:"metricsPath,omitempty" yaml:"metricsPath,omitempty"`

	// RequestTimeout is a duration string, e.g. "30s".
	RequestTimeout string `json:"requestTimeout,omitempty" yaml:"requestTimeout,omitempty"`

	MaxRequestSize    int64    `json:"maxRequestSize,omitempty" yaml:"maxRequestSize,omitempty"`
	EnableCORS        bool     `json:"enableCors,omitempty" yaml:"enableCors,omitempty"`
	CORSOrigins       []string `json:"corsOrigins,omitempty" yaml:"corsOrigins,omitempty"`
	RequestsPerSecond float64  `json:"requestsPerSecond,omitempty" yaml:"requestsPerSecond,omitempty"`
	RateBurst         int      `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Port:        8080,
		MetricsPath: "/metrics",
	}
}

// Validate checks field ranges and fills defaults in place.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.MetricsPort != 0 && (c.MetricsPort < 1 || c.MetricsPort > 65535) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("metrics port %d out of range", c.MetricsPort))
	}
	if c.MetricsPort != 0 && c.MetricsPort == c.Port {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"metrics port overlaps server port")
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				"parse requestTimeout")
		}
	}

	gatewayCfg := c.GatewayConfig()
	if err := gatewayCfg.Validate(); err != nil {
		return err
	}
	return nil
}

// GatewayConfig maps the file settings onto the gateway configuration.
// Unset fields stay zero and receive the gateway defaults on validation.
func (c *Config) GatewayConfig() gateway.Config {
	cfg := gateway.Config{
		MaxRequestSize:    c.MaxRequestSize,
		EnableCORS:        c.EnableCORS,
		CORSOrigins:       c.CORSOrigins,
		RequestsPerSecond: c.RequestsPerSecond,
		RateBurst:         c.RateBurst,
	}
	if c.RequestTimeout != "" {
		if d, err := time.ParseDuration(c.RequestTimeout); err == nil {
			cfg.RequestTimeout = d
		}
	}
	return cfg
}

// Load reads, decodes, and validates a configuration file. The format is
// chosen by extension: .yaml/.yml or .json.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read "+path)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "decode yaml")
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "decode json")
		}
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Load",
			"unsupported config format "+filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
