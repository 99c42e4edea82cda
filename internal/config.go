package internal

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModuleName         = "MMM-WyzeBridge"
	DefaultListenAddress      = ":8080"
	DefaultRequestTimeoutSec  = 15
	DefaultNotificationBuffer = 32
	EnvPrefix                 = "CAROUSEL"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type StaticConfig struct {
	ModuleName         string `split_words:"true"`
	ListenAddress      string `split_words:"true"`
	LogLevel           string `split_words:"true"`
	LogDir             string `split_words:"true"`
	RequestTimeoutSec  int    `split_words:"true"`
	NotificationBuffer int    `split_words:"true"`

	// Sessions holds preconfigured SET_CONFIG payloads started without a display client.
	Sessions json.RawMessage `ignored:"true"`
}

// DefaultStaticConfig returns configuration used by gen_config operation.
func DefaultStaticConfig() StaticConfig {
	cfg := StaticConfig{LogLevel: "info"}
	cfg.ApplyDefaults()
	return cfg
}

// LoadStaticConfig reads configuration from a json or yaml file and overlays CAROUSEL_* environment variables.
func LoadStaticConfig(path string) (StaticConfig, error) {
	var config StaticConfig
	body, err := os.ReadFile(path)
	if err != nil {
		return config, errors.Wrapf(err, "failed to load config file %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		body, err = yamlToJson(body)
		if err != nil {
			return config, errors.Wrap(err, "incorrect yaml config file format")
		}
	}

	if err = json.Unmarshal(body, &config); err != nil {
		return config, errors.Wrap(err, "incorrect config file format")
	}
	if err = envconfig.Process(EnvPrefix, &config); err != nil {
		return config, errors.Wrap(err, "failed to process environment overrides")
	}
	config.ApplyDefaults()
	return config, config.Validate()
}

// yamlToJson normalizes yaml documents into json so both formats share one set of field names.
func yamlToJson(body []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

func (c *StaticConfig) ApplyDefaults() {
	if c.ModuleName == "" {
		c.ModuleName = DefaultModuleName
	}
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.RequestTimeoutSec == 0 {
		c.RequestTimeoutSec = DefaultRequestTimeoutSec
	}
	if c.NotificationBuffer == 0 {
		c.NotificationBuffer = DefaultNotificationBuffer
	}
}

func (c *StaticConfig) Validate() error {
	if strings.Contains(c.ModuleName, "/") {
		return errors.Wrapf(ErrInvalidConfig, "module name %q must not contain '/'", c.ModuleName)
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "listen address %q: %s", c.ListenAddress, err.Error())
	}
	if c.RequestTimeoutSec < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative request timeout %d", c.RequestTimeoutSec)
	}
	if c.NotificationBuffer < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative notification buffer %d", c.NotificationBuffer)
	}
	return nil
}

func (c *StaticConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ListenHost returns the host the process reaches its own listener on.
// Wildcard and empty hosts are reached through localhost.
func (c *StaticConfig) ListenHost() string {
	host, _, err := net.SplitHostPort(c.ListenAddress)
	if err != nil {
		return "localhost"
	}
	switch host {
	case "", "0.0.0.0", "::":
		return "localhost"
	}
	return host
}

// ListenPort returns the port part of ListenAddress, used when a session does not report its own.
func (c *StaticConfig) ListenPort() string {
	_, port, err := net.SplitHostPort(c.ListenAddress)
	if err != nil {
		return ""
	}
	return port
}
