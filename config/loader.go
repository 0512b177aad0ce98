package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/dupguard/errors"
)

// DefaultEnvPrefix is the prefix of environment overrides
const DefaultEnvPrefix = "DUPGUARD"

// Loader handles layered configuration loading
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment override prefix
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = strings.TrimSuffix(prefix, "_")
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer and the environment, in that order
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		data, err := safeReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(errors.ErrConfigNotFound, "Loader", "Load",
				fmt.Sprintf("read %s: %v", path, err))
		}
		if err := decodeInto(cfg, data); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("parse %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Parse decodes a single YAML or JSON document over the defaults. The
// environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decodeInto(cfg, data); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode")
	}
	return cfg, nil
}

// decodeInto overlays data onto cfg; keys absent from data keep their value.
func decodeInto(cfg *Config, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	return nil
}

type envOverride struct {
	name  string
	apply func(*Config, string)
}

var envOverrides = []envOverride{
	{"NAMESPACE", func(c *Config, v string) { c.Namespace = v }},
	{"HTTP_ADDR", func(c *Config, v string) { c.HTTP.Addr = v }},
	{"HTTP_FRAMEWORK", func(c *Config, v string) { c.HTTP.Framework = v }},
	{"STORE_TYPE", func(c *Config, v string) { c.Store.Type = v }},
	{"REDIS_ADDR", func(c *Config, v string) { c.Store.Redis.Addr = v }},
	{"REDIS_PASSWORD", func(c *Config, v string) { c.Store.Redis.Password = v }},
	{"NATS_URL", func(c *Config, v string) { c.Store.NATS.URL = v }},
	{"NATS_TOKEN", func(c *Config, v string) { c.Store.NATS.Token = v }},
	{"SQL_DSN", func(c *Config, v string) { c.Store.SQL.DSN = v }},
	{"LOG_LEVEL", func(c *Config, v string) { c.Log.Level = v }},
	{"LOG_FORMAT", func(c *Config, v string) { c.Log.Format = v }},
}

// applyEnvOverrides applies set, non-empty environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		key := l.envPrefix + "_" + o.name
		value, ok := l.lookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := validateEnvVar(key, value); err != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Loader", "applyEnvOverrides", err.Error())
		}
		o.apply(cfg, value)
	}
	return nil
}

// SaveToFile writes cfg as YAML
func SaveToFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "config", "SaveToFile", "marshal")
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.Wrap(err, "config", "SaveToFile", "write")
	}
	return nil
}
