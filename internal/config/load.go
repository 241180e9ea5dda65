package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WC3BRIDGE_"

// envMapping maps environment variables to config file keys.
var envMapping = map[string]string{
	EnvPrefix + "FILES_ROOT":       "files_root",
	EnvPrefix + "POLL_INTERVAL":    "poll_interval",
	EnvPrefix + "RESPONSE_TIMEOUT": "response_timeout",
	EnvPrefix + "DEBOUNCE_DELAY":   "debounce_delay",
	EnvPrefix + "LUA_ROOT":         "lua_root",
	EnvPrefix + "HISTORY_FILE":     "history_file",
	EnvPrefix + "LOG_LEVEL":        "log_level",
	EnvPrefix + "LOG_FILE":         "log_file",
}

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load builds a configuration from the defaults, the file at path (if path
// is not empty) and the environment. The result is not validated; flags
// are usually applied first.
func Load(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// LoadFile overlays the settings of a .toml, .yaml or .yml file. Keys
// absent from the file keep their current values; unknown keys are
// rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return c.parseTOML(path, data)
	case ".yaml", ".yml":
		return c.parseYAML(path, data)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func (c *Config) parseTOML(source string, data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return perr
	}
	return nil
}

func (c *Config) parseYAML(source string, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	return nil
}

// ApplyEnv overlays WC3BRIDGE_* environment variables. Set but empty
// variables are applied too.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	for env, key := range envMapping {
		val, ok := lookup(env)
		if !ok {
			continue
		}
		if err := c.set(key, val); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}
	return nil
}

// set assigns one setting from its string form.
func (c *Config) set(key, val string) error {
	switch key {
	case "files_root":
		c.FilesRoot = val
	case "poll_interval":
		return c.PollInterval.UnmarshalText([]byte(val))
	case "response_timeout":
		return c.ResponseTimeout.UnmarshalText([]byte(val))
	case "debounce_delay":
		return c.DebounceDelay.UnmarshalText([]byte(val))
	case "lua_root":
		c.LuaRoot = val
	case "history_file":
		c.HistoryFile = val
	case "log_level":
		c.LogLevel = val
	case "log_file":
		c.LogFile = val
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}
