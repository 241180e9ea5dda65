// Package config holds the bridge settings and loads them from defaults, an
// optional TOML or YAML file, WC3BRIDGE_* environment variables and command
// line flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/wc3bridge/internal/logging"
)

// MinPollInterval is the smallest poll interval accepted. Shorter values
// are raised to it so polling never spins.
const MinPollInterval = 10 * time.Millisecond

// Config is the complete bridge configuration.
type Config struct {
	// FilesRoot is the directory shared with the game.
	FilesRoot string `toml:"files_root" yaml:"files_root"`

	// PollInterval paces halt detection and response polling.
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`

	// ResponseTimeout bounds the wait for one response.
	ResponseTimeout Duration `toml:"response_timeout" yaml:"response_timeout"`

	// DebounceDelay collapses bursts of writes to a watched file.
	DebounceDelay Duration `toml:"debounce_delay" yaml:"debounce_delay"`

	// LuaRoot is the local map script directory searched by "bl <function>".
	// Empty disables the search.
	LuaRoot string `toml:"lua_root" yaml:"lua_root"`

	// HistoryFile stores console history. Empty disables it.
	HistoryFile string `toml:"history_file" yaml:"history_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// LogFile receives diagnostics instead of stderr when set.
	LogFile string `toml:"log_file" yaml:"log_file"`
}

// Default returns the default configuration. FilesRoot points at the
// game's CustomMapData/Interpreter folder in the user's documents.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		FilesRoot:       filepath.Join(home, "Documents", "Warcraft III", "CustomMapData", "Interpreter"),
		PollInterval:    Duration(50 * time.Millisecond),
		ResponseTimeout: Duration(10 * time.Second),
		DebounceDelay:   Duration(500 * time.Millisecond),
		HistoryFile:     filepath.Join(home, ".wc3bridge_history"),
		LogLevel:        "warn",
	}
}

// Validate checks the configuration and normalizes the poll interval.
func (c *Config) Validate() error {
	if c.FilesRoot == "" {
		return &ValidationError{Key: "files_root", Value: `""`, Message: "must not be empty"}
	}
	if c.PollInterval <= 0 {
		return &ValidationError{Key: "poll_interval", Value: c.PollInterval, Message: "must be positive"}
	}
	if c.PollInterval.Std() < MinPollInterval {
		c.PollInterval = Duration(MinPollInterval)
	}
	if c.ResponseTimeout <= 0 {
		return &ValidationError{Key: "response_timeout", Value: c.ResponseTimeout, Message: "must be positive"}
	}
	if c.DebounceDelay < 0 {
		return &ValidationError{Key: "debounce_delay", Value: c.DebounceDelay, Message: "must not be negative"}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return &ValidationError{Key: "log_level", Value: c.LogLevel, Message: err.Error()}
	}
	return nil
}

// Level returns the parsed log level, or warn when it is invalid.
func (c Config) Level() logging.Level {
	lvl, _ := logging.ParseLevel(c.LogLevel)
	return lvl
}

// Duration is a time.Duration written as a string such as "50ms" in
// config files and flags.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer and pflag.Value.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Set implements pflag.Value.
func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Type implements pflag.Value.
func (d *Duration) Type() string {
	return "duration"
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML
// decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	if err := d.Set(string(text)); err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}
