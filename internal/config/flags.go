package config

import "github.com/spf13/pflag"

// Flags are the command line overrides. Only flags given on the command
// line are applied, so a flag's default never masks a file or environment
// value.
type Flags struct {
	// ConfigPath is the config file to load.
	ConfigPath string

	values Config
	fs     *pflag.FlagSet
}

// Register defines the configuration flags on fs.
func (f *Flags) Register(fs *pflag.FlagSet) {
	def := Default()
	f.fs = fs
	f.values = def

	fs.StringVarP(&f.ConfigPath, "config", "c", "", "config file (.toml, .yaml)")
	fs.StringVarP(&f.values.FilesRoot, "files-root", "d", def.FilesRoot, "directory shared with the game")
	fs.Var(&f.values.PollInterval, "poll-interval", "halt and response poll interval")
	fs.Var(&f.values.ResponseTimeout, "timeout", "response timeout")
	fs.Var(&f.values.DebounceDelay, "debounce", "watched file debounce delay")
	fs.StringVar(&f.values.LuaRoot, "lua-root", "", "map script directory searched by bl <function>")
	fs.StringVar(&f.values.HistoryFile, "history", def.HistoryFile, "console history file, empty to disable")
	fs.StringVar(&f.values.LogLevel, "log-level", def.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&f.values.LogFile, "log-file", "", "write diagnostics to this file")
}

// Apply copies the flags that were set on the command line into cfg.
func (f *Flags) Apply(cfg *Config) {
	if f.fs == nil {
		return
	}
	if f.fs.Changed("files-root") {
		cfg.FilesRoot = f.values.FilesRoot
	}
	if f.fs.Changed("poll-interval") {
		cfg.PollInterval = f.values.PollInterval
	}
	if f.fs.Changed("timeout") {
		cfg.ResponseTimeout = f.values.ResponseTimeout
	}
	if f.fs.Changed("debounce") {
		cfg.DebounceDelay = f.values.DebounceDelay
	}
	if f.fs.Changed("lua-root") {
		cfg.LuaRoot = f.values.LuaRoot
	}
	if f.fs.Changed("history") {
		cfg.HistoryFile = f.values.HistoryFile
	}
	if f.fs.Changed("log-level") {
		cfg.LogLevel = f.values.LogLevel
	}
	if f.fs.Changed("log-file") {
		cfg.LogFile = f.values.LogFile
	}
}
