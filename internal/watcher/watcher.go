// Package watcher reports changes to individual files.
//
// Files are watched through their parent directory because editors often
// save by writing a temporary file and renaming it over the original,
// which would silently end a watch placed on the file itself.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
	ErrNotRegularFile  = errors.New("path is not a regular file")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates the file was created, including by a rename over
	// it.
	OpCreate Op = 1 << iota
	// OpWrite indicates the file was written to.
	OpWrite
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpCreate | OpWrite:
		return "CREATE|WRITE"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event represents a change to a watched file.
type Event struct {
	// Path is the absolute path of the file.
	Path string

	// Op is the operation that occurred.
	Op Op

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Watcher monitors a set of files.
type Watcher interface {
	// Watch starts watching a file. Returns ErrPathNotExist if it does not
	// exist and ErrAlreadyWatching if it is already watched.
	Watch(path string) error

	// Unwatch stops watching a file. Returns ErrNotWatching if the file
	// isn't being watched.
	Unwatch(path string) error

	// Events returns the channel of change events. It is closed when the
	// watcher is closed.
	Events() <-chan Event

	// Errors returns the channel of watcher errors. It is closed when the
	// watcher is closed.
	Errors() <-chan error

	// Close stops the watcher and releases resources.
	Close() error

	// IsWatching returns true if the file is being watched.
	IsWatching(path string) bool

	// WatchedPaths returns the watched files, sorted.
	WatchedPaths() []string
}

// Config holds watcher configuration options.
type Config struct {
	// DebounceDelay is how long a file must stay quiet before its event is
	// delivered. Default: 500ms
	DebounceDelay time.Duration

	// BufferSize is the size of the event and error channels.
	// Default: 100
	BufferSize int
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 500 * time.Millisecond,
		BufferSize:    100,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithDebounceDelay sets the debounce delay.
func WithDebounceDelay(d time.Duration) Option {
	return func(c *Config) {
		c.DebounceDelay = d
	}
}

// New creates a debounced fsnotify watcher.
func New(opts ...Option) (*DebouncedWatcher, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	inner, err := NewFSNotifyWatcher(config)
	if err != nil {
		return nil, err
	}
	return NewDebouncedWatcher(inner, config.DebounceDelay, config.BufferSize), nil
}
