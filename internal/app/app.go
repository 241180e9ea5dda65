// Package app wires the bridge together. An Application owns the session
// state and runs the event loop that drains halt announcements, watched
// file changes and operator lines.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dshills/wc3bridge/internal/config"
	"github.com/dshills/wc3bridge/internal/console"
	"github.com/dshills/wc3bridge/internal/logging"
	"github.com/dshills/wc3bridge/internal/router"
	"github.com/dshills/wc3bridge/internal/session"
	"github.com/dshills/wc3bridge/internal/snippet"
	"github.com/dshills/wc3bridge/internal/transport"
	"github.com/dshills/wc3bridge/internal/watcher"
)

// Options configures the application.
type Options struct {
	// Config holds the bridge settings. It is validated by New.
	Config config.Config

	// Console reads operator lines. Required.
	Console console.LineReader

	// Watcher backs the watch commands. Nil creates an fsnotify watcher
	// with Config.DebounceDelay.
	Watcher watcher.Watcher

	// Builder creates remote fragments. Nil uses snippet.LiveCoding.
	Builder snippet.Builder

	// Output receives operator-facing text. Defaults to os.Stdout.
	Output io.Writer

	// Logger receives diagnostics. Defaults to logging.Default().
	Logger *logging.Logger
}

// Application is the bridge: one goroutine running the event loop owns
// the session, the command index and the router.
type Application struct {
	cfg     config.Config
	logger  *logging.Logger
	out     io.Writer
	metrics *Metrics

	dir     *transport.Dir
	session *session.Session
	index   *session.CommandIndex
	router  *router.Router
	watcher watcher.Watcher
	console *console.Reader

	running      atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an Application. The files root is created if needed and
// request files left by a previous run are removed.
func New(opts Options) (*Application, error) {
	if opts.Console == nil {
		return nil, ErrNoConsole
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	app := &Application{
		cfg:     opts.Config,
		logger:  opts.Logger.WithComponent("app"),
		out:     opts.Output,
		metrics: NewMetrics(),
	}
	if err := app.bootstrap(opts); err != nil {
		return nil, err
	}
	return app, nil
}

// bootstrap initializes components in dependency order. The console comes
// last because it starts reading at once.
func (app *Application) bootstrap(opts Options) error {
	// 1. Config
	if err := app.cfg.Validate(); err != nil {
		return &InitError{Component: "config", Err: err}
	}

	// 2. Shared directory
	app.dir = transport.NewDir(app.cfg.FilesRoot)
	if err := app.dir.EnsureExists(); err != nil {
		return &InitError{Component: "files root", Err: err}
	}
	if err := app.dir.Clean(); err != nil {
		app.logger.Warn("remove stale requests: %v", err)
	}

	// 3. Watcher
	app.watcher = opts.Watcher
	if app.watcher == nil {
		w, err := watcher.New(watcher.WithDebounceDelay(app.cfg.DebounceDelay.Std()))
		if err != nil {
			return &InitError{Component: "watcher", Err: err}
		}
		app.watcher = w
	}

	// 4. Session state and router
	app.session = session.New()
	app.index = session.NewCommandIndex()
	app.router = router.New(router.Options{
		Dir:          app.dir,
		Session:      app.session,
		Index:        app.index,
		Builder:      opts.Builder,
		Watches:      app.watcher,
		LuaRoot:      app.cfg.LuaRoot,
		Output:       app.out,
		Logger:       opts.Logger,
		PollInterval: app.cfg.PollInterval.Std(),
		Timeout:      app.cfg.ResponseTimeout.Std(),
	})

	// 5. Console
	app.console = console.NewReader(opts.Console)
	return nil
}

// Shutdown stops the watcher and the console and removes request and
// response files so a new game does not replay them. It is safe to call
// more than once; later calls return the first result.
func (app *Application) Shutdown() error {
	app.shutdownOnce.Do(func() {
		var errs []error
		if err := app.console.Close(); err != nil {
			errs = append(errs, &ComponentError{Component: "console", Action: "close", Err: err})
		}
		if err := app.watcher.Close(); err != nil && !errors.Is(err, watcher.ErrWatcherClosed) {
			errs = append(errs, &ComponentError{Component: "watcher", Action: "close", Err: err})
		}
		if err := app.dir.Clean(); err != nil {
			errs = append(errs, &ComponentError{Component: "files root", Action: "clean", Err: err})
		}
		app.logger.Info("shutdown: %s", app.metrics.Snapshot())
		app.shutdownErr = errors.Join(errs...)
	})
	return app.shutdownErr
}

// IsRunning returns true while Run is executing.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Dir returns the shared directory.
func (app *Application) Dir() *transport.Dir {
	return app.dir
}

// Metrics returns the loop counters.
func (app *Application) Metrics() *Metrics {
	return app.metrics
}

func (app *Application) printf(format string, args ...any) {
	fmt.Fprintf(app.out, format, args...)
}
