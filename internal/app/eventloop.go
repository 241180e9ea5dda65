package app

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/wc3bridge/internal/console"
	"github.com/dshills/wc3bridge/internal/router"
)

// Run runs the event loop until the operator quits, the console reaches
// end of input or ctx is done. Quitting is not an error.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	app.logger.Info("bridge started, files root %s", app.dir.Root())
	app.console.Request(app.router.Prompt())
	return app.eventLoop(ctx)
}

// eventLoop runs one cycle per poll interval. A cycle that waits for a
// response delays the next tick; ticks are never queued up.
func (app *Application) eventLoop(ctx context.Context) error {
	ticker := time.NewTicker(app.cfg.PollInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		start := time.Now()
		err := app.cycle(ctx)
		app.metrics.RecordCycle(time.Since(start))

		switch {
		case err == nil:
		case errors.Is(err, router.ErrQuit), ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}

// cycle handles the three event sources in a fixed order: halts, then
// file changes, then at most one operator line.
func (app *Application) cycle(ctx context.Context) error {
	announced := app.pollHalts()
	sent, err := app.drainWatcher(ctx)
	if err != nil {
		return err
	}
	if (announced || sent) && len(app.console.Lines()) == 0 {
		// The operator is still at the prompt the output just scrolled
		// past.
		app.printf("%s", app.router.Prompt())
	}
	return app.readConsole(ctx)
}

// pollHalts announces new halts and reports whether it printed anything.
func (app *Application) pollHalts() bool {
	halts, err := app.session.Poll(app.dir)
	if err != nil {
		app.metrics.RecordPollError()
		app.logger.Warn("poll halts: %v", err)
	}
	for _, h := range halts {
		app.metrics.RecordHalt()
		app.logger.Debug("thread %s halted at %s", h.ThreadID, h.Record.BreakpointID)
		app.router.AnnounceHalt(h)
	}
	return len(halts) > 0
}

// drainWatcher re-sends every changed file reported since the last cycle
// and reports whether any was sent. Events for files no longer watched,
// such as those queued before a restart, are dropped.
func (app *Application) drainWatcher(ctx context.Context) (sent bool, err error) {
	events, errs := app.watcher.Events(), app.watcher.Errors()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return sent, nil
			}
			if !app.watcher.IsWatching(ev.Path) {
				app.logger.Debug("drop event for unwatched %s", ev.Path)
				continue
			}
			sent = true
			app.printf("\n[watch] File changed: %s\n", ev.Path)
			app.metrics.RecordFileSent()
			if err := app.router.SendFile(ctx, ev.Path); err != nil {
				if ctx.Err() != nil {
					return sent, ctx.Err()
				}
				app.printf("Error: %v\n", err)
			}
		case werr, ok := <-errs:
			if !ok {
				return sent, nil
			}
			app.logger.Warn("watcher: %v", werr)
		default:
			return sent, nil
		}
	}
}

// readConsole executes the pending operator line, if any, and asks for
// the next one with a prompt reflecting the new state.
func (app *Application) readConsole(ctx context.Context) error {
	var line console.Line
	select {
	case line = <-app.console.Lines():
	default:
		return nil
	}

	if line.Err != nil {
		if console.IsQuit(line.Err) {
			app.printf("\n")
			return router.ErrQuit
		}
		return &ComponentError{Component: "console", Action: "read", Err: line.Err}
	}

	app.metrics.RecordCommand()
	if err := app.router.Execute(ctx, line.Text); err != nil {
		return err
	}
	app.console.Request(app.router.Prompt())
	return nil
}
