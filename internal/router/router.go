// Package router interprets operator lines. Structural commands act on the
// session directly; everything else becomes a request to the remote
// runtime, sent with SendAndWait.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dshills/wc3bridge/internal/logging"
	"github.com/dshills/wc3bridge/internal/session"
	"github.com/dshills/wc3bridge/internal/snippet"
	"github.com/dshills/wc3bridge/internal/transport"
)

// Errors returned by the router.
var (
	// ErrQuit is returned by Execute when the operator asked to quit.
	ErrQuit = errors.New("quit requested")

	// ErrTimeout is returned when no matching response arrives in time.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrUsage is returned when a command has invalid arguments.
	ErrUsage = errors.New("usage")
)

// WatchController manages the set of files re-sent on change.
// watcher.Watcher satisfies it.
type WatchController interface {
	Watch(path string) error
	Unwatch(path string) error
	WatchedPaths() []string
}

// Options configures a Router.
type Options struct {
	// Dir is the shared transport directory.
	Dir *transport.Dir

	// Session and Index are the state owned by the caller's goroutine.
	Session *session.Session
	Index   *session.CommandIndex

	// Builder creates remote fragments. Default: snippet.LiveCoding.
	Builder snippet.Builder

	// Watches backs the watch commands. Nil disables them.
	Watches WatchController

	// LuaRoot is searched by "bl <function>". Empty disables the search.
	LuaRoot string

	// Output receives operator-facing text. Default: os.Stdout.
	Output io.Writer

	// Logger receives diagnostics. Default: logging.Default().
	Logger *logging.Logger

	// PollInterval paces response polling. Default: 50ms.
	PollInterval time.Duration

	// Timeout bounds each exchange. Default: 10s.
	Timeout time.Duration
}

// Router executes operator commands. It is not safe for concurrent use;
// it shares the session with the goroutine that owns it.
type Router struct {
	dir      *transport.Dir
	session  *session.Session
	index    *session.CommandIndex
	builder  snippet.Builder
	watches  WatchController
	luaRoot  string
	out      io.Writer
	logger   *logging.Logger
	interval time.Duration
	timeout  time.Duration
	commands map[string]*command

	commandList []*command
}

// New creates a Router.
func New(opts Options) *Router {
	if opts.Session == nil {
		opts.Session = session.New()
	}
	if opts.Index == nil {
		opts.Index = session.NewCommandIndex()
	}
	if opts.Builder == nil {
		opts.Builder = snippet.LiveCoding{}
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	r := &Router{
		dir:      opts.Dir,
		session:  opts.Session,
		index:    opts.Index,
		builder:  opts.Builder,
		watches:  opts.Watches,
		luaRoot:  opts.LuaRoot,
		out:      opts.Output,
		logger:   opts.Logger.WithComponent("router"),
		interval: opts.PollInterval,
		timeout:  opts.Timeout,
	}
	r.commandList = builtinCommands()
	r.commands = commandTable(r.commandList)
	return r
}

// Execute runs one operator line. Command failures are reported on the
// output and do not return an error; only ErrQuit and context errors are
// returned.
func (r *Router) Execute(ctx context.Context, line string) error {
	name, args := parseCommand(line)
	if name == "" {
		return nil
	}

	var err error
	if cmd, ok := r.commands[name]; ok && !isAssignment(args) {
		r.logger.Debug("command %s %q", cmd.name, args)
		err = cmd.run(ctx, r, args)
	} else {
		err = r.forward(ctx, line)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrQuit):
		return ErrQuit
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		r.printf("Error: %v\n", err)
		return nil
	}
}

// Channel returns the channel forwarded lines go to: the current thread's
// breakpoint channel, or the default channel.
func (r *Router) Channel() transport.Channel {
	if id := r.session.CurrentID(); id != "" {
		return transport.ThreadChannel(id)
	}
	return transport.Channel{}
}

// Prompt returns the console prompt: the next request index, prefixed by
// the current thread when one is halted.
func (r *Router) Prompt() string {
	ch := r.Channel()
	if ch.IsDefault() {
		return fmt.Sprintf("%d >>> ", r.index.Next(ch))
	}
	return fmt.Sprintf("[%s] %d >>> ", ch.ThreadID(), r.index.Next(ch))
}

// AnnounceHalt tells the operator about a newly observed halt.
func (r *Router) AnnounceHalt(h session.Halt) {
	switch r.session.State(h.ThreadID) {
	case session.ThreadCurrent:
		r.printf("\nThread %s halted at breakpoint %s\n", h.ThreadID, h.Record.BreakpointID)
	default:
		r.printf("\nThread %s halted at breakpoint %s (queued, %d pending)\n",
			h.ThreadID, h.Record.BreakpointID, len(r.session.Pending()))
	}
}

// SendFile sends a Lua file on the default channel, wrapped so that its
// initializers run immediately, and prints the result.
func (r *Router) SendFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return err
	}

	ch := transport.Channel{}
	r.printf("Sending file %s to game as request %d\n", path, r.index.Next(ch))
	result, err := r.SendAndWait(ctx, ch, []byte(r.builder.FilePayload(string(data))))
	if err != nil {
		return err
	}
	r.printResult(result)
	return nil
}

// forward sends line verbatim on the command channel.
func (r *Router) forward(ctx context.Context, line string) error {
	result, err := r.SendAndWait(ctx, r.Channel(), []byte(line))
	if err != nil {
		return err
	}
	r.printResult(result)
	return nil
}

// printResult prints a remote result. The remote side reports a missing
// return value as "nil", which is not shown.
func (r *Router) printResult(result []byte) {
	if string(result) == "nil" {
		return
	}
	r.printf("%s\n", result)
}

func (r *Router) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}
