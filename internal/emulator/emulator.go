package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/wc3bridge/internal/logging"
	"github.com/dshills/wc3bridge/internal/transport"
)

// ErrClosed is returned by operations on a closed emulator.
var ErrClosed = errors.New("emulator is closed")

// Options configures an Emulator.
type Options struct {
	// Dir is the shared directory.
	Dir *transport.Dir

	// PollInterval paces Run. Default: 20ms.
	PollInterval time.Duration

	// Output receives print output. Default: io.Discard.
	Output io.Writer

	// Logger receives diagnostics. Default: logging.Default().
	Logger *logging.Logger
}

// thread is one script running as a coroutine.
type thread struct {
	id     string
	co     *lua.LState
	cancel context.CancelFunc
	fn     *lua.LFunction

	// Halt state; valid while halted.
	halted bool
	bpID   string
	vars   *lua.LTable
	hits   int

	// next is the index of the next request on the thread's channel.
	next int
}

// Emulator runs Lua the way the game does for the bridge.
type Emulator struct {
	mu sync.Mutex

	dir      *transport.Dir
	L        *lua.LState
	out      io.Writer
	logger   *logging.Logger
	interval time.Duration

	// next is the index of the next default channel request.
	next int

	threads  map[string]*thread
	halted   []string
	starting []*thread
	disabled map[string]bool
	closed   bool
}

// New creates an emulator with a fresh Lua state.
func New(opts Options) (*Emulator, error) {
	if opts.Dir == nil {
		return nil, errors.New("emulator: no directory")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if err := opts.Dir.EnsureExists(); err != nil {
		return nil, err
	}

	e := &Emulator{
		dir:      opts.Dir,
		L:        lua.NewState(lua.Options{SkipOpenLibs: true}),
		out:      opts.Output,
		logger:   opts.Logger.WithComponent("emulator"),
		interval: opts.PollInterval,
		threads:  make(map[string]*thread),
		disabled: make(map[string]bool),
	}
	if err := e.installGlobals(); err != nil {
		e.L.Close()
		return nil, err
	}
	return e, nil
}

// Run steps the emulator until ctx is done.
func (e *Emulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		if err := e.Step(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step starts queued threads and answers at most one request per channel.
func (e *Emulator) Step() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	for len(e.starting) > 0 {
		t := e.starting[0]
		e.starting = e.starting[1:]
		e.threads[t.id] = t
		e.resume(t)
	}

	if payload, err := e.dir.ReadRequest(transport.Channel{}, e.next); err == nil {
		index := e.next
		e.next++
		result := e.eval(string(payload), fmt.Sprintf("in%d", index), nil)
		e.respond(transport.Channel{}, index, result)
	}

	// Resuming a thread changes the halted list.
	for _, id := range append([]string(nil), e.halted...) {
		t := e.threads[id]
		if t == nil || !t.halted {
			continue
		}
		ch := transport.ThreadChannel(id)
		payload, err := e.dir.ReadRequest(ch, t.next)
		if err != nil {
			continue
		}
		index := t.next
		t.next++
		if strings.TrimSpace(string(payload)) == transport.ResumeCommand {
			e.respond(ch, index, "nil")
			e.unhalt(t)
			e.resume(t)
			continue
		}
		e.respond(ch, index, e.eval(string(payload), fmt.Sprintf("bp_in_%d", index), t.vars))
	}
	return nil
}

// Spawn loads source as a chunk named name and runs it as a new thread
// until it halts or finishes. It returns the thread id.
func (e *Emulator) Spawn(name, source string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}

	fn, err := e.L.Load(strings.NewReader(source), name)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", name, err)
	}
	t := e.newThread(fn)
	e.threads[t.id] = t
	e.resume(t)
	return t.id, nil
}

// Halted returns the ids of halted threads in halt order.
func (e *Emulator) Halted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.halted...)
}

// Threads returns the number of live threads.
func (e *Emulator) Threads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.threads) + len(e.starting)
}

// Global returns the string form of a global variable.
func (e *Emulator) Global(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.L.ToStringMeta(e.L.GetGlobal(name)).String()
}

// Close releases the Lua state. Halted threads are abandoned.
func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for _, t := range e.threads {
		if t.cancel != nil {
			t.cancel()
		}
	}
	e.threads = nil
	e.halted = nil
	e.L.Close()
	return nil
}

func (e *Emulator) newThread(fn *lua.LFunction) *thread {
	co, cancel := e.L.NewThread()
	return &thread{id: uuid.NewString(), co: co, cancel: cancel, fn: fn}
}

// resume runs t until it yields at a breakpoint, returns or fails.
func (e *Emulator) resume(t *thread) {
	st, err, values := e.L.Resume(t.co, t.fn)
	switch st {
	case lua.ResumeYield:
		e.halt(t, values)
	case lua.ResumeOK:
		e.logger.Debug("thread %s finished", t.id)
		e.finish(t)
	default:
		e.logger.Warn("thread %s failed: %v", t.id, err)
		fmt.Fprintf(e.out, "thread %s error: %s\n", t.id, errorText(err))
		e.finish(t)
	}
}

func (e *Emulator) finish(t *thread) {
	if t.cancel != nil {
		t.cancel()
	}
	delete(e.threads, t.id)
}

// halt publishes a halt of t from the values Breakpoint yielded.
func (e *Emulator) halt(t *thread, values []lua.LValue) {
	arg := func(i int) lua.LValue {
		if i < len(values) {
			return values[i]
		}
		return lua.LNil
	}

	t.halted = true
	t.hits++
	t.bpID = lua.LVAsString(arg(0))
	t.vars = e.L.NewTable()
	if vars, ok := arg(1).(*lua.LTable); ok {
		t.vars = vars
	}
	e.halted = append(e.halted, t.id)

	stack := fmt.Sprintf("stack traceback:\n\t%s in breakpoint %s (hit %d)", lua.LVAsString(arg(2)), t.bpID, t.hits)
	rec := transport.FormatRecord(t.bpID, []byte(stack), e.locals(t.vars))
	if err := e.dir.WriteRecord(t.id, rec); err != nil {
		e.logger.Error("publish record of %s: %v", t.id, err)
	}
	e.publishThreads()
	e.logger.Info("thread %s halted at %s", t.id, t.bpID)
}

func (e *Emulator) unhalt(t *thread) {
	t.halted = false
	for i, id := range e.halted {
		if id == t.id {
			e.halted = append(e.halted[:i], e.halted[i+1:]...)
			break
		}
	}
	e.publishThreads()
}

func (e *Emulator) publishThreads() {
	if err := e.dir.WriteThreads(e.halted); err != nil {
		e.logger.Error("publish thread list: %v", err)
	}
}

// locals renders the string-keyed fields of vars in name order.
func (e *Emulator) locals(vars *lua.LTable) []transport.Local {
	var names []string
	vars.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok {
			names = append(names, string(s))
		}
	})
	sort.Strings(names)

	out := make([]transport.Local, 0, len(names))
	for _, name := range names {
		v := e.L.ToStringMeta(vars.RawGetString(name)).String()
		v = strings.ReplaceAll(v, string(rune(transport.FieldSep)), " ")
		out = append(out, transport.Local{Name: name, Value: []byte(v)})
	}
	return out
}

func (e *Emulator) respond(ch transport.Channel, index int, result string) {
	if err := e.dir.WriteResponse(ch, index, []byte(result)); err != nil {
		e.logger.Error("write response %s: %v", ch.Tag(index), err)
	}
}

// eval runs a request chunk and renders its first result. The chunk is
// tried as an expression first so a bare "x" shows x's value. With vars
// set, the chunk sees the fields of vars as variables.
func (e *Emulator) eval(src, name string, vars *lua.LTable) string {
	fn, err := e.L.Load(strings.NewReader("return "+src), name)
	if err != nil {
		fn, err = e.L.Load(strings.NewReader(src), name)
		if err != nil {
			return "error: " + errorText(err)
		}
	}
	if vars != nil {
		e.L.SetFEnv(fn, e.scope(vars))
	}

	base := e.L.GetTop()
	e.L.Push(fn)
	if err := e.L.PCall(0, lua.MultRet, nil); err != nil {
		e.L.SetTop(base)
		return "error: " + errorText(err)
	}
	result := lua.LValue(lua.LNil)
	if e.L.GetTop() > base {
		result = e.L.Get(base + 1)
	}
	e.L.SetTop(base)
	return e.L.ToStringMeta(result).String()
}

// scope returns an environment that resolves names in vars first, then in
// the globals. Assignments to existing vars fields stay in vars.
func (e *Emulator) scope(vars *lua.LTable) *lua.LTable {
	globals := e.L.G.Global
	env := e.L.NewTable()
	mt := e.L.NewTable()
	mt.RawSetString("__index", e.L.NewFunction(func(L *lua.LState) int {
		key := L.Get(2)
		if v := vars.RawGet(key); v != lua.LNil {
			L.Push(v)
			return 1
		}
		L.Push(L.GetTable(globals, key))
		return 1
	}))
	mt.RawSetString("__newindex", e.L.NewFunction(func(L *lua.LState) int {
		key, value := L.Get(2), L.Get(3)
		if vars.RawGet(key) != lua.LNil {
			vars.RawSet(key, value)
			return 0
		}
		L.SetTable(globals, key, value)
		return 0
	}))
	e.L.SetMetatable(env, mt)
	return env
}

func errorText(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
