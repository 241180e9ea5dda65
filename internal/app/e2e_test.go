package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/wc3bridge/internal/emulator"
	"github.com/dshills/wc3bridge/internal/logging"
	"github.com/dshills/wc3bridge/internal/transport"
	"github.com/dshills/wc3bridge/internal/watcher"
)

// startEmulator runs an emulator on the harness directory.
func startEmulator(t *testing.T, h *harness) *emulator.Emulator {
	t.Helper()
	emu, err := emulator.New(emulator.Options{
		Dir:          transport.NewDir(h.root),
		PollInterval: 5 * time.Millisecond,
		Logger:       logging.Null,
	})
	if err != nil {
		t.Fatalf("emulator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		emu.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		emu.Close()
	})
	return emu
}

func TestEndToEndDefaultChannel(t *testing.T) {
	h := newHarness(t)
	startEmulator(t, h)
	h.start(t)

	if prompt := h.send(t, "return 1 + 1"); prompt != "1 >>> " {
		t.Errorf("prompt %q", prompt)
	}
	h.send(t, "answer = 42")
	h.send(t, "answer")

	if got := h.out.String(); got != "2\n42\n" {
		t.Errorf("output %q", got)
	}
}

const unitScript = `
local v = {gold = 1000}
Breakpoint("b1", v)
result = v.gold
`

func TestEndToEndBreakpointSession(t *testing.T) {
	h := newHarness(t)
	emu := startEmulator(t, h)
	h.start(t)

	id, err := emu.Spawn("unit.lua", unitScript)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "halt announcement", func() bool {
		return strings.Contains(h.out.String(), "Thread "+id+" halted at breakpoint b1")
	})

	// The prompt in effect was requested before the halt; the next one
	// reflects the halted thread.
	if prompt := h.send(t, "return gold"); prompt != "["+id+"] 1 >>> " {
		t.Errorf("prompt %q", prompt)
	}
	if !strings.Contains(h.out.String(), "1000\n") {
		t.Errorf("local not read:\n%s", h.out.String())
	}

	h.send(t, "gold = 7")
	h.send(t, "info")
	if !strings.Contains(h.out.String(), "Breakpoint: b1") {
		t.Errorf("info output:\n%s", h.out.String())
	}

	if prompt := h.send(t, "continue"); prompt != "0 >>> " {
		t.Errorf("prompt after continue %q", prompt)
	}
	if !strings.Contains(h.out.String(), "Thread "+id+" resumed.") {
		t.Errorf("resume not reported:\n%s", h.out.String())
	}
	waitFor(t, "thread to finish", func() bool { return emu.Threads() == 0 })
	if got := emu.Global("result"); got != "7" {
		t.Errorf("result = %q, want 7", got)
	}
	if got := h.app.Metrics().Snapshot().Halts; got != 1 {
		t.Errorf("halts = %d", got)
	}
}

func TestEndToEndTwoThreads(t *testing.T) {
	h := newHarness(t)
	emu := startEmulator(t, h)
	h.start(t)

	t1, err := emu.Spawn("a.lua", `Breakpoint("b1")`)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first halt", func() bool { return strings.Contains(h.out.String(), "breakpoint b1") })
	t2, err := emu.Spawn("b.lua", `Breakpoint("b2")`)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second halt", func() bool { return strings.Contains(h.out.String(), "(queued, 1 pending)") })

	h.send(t, "list")
	if !strings.Contains(h.out.String(), "* "+t1+"  breakpoint b1\n  "+t2+"  breakpoint b2\n") {
		t.Errorf("list output:\n%s", h.out.String())
	}

	if prompt := h.send(t, "c"); prompt != "["+t2+"] 0 >>> " {
		t.Errorf("prompt after continue %q", prompt)
	}
	if prompt := h.send(t, "c"); prompt != "0 >>> " {
		t.Errorf("prompt after second continue %q", prompt)
	}
	waitFor(t, "threads to finish", func() bool { return emu.Threads() == 0 })
}

func TestEndToEndBreakOnLine(t *testing.T) {
	h := newHarness(t)
	emu := startEmulator(t, h)
	h.start(t)

	path := filepath.Join(t.TempDir(), "units.lua")
	src := "function Train(count)\n    local total = count * 2\n    return total\nend\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	h.send(t, "bl "+path+":3")
	if !strings.Contains(h.out.String(), "Breakpoint units.lua:3 set in "+path) {
		t.Fatalf("bl output:\n%s", h.out.String())
	}

	if _, err := emu.Spawn("caller.lua", "trained = Train(4)"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "halt at injected line", func() bool {
		return strings.Contains(h.out.String(), "halted at breakpoint units.lua:3")
	})
	h.send(t, "c")
	waitFor(t, "thread to finish", func() bool { return emu.Threads() == 0 })
	if got := emu.Global("trained"); got != "8" {
		t.Errorf("trained = %q", got)
	}
}

func TestEndToEndWatchedFile(t *testing.T) {
	h := newHarness(t)
	emu := startEmulator(t, h)
	h.start(t)

	path := filepath.Join(t.TempDir(), "init.lua")
	src := "OnInit(function() initialized = true end)\nreturn 'loaded'\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	h.send(t, "watch "+path)
	h.watcher.events <- watcher.Event{Path: path, Op: watcher.OpWrite, Timestamp: time.Now()}

	waitFor(t, "file result", func() bool { return strings.Contains(h.out.String(), "loaded\n") })
	out := h.out.String()
	if !strings.Contains(out, "[watch] File changed: "+path) || !strings.Contains(out, "Sending file "+path+" to game as request 0") {
		t.Errorf("output:\n%s", out)
	}
	if got := emu.Global("initialized"); got != "true" {
		t.Errorf("OnInit callback not run: %q", got)
	}
	if got := emu.Global("OnInit"); got != "nil" {
		t.Errorf("OnInit left replaced: %q", got)
	}
	if got := h.app.Metrics().Snapshot().FilesSent; got != 1 {
		t.Errorf("files sent = %d", got)
	}
}
