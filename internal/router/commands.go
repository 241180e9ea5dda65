package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dshills/wc3bridge/internal/locator"
	"github.com/dshills/wc3bridge/internal/session"
	"github.com/dshills/wc3bridge/internal/transport"
)

// command is one operator command.
type command struct {
	name    string
	aliases []string
	usage   string
	help    string
	run     func(ctx context.Context, r *Router, args string) error
}

// builtinCommands returns the commands in help order.
func builtinCommands() []*command {
	return []*command{
		{name: "help", aliases: []string{"h"}, help: "show this help", run: cmdHelp},
		{name: "quit", aliases: []string{"q", "exit"}, help: "exit the bridge", run: cmdQuit},
		{name: "restart", aliases: []string{"r"}, help: "reset all state so a new game can be started", run: cmdRestart},
		{name: "jump", aliases: []string{"j"}, usage: "<n>", help: "continue sending from request index n, after restarting the bridge during a game", run: cmdJump},
		{name: "file", usage: "<path>", help: "send a Lua file; end it with `return <data>` to print data", run: cmdFile},
		{name: "watch", usage: "<path>", help: "send a Lua file every time it changes", run: cmdWatch},
		{name: "unwatch", usage: "<path>", help: "stop watching a file", run: cmdUnwatch},
		{name: "watching", help: "list watched files", run: cmdWatching},
		{name: "list", aliases: []string{"l"}, help: "list halted threads", run: cmdList},
		{name: "thread", aliases: []string{"t"}, usage: "<id>", help: "send commands to another halted thread", run: cmdThread},
		{name: "info", aliases: []string{"i"}, usage: "[id]", help: "show the breakpoint, stack and locals of a halted thread", run: cmdInfo},
		{name: "continue", aliases: []string{"c"}, help: "resume the current thread", run: cmdContinue},
		{name: "enable", aliases: []string{"e"}, usage: "<bp id>", help: "enable a breakpoint", run: cmdEnable},
		{name: "disable", aliases: []string{"d"}, usage: "<bp id>", help: "disable a breakpoint", run: cmdDisable},
		{name: "break", aliases: []string{"b"}, usage: "<function>", help: "halt whenever a global function is called", run: cmdBreak},
		{name: "bl", usage: "<file>:<line|function> | <function>", help: "insert a breakpoint before a line, or at the start of a function; a bare function is searched in lua_root", run: cmdBreakLine},
	}
}

// commandTable indexes commands by name and alias.
func commandTable(cmds []*command) map[string]*command {
	table := make(map[string]*command)
	for _, cmd := range cmds {
		table[cmd.name] = cmd
		for _, a := range cmd.aliases {
			table[a] = cmd
		}
	}
	return table
}

// parseCommand splits a line into its first word and the trimmed rest.
func parseCommand(line string) (name, args string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	name, args, _ = strings.Cut(line, " ")
	return name, strings.TrimSpace(args)
}

// isAssignment reports whether args make the line a Lua assignment such
// as "t = 5" rather than a command.
func isAssignment(args string) bool {
	return strings.HasPrefix(args, "=") && !strings.HasPrefix(args, "==")
}

// usageError reports the usage of the named command.
func (r *Router) usageError(name string) error {
	if c, ok := r.commands[name]; ok {
		return fmt.Errorf("%w: %s %s", ErrUsage, c.name, c.usage)
	}
	return ErrUsage
}

// helpText renders the command list.
func helpText(cmds []*command) string {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, c := range cmds {
		names := append([]string{c.name}, c.aliases...)
		left := strings.Join(names, ", ")
		if c.usage != "" {
			left += " " + c.usage
		}
		fmt.Fprintf(&b, "  %-32s %s\n", left, c.help)
	}
	b.WriteString("  <lua>                            run Lua in the game, in the current thread when one is halted\n")
	b.WriteString("** Restarting the bridge while a game runs stops the game from answering until `jump` is used **\n")
	b.WriteString("** OnInit calls in files sent via 'file' or 'watch' are executed immediately **\n")
	return b.String()
}

func cmdHelp(_ context.Context, r *Router, _ string) error {
	r.printf("%s", helpText(r.commandList))
	return nil
}

func cmdQuit(context.Context, *Router, string) error {
	return ErrQuit
}

func cmdRestart(_ context.Context, r *Router, _ string) error {
	if r.watches != nil {
		for _, p := range r.watches.WatchedPaths() {
			if err := r.watches.Unwatch(p); err != nil {
				r.logger.Warn("unwatch %s: %v", p, err)
			}
		}
	}
	if err := r.dir.Clean(); err != nil {
		r.logger.Warn("clean %s: %v", r.dir.Root(), err)
	}
	r.session.Reset()
	r.index.Reset()
	r.printf("State reset. You can start a new game now.\n")
	return nil
}

func cmdJump(_ context.Context, r *Router, args string) error {
	n, err := strconv.Atoi(args)
	if err != nil || n < 0 {
		return r.usageError("jump")
	}
	r.index.Jump(n)
	return nil
}

func cmdFile(ctx context.Context, r *Router, args string) error {
	if args == "" {
		return r.usageError("file")
	}
	return r.SendFile(ctx, args)
}

func cmdWatch(_ context.Context, r *Router, args string) error {
	if args == "" {
		return r.usageError("watch")
	}
	if r.watches == nil {
		return errors.New("file watching is not available")
	}
	if err := r.watches.Watch(args); err != nil {
		return err
	}
	r.printf("Now watching: %s\n", args)
	return nil
}

func cmdUnwatch(_ context.Context, r *Router, args string) error {
	if args == "" {
		return r.usageError("unwatch")
	}
	if r.watches == nil {
		return errors.New("file watching is not available")
	}
	if err := r.watches.Unwatch(args); err != nil {
		return err
	}
	r.printf("Stopped watching: %s\n", args)
	return nil
}

func cmdWatching(_ context.Context, r *Router, _ string) error {
	var paths []string
	if r.watches != nil {
		paths = r.watches.WatchedPaths()
	}
	if len(paths) == 0 {
		r.printf("No files being watched.\n")
		return nil
	}
	r.printf("Watched files:\n")
	for _, p := range paths {
		r.printf("  %s\n", p)
	}
	return nil
}

func cmdList(_ context.Context, r *Router, _ string) error {
	halted := r.session.Halted()
	if len(halted) == 0 {
		r.printf("No halted threads.\n")
		return nil
	}
	for _, h := range halted {
		marker := " "
		if h.ThreadID == r.session.CurrentID() {
			marker = "*"
		}
		r.printf("%s %s  breakpoint %s\n", marker, h.ThreadID, h.Record.BreakpointID)
	}
	return nil
}

func cmdThread(_ context.Context, r *Router, args string) error {
	if args == "" {
		return r.usageError("thread")
	}
	if err := r.session.Switch(args); err != nil {
		return err
	}
	cur, _ := r.session.Current()
	r.printf("Switched to thread %s (breakpoint %s)\n", cur.ThreadID, cur.Record.BreakpointID)
	return nil
}

func cmdInfo(_ context.Context, r *Router, args string) error {
	var (
		h   session.Halt
		err error
	)
	if args != "" {
		h, err = r.session.Lookup(args)
	} else {
		var ok bool
		if h, ok = r.session.Current(); !ok {
			err = session.ErrNoCurrent
		}
	}
	if err != nil {
		return err
	}

	r.printf("Thread:     %s\n", h.ThreadID)
	r.printf("Breakpoint: %s\n", h.Record.BreakpointID)
	if len(h.Record.Stack) > 0 {
		r.printf("Stack:\n%s\n", strings.TrimRight(string(h.Record.Stack), "\n"))
	}
	if len(h.Record.Locals) == 0 {
		r.printf("No locals.\n")
		return nil
	}
	r.printf("Locals:\n")
	for _, l := range h.Record.Locals {
		r.printf("  %s = %s\n", l.Name, l.Value)
	}
	return nil
}

// cmdContinue resumes the current thread. The session only moves on once
// the remote side has answered the resume request.
func cmdContinue(ctx context.Context, r *Router, _ string) error {
	cur, ok := r.session.Current()
	if !ok {
		return session.ErrNoCurrent
	}
	if _, err := r.SendAndWait(ctx, transport.ThreadChannel(cur.ThreadID), []byte(transport.ResumeCommand)); err != nil {
		return err
	}

	next, ok, err := r.session.ResumeCurrent()
	if err != nil {
		return err
	}
	r.printf("Thread %s resumed.\n", cur.ThreadID)
	if ok {
		r.printf("Switched to thread %s (breakpoint %s)\n", next.ThreadID, next.Record.BreakpointID)
	}
	return nil
}

func cmdEnable(ctx context.Context, r *Router, args string) error {
	if args == "" {
		return r.usageError("enable")
	}
	return r.sendDefault(ctx, r.builder.Enable(args))
}

func cmdDisable(ctx context.Context, r *Router, args string) error {
	if args == "" {
		return r.usageError("disable")
	}
	return r.sendDefault(ctx, r.builder.Disable(args))
}

func cmdBreak(ctx context.Context, r *Router, args string) error {
	if args == "" {
		return r.usageError("break")
	}
	payload, err := r.builder.Wrapper(args)
	if err != nil {
		return err
	}
	if err := r.sendDefault(ctx, payload); err != nil {
		return err
	}
	r.printf("Breakpoint set on calls to %s\n", args)
	return nil
}

// cmdBreakLine injects a halt call into a function of a local source file
// and sends the rewritten function. The file on disk is not changed.
func cmdBreakLine(ctx context.Context, r *Router, args string) error {
	if args == "" {
		return r.usageError("bl")
	}
	sep := strings.LastIndex(args, ":")
	if sep < 0 {
		return r.breakInRoot(ctx, args)
	}
	if sep == 0 || sep == len(args)-1 {
		return r.usageError("bl")
	}
	path, spec := args[:sep], args[sep+1:]

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return err
	}
	content := string(data)

	bpID := filepath.Base(path) + ":" + spec
	var (
		target    locator.Target
		afterLine int
	)
	if line, convErr := strconv.Atoi(spec); convErr == nil {
		if line < 1 {
			return r.usageError("bl")
		}
		target = locator.ByLine(line)
		span, err := locator.Locate(content, target)
		if err != nil {
			return err
		}
		// Insert before the requested line; on the declaration line
		// itself the call goes first in the body.
		afterLine = line - span.StartLine
	} else {
		target = locator.ByName(spec)
	}

	res, err := locator.Modify(map[string]string{path: content}, path, target, r.builder.Injection(bpID), afterLine)
	if err != nil {
		return err
	}

	if err := r.sendDefault(ctx, res.Span.Body); err != nil {
		return err
	}
	r.printf("Breakpoint %s set in %s lines %d-%d\n", bpID, path, res.Span.StartLine, res.Span.EndLine)
	return nil
}

// breakInRoot injects a halt call at the start of the first function named
// name found under the Lua root.
func (r *Router) breakInRoot(ctx context.Context, name string) error {
	if r.luaRoot == "" {
		return errors.New("no lua_root configured; use bl <file>:<function>")
	}
	files, err := locator.LoadDirectory(r.luaRoot)
	if err != nil {
		return err
	}
	res, err := locator.Modify(files, "", locator.ByName(name), r.builder.Injection(name), 0)
	if err != nil {
		return err
	}

	if err := r.sendDefault(ctx, res.Span.Body); err != nil {
		return err
	}
	r.printf("Breakpoint %s set in %s lines %d-%d\n", name, res.File, res.Span.StartLine, res.Span.EndLine)
	return nil
}

// sendDefault sends payload on the default channel and prints the result.
func (r *Router) sendDefault(ctx context.Context, payload string) error {
	result, err := r.SendAndWait(ctx, transport.Channel{}, []byte(payload))
	if err != nil {
		return err
	}
	r.printResult(result)
	return nil
}
