// Package main runs the local game emulator against a shared directory, so
// the bridge can be used without the game.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/dshills/wc3bridge/internal/config"
	"github.com/dshills/wc3bridge/internal/emulator"
	"github.com/dshills/wc3bridge/internal/logging"
	"github.com/dshills/wc3bridge/internal/transport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("wc3bridge-sim", pflag.ContinueOnError)
	var (
		configPath string
		filesRoot  string
		interval   time.Duration
		logLevel   string
		scripts    []string
	)
	fs.StringVarP(&configPath, "config", "c", "", "bridge config file, for the files root")
	fs.StringVarP(&filesRoot, "files-root", "d", "", "directory shared with the bridge")
	fs.DurationVar(&interval, "poll-interval", 20*time.Millisecond, "request poll interval")
	fs.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringArrayVarP(&scripts, "script", "s", nil, "Lua file to run as a thread at startup (repeatable)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "wc3bridge-sim - stand-in for the game's Lua runtime\n\n")
		fmt.Fprintf(os.Stderr, "Usage: wc3bridge-sim [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(configPath, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if filesRoot != "" {
		cfg.FilesRoot = filesRoot
	}
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Prefix = "wc3bridge-sim"
	logger := logging.New(lc)

	emu, err := emulator.New(emulator.Options{
		Dir:          transport.NewDir(cfg.FilesRoot),
		PollInterval: interval,
		Output:       os.Stdout,
		Logger:       logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer emu.Close()

	for _, path := range scripts {
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		id, err := emu.Spawn(filepath.Base(path), string(src))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		logger.Info("started %s as thread %s", path, id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Emulating the game in %s\n", cfg.FilesRoot)
	if err := emu.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
