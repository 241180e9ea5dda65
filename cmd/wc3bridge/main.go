// Package main is the entry point for the wc3bridge debugger console.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/dshills/wc3bridge/internal/app"
	"github.com/dshills/wc3bridge/internal/config"
	"github.com/dshills/wc3bridge/internal/console"
	"github.com/dshills/wc3bridge/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("wc3bridge", pflag.ContinueOnError)
	var (
		flags       config.Flags
		showVersion bool
	)
	flags.Register(fs)
	fs.BoolVarP(&showVersion, "version", "v", false, "show version information")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "wc3bridge - debugger console for Warcraft III Lua maps\n\n")
		fmt.Fprintf(os.Stderr, "Usage: wc3bridge [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  %sFILES_ROOT, %sLOG_LEVEL, ... override the config file\n", config.EnvPrefix, config.EnvPrefix)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion {
		fmt.Printf("wc3bridge %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return 0
	}

	cfg, err := config.Load(flags.ConfigPath, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	flags.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()
	logging.SetDefault(logger)

	// Line editing only works on a terminal; piped input is read as is.
	var lr console.LineReader
	if term.IsTerminal(int(os.Stdin.Fd())) {
		lr = console.NewLiner(cfg.HistoryFile)
	} else {
		lr = console.NewScannerReader(os.Stdin, os.Stdout)
	}

	application, err := app.New(app.Options{
		Config:  cfg,
		Console: lr,
		Output:  os.Stdout,
		Logger:  logger,
	})
	if err != nil {
		lr.Close()
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// Ensure cleanup on all exit paths
	defer func() {
		if err := application.Shutdown(); err != nil {
			logger.Warn("shutdown: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("wc3bridge %s\n", version)
	fmt.Printf("Exchanging files in %s\n", cfg.FilesRoot)
	fmt.Printf("Type 'help' for commands.\n")

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newLogger creates the diagnostics logger: stderr, or the configured log
// file.
func newLogger(cfg config.Config) (*logging.Logger, func(), error) {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Level()

	var closer io.Closer
	if cfg.LogFile != "" {
		f, err := logging.OpenFile(cfg.LogFile)
		if err != nil {
			return nil, nil, err
		}
		lc.Output = f
		closer = f
	}
	return logging.New(lc), func() {
		if closer != nil {
			closer.Close()
		}
	}, nil
}
