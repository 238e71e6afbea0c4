// Package main is the entry point for chartbridge.
//
// chartbridge loads a chart script, reads UI events as JSON lines and
// prints one JSON result line per event.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/dshills/chartbridge/internal/app"
	"github.com/dshills/chartbridge/internal/config"
	"github.com/dshills/chartbridge/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const maxEventLine = 1 << 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath  string
	scriptPath  string
	engine      string
	eventsPath  string
	svgDir      string
	logLevel    string
	watch       bool
	showVersion bool

	// set records which flags were given explicitly.
	set map[string]bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "chartbridge %s\n", version)
		fmt.Fprintf(stdout, "Commit: %s\n", commit)
		fmt.Fprintf(stdout, "Built: %s\n", date)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.New(ctx, app.Options{Config: cfg, Logger: logger})
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	if err := application.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := application.RenderAll(); err != nil {
		logger.Warn("initial render failed", zap.Error(err))
	}

	events, closeEvents, err := openEvents(opts.eventsPath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeEvents()

	if events != nil {
		if err := processEvents(ctx, application, events, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	if cfg.Script.Watch {
		logger.Info("watching script, interrupt to exit", zap.String("path", cfg.Script.Path))
		<-ctx.Done()
	}

	stats := application.Stats()
	logger.Debug("dispatch summary",
		zap.Uint64("dispatched", stats.Dispatched),
		zap.Uint64("handled", stats.Handled),
		zap.Uint64("dropped", stats.Dropped),
		zap.Uint64("failed", stats.Failed),
		zap.Duration("avg", stats.AvgDuration),
	)
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("chartbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.scriptPath, "script", "", "Chart script (.lua or .js)")
	fs.StringVar(&opts.engine, "engine", "", "Script engine (lua, ecma)")
	fs.StringVar(&opts.eventsPath, "events", "", "JSON lines event file, or - for stdin")
	fs.StringVar(&opts.svgDir, "svg-dir", "", "Directory for rendered charts")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.watch, "watch", false, "Reload the script when it changes")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.BoolVar(&opts.showVersion, "v", false, "Show version information (shorthand)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "chartbridge - scripted fire history charts\n\n")
		fmt.Fprintf(stderr, "Usage: chartbridge [options]\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  chartbridge -events clicks.jsonl          Run the default script\n")
		fmt.Fprintf(stderr, "  chartbridge -script chart.js -events -    Read events from stdin\n")
		fmt.Fprintf(stderr, "  chartbridge -script chart.lua -watch      Reload on save\n")
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments %v\n", fs.Args())
		fs.Usage()
		return opts, errors.New("unexpected arguments")
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	return opts, nil
}

// loadConfig layers flags over the file and environment.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.NewLoader(opts.configPath).Load()
	if err != nil {
		return nil, err
	}

	if opts.set["script"] {
		cfg.Script.Path = opts.scriptPath
	}
	if opts.set["engine"] {
		cfg.Script.Engine = opts.engine
	}
	if opts.set["svg-dir"] {
		cfg.Output.SVGDir = opts.svgDir
	}
	if opts.set["log-level"] {
		cfg.Log.Level = opts.logLevel
	}
	if opts.set["watch"] {
		cfg.Script.Watch = opts.watch
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openEvents(path string, stdin io.Reader) (io.Reader, func(), error) {
	switch path {
	case "":
		return nil, func() {}, nil
	case "-":
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open events: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// processEvents handles each line of r until EOF or ctx ends. Malformed
// lines produce an error object and do not stop processing.
func processEvents(ctx context.Context, application *app.Application, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			out, err := application.HandleLine(ctx, line)
			if err != nil {
				out, _ = sjson.SetBytes([]byte(`{}`), "error", err.Error())
			}
			if _, err := fmt.Fprintf(w, "%s\n", out); err != nil {
				return err
			}
		}
	}
}
