// Command webpilot drives LLM-planned browser sessions and analyzes the
// traces they leave behind.
//
// Usage:
//
//	webpilot start                        # launch a browser session
//	webpilot run "book a table for two"   # execute a task in the session
//	webpilot close                        # shut the session down
//	webpilot trace ./tmp/traces/run-1     # analyze a recorded trace
//	webpilot version                      # show version information
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/vantus-ai/webpilot/agent"
	"github.com/vantus-ai/webpilot/browser"
	"github.com/vantus-ai/webpilot/config"
	"github.com/vantus-ai/webpilot/internal/logging"
	"github.com/vantus-ai/webpilot/session"
	"github.com/vantus-ai/webpilot/tasklog"
	"github.com/vantus-ai/webpilot/trace"
	"github.com/vantus-ai/webpilot/types"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		runStart(os.Args[2:])
	case "run":
		runTask(os.Args[2:])
	case "close":
		runClose(os.Args[2:])
	case "trace":
		runTrace(os.Args[2:])
	case "tasks":
		runTasks(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by all commands.
func setup(configPath string) (*config.Config, *zap.Logger) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fatal("Failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("Invalid config", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fatal("Failed to initialize logging", err)
	}
	return cfg, logger
}

func openStore(cfg *config.Config, logger *zap.Logger) *session.FileStore {
	store, err := session.NewFileStore(cfg.Trace.StateDir, logger)
	if err != nil {
		fatal("Cannot open session store", err)
	}
	return store
}

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	headless := fs.Bool("headless", false, "Run the browser headless")
	windowSize := fs.String("window-size", "", "Browser window size, WIDTHxHEIGHT")
	userDataDir := fs.String("user-data-dir", "", "Browser profile directory")
	proxy := fs.String("proxy", "", "Proxy server URL")
	fs.Parse(args)

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "headless":
			cfg.Browser.Headless = *headless
		case "user-data-dir":
			cfg.Browser.UserDataDir = *userDataDir
		case "proxy":
			cfg.Browser.Proxy = *proxy
		case "window-size":
			w, h, err := config.ParseWindowSize(*windowSize)
			if err != nil {
				fatal("Invalid window size", err)
			}
			cfg.Browser.WindowWidth, cfg.Browser.WindowHeight = w, h
		}
	})

	store := openStore(cfg, logger)
	if store.Active() {
		fmt.Fprintln(os.Stderr, "A session is already active; run 'webpilot close' first")
		os.Exit(1)
	}

	ctx := signalContext()
	driver, err := browser.NewLaunchFunc(logger)(ctx, cfg.Browser)
	if err != nil {
		fatal("Browser launch failed", err)
	}
	cdp, ok := driver.(*browser.CDPDriver)
	if !ok {
		fatal("Browser launch failed", fmt.Errorf("unexpected driver type %T", driver))
	}

	state := session.NewState()
	state.Headless = cfg.Browser.Headless
	state.WindowWidth = cfg.Browser.WindowWidth
	state.WindowHeight = cfg.Browser.WindowHeight
	state.UserDataDir = cfg.Browser.UserDataDir
	state.Proxy = cfg.Browser.Proxy
	state.DebugPort = cdp.DebugPort()
	if pid := cdp.PID(); pid != 0 {
		state.PID = pid
	}

	if err := store.Save(state); err != nil {
		_ = cdp.Close(ctx)
		fatal("Cannot persist session", err)
	}
	// The browser stays up after this process exits; run/close reattach
	// through the recorded debugging port.
	if err := cdp.Detach(); err != nil {
		logger.Warn("detach returned an error", zap.Error(err))
	}

	fmt.Printf("Session %s started (debug port %d)\n", state.ID, state.DebugPort)
}

func runTask(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	model := fs.String("model", "", "LLM model name")
	vision := fs.Bool("vision", false, "Let the planner use page screenshots")
	record := fs.Bool("record", false, "Save a screenshot after each action")
	recordPath := fs.String("record-path", "", "Directory for step screenshots")
	tracePath := fs.String("trace-path", "", "File the task record is appended to")
	maxSteps := fs.Int("max-steps", 0, "Step budget for the task")
	maxActions := fs.Int("max-actions", 0, "Maximum actions per step")
	addInfo := fs.String("add-info", "", "Extra instructions appended to the goal")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: webpilot run [flags] <goal>")
		os.Exit(1)
	}
	goal := fs.Arg(0)
	if *addInfo != "" {
		goal = goal + "\n" + *addInfo
	}

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	if *model != "" {
		cfg.Agent.Model = *model
	}
	if *vision {
		cfg.Agent.Vision = true
	}
	if *maxSteps > 0 {
		cfg.Agent.MaxSteps = *maxSteps
	}
	if *maxActions > 0 {
		cfg.Agent.MaxActionsPerStep = *maxActions
	}

	store := openStore(cfg, logger)
	state, err := store.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No active session; run 'webpilot start' first")
		os.Exit(1)
	}

	planner, err := agent.NewLLMPlanner(cfg.Agent, logger)
	if err != nil {
		fatal("Planner setup failed", err)
	}

	ctx := signalContext()
	launch := func(ctx context.Context, _ config.BrowserConfig) (browser.Driver, error) {
		return browser.Attach(ctx, state.DebugPort, logger)
	}
	ctrl := browser.NewController(cfg.Browser, launch, nil, logger)

	sink := *tracePath
	if sink == "" {
		sink = filepath.Join(cfg.Trace.StateDir, "tasks.jsonl")
	}
	a := agent.New(planner, ctrl, cfg.Agent, sink, logger)
	if *record {
		dir := *recordPath
		if dir == "" {
			dir = cfg.Trace.RecordingDir
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fatal("Cannot create recording directory", err)
		}
		a.CaptureScreenshots(dir)
	}

	rec, runErr := a.Run(ctx, goal)
	saveHistory(cfg, logger, rec)

	// Detach rather than close: the session outlives the task.
	if driver, derr := ctrl.Driver(); derr == nil {
		if cdp, ok := driver.(*browser.CDPDriver); ok {
			_ = cdp.Detach()
		}
	}

	printRecord(rec)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Task failed: %v\n", runErr)
		os.Exit(1)
	}
}

func saveHistory(cfg *config.Config, logger *zap.Logger, rec tasklog.Record) {
	history, err := tasklog.OpenHistory(filepath.Join(cfg.Trace.StateDir, "history.db"), logger)
	if err != nil {
		logger.Warn("task history unavailable", zap.Error(err))
		return
	}
	defer history.Close()
	if err := history.Append(rec); err != nil {
		logger.Warn("could not record task history", zap.Error(err))
	}
}

func runTasks(args []string) {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	limit := fs.Int("limit", 10, "How many recent tasks to show")
	id := fs.String("id", "", "Show one task by id")
	fs.Parse(args)

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	history, err := tasklog.OpenHistory(filepath.Join(cfg.Trace.StateDir, "history.db"), logger)
	if err != nil {
		fatal("Cannot open task history", err)
	}
	defer history.Close()

	if *id != "" {
		rec, err := history.Get(*id)
		if err != nil {
			fatal("Task not found", err)
		}
		printRecord(rec)
		return
	}

	records, err := history.Recent(*limit)
	if err != nil {
		fatal("Cannot read task history", err)
	}
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		fatal("Cannot encode task history", err)
	}
	fmt.Println(string(out))
}

func printRecord(rec tasklog.Record) {
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		fatal("Cannot encode task record", err)
	}
	fmt.Println(string(out))
}

func runClose(args []string) {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	store := openStore(cfg, logger)
	state, err := store.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No active session")
		os.Exit(1)
	}

	ctx := signalContext()
	if driver, err := browser.Attach(ctx, state.DebugPort, logger); err == nil {
		if err := driver.Close(ctx); err != nil {
			logger.Warn("browser close returned an error", zap.Error(err))
		}
	} else if state.PID != 0 {
		// Browser endpoint is gone; make sure the process is too.
		if proc, ferr := os.FindProcess(state.PID); ferr == nil {
			_ = proc.Kill()
		}
	}

	if err := store.Clear(); err != nil {
		fatal("Cannot clear session", err)
	}
	fmt.Printf("Session %s closed\n", state.ID)
}

func runTrace(args []string) {
	fs := flag.NewFlagSet("trace", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	output := fs.String("output", "", "Write the analysis to this file instead of stdout")
	fs.StringVar(output, "o", "", "Shorthand for --output")
	basic := fs.Bool("basic", false, "Produce the flat action/network summary instead of the full analysis")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: webpilot trace [flags] <path>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	_, logger := setup(*configPath)
	defer logger.Sync()

	var result any
	if *basic {
		st, err := trace.ParseSession(path, logger)
		if err != nil {
			traceFatal(err)
		}
		result = st.Report()
	} else {
		analyzer := trace.NewAnalyzer(path, logger)
		full, err := analyzer.AnalyzeAll(signalContext())
		if err != nil {
			traceFatal(err)
		}
		result = full
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fatal("Cannot encode analysis", err)
	}
	if *output != "" {
		if err := os.WriteFile(*output, append(out, '\n'), 0o644); err != nil {
			fatal("Cannot write analysis", err)
		}
		fmt.Printf("Analysis written to %s\n", *output)
		return
	}
	fmt.Println(string(out))
}

func traceFatal(err error) {
	fmt.Fprintf(os.Stderr, "Trace analysis failed [%s]: %v\n", types.GetErrorCode(err), err)
	os.Exit(1)
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

// signalContext returns a context canceled by SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

func printVersion() {
	fmt.Printf("webpilot %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`webpilot - LLM-driven browser automation with trace analysis

Usage:
  webpilot <command> [flags]

Commands:
  start     Launch a browser session and persist it
  run       Execute a natural-language task in the active session
  close     Shut down the active session
  trace     Analyze a recorded trace archive
  tasks     List or inspect past task records
  version   Show version information
  help      Show this help

Examples:
  webpilot start --headless --window-size 1280x720
  webpilot run "find the cheapest train to Berlin" --model deepseek-chat
  webpilot trace ./tmp/traces/run-1 -o analysis.json
  webpilot trace ./tmp/traces/run-1 --basic
  webpilot close`)
}
