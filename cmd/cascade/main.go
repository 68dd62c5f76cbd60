// Command cascade runs the hierarchical research orchestration service.
//
// Subcommands:
//
//	serve    start the HTTP API server (default)
//	run      execute a single research task and print the report
//	version  print build information
//	health   probe a running server's health endpoint
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/geepers/cascade/config"
	"github.com/geepers/cascade/orchestrator"
	"github.com/geepers/cascade/report"
	"github.com/geepers/cascade/store"
	"github.com/geepers/cascade/types"
)

// Build metadata, injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "serve":
		runServe(args)
	case "run":
		runOnce(args)
	case "version":
		fmt.Printf("cascade %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	case "health":
		runHealth(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Println(`Usage: cascade <command> [flags]

Commands:
  serve    start the HTTP API server (default)
  run      execute a single research task and print the report
  version  print build information
  health   probe a running server's health endpoint`)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting cascade",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
	)

	srv, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("server initialization failed", zap.Error(err))
	}
	if err := srv.Start(); err != nil {
		logger.Fatal("server start failed", zap.Error(err))
	}

	srv.WaitForShutdown()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}

// runOnce executes one research task without starting the HTTP server and
// prints the rendered report to stdout.
func runOnce(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	desc := fs.String("desc", "", "task description (required)")
	title := fs.String("title", "", "optional task title")
	workers := fs.Int("workers", 3, "number of worker agents")
	mode := fs.String("mode", "parallel", "execution mode: parallel, sequential or hybrid")
	midTier := fs.Bool("mid-tier", false, "enable mid-tier synthesis")
	groupSize := fs.Int("group", 0, "mid-tier cluster size (0 uses the configured default)")
	executive := fs.Bool("executive", false, "enable executive synthesis")
	format := fs.String("format", "markdown", "output format: markdown, text or json")
	output := fs.String("output", "", "write the report to this file instead of stdout")
	timeout := fs.Duration("timeout", 10*time.Minute, "overall run timeout")
	_ = fs.Parse(args)

	if *desc == "" {
		fmt.Fprintln(os.Stderr, "run: -desc is required")
		fs.Usage()
		os.Exit(2)
	}

	outputFormat, err := report.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(2)
	}

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync() //nolint:errcheck

	sessions := store.NewMemorySessionStore()
	defer sessions.Close() //nolint:errcheck

	orch := orchestrator.New(buildExecutor(cfg.Executor), sessions, orchestrator.Config{
		MaxConcurrentUnits:      cfg.Orchestrator.MaxConcurrentUnits,
		MaxPipelines:            1,
		PipelineQueueSize:       1,
		DefaultMidTierGroupSize: cfg.Orchestrator.DefaultMidTierGroupSize,
		CostPerKiloToken:        cfg.Orchestrator.CostPerKiloToken,
	}, logger, nil)
	defer orch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	id, err := orch.Start(ctx, types.Task{
		Description:      *desc,
		Title:            *title,
		WorkerCount:      *workers,
		Mode:             types.ExecMode(*mode),
		EnableMidTier:    *midTier,
		EnableExecutive:  *executive,
		MidTierGroupSize: *groupSize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}

	session, err := waitForTerminal(ctx, orch, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
	if session.State != types.StateCompleted {
		fmt.Fprintf(os.Stderr, "run: session ended %s: %s\n", session.State, session.Error)
		os.Exit(1)
	}

	rep, err := orch.Results(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
	rendered, err := report.Render(rep, outputFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
	if *output != "" {
		if err := os.WriteFile(*output, []byte(rendered+"\n"), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "run: write output: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("report written to %s\n", *output)
		return
	}
	fmt.Println(rendered)
}

func waitForTerminal(ctx context.Context, orch *orchestrator.Orchestrator, id string) (*types.Session, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		session, err := orch.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if session.State.IsTerminal() {
			return session, nil
		}
		select {
		case <-ctx.Done():
			// Give the pipeline a chance to record the cancellation.
			_, _ = orch.Cancel(context.Background(), id)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	url := fs.String("url", "http://localhost:8080/health", "health endpoint URL")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// initLogger builds a zap logger from the logging configuration.
func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = cfg.Format
	if len(cfg.OutputPaths) > 0 {
		zapCfg.OutputPaths = cfg.OutputPaths
	}
	zapCfg.DisableCaller = !cfg.EnableCaller

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	return logger
}
