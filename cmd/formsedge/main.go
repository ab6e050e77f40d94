package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/manzoorua/formsedge-sub001/internal/api"
	"github.com/manzoorua/formsedge-sub001/internal/config"
	"github.com/manzoorua/formsedge-sub001/internal/dispatch"
	"github.com/manzoorua/formsedge-sub001/internal/doctor"
	"github.com/manzoorua/formsedge-sub001/internal/lock"
	"github.com/manzoorua/formsedge-sub001/internal/log"
	"github.com/manzoorua/formsedge-sub001/internal/payload"
	"github.com/manzoorua/formsedge-sub001/internal/storage"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		return runStart(args)
	case "config":
		return runConfigNoun(args)
	case "doctor":
		return runDoctor(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `formsedge - response delivery and webhook dispatch

Usage:
  formsedge start  --config <file>      Run the gateway and dispatcher
  formsedge config check --config <file>  Validate configuration
  formsedge config lock  --config <file>  Write the config integrity manifest
  formsedge doctor --config <file>      Diagnose config and integration setup
  formsedge version [--json]            Print version information
`)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "formsedge.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("formsedge starting", "version", version, "config", *configPath)

	dbLock, err := lock.Acquire(cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to acquire database lock (another instance may be running)", "error", err)
		return 1
	}
	defer dbLock.Release()
	logger.Info("acquired database lock", "path", dbLock.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Storage.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.Storage.Path)

	builder := payload.NewBuilder(db)
	hub := api.NewEventHub(256)

	dispatcher := dispatch.New(
		dispatch.NewIntegrationStore(db),
		dispatch.NewDeliveryLog(db),
		builder,
		dispatch.Config{
			Timeout:           cfg.Webhooks.Timeout,
			UserAgent:         cfg.Webhooks.UserAgent,
			SignatureHeader:   cfg.Webhooks.SignatureHeader,
			ResponseBodyLimit: cfg.Webhooks.ResponseBodyLimit,
		},
		hub,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	if cfg.API.Enabled {
		server := api.New(cfg.API, api.NewResponseStore(db), builder, dispatcher, dispatch.NewDeliveryLog(db), hub, log.WithComponent("api"))
		go func() {
			if err := server.Start(ctx); err != nil && err != context.Canceled {
				errCh <- err
			}
		}()
	} else {
		logger.Warn("api disabled; no trigger surface is listening")
	}

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("formsedge stopped")
	return 0
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: formsedge config <check|lock> --config <file>")
		return 1
	}
	sub := args[0]
	rest := args[1:]

	switch sub {
	case "check":
		return runConfigCheck(rest)
	case "lock":
		return runConfigLock(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", sub)
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ExitOnError)
	configPath := fs.String("config", "formsedge.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
		return 1
	}

	fmt.Printf("Config OK: %s\n", *configPath)
	fmt.Printf("  service:  %s\n", cfg.Service.Name)
	fmt.Printf("  storage:  %s\n", cfg.Storage.Path)
	if cfg.API.Enabled {
		fmt.Printf("  api:      %s (%d tokens)\n", cfg.API.Listen, len(cfg.API.Auth.Tokens))
	} else {
		fmt.Println("  api:      disabled")
	}
	fmt.Printf("  webhooks: timeout=%s user_agent=%q\n", cfg.Webhooks.Timeout, cfg.Webhooks.UserAgent)
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("config lock", flag.ExitOnError)
	configPath := fs.String("config", "formsedge.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	// Validate before locking so a broken file is never sealed.
	if _, err := config.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid, not locking: %v\n", err)
		return 1
	}
	if err := config.Lock(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	fmt.Printf("Config locked: %s\n", *configPath)
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "formsedge.yaml", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
		return 1
	}

	ctx := context.Background()

	// Database checks are best-effort: a missing database on first run is
	// not a diagnosis failure.
	var db *sql.DB
	if _, statErr := os.Stat(cfg.Storage.Path); statErr == nil {
		db, err = storage.OpenSQLite(ctx, cfg.Storage.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
			return 1
		}
		defer db.Close()
	}

	result := doctor.New(cfg, db).Validate(ctx)

	if *jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render diagnostics: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		for _, e := range result.Errors {
			fmt.Printf("ERROR   [%s] %s: %s\n", e.Category, e.Field, e.Message)
		}
		for _, w := range result.Warnings {
			fmt.Printf("WARNING [%s] %s: %s\n", w.Category, w.Field, w.Message)
		}
		if result.Valid {
			fmt.Printf("Doctor OK: %d warning(s)\n", len(result.Warnings))
		} else {
			fmt.Printf("Doctor found %d error(s), %d warning(s)\n", len(result.Errors), len(result.Warnings))
		}
	}

	if !result.Valid {
		return 1
	}
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := versionInfo{Version: version, Commit: gitCommit, BuildTime: buildDate}
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("formsedge %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildTime)
	return 0
}
