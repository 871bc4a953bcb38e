// Package main provides the procrun CLI entry point.
//
// procrun spawns a program with captured standard streams, waits for it
// with a bounded poll, and optionally restarts it per policy while
// exporting Prometheus metrics about every attempt.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-procrun/internal/config"
	"github.com/randomizedcoder/go-procrun/internal/logging"
	"github.com/randomizedcoder/go-procrun/internal/metrics"
	"github.com/randomizedcoder/go-procrun/internal/preflight"
	"github.com/randomizedcoder/go-procrun/internal/process"
	"github.com/randomizedcoder/go-procrun/internal/stats"
	"github.com/randomizedcoder/go-procrun/internal/supervisor"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/procrun
var version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes procrun with args (program name excluded) against the given
// standard streams and returns the process exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	// Handle version flag early (before flag parsing)
	if len(args) > 0 {
		arg := args[0]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Fprintf(stdout, "procrun %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags(args, stderr)
	if err != nil {
		if config.IsHelp(err) {
			return 0
		}
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		return 2
	}

	// Apply -check mode before validation so the capped timeout is checked too
	if cfg.Check {
		config.ApplyCheckMode(cfg)
	}

	var program string
	if cfg.Command != "" {
		program = filepath.Base(cfg.Command)
	}
	logger := logging.New(stderr, logging.Options{
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Verbose: cfg.Verbose,
		RunID:   uuid.NewString(),
		Program: program,
	})
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 2
	}
	if cfg.Check {
		logger.Info("check_mode_enabled", "timeout", cfg.Timeout)
	}

	capture, _ := process.ParseCapture(cfg.Capture) // checked by Validate
	policy, _ := supervisor.ParseRestartPolicy(cfg.RestartPolicy)

	cmdConfig := &process.CommandConfig{
		BinaryPath: cfg.Command,
		Args:       cfg.Args,
		Env:        cfg.Env,
		Capture:    capture,
		ReadGrace:  cfg.ReadGrace,
		Logger:     logger,
	}
	runner := process.NewCommandRunner(cmdConfig)

	if cfg.PrintCmd {
		fmt.Fprintln(stdout, "# Command that would be run for each attempt:")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, runner.CommandString())
		return 0
	}

	if !cfg.SkipPreflight {
		result := preflight.RunAll(cfg.Command)
		if !result.Passed || cfg.Verbose {
			preflight.PrintResults(stderr, result)
		}
		if !result.Passed {
			logger.Error("preflight_failed")
			return 1
		}
	}

	payload, err := loadStdin(cfg.StdinFile, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading stdin payload: %v\n", err)
		return 1
	}

	// Metrics
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version: version,
		Command: runner.Name(),
		Policy:  string(policy),
	}, registry)

	var server *metrics.Server
	if cfg.MetricsAddr != "" {
		server = metrics.NewServer(cfg.MetricsAddr, registry, logger)
		if err := server.Start(); err != nil {
			logger.Error("metrics_server_failed", "addr", cfg.MetricsAddr, "error", err)
			return 1
		}
		defer shutdownServer(server, logger)
	}

	recorder := stats.NewRecorder()
	cmdConfig.Hooks = collector.Hooks(process.Hooks{
		OnDrain: func(_ string, stream process.Stream, n int) {
			recorder.RecordDrain(stream.String(), n)
		},
	})

	// Child stderr either passes through or becomes log records
	childStderr := stderr
	var stderrHandler *logging.OutputHandler
	if !cfg.PassthroughStderr {
		stderrHandler = logging.NewOutputHandler("stderr", logger, cfg.Verbose)
		childStderr = stderrHandler
	}

	sup := supervisor.New(supervisor.Config{
		Runner:  runner,
		Backoff: supervisor.NewBackoff(time.Now().UnixNano(), supervisor.BackoffConfig{
			Initial:    cfg.BackoffInitial,
			Max:        cfg.BackoffMax,
			Multiplier: cfg.BackoffMultiply,
			JitterPct:  cfg.BackoffJitter,
		}),
		Logger:       logger,
		Policy:       policy,
		MaxRestarts:  cfg.MaxRestarts,
		Timeout:      cfg.Timeout,
		PollInterval: cfg.PollInterval,
		PollSlice:    cfg.PollSlice,
		GracefulStop: cfg.GracefulStop,
		Stdin:        payload,
		Stdout:       stdout,
		Stderr:       childStderr,
		Callbacks: supervisor.Callbacks{
			OnStateChange: func(_, newState supervisor.State) {
				if server != nil {
					server.SetReady(newState == supervisor.StateRunning)
				}
			},
			OnExit: func(attempt int, r supervisor.Result) {
				collector.RecordAttemptEnd(r.TimedOut)
				recorder.Record(stats.Sample{
					Attempt:     attempt,
					ExitCode:    r.ExitCode,
					Kind:        r.Termination.Kind.String(),
					Duration:    r.Uptime,
					TimedOut:    r.TimedOut,
					SpawnFailed: errors.Is(r.Err, process.ErrSpawn),
				})
			},
			OnRestart: func(_ int, delay time.Duration) {
				collector.RecordRestart(delay)
				recorder.RecordRestart()
			},
		},
	})

	logger.Info("starting",
		"version", version,
		"command", runner.CommandString(),
		"policy", string(policy),
		"max_restarts", cfg.MaxRestarts,
		"timeout", cfg.Timeout,
		"metrics_addr", cfg.MetricsAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := sup.Run(ctx)
	if stderrHandler != nil {
		stderrHandler.Flush()
	}

	summary := recorder.Summary()
	if cfg.Summary {
		sc := stats.SummaryConfig{
			Command:     runner.CommandString(),
			Policy:      string(policy),
			MetricsAddr: cfg.MetricsAddr,
			MetricsDump: cfg.MetricsDump,
			Err:         runErr,
		}
		if stderrHandler != nil {
			sc.RecentStderr = stderrHandler.RecentLines(logging.MaxBufferedLines)
			sc.ErrorCounts = stderrHandler.CountErrors()
		}
		fmt.Fprint(stderr, stats.FormatSummary(summary, sc))
	}

	if cfg.MetricsDump != "" {
		if err := metrics.WriteFile(cfg.MetricsDump, registry); err != nil {
			logger.Error("metrics_dump_failed", "path", cfg.MetricsDump, "error", err)
		}
	}

	return exitStatus(summary, runErr, logger)
}

// exitStatus mirrors the last attempt's status. A run that never reached
// an attempt exits 1.
func exitStatus(summary stats.Summary, runErr error, logger *slog.Logger) int {
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Warn("run_finished", "error", runErr, "attempts", summary.Attempts)
	}
	if summary.Attempts == 0 {
		if runErr != nil {
			return 1
		}
		return 0
	}
	return summary.Last.ExitCode
}

// loadStdin reads the payload written to every attempt's stdin. "-" reads
// procrun's own stdin once, before the first attempt.
func loadStdin(path string, stdin io.Reader) ([]byte, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(path)
	}
}

func shutdownServer(server *metrics.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("metrics_server_shutdown_failed", "error", err)
	}
}
