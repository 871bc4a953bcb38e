package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// envList is a custom flag type for repeatable -env flags.
type envList []string

func (e *envList) String() string {
	return strings.Join(*e, ", ")
}

func (e *envList) Set(value string) error {
	if !strings.Contains(value, "=") {
		return fmt.Errorf("%q is not KEY=VALUE", value)
	}
	*e = append(*e, value)
	return nil
}

// ErrHelp is returned by ParseFlags when -h or -help was given.
var ErrHelp = flag.ErrHelp

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config. Everything after the first positional argument belongs
// to the child command, so its flags are never parsed by procrun.
func ParseFlags(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	var env envList

	fs := flag.NewFlagSet("procrun", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		fmt.Fprintf(output, `procrun - run and supervise one external program

Usage:
  procrun [flags] <command> [args...]

Command Flags:
`)
		printFlagCategory(fs, output, []string{"env", "capture", "stdin"})

		fmt.Fprintf(output, "\nWaiting:\n")
		printFlagCategory(fs, output, []string{"timeout", "poll", "poll-slice", "read-grace", "graceful-stop"})

		fmt.Fprintf(output, "\nRestart Policy:\n")
		printFlagCategory(fs, output, []string{"restart", "max-restarts", "backoff-initial", "backoff-max", "backoff-multiply", "backoff-jitter"})

		fmt.Fprintf(output, "\nSafety & Diagnostics:\n")
		printFlagCategory(fs, output, []string{"print-cmd", "check", "skip-preflight"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"metrics", "metrics-dump", "v", "log-format", "log-level", "passthrough-stderr", "summary"})

		fmt.Fprintf(output, `
Flag Convention:
  Single-dash flags (-timeout, -restart) are normal options.
  Double-dash flags (--check, --print-cmd) are diagnostic modes.

Examples:
  # Run once and print its output
  procrun -- ls -l /tmp

  # Keep a worker alive, restarting on failure at most 5 times
  procrun -restart on-failure -max-restarts 5 ./worker -queue jobs

  # Feed a file to stdin and give up after 30 seconds
  procrun -stdin input.json -timeout 30s jq .items

`)
	}

	// Command
	fs.Var(&env, "env", "Set an environment variable for the child, KEY=VALUE (can repeat)")
	fs.StringVar(&cfg.Capture, "capture", cfg.Capture, `Streams to capture: "none" or a list of "out", "err", "in"`)
	fs.StringVar(&cfg.StdinFile, "stdin", cfg.StdinFile, `File written to the child's stdin ("-" for procrun's own stdin)`)

	// Waiting
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Kill an attempt that runs longer than this (0 = no limit)")
	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "Interval between exit status checks")
	fs.DurationVar(&cfg.PollSlice, "poll-slice", cfg.PollSlice, "Longest wait between output flushes and signal checks")
	fs.DurationVar(&cfg.ReadGrace, "read-grace", cfg.ReadGrace, "Time to let a fresh child produce output before a read")
	fs.BoolVar(&cfg.GracefulStop, "graceful-stop", cfg.GracefulStop, "Send SIGINT instead of SIGKILL when procrun is stopped (waits for the child to exit)")

	// Restart policy
	fs.StringVar(&cfg.RestartPolicy, "restart", cfg.RestartPolicy, `Restart policy: "never", "on-failure" or "always"`)
	fs.IntVar(&cfg.MaxRestarts, "max-restarts", cfg.MaxRestarts, "Maximum restarts (0 = unlimited)")
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "First restart delay")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum restart delay")
	fs.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Restart delay growth factor")
	fs.Float64Var(&cfg.BackoffJitter, "backoff-jitter", cfg.BackoffJitter, "Jitter width as a fraction of the delay")

	// Safety & Diagnostics (double-dash convention)
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the command line and exit")
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Run once with verbose logging and a 10s timeout")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.StringVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, "Write metrics in text format to this file at exit")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)
	fs.BoolVar(&cfg.PassthroughStderr, "passthrough-stderr", cfg.PassthroughStderr, "Copy the child's stderr to procrun's stderr instead of logging it")
	fs.BoolVar(&cfg.Summary, "summary", cfg.Summary, "Print a run summary at exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Env = env

	// Positional arguments: command and its arguments
	rest := fs.Args()
	if len(rest) >= 1 {
		cfg.Command = rest[0]
		cfg.Args = append([]string(nil), rest[1:]...)
	}

	return cfg, nil
}

// IsHelp reports whether err came from -h or -help.
func IsHelp(err error) bool {
	return errors.Is(err, ErrHelp)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
