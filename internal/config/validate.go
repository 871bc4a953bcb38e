package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/randomizedcoder/go-procrun/internal/logging"
	"github.com/randomizedcoder/go-procrun/internal/process"
	"github.com/randomizedcoder/go-procrun/internal/supervisor"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error joining every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Command == "" {
		errs = append(errs, ValidationError{
			Field:   "command",
			Message: "a command to run is required",
		})
	}

	for _, kv := range cfg.Env {
		if name, _, ok := strings.Cut(kv, "="); !ok || name == "" {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: fmt.Sprintf("must be KEY=VALUE (got %q)", kv),
			})
		}
	}

	capture, err := process.ParseCapture(cfg.Capture)
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   "capture",
			Message: err.Error(),
		})
	} else if cfg.StdinFile != "" && !capture.Has(process.CaptureIn) {
		errs = append(errs, ValidationError{
			Field:   "stdin",
			Message: "requires \"in\" in -capture",
		})
	}

	// Timeout may be zero (no limit) but not negative
	if cfg.Timeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "must not be negative",
		})
	}

	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: "must be positive",
		})
	}
	if cfg.PollSlice < cfg.PollInterval {
		errs = append(errs, ValidationError{
			Field:   "poll_slice",
			Message: fmt.Sprintf("must be >= poll_interval (%v), got %v", cfg.PollInterval, cfg.PollSlice),
		})
	}
	if cfg.ReadGrace < 0 {
		errs = append(errs, ValidationError{
			Field:   "read_grace",
			Message: "must not be negative",
		})
	}

	if _, err := supervisor.ParseRestartPolicy(cfg.RestartPolicy); err != nil {
		errs = append(errs, ValidationError{
			Field:   "restart_policy",
			Message: err.Error(),
		})
	}
	if cfg.MaxRestarts < 0 {
		errs = append(errs, ValidationError{
			Field:   "max_restarts",
			Message: "must not be negative",
		})
	}

	// Backoff settings
	if cfg.BackoffInitial <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_initial",
			Message: "must be positive",
		})
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be >= backoff_initial",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}
	if cfg.BackoffJitter < 0 || cfg.BackoffJitter > 1 {
		errs = append(errs, ValidationError{
			Field:   "backoff_jitter",
			Message: fmt.Sprintf("must be between 0 and 1 (got %v)", cfg.BackoffJitter),
		})
	}

	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	// Log format must be valid
	if cfg.LogFormat != logging.FormatJSON && cfg.LogFormat != logging.FormatText {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.LogLevel),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateAddr checks a host:port listen address.
func validateAddr(addr string) error {
	if strings.Contains(addr, "://") {
		return errors.New("must be host:port, not a URL")
	}
	if _, port, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	} else if port == "" {
		return errors.New("port must not be empty")
	}
	return nil
}

// ApplyCheckMode modifies config for --check mode: a single verbose
// attempt bounded by CheckDuration.
func ApplyCheckMode(cfg *Config) {
	cfg.RestartPolicy = "never"
	cfg.MaxRestarts = 0
	if cfg.Timeout == 0 || cfg.Timeout > CheckDuration {
		cfg.Timeout = CheckDuration
	}
	cfg.Verbose = true
}
