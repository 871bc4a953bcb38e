package process

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CommandConfig holds configuration for building handles of one program.
type CommandConfig struct {
	// BinaryPath is the program to run, resolved through PATH if it has no slash.
	BinaryPath string

	// Args are passed after argv[0].
	Args []string

	// Env entries ("KEY=VALUE") are applied on top of the environment
	// snapshot of every handle.
	Env []string

	// Capture is the capture policy of every handle.
	Capture Capture

	// ReadGrace overrides DefaultReadGrace. Negative keeps the default.
	ReadGrace time.Duration

	// Logger is attached to every handle, tagged with the attempt number.
	Logger *slog.Logger

	// Hooks are installed on every handle.
	Hooks Hooks
}

// DefaultCommandConfig returns a CommandConfig with sensible defaults.
func DefaultCommandConfig(binary string, args ...string) *CommandConfig {
	return &CommandConfig{
		BinaryPath: binary,
		Args:       args,
		Capture:    DefaultCapture,
		ReadGrace:  -1,
	}
}

// CommandRunner implements Runner for a fixed command line.
type CommandRunner struct {
	config *CommandConfig
}

// NewCommandRunner creates a runner with the given configuration.
func NewCommandRunner(cfg *CommandConfig) *CommandRunner {
	return &CommandRunner{
		config: cfg,
	}
}

// Name returns the base name of the binary.
func (r *CommandRunner) Name() string {
	return filepath.Base(r.config.BinaryPath)
}

// BuildHandle creates an unspawned handle with the configured arguments,
// environment overrides, logger and hooks.
func (r *CommandRunner) BuildHandle(attempt int) (*Handle, error) {
	if r.config.BinaryPath == "" {
		return nil, fmt.Errorf("%w: empty binary path", ErrInvalidArgument)
	}

	h := New(r.config.BinaryPath, r.config.Args, r.config.Capture)

	for _, kv := range r.config.Env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: env entry %q is not KEY=VALUE", ErrInvalidArgument, kv)
		}
		h.SetEnvVar(name, value)
	}

	if r.config.ReadGrace >= 0 {
		h.SetReadGrace(r.config.ReadGrace)
	}
	if r.config.Logger != nil {
		h.SetLogger(r.config.Logger.With("attempt", attempt))
	}
	h.SetHooks(r.config.Hooks)

	return h, nil
}

// CommandString returns the command line that would be executed, with
// environment overrides in front (for debugging).
func (r *CommandRunner) CommandString() string {
	parts := make([]string, 0, len(r.config.Env)+len(r.config.Args)+1)
	for _, kv := range r.config.Env {
		parts = append(parts, quoteArg(kv))
	}
	parts = append(parts, quoteArg(r.config.BinaryPath))
	for _, a := range r.config.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

// quoteArg quotes an argument only when a shell would split or expand it.
func quoteArg(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\n\"'\\$`*?[]{}()<>|&;#~") {
		return strconv.Quote(s)
	}
	return s
}
