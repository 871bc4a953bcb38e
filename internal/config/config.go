// Package config provides configuration management for procrun.
package config

import "time"

// Config holds all configuration options for one procrun invocation.
type Config struct {
	// Command
	Command   string   `json:"command"`
	Args      []string `json:"args"`
	Env       []string `json:"env"`        // KEY=VALUE overrides
	Capture   string   `json:"capture"`    // none, or a comma list of out, err, in
	StdinFile string   `json:"stdin_file"` // "-" reads procrun's own stdin

	// Waiting
	Timeout      time.Duration `json:"timeout"` // 0 = no limit per attempt
	PollInterval time.Duration `json:"poll_interval"`
	PollSlice    time.Duration `json:"poll_slice"`
	ReadGrace    time.Duration `json:"read_grace"`
	GracefulStop bool          `json:"graceful_stop"`

	// Restart policy
	RestartPolicy   string        `json:"restart_policy"` // never, on-failure, always
	MaxRestarts     int           `json:"max_restarts"`   // 0 = unlimited
	BackoffInitial  time.Duration `json:"backoff_initial"`
	BackoffMax      time.Duration `json:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply"`
	BackoffJitter   float64       `json:"backoff_jitter"`

	// Observability
	MetricsAddr       string `json:"metrics_addr"` // "" = no server
	MetricsDump       string `json:"metrics_dump"` // file written at exit
	Verbose           bool   `json:"verbose"`
	LogFormat         string `json:"log_format"` // json, text
	LogLevel          string `json:"log_level"`
	PassthroughStderr bool   `json:"passthrough_stderr"`
	Summary           bool   `json:"summary"`

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	Check         bool `json:"check"`
	SkipPreflight bool `json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Command
		Capture: "out,err,in",

		// Waiting
		Timeout:      0,
		PollInterval: 100 * time.Millisecond,
		PollSlice:    time.Second,
		ReadGrace:    100 * time.Millisecond,

		// Restart policy
		RestartPolicy:   "never",
		MaxRestarts:     0,
		BackoffInitial:  250 * time.Millisecond,
		BackoffMax:      5 * time.Second,
		BackoffMultiply: 1.7,
		BackoffJitter:   0.4,

		// Observability
		LogFormat: "json",
		LogLevel:  "info",
		Summary:   true,
	}
}

// CheckDuration bounds a -check run.
const CheckDuration = 10 * time.Second
