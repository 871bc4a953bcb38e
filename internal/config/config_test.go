package config

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"
)

// validConfig returns the defaults plus a command.
func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Command = "true"
	return cfg
}

// Test envList type
func TestEnvList_String(t *testing.T) {
	testCases := []struct {
		input    envList
		expected string
	}{
		{envList{}, ""},
		{envList{"A=1"}, "A=1"},
		{envList{"A=1", "B=2"}, "A=1, B=2"},
	}

	for _, tc := range testCases {
		result := tc.input.String()
		if result != tc.expected {
			t.Errorf("String() = %q, want %q", result, tc.expected)
		}
	}
}

func TestEnvList_Set(t *testing.T) {
	var e envList

	if err := e.Set("A=1"); err != nil {
		t.Errorf("Set returned error: %v", err)
	}
	if err := e.Set("B="); err != nil {
		t.Errorf("Set with empty value returned error: %v", err)
	}
	if len(e) != 2 || e[0] != "A=1" || e[1] != "B=" {
		t.Errorf("after Set: %v", e)
	}

	if err := e.Set("NOEQUALS"); err == nil {
		t.Error("Set without '=' should fail")
	}
	if len(e) != 2 {
		t.Errorf("rejected value was appended: %v", e)
	}
}

func TestFlagType(t *testing.T) {
	testCases := []struct {
		name     string
		defValue string
		expected string
	}{
		{"bool true", "true", ""},
		{"bool false", "false", ""},
		{"int", "42", "int"},
		{"string", "hello", "string"},
		{"duration seconds", "5s", "duration"},
		{"duration millis", "100ms", "duration"},
		{"duration hours", "1h", "duration"},
		{"float", "1.7", "int"}, // Sscanf parses "1" then stops at decimal
		{"empty", "", "string"},
		{"capture list", "out,err,in", "string"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &flag.Flag{
				Name:     "test",
				DefValue: tc.defValue,
			}
			result := flagType(f)
			if result != tc.expected {
				t.Errorf("flagType(%q) = %q, want %q", tc.defValue, result, tc.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capture != "out,err,in" {
		t.Errorf("Capture = %q, want out,err,in", cfg.Capture)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", cfg.PollInterval)
	}
	if cfg.ReadGrace != 100*time.Millisecond {
		t.Errorf("ReadGrace = %v, want 100ms", cfg.ReadGrace)
	}
	if cfg.RestartPolicy != "never" {
		t.Errorf("RestartPolicy = %q, want never", cfg.RestartPolicy)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want disabled", cfg.MetricsAddr)
	}
	if cfg.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", cfg.Timeout)
	}
	if cfg.BackoffMultiply < 1.0 {
		t.Errorf("BackoffMultiply = %f, should be >= 1.0", cfg.BackoffMultiply)
	}
	if err := Validate(validConfig()); err != nil {
		t.Errorf("defaults plus a command should validate: %v", err)
	}
}

// =============================================================================
// ParseFlags
// =============================================================================

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "command only",
			args: []string{"ls"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Command != "ls" || len(cfg.Args) != 0 {
					t.Errorf("command = %q args = %v", cfg.Command, cfg.Args)
				}
			},
		},
		{
			name: "child flags are not parsed",
			args: []string{"-timeout", "5s", "ls", "-l", "-timeout", "x"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Timeout != 5*time.Second {
					t.Errorf("Timeout = %v", cfg.Timeout)
				}
				want := []string{"-l", "-timeout", "x"}
				if strings.Join(cfg.Args, " ") != strings.Join(want, " ") {
					t.Errorf("Args = %v, want %v", cfg.Args, want)
				}
			},
		},
		{
			name: "double dash separator",
			args: []string{"--", "-weird-binary", "a"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Command != "-weird-binary" {
					t.Errorf("Command = %q", cfg.Command)
				}
			},
		},
		{
			name: "repeatable env",
			args: []string{"-env", "A=1", "-env", "B=two words", "env"},
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.Env) != 2 || cfg.Env[1] != "B=two words" {
					t.Errorf("Env = %v", cfg.Env)
				}
			},
		},
		{
			name: "restart settings",
			args: []string{"-restart", "on-failure", "-max-restarts", "3", "-backoff-initial", "1s", "--graceful-stop", "worker"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.RestartPolicy != "on-failure" || cfg.MaxRestarts != 3 {
					t.Errorf("policy = %q max = %d", cfg.RestartPolicy, cfg.MaxRestarts)
				}
				if cfg.BackoffInitial != time.Second {
					t.Errorf("BackoffInitial = %v", cfg.BackoffInitial)
				}
				if !cfg.GracefulStop {
					t.Error("GracefulStop = false")
				}
			},
		},
		{
			name: "diagnostic modes",
			args: []string{"--check", "--print-cmd", "--skip-preflight", "-v", "true"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Check || !cfg.PrintCmd || !cfg.SkipPreflight || !cfg.Verbose {
					t.Errorf("flags not set: %+v", cfg)
				}
			},
		},
		{
			name: "no command",
			args: []string{"-capture", "out"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Command != "" {
					t.Errorf("Command = %q, want empty", cfg.Command)
				}
				if cfg.Capture != "out" {
					t.Errorf("Capture = %q", cfg.Capture)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg, err := ParseFlags(tt.args, &out)
			if err != nil {
				t.Fatalf("ParseFlags(%v) error = %v", tt.args, err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope", "ls"}},
		{"bad duration", []string{"-timeout", "soon", "ls"}},
		{"bad env", []string{"-env", "NOEQUALS", "ls"}},
		{"bad int", []string{"-max-restarts", "many", "ls"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if _, err := ParseFlags(tt.args, &out); err == nil {
				t.Errorf("ParseFlags(%v) should fail", tt.args)
			}
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	var out bytes.Buffer
	_, err := ParseFlags([]string{"-h"}, &out)
	if !IsHelp(err) {
		t.Fatalf("ParseFlags(-h) error = %v, want help", err)
	}

	usage := out.String()
	for _, want := range []string{"Usage:", "Restart Policy:", "-max-restarts", "-passthrough-stderr", "(default never)"} {
		if !strings.Contains(usage, want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate_MissingCommand(t *testing.T) {
	cfg := DefaultConfig()

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for missing command")
	}
	if !strings.Contains(err.Error(), "command") {
		t.Errorf("Error should mention command: %v", err)
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad env", func(c *Config) { c.Env = []string{"=x"} }, "env"},
		{"unknown capture", func(c *Config) { c.Capture = "out,tty" }, "capture"},
		{"empty capture", func(c *Config) { c.Capture = "" }, "capture"},
		{"stdin without in", func(c *Config) { c.Capture = "out"; c.StdinFile = "in.txt" }, "stdin"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"slice below poll", func(c *Config) { c.PollSlice = 10 * time.Millisecond }, "poll_slice"},
		{"negative grace", func(c *Config) { c.ReadGrace = -1 }, "read_grace"},
		{"unknown policy", func(c *Config) { c.RestartPolicy = "sometimes" }, "restart_policy"},
		{"negative restarts", func(c *Config) { c.MaxRestarts = -1 }, "max_restarts"},
		{"zero backoff", func(c *Config) { c.BackoffInitial = 0 }, "backoff_initial"},
		{"max below initial", func(c *Config) { c.BackoffMax = 100 * time.Millisecond }, "backoff_max"},
		{"shrinking backoff", func(c *Config) { c.BackoffMultiply = 0.5 }, "backoff_multiply"},
		{"jitter above one", func(c *Config) { c.BackoffJitter = 1.5 }, "backoff_jitter"},
		{"metrics url", func(c *Config) { c.MetricsAddr = "http://localhost:9100" }, "metrics_addr"},
		{"metrics no port", func(c *Config) { c.MetricsAddr = "localhost" }, "metrics_addr"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %v does not wrap ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q (%v)", ve.Field, tt.field, err)
			}
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"capture none", func(c *Config) { c.Capture = "none" }},
		{"stdin with in", func(c *Config) { c.Capture = "in"; c.StdinFile = "-" }},
		{"metrics addr", func(c *Config) { c.MetricsAddr = "127.0.0.1:17091" }},
		{"metrics any host", func(c *Config) { c.MetricsAddr = ":9100" }},
		{"policy always", func(c *Config) { c.RestartPolicy = "always" }},
		{"no jitter", func(c *Config) { c.BackoffJitter = 0 }},
		{"text warning", func(c *Config) { c.LogFormat = "text"; c.LogLevel = "WARNING" }},
		{"timeout", func(c *Config) { c.Timeout = time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFormat = "xml"
	cfg.BackoffMultiply = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected errors")
	}

	msg := err.Error()
	for _, field := range []string{"command", "log_format", "backoff_multiply"} {
		if !strings.Contains(msg, field) {
			t.Errorf("Error should mention %s: %v", field, msg)
		}
	}
}

func TestApplyCheckMode(t *testing.T) {
	tests := []struct {
		name        string
		timeout     time.Duration
		wantTimeout time.Duration
	}{
		{"no timeout", 0, CheckDuration},
		{"longer timeout", time.Hour, CheckDuration},
		{"shorter timeout", 2 * time.Second, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.RestartPolicy = "always"
			cfg.MaxRestarts = 9
			cfg.Timeout = tt.timeout

			ApplyCheckMode(cfg)

			if cfg.RestartPolicy != "never" || cfg.MaxRestarts != 0 {
				t.Errorf("policy = %q max = %d", cfg.RestartPolicy, cfg.MaxRestarts)
			}
			if cfg.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", cfg.Timeout, tt.wantTimeout)
			}
			if !cfg.Verbose {
				t.Error("Verbose should be true in check mode")
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "timeout", Message: "must not be negative"}
	if got := err.Error(); got != "timeout: must not be negative" {
		t.Errorf("Error() = %q", got)
	}
}
