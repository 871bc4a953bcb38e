package process

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestDefaultCommandConfig(t *testing.T) {
	cfg := DefaultCommandConfig("/usr/bin/env", "-i")

	if cfg.BinaryPath != "/usr/bin/env" {
		t.Errorf("BinaryPath = %q", cfg.BinaryPath)
	}
	if len(cfg.Args) != 1 || cfg.Args[0] != "-i" {
		t.Errorf("Args = %v", cfg.Args)
	}
	if cfg.Capture != DefaultCapture {
		t.Errorf("Capture = %v, want %v", cfg.Capture, DefaultCapture)
	}
	if cfg.ReadGrace >= 0 {
		t.Errorf("ReadGrace = %v, want negative (keep default)", cfg.ReadGrace)
	}
}

func TestCommandRunner_Name(t *testing.T) {
	tests := []struct {
		binary string
		want   string
	}{
		{"sh", "sh"},
		{"/bin/sh", "sh"},
		{"./tools/run.sh", "run.sh"},
	}

	for _, tt := range tests {
		r := NewCommandRunner(DefaultCommandConfig(tt.binary))
		if got := r.Name(); got != tt.want {
			t.Errorf("Name(%q) = %q, want %q", tt.binary, got, tt.want)
		}
	}
}

func TestCommandRunner_BuildHandle(t *testing.T) {
	cfg := DefaultCommandConfig("sh", "-c", "printf %s \"$PROCRUN_GREETING\"")
	cfg.Env = []string{"PROCRUN_GREETING=hi there"}
	cfg.Capture = CaptureOut
	cfg.ReadGrace = 0
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	var spawned int
	cfg.Hooks = Hooks{OnSpawn: func(string, int) { spawned++ }}

	r := NewCommandRunner(cfg)
	h, err := r.BuildHandle(1)
	if err != nil {
		t.Fatalf("BuildHandle() error = %v", err)
	}
	defer h.Close()

	if h.Pid() != 0 {
		t.Error("BuildHandle must not spawn")
	}
	if h.Capture() != CaptureOut {
		t.Errorf("Capture() = %v", h.Capture())
	}
	if h.readGrace != 0 {
		t.Errorf("readGrace = %v, want 0", h.readGrace)
	}
	if v, _ := h.LookupEnv("PROCRUN_GREETING"); v != "hi there" {
		t.Errorf("PROCRUN_GREETING = %q", v)
	}

	requireBinary(t, "sh")
	mustSpawn(t, h)
	if _, err := h.Wait(5*time.Second, 10*time.Millisecond); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := h.ReadAllStandardOutput(); got != "hi there" {
		t.Errorf("stdout = %q, want %q", got, "hi there")
	}
	if spawned != 1 {
		t.Errorf("OnSpawn called %d times, want 1", spawned)
	}
}

func TestCommandRunner_BuildHandle_DefaultGrace(t *testing.T) {
	r := NewCommandRunner(DefaultCommandConfig("true"))
	h, err := r.BuildHandle(0)
	if err != nil {
		t.Fatalf("BuildHandle() error = %v", err)
	}
	if h.readGrace != DefaultReadGrace {
		t.Errorf("readGrace = %v, want %v", h.readGrace, DefaultReadGrace)
	}
}

func TestCommandRunner_BuildHandle_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *CommandConfig
	}{
		{"empty binary", DefaultCommandConfig("")},
		{"env without equals", &CommandConfig{BinaryPath: "true", Env: []string{"NOVALUE"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCommandRunner(tt.cfg).BuildHandle(0)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("BuildHandle() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestCommandRunner_CommandString(t *testing.T) {
	tests := []struct {
		name string
		cfg  *CommandConfig
		want string
	}{
		{
			name: "plain",
			cfg:  DefaultCommandConfig("ls", "-la", "/tmp"),
			want: "ls -la /tmp",
		},
		{
			name: "quoted args",
			cfg:  DefaultCommandConfig("sh", "-c", "echo $HOME", ""),
			want: `sh -c "echo $HOME" ""`,
		},
		{
			name: "env prefix",
			cfg: &CommandConfig{
				BinaryPath: "env",
				Env:        []string{"A=1", "B=two words"},
			},
			want: `A=1 "B=two words" env`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewCommandRunner(tt.cfg).CommandString(); got != tt.want {
				t.Errorf("CommandString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLookPath(t *testing.T) {
	if _, err := LookPath(""); err == nil {
		t.Error("LookPath(\"\") succeeded")
	}
	if _, err := LookPath("/nonexistent/procrun-test-binary"); err == nil {
		t.Error("LookPath of a missing absolute path succeeded")
	}
	requireBinary(t, "sh")
	path, err := LookPath("sh")
	if err != nil || path == "" {
		t.Errorf("LookPath(sh) = %q, %v", path, err)
	}
}
