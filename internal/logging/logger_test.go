package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// =============================================================================
// Logger
// =============================================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"Error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// decodeRecord parses the single JSON record in buf.
func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log output is not one JSON record: %v\n%s", err, buf.String())
	}
	return rec
}

func TestNew_RunAttributes(t *testing.T) {
	tests := []struct {
		name        string
		opts        Options
		wantRunID   any
		wantProgram any
	}{
		{"both", Options{RunID: "3f1c", Program: "worker"}, "3f1c", "worker"},
		{"run id only", Options{RunID: "3f1c"}, "3f1c", nil},
		{"none", Options{}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(&buf, tt.opts).Info("process_started", "attempt", 0, "pid", 4242)

			rec := decodeRecord(t, &buf)
			if rec["msg"] != "process_started" {
				t.Errorf("msg = %v", rec["msg"])
			}
			if rec["run_id"] != tt.wantRunID {
				t.Errorf("run_id = %v, want %v", rec["run_id"], tt.wantRunID)
			}
			if rec["program"] != tt.wantProgram {
				t.Errorf("program = %v, want %v", rec["program"], tt.wantProgram)
			}
			if rec["pid"] != float64(4242) {
				t.Errorf("pid = %v, want 4242", rec["pid"])
			}
		})
	}
}

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"restart_scheduled"`},
		{"JSON", `"msg":"restart_scheduled"`},
		{"", `"msg":"restart_scheduled"`},
		{"unknown", `"msg":"restart_scheduled"`},
		{"text", "msg=restart_scheduled"},
		{"TEXT", "msg=restart_scheduled"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			New(&buf, Options{Format: tt.format, RunID: "r1"}).Info("restart_scheduled", "delay", "250ms")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"info default", Options{}, false, true, true},
		{"debug", Options{Level: "debug"}, true, true, true},
		{"warn", Options{Level: "warn"}, false, false, true},
		{"error", Options{Level: "error"}, false, false, false},
		{"unknown level is info", Options{Level: "trace"}, false, true, true},
		{"verbose overrides level", Options{Level: "error", Verbose: true}, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, tt.opts)
			logger.Debug("wait_timeout")
			logger.Info("process_exited")
			logger.Warn("max_restarts_reached")

			out := buf.String()
			if got := strings.Contains(out, "wait_timeout"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(out, "process_exited"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v", got, tt.wantInfo)
			}
			if got := strings.Contains(out, "max_restarts_reached"); got != tt.wantWarn {
				t.Errorf("warn logged = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestNew_VerboseAddsSource(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{Verbose: true}).Debug("process_spawned")

	if _, ok := decodeRecord(t, &buf)["source"]; !ok {
		t.Error("verbose record lacks source location")
	}

	buf.Reset()
	New(&buf, Options{}).Info("process_spawned")
	if _, ok := decodeRecord(t, &buf)["source"]; ok {
		t.Error("non-verbose record has source location")
	}
}

func TestNew_NilWriter(t *testing.T) {
	logger := New(nil, Options{Level: "debug"})
	if logger == nil {
		t.Fatal("New(nil) returned nil")
	}
	logger.Info("discarded")
}

func TestSetDefault(t *testing.T) {
	orig := slog.Default()
	defer slog.SetDefault(orig)

	var buf bytes.Buffer
	SetDefault(New(&buf, Options{RunID: "r2"}))
	slog.Info("from_default")

	if rec := decodeRecord(t, &buf); rec["run_id"] != "r2" {
		t.Errorf("default logger run_id = %v", rec["run_id"])
	}
}

// =============================================================================
// OutputHandler
// =============================================================================

func newTestHandler(verbose bool) (*OutputHandler, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Format: FormatText, Level: "debug"})
	return NewOutputHandler("stderr", logger, verbose), &buf
}

func TestNewOutputHandler(t *testing.T) {
	h, _ := newTestHandler(false)
	if h.stream != "stderr" {
		t.Errorf("stream = %q, want stderr", h.stream)
	}
	if len(h.buffer) != MaxBufferedLines {
		t.Errorf("buffer length = %d, want %d", len(h.buffer), MaxBufferedLines)
	}
	if h.Lines() != 0 {
		t.Errorf("Lines() = %d, want 0", h.Lines())
	}
}

func TestOutputHandler_HandleLine(t *testing.T) {
	h, buf := newTestHandler(true)

	h.HandleLine("test line")

	lines := h.RecentLines(1)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	if lines[0] != "test line" {
		t.Errorf("Line = %q, want %q", lines[0], "test line")
	}
	if !strings.Contains(buf.String(), "stream=stderr") {
		t.Errorf("record lacks stream attribute: %s", buf.String())
	}
}

func TestOutputHandler_HandleLine_Truncation(t *testing.T) {
	h, _ := newTestHandler(true)

	h.HandleLine(strings.Repeat("x", MaxLineLength+100))

	lines := h.RecentLines(1)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	if len(lines[0]) != MaxLineLength+len("...(truncated)") {
		t.Errorf("truncated length = %d", len(lines[0]))
	}
	if !strings.HasSuffix(lines[0], "...(truncated)") {
		t.Error("Truncated line should end with '...(truncated)'")
	}
}

func TestOutputHandler_Write(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		want   []string
	}{
		{"single line", []string{"one\n"}, []string{"one"}},
		{"several lines", []string{"a\nb\nc\n"}, []string{"a", "b", "c"}},
		{"split across writes", []string{"hel", "lo\nwor", "ld\n"}, []string{"hello", "world"}},
		{"crlf", []string{"dos\r\n"}, []string{"dos"}},
		{"partial held", []string{"done\npending"}, []string{"done"}},
		{"empty write", []string{""}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(true)
			for _, w := range tt.writes {
				n, err := h.Write([]byte(w))
				if err != nil || n != len(w) {
					t.Fatalf("Write(%q) = %d, %v", w, n, err)
				}
			}
			got := h.RecentLines(MaxBufferedLines)
			if len(got) != len(tt.want) {
				t.Fatalf("lines = %q, want %q", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("lines[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestOutputHandler_Flush(t *testing.T) {
	h, _ := newTestHandler(true)

	_, _ = h.Write([]byte("no newline"))
	if h.Lines() != 0 {
		t.Fatalf("partial line handled before Flush")
	}

	h.Flush()
	lines := h.RecentLines(1)
	if len(lines) != 1 || lines[0] != "no newline" {
		t.Errorf("after Flush lines = %q", lines)
	}

	h.Flush()
	if h.Lines() != 1 {
		t.Errorf("second Flush handled %d lines, want 1 total", h.Lines())
	}
}

func TestOutputHandler_Write_LongPartial(t *testing.T) {
	h, _ := newTestHandler(true)

	_, _ = h.Write([]byte(strings.Repeat("y", MaxLineLength+1)))
	if h.Lines() != 1 {
		t.Errorf("Lines() = %d, want an oversized partial to be handled", h.Lines())
	}
}

func TestOutputHandler_CircularBuffer(t *testing.T) {
	h, _ := newTestHandler(false)

	for i := 0; i < MaxBufferedLines+50; i++ {
		h.HandleLine(strings.Repeat("x", i+1))
	}

	lines := h.RecentLines(MaxBufferedLines + 10)
	if len(lines) != MaxBufferedLines {
		t.Errorf("Got %d lines, want %d", len(lines), MaxBufferedLines)
	}
	if h.Lines() != MaxBufferedLines+50 {
		t.Errorf("Lines() = %d, want %d", h.Lines(), MaxBufferedLines+50)
	}
}

func TestOutputHandler_RecentLines(t *testing.T) {
	h, _ := newTestHandler(false)

	for i := 0; i < 5; i++ {
		h.HandleLine("line" + string(rune('0'+i)))
	}

	lines := h.RecentLines(3)
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "line2" || lines[1] != "line3" || lines[2] != "line4" {
		t.Errorf("Unexpected lines: %v", lines)
	}

	if got := h.RecentLines(10); len(got) != 5 {
		t.Errorf("RecentLines(10) = %d lines, want 5", len(got))
	}
}

func TestOutputHandler_ClassifyLine(t *testing.T) {
	h, _ := newTestHandler(true)

	testCases := []struct {
		line     string
		expected slog.Level
	}{
		{"ERROR: disk full", slog.LevelWarn},
		{"open config: failed", slog.LevelWarn},
		{"panic: runtime error", slog.LevelWarn},
		{"fatal: not a git repository", slog.LevelWarn},
		{"warning: deprecated flag", slog.LevelWarn},
		{"permission denied", slog.LevelWarn},
		{"dial tcp: connection refused", slog.LevelWarn},
		{"listening on :8080", slog.LevelDebug},
		{"progress 42%", slog.LevelDebug},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			if level := h.classifyLine(tc.line); level != tc.expected {
				t.Errorf("classifyLine(%q) = %v, want %v", tc.line, level, tc.expected)
			}
		})
	}
}

func TestOutputHandler_CountErrors(t *testing.T) {
	h, _ := newTestHandler(false)

	h.HandleLine("Connection refused")
	h.HandleLine("connection refused again")
	h.HandleLine("open /etc/x: no such file or directory")
	h.HandleLine("normal line")
	h.HandleLine("Timeout occurred")

	counts := h.CountErrors()

	if counts["connection refused"] != 2 {
		t.Errorf("connection refused count = %d, want 2", counts["connection refused"])
	}
	if counts["no such file"] != 1 {
		t.Errorf("no such file count = %d, want 1", counts["no such file"])
	}
	if counts["timeout"] != 1 {
		t.Errorf("timeout count = %d, want 1", counts["timeout"])
	}
	if _, ok := counts["panic"]; ok {
		t.Error("unmatched pattern present in counts")
	}
}

func TestOutputHandler_CountErrors_Empty(t *testing.T) {
	h, _ := newTestHandler(false)

	if counts := h.CountErrors(); len(counts) != 0 {
		t.Errorf("Expected empty counts, got %v", counts)
	}
}

func TestOutputHandler_VerboseLogging(t *testing.T) {
	t.Run("verbose_true", func(t *testing.T) {
		h, buf := newTestHandler(true)
		h.HandleLine("debug line")
		if !strings.Contains(buf.String(), "debug line") {
			t.Error("Verbose mode should log debug lines")
		}
	})

	t.Run("verbose_false", func(t *testing.T) {
		h, buf := newTestHandler(false)
		h.HandleLine("debug line")
		if strings.Contains(buf.String(), "debug line") {
			t.Error("Non-verbose mode should not log debug lines")
		}
	})

	t.Run("verbose_false_logs_errors", func(t *testing.T) {
		h, buf := newTestHandler(false)
		h.HandleLine("error: something failed")
		if !strings.Contains(buf.String(), "something failed") {
			t.Error("Non-verbose mode should still log errors")
		}
	})
}

func TestOutputHandler_Concurrent(t *testing.T) {
	h, _ := newTestHandler(false)

	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			_, _ = h.Write([]byte("concurrent line\n"))
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = h.RecentLines(10)
			_ = h.CountErrors()
		}
		done <- true
	}()

	<-done
	<-done

	if h.Lines() != 100 {
		t.Errorf("Lines() = %d, want 100", h.Lines())
	}
}
