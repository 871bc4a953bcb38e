package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept for the exit summary.
	MaxBufferedLines = 100
)

// OutputHandler turns one captured stream of a child into log records.
// It implements io.Writer so it can be handed to the supervisor as an
// output sink; bytes are split on newlines and a trailing partial line is
// held until the next Write or Flush.
type OutputHandler struct {
	stream  string
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	lines  int

	partial []byte
	mu      sync.Mutex
}

// NewOutputHandler creates a handler for the named stream ("stdout" or "stderr").
func NewOutputHandler(stream string, logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		stream:  stream,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// Write logs every complete line in p. It never fails.
func (h *OutputHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.partial = append(h.partial, p...)
	var complete []string
	for {
		i := bytes.IndexByte(h.partial, '\n')
		if i < 0 {
			break
		}
		complete = append(complete, strings.TrimSuffix(string(h.partial[:i]), "\r"))
		h.partial = h.partial[i+1:]
	}
	if len(h.partial) > MaxLineLength {
		complete = append(complete, string(h.partial))
		h.partial = nil
	}
	h.mu.Unlock()

	for _, line := range complete {
		h.HandleLine(line)
	}
	return len(p), nil
}

// Flush handles a pending partial line, if any.
func (h *OutputHandler) Flush() {
	h.mu.Lock()
	rest := h.partial
	h.partial = nil
	h.mu.Unlock()

	if len(rest) > 0 {
		h.HandleLine(string(rest))
	}
}

// HandleLine processes a single line of output.
func (h *OutputHandler) HandleLine(line string) {
	// Truncate if too long
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.lines++
	h.mu.Unlock()

	h.logLine(line)
}

// logLine logs the line at a level chosen from its content.
func (h *OutputHandler) logLine(line string) {
	level := h.classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(context.Background(), level, "process_output",
		"stream", h.stream,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func (h *OutputHandler) classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "panic") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") {
		return slog.LevelWarn
	}

	if strings.Contains(lower, "warn") ||
		strings.Contains(lower, "denied") ||
		strings.Contains(lower, "refused") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// Lines returns the total number of lines handled.
func (h *OutputHandler) Lines() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lines
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)

	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}

// ErrorPatterns are matched case-insensitively against buffered lines for
// the exit summary.
var ErrorPatterns = []string{
	"error",
	"fatal",
	"panic",
	"permission denied",
	"no such file",
	"connection refused",
	"timeout",
	"killed",
}

// CountErrors counts occurrences of error patterns in the buffer.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)

	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, pattern := range ErrorPatterns {
			if strings.Contains(lower, pattern) {
				counts[pattern]++
			}
		}
	}

	return counts
}
