package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SummaryConfig holds everything the exit summary shows besides the
// recorded samples.
type SummaryConfig struct {
	// Command is the rendered command line
	Command string

	// Policy is the restart policy in effect
	Policy string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// MetricsDump is the file the metrics were written to
	MetricsDump string

	// RecentStderr holds the last lines the child wrote to stderr
	RecentStderr []string

	// ErrorCounts maps error patterns to occurrences in RecentStderr
	ErrorCounts map[string]int

	// Err is the error Run returned, if any
	Err error
}

// maxStderrLines caps the stderr tail in the summary.
const maxStderrLines = 10

// FormatSummary renders the exit summary.
func FormatSummary(s Summary, cfg SummaryConfig) string {
	var sections []string

	sections = append(sections, titleStyle.Render("procrun exit summary"))

	// Run info
	rows := []string{
		row("Command", valueStyle.Render(cfg.Command)),
		row("Restart Policy", valueStyle.Render(orDash(cfg.Policy))),
		row("Wall Time", valueStyle.Render(FormatDuration(s.Elapsed))),
		row("Result", resultValue(s, cfg.Err)),
	}
	sections = append(sections, rows...)

	// Attempts
	sections = append(sections, sectionHeaderStyle.Render("Attempts"))
	sections = append(sections,
		row("Attempts", valueStyle.Render(fmt.Sprintf("%d", s.Attempts))),
		row("Restarts", valueStyle.Render(fmt.Sprintf("%d", s.Restarts))),
	)
	if s.SpawnFailures > 0 {
		sections = append(sections, row("Spawn Failures", valueBadStyle.Render(fmt.Sprintf("%d", s.SpawnFailures))))
	}
	if s.Timeouts > 0 {
		sections = append(sections, row("Timed Out", valueWarnStyle.Render(fmt.Sprintf("%d", s.Timeouts))))
	}
	if s.Signaled > 0 {
		sections = append(sections, row("Killed by Signal", valueWarnStyle.Render(fmt.Sprintf("%d", s.Signaled))))
	}

	// Run durations
	if s.RunMax > 0 {
		sections = append(sections, sectionHeaderStyle.Render("Run Duration"))
		sections = append(sections,
			row("P50 (median)", valueStyle.Render(FormatMs(s.RunP50))),
			row("P95", valueStyle.Render(FormatMs(s.RunP95))),
			row("P99", valueStyle.Render(FormatMs(s.RunP99))),
			row("Max", valueStyle.Render(FormatMs(s.RunMax))),
		)
	}

	// Output
	if s.StdoutBytes > 0 || s.StderrBytes > 0 {
		sections = append(sections, sectionHeaderStyle.Render("Output"))
		sections = append(sections,
			row("Stdout", valueStyle.Render(FormatBytes(s.StdoutBytes))),
			row("Stderr", valueStyle.Render(FormatBytes(s.StderrBytes))),
		)
	}

	// Exit codes
	if len(s.ExitCodes) > 0 {
		sections = append(sections, sectionHeaderStyle.Render("Exit Codes"))

		codes := make([]int, 0, len(s.ExitCodes))
		for code := range s.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			label := fmt.Sprintf("%3d %s", code, exitCodeLabel(code))
			sections = append(sections, row(label, valueStyle.Render(fmt.Sprintf("%d", s.ExitCodes[code]))))
		}
	}

	// Stderr tail
	if len(cfg.RecentStderr) > 0 {
		sections = append(sections, sectionHeaderStyle.Render("Last Stderr Lines"))
		tail := cfg.RecentStderr
		if len(tail) > maxStderrLines {
			tail = tail[len(tail)-maxStderrLines:]
		}
		for _, line := range tail {
			sections = append(sections, dimStyle.Render("  "+line))
		}
	}

	if len(cfg.ErrorCounts) > 0 {
		patterns := make([]string, 0, len(cfg.ErrorCounts))
		for p := range cfg.ErrorCounts {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)

		parts := make([]string, 0, len(patterns))
		for _, p := range patterns {
			parts = append(parts, fmt.Sprintf("%s=%d", p, cfg.ErrorCounts[p]))
		}
		sections = append(sections, row("Error Patterns", valueWarnStyle.Render(strings.Join(parts, " "))))
	}

	// Footer
	var footer []string
	if cfg.MetricsAddr != "" {
		footer = append(footer, fmt.Sprintf("Metrics endpoint was: http://%s/metrics", cfg.MetricsAddr))
	}
	if cfg.MetricsDump != "" {
		footer = append(footer, fmt.Sprintf("Metrics written to: %s", cfg.MetricsDump))
	}
	if len(footer) > 0 {
		sections = append(sections, "", dimStyle.Render(strings.Join(footer, "\n")))
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...)) + "\n"
}

// row renders a label/value pair.
func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label+":"), value)
}

// resultValue colors the outcome of the last attempt.
func resultValue(s Summary, err error) string {
	if s.Attempts == 0 {
		if err != nil {
			return valueBadStyle.Render(err.Error())
		}
		return valueWarnStyle.Render("never started")
	}

	text := fmt.Sprintf("exit %d %s", s.Last.ExitCode, exitCodeLabel(s.Last.ExitCode))
	text = strings.TrimSpace(text)
	if err != nil {
		text += " (" + err.Error() + ")"
	}
	if s.Last.ExitCode == 0 && err == nil {
		return valueGoodStyle.Render(text)
	}
	return valueBadStyle.Render(text)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 126:
		return "(not executable)"
	case 127:
		return "(not started)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
