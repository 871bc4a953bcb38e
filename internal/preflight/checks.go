// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-procrun/internal/process"
)

const (
	// pipeFDs is what one spawn holds at its peak: three pipes, two ends each.
	pipeFDs = 6

	// reserveFDs covers the metrics server, the logger and the dump file.
	reserveFDs = 32

	// requiredProcesses is the child plus room for whatever it forks.
	requiredProcesses = 8

	// maxLimit stands in for an unlimited resource.
	maxLimit = 1 << 30
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks for running command.
func RunAll(command string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 3),
		Passed: true,
	}

	for _, check := range []Check{
		checkCommand(command),
		checkFileDescriptors(),
		checkProcessLimit(),
	} {
		result.Checks = append(result.Checks, check)
		if !check.Passed {
			result.Passed = false
		}
	}

	return result
}

// checkCommand verifies the command resolves the way Spawn will resolve it.
func checkCommand(command string) Check {
	path, err := process.LookPath(command)
	if err != nil {
		return Check{
			Name:    "command",
			Passed:  false,
			Message: err.Error(),
		}
	}
	return Check{
		Name:    "command",
		Passed:  true,
		Message: fmt.Sprintf("%s resolves to %s", command, path),
	}
}

// checkFileDescriptors verifies there is headroom for the pipes of a spawn.
func checkFileDescriptors() Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read RLIMIT_NOFILE: %v", err),
		}
	}

	open := countOpenFDs()
	required := pipeFDs + reserveFDs
	actual := clampLimit(limit.Cur) - open

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d with %d open (need %d free)", limit.Cur, open, required),
	}
}

// countOpenFDs counts this process's open descriptors, or 0 if unknown.
func countOpenFDs() int {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0
	}
	return len(entries)
}

// checkProcessLimit verifies the child can be forked under RLIMIT_NPROC.
func checkProcessLimit() Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NPROC, &limit); err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read RLIMIT_NPROC: %v", err),
		}
	}

	actual := clampLimit(limit.Cur)
	return Check{
		Name:     "process_limit",
		Required: requiredProcesses,
		Actual:   actual,
		Passed:   actual >= requiredProcesses,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, requiredProcesses),
	}
}

// clampLimit converts a soft limit to an int, mapping RLIM_INFINITY and
// other huge values to maxLimit.
func clampLimit(cur uint64) int {
	if cur > maxLimit {
		return maxLimit
	}
	return int(cur)
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "command":
		return "check the spelling, use an absolute path, or add its directory to PATH"
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
