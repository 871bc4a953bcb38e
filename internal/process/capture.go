package process

import (
	"fmt"
	"strings"
)

// Capture selects which standard streams a Handle actively relays.
// Streams that are not captured are still read, so the child never blocks
// on a full pipe, but their bytes are discarded.
type Capture uint8

const (
	// CaptureNone reads and discards all output and closes stdin at spawn.
	CaptureNone Capture = 1 << iota

	// CaptureOut retains the child's stdout.
	CaptureOut

	// CaptureErr retains the child's stderr.
	CaptureErr

	// CaptureIn keeps the child's stdin open for Write until
	// CloseWriteChannel or Wait.
	CaptureIn
)

// DefaultCapture retains both outputs and keeps stdin open.
const DefaultCapture = CaptureOut | CaptureErr | CaptureIn

// Has reports whether every bit of flag is set.
func (c Capture) Has(flag Capture) bool {
	return c&flag == flag
}

// String returns the comma-separated flag names, e.g. "out,err".
func (c Capture) String() string {
	if c == 0 {
		return ""
	}
	var names []string
	if c.Has(CaptureNone) {
		names = append(names, "none")
	}
	if c.Has(CaptureOut) {
		names = append(names, "out")
	}
	if c.Has(CaptureErr) {
		names = append(names, "err")
	}
	if c.Has(CaptureIn) {
		names = append(names, "in")
	}
	return strings.Join(names, ",")
}

// ParseCapture parses a comma-separated list of "none", "out", "err", "in"
// (or "all" for DefaultCapture).
func ParseCapture(s string) (Capture, error) {
	var c Capture
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "none":
			c |= CaptureNone
		case "out", "stdout":
			c |= CaptureOut
		case "err", "stderr":
			c |= CaptureErr
		case "in", "stdin":
			c |= CaptureIn
		case "all":
			c |= DefaultCapture
		default:
			return 0, fmt.Errorf("%w: unknown capture flag %q", ErrInvalidArgument, part)
		}
	}
	if c == 0 {
		return 0, fmt.Errorf("%w: empty capture policy", ErrInvalidArgument)
	}
	return c, nil
}

// Stream identifies one of the two output pipes.
type Stream int

const (
	// Stdout is the child's standard output.
	Stdout Stream = iota

	// Stderr is the child's standard error.
	Stderr
)

// String returns "stdout" or "stderr".
func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// flag returns the capture bit that retains this stream.
func (s Stream) flag() Capture {
	if s == Stderr {
		return CaptureErr
	}
	return CaptureOut
}
