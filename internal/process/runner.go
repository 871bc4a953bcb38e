// Package process runs external programs through a Handle: it spawns the
// child on three pipes, drains its output without blocking, waits under a
// bounded timeout and can interrupt or kill it.
package process

// Runner creates handles for successive attempts of the same program.
// This interface keeps the supervisor independent of how a command line
// is put together.
type Runner interface {
	// BuildHandle returns a configured Handle that has NOT been spawned.
	BuildHandle(attempt int) (*Handle, error)

	// Name returns a human-readable name for the program.
	Name() string
}
