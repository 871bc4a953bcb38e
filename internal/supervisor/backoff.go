package supervisor

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for exponential restart backoff.
type BackoffConfig struct {
	Initial    time.Duration // first delay (default 250ms)
	Max        time.Duration // cap (default 5s)
	Multiplier float64       // growth per attempt (default 1.7)
	JitterPct  float64       // total jitter width as a fraction of the delay (0.4 = ±20%)
}

// DefaultBackoffConfig returns the defaults used by the CLI.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    250 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 1.7,
		JitterPct:  0.4,
	}
}

// Backoff calculates exponential restart delays with jitter.
// The jitter sequence is fully determined by the seed.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a Backoff whose jitter is drawn from seed.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the delay for the current attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without advancing the counter.
func (b *Backoff) Calculate() time.Duration {
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))
	if delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	if b.config.JitterPct > 0 {
		width := delay * b.config.JitterPct
		delay += width*b.rng.Float64() - width/2
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Reset sets the attempt counter back to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// SetAttempts overrides the attempt counter.
func (b *Backoff) SetAttempts(n int) {
	b.attempts = n
}

// BackoffResetThreshold is the uptime after which a run counts as stable:
// the next failure starts the backoff from the beginning again.
const BackoffResetThreshold = 30 * time.Second

// ShouldReset reports whether the backoff should restart from Initial,
// either because the child ran long enough or because it exited cleanly.
func ShouldReset(uptime time.Duration, exitCode int) bool {
	return uptime >= BackoffResetThreshold || exitCode == 0
}
