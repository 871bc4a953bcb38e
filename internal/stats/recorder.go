// Package stats records the outcome of every attempt of a supervised
// program and renders the exit summary.
//
// Run durations are kept in a T-Digest, so quantiles stay cheap and
// bounded in memory however many restarts a long-lived run goes through.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// digestCompression bounds the digest to about 100 centroids (~10KB).
const digestCompression = 100

// Sample describes one finished attempt.
type Sample struct {
	Attempt     int
	ExitCode    int
	Kind        string // none, exited, signaled, stopped
	Duration    time.Duration
	TimedOut    bool
	SpawnFailed bool
}

// Recorder accumulates samples. It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	startTime time.Time

	attempts      int
	spawnFailures int
	timeouts      int
	signaled      int
	restarts      int
	exitCodes     map[int]int
	last          Sample
	maxDuration   time.Duration

	stdoutBytes int64
	stderrBytes int64

	durations *tdigest.TDigest
}

// NewRecorder creates an empty recorder whose wall clock starts now.
func NewRecorder() *Recorder {
	return &Recorder{
		startTime: time.Now(),
		exitCodes: make(map[int]int),
		durations: tdigest.NewWithCompression(digestCompression),
	}
}

// Record adds a finished attempt.
func (r *Recorder) Record(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts++
	r.last = s
	r.exitCodes[s.ExitCode]++

	if s.SpawnFailed {
		r.spawnFailures++
		return
	}
	if s.TimedOut {
		r.timeouts++
	}
	if s.Kind == "signaled" {
		r.signaled++
	}

	r.durations.Add(s.Duration.Seconds(), 1)
	if s.Duration > r.maxDuration {
		r.maxDuration = s.Duration
	}
}

// RecordRestart counts a restart scheduled by the supervisor.
func (r *Recorder) RecordRestart() {
	r.mu.Lock()
	r.restarts++
	r.mu.Unlock()
}

// RecordDrain counts bytes read from the child's "stdout" or "stderr".
func (r *Recorder) RecordDrain(stream string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch stream {
	case "stdout":
		r.stdoutBytes += int64(n)
	case "stderr":
		r.stderrBytes += int64(n)
	}
}

// Summary is a snapshot of a Recorder.
type Summary struct {
	Elapsed time.Duration

	Attempts      int
	Restarts      int
	SpawnFailures int
	Timeouts      int
	Signaled      int
	ExitCodes     map[int]int
	Last          Sample

	// Run duration quantiles over attempts that started a child
	RunP50 time.Duration
	RunP95 time.Duration
	RunP99 time.Duration
	RunMax time.Duration

	StdoutBytes int64
	StderrBytes int64
}

// Summary returns a snapshot of the recorded samples.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		Elapsed:       time.Since(r.startTime),
		Attempts:      r.attempts,
		Restarts:      r.restarts,
		SpawnFailures: r.spawnFailures,
		Timeouts:      r.timeouts,
		Signaled:      r.signaled,
		ExitCodes:     make(map[int]int, len(r.exitCodes)),
		Last:          r.last,
		RunMax:        r.maxDuration,
		StdoutBytes:   r.stdoutBytes,
		StderrBytes:   r.stderrBytes,
	}
	for code, count := range r.exitCodes {
		s.ExitCodes[code] = count
	}

	if r.durations.Count() > 0 {
		s.RunP50 = quantile(r.durations, 0.50)
		s.RunP95 = quantile(r.durations, 0.95)
		s.RunP99 = quantile(r.durations, 0.99)
	}
	return s
}

// quantile converts a digest quantile in seconds back to a duration.
func quantile(td *tdigest.TDigest, q float64) time.Duration {
	v := td.Quantile(q)
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
