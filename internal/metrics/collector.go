// Package metrics provides Prometheus metrics for procrun.
//
// A Collector owns its metrics and registers them on the Registerer it is
// given, so several collectors can coexist (one per test, for instance).
// Handle lifecycle events reach it through process.Hooks; supervisor
// events through the Record methods.
package metrics

import (
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-procrun/internal/process"
)

const namespace = "procrun"

// Collector manages all Prometheus metrics of one supervised program.
type Collector struct {
	info          *prometheus.GaugeVec
	spawns        prometheus.Counter
	spawnFailures prometheus.Counter
	exits         *prometheus.CounterVec
	exitCodes     *prometheus.CounterVec
	waitTimeouts  prometheus.Counter
	signals       *prometheus.CounterVec
	drainedBytes  *prometheus.CounterVec
	running       prometheus.Gauge
	runDuration   prometheus.Histogram

	restarts        prometheus.Counter
	attemptTimeouts prometheus.Counter
	backoffSeconds  prometheus.Gauge
}

// CollectorConfig holds the labels of the info metric.
type CollectorConfig struct {
	Version string
	Command string
	Policy  string
}

// NewCollector creates a collector and registers its metrics on registry.
func NewCollector(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "info",
				Help:      "Information about the supervised program (value always 1)",
			},
			[]string{"version", "command", "policy"},
		),
		spawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawns_total",
			Help:      "Children started",
		}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Spawn attempts that did not start a child",
		}),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exits_total",
				Help:      "Reaped children by termination kind",
			},
			[]string{"kind"},
		),
		exitCodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exit_codes_total",
				Help:      "Normal exits by exit code",
			},
			[]string{"code"},
		),
		waitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "Waits that returned before the child exited",
		}),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_sent_total",
				Help:      "Signals sent to children",
			},
			[]string{"signal"},
		),
		drainedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drained_bytes_total",
				Help:      "Bytes read from the children's output pipes",
			},
			[]string{"stream"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1 while a child is running",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Child lifetime from spawn to reap",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 1800, 3600},
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Restarts scheduled by the supervisor",
		}),
		attemptTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempt_timeouts_total",
			Help:      "Attempts killed for exceeding the timeout",
		}),
		backoffSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backoff_seconds",
			Help:      "Most recent restart delay",
		}),
	}

	registry.MustRegister(
		c.info,
		c.spawns,
		c.spawnFailures,
		c.exits,
		c.exitCodes,
		c.waitTimeouts,
		c.signals,
		c.drainedBytes,
		c.running,
		c.runDuration,
		c.restarts,
		c.attemptTimeouts,
		c.backoffSeconds,
	)

	c.info.WithLabelValues(cfg.Version, cfg.Command, cfg.Policy).Set(1)

	// Pre-create the stream series so both show up at zero.
	c.drainedBytes.WithLabelValues(process.Stdout.String())
	c.drainedBytes.WithLabelValues(process.Stderr.String())

	return c
}

// =============================================================================
// Handle Events
// =============================================================================

// Hooks returns handle hooks that feed this collector. Extra hooks, if
// given, are called after the collector's own.
func (c *Collector) Hooks(next process.Hooks) process.Hooks {
	return process.Hooks{
		OnSpawn: func(command string, pid int) {
			c.spawns.Inc()
			c.running.Set(1)
			if next.OnSpawn != nil {
				next.OnSpawn(command, pid)
			}
		},
		OnSpawnError: func(command string, err error) {
			c.spawnFailures.Inc()
			if next.OnSpawnError != nil {
				next.OnSpawnError(command, err)
			}
		},
		OnExit: func(command string, term process.Termination, uptime time.Duration) {
			c.RecordExit(term, uptime)
			if next.OnExit != nil {
				next.OnExit(command, term, uptime)
			}
		},
		OnTimeout: func(command string, waited time.Duration) {
			c.waitTimeouts.Inc()
			if next.OnTimeout != nil {
				next.OnTimeout(command, waited)
			}
		},
		OnSignal: func(command string, sig syscall.Signal) {
			c.signals.WithLabelValues(signalName(sig)).Inc()
			if next.OnSignal != nil {
				next.OnSignal(command, sig)
			}
		},
		OnDrain: func(command string, stream process.Stream, n int) {
			c.drainedBytes.WithLabelValues(stream.String()).Add(float64(n))
			if next.OnDrain != nil {
				next.OnDrain(command, stream, n)
			}
		},
	}
}

// RecordExit records a reaped child.
func (c *Collector) RecordExit(term process.Termination, uptime time.Duration) {
	c.running.Set(0)
	c.exits.WithLabelValues(term.Kind.String()).Inc()
	if term.Kind == process.TerminationExited {
		c.exitCodes.WithLabelValues(strconv.Itoa(term.Code)).Inc()
	}
	c.runDuration.Observe(uptime.Seconds())
}

// =============================================================================
// Supervisor Events
// =============================================================================

// RecordRestart records a scheduled restart and its delay.
func (c *Collector) RecordRestart(delay time.Duration) {
	c.restarts.Inc()
	c.backoffSeconds.Set(delay.Seconds())
}

// RecordAttemptEnd records the end of a supervised attempt. The running
// gauge is cleared here as well as on exit, since a child whose status
// could not be classified is reaped without an exit event.
func (c *Collector) RecordAttemptEnd(timedOut bool) {
	c.running.Set(0)
	if timedOut {
		c.attemptTimeouts.Inc()
	}
}

// signalName returns "SIGKILL" style names, or the number for unknown signals.
func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return strconv.Itoa(int(sig))
}
