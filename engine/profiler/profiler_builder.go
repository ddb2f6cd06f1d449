package profiler

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ProfilerBuilderOption is a functional option applied to a Profiler during construction via NewProfiler.
type ProfilerBuilderOption func(*Profiler)

// WithUpdateInterval sets the length of the averaging window.
//
// Parameters:
//   - interval: the window length
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the interval option to a Profiler
func WithUpdateInterval(interval time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.updateInterval = interval
	}
}

// WithLogger sets the logger each closed window is reported to.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the logger option to a Profiler
func WithLogger(logger logrus.FieldLogger) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.logger = logger
	}
}

// WithClock replaces time.Now, for deterministic windows.
//
// Parameters:
//   - now: the clock
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the clock option to a Profiler
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.now = now
	}
}
