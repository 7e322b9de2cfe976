// Package stopwatch provides a simple interval timer with lap support.
package stopwatch

import (
	"time"

	"github.com/fsimkovic/pyjob/internal/log"
)

// StopWatch measures wall time across start/stop cycles with optional lap
// snapshots.
type StopWatch struct {
	start   time.Time
	elapsed time.Duration
	laps    []time.Duration
	lastLap time.Time
	running bool
}

// New returns a stopped StopWatch.
func New() *StopWatch {
	return &StopWatch{}
}

// Running reports whether the stopwatch is counting.
func (s *StopWatch) Running() bool {
	return s.running
}

// Start begins or resumes timing. Starting a running stopwatch is a no-op.
func (s *StopWatch) Start() {
	if s.running {
		log.Warn("Stopwatch is running ...")
		return
	}
	s.start = time.Now()
	s.lastLap = s.start
	s.running = true
}

// Stop halts timing and returns the total elapsed duration.
func (s *StopWatch) Stop() time.Duration {
	if !s.running {
		log.Warn("Stopwatch not running ...")
		return s.elapsed
	}
	s.elapsed += time.Since(s.start)
	s.running = false
	return s.elapsed
}

// Lap records and returns the duration since the previous lap.
func (s *StopWatch) Lap() time.Duration {
	if !s.running {
		log.Warn("Cannot add a lap, stopwatch not running ...")
		return 0
	}
	now := time.Now()
	lap := now.Sub(s.lastLap)
	s.lastLap = now
	s.laps = append(s.laps, lap)
	return lap
}

// Laps returns the recorded lap durations.
func (s *StopWatch) Laps() []time.Duration {
	return s.laps
}

// Elapsed returns the accumulated duration, including the current cycle when
// running.
func (s *StopWatch) Elapsed() time.Duration {
	if s.running {
		return s.elapsed + time.Since(s.start)
	}
	return s.elapsed
}

// Reset stops the stopwatch and clears all recorded time.
func (s *StopWatch) Reset() {
	*s = StopWatch{}
}

// Pretty decomposes a duration into days, hours, minutes and seconds.
func Pretty(d time.Duration) (days, hours, minutes, seconds int) {
	secs := int(d.Seconds())
	days = secs / 86400
	hours = secs % 86400 / 3600
	minutes = secs % 3600 / 60
	seconds = secs % 60
	return days, hours, minutes, seconds
}
