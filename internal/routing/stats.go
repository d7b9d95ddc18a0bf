package routing

import (
	"sync"
	"time"
)

const (
	// WindowSize caps the rolling latency window per path.
	WindowSize = 10

	// DefaultLatency is assumed for a path with no samples yet.
	DefaultLatency = 5 * time.Second
)

// Stats tracks rolling latency and failure counters per inference path.
// Process-lifetime only, never persisted. Construct one at startup and pass
// it by reference to the router and the inference client.
type Stats struct {
	mu        sync.Mutex
	latencies map[Path][]time.Duration
	failures  map[Path]int
}

// NewStats creates an empty stats tracker.
func NewStats() *Stats {
	return &Stats{
		latencies: make(map[Path][]time.Duration),
		failures:  make(map[Path]int),
	}
}

// Report records one attempt outcome for a path. Successes push a latency
// sample and decay the failure counter; failures increment it.
func (s *Stats) Report(path Path, latency time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		win := append(s.latencies[path], latency)
		if len(win) > WindowSize {
			win = win[len(win)-WindowSize:]
		}
		s.latencies[path] = win
		if s.failures[path] > 0 {
			s.failures[path]--
		}
		return
	}

	s.failures[path]++
}

// AverageLatency returns the rolling mean for a path, or DefaultLatency when
// no samples exist.
func (s *Stats) AverageLatency(path Path) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	win := s.latencies[path]
	if len(win) == 0 {
		return DefaultLatency
	}
	var sum time.Duration
	for _, d := range win {
		sum += d
	}
	return sum / time.Duration(len(win))
}

// Failures returns the current failure counter for a path.
func (s *Stats) Failures(path Path) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[path]
}

// SampleCount returns the number of latency samples held for a path.
func (s *Stats) SampleCount(path Path) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latencies[path])
}
