package signal

import (
	"sync"
	"time"
)

// Simulated is a deterministic provider for every signal type. It backs the
// demo trigger and the test suite; set its fields and wire it into an
// Aggregator in place of the platform shims.
type Simulated struct {
	mu sync.RWMutex

	CalendarState     CalendarSnapshot
	MotionState       MotionSnapshot
	ScreenState       ScreenSnapshot
	ScrollState       ScrollSnapshot
	HealthState       HealthSnapshot
	BatteryState      BatterySnapshot
	ConnectivityState ConnectivitySnapshot
}

// NewSimulated returns a simulated source in a benign default state: online,
// full battery, idle screen.
func NewSimulated() *Simulated {
	return &Simulated{
		BatteryState:      BatterySnapshot{Level: 1.0},
		ConnectivityState: ConnectivitySnapshot{Online: true},
	}
}

// Set applies a mutation under the lock, for mid-scenario adjustments.
func (s *Simulated) Set(fn func(*Simulated)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Simulated) Snapshot(now time.Time) CalendarSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CalendarState
}

// Each signal needs its own provider value because the interfaces share the
// Snapshot method name. The As* accessors return single-signal views.

type simMotion struct{ s *Simulated }
type simScreen struct{ s *Simulated }
type simScroll struct{ s *Simulated }
type simHealth struct{ s *Simulated }
type simBattery struct{ s *Simulated }
type simConnectivity struct{ s *Simulated }

func (v simMotion) Snapshot(now time.Time) MotionSnapshot {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.MotionState
}

func (v simScreen) Snapshot(now time.Time) ScreenSnapshot {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.ScreenState
}

func (v simScroll) Snapshot(now time.Time) ScrollSnapshot {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.ScrollState
}

func (v simHealth) Snapshot(now time.Time) HealthSnapshot {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.HealthState
}

func (v simBattery) Snapshot(now time.Time) BatterySnapshot {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.BatteryState
}

func (v simConnectivity) Snapshot(now time.Time) ConnectivitySnapshot {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.ConnectivityState
}

// Attach wires every simulated signal into the aggregator.
func (s *Simulated) Attach(a *Aggregator) {
	a.Calendar = s
	a.Motion = simMotion{s}
	a.Screen = simScreen{s}
	a.Scroll = simScroll{s}
	a.Health = simHealth{s}
	a.Battery = simBattery{s}
	a.Connectivity = simConnectivity{s}
}
