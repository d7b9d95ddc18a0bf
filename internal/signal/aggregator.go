package signal

import (
	"time"

	"github.com/normanking/impetus/internal/logging"
)

// DefaultDoomScrollSeconds is the continuous-scroll duration treated as
// doom-scrolling when no threshold is configured.
const DefaultDoomScrollSeconds = 600

// Aggregator merges provider snapshots into one Context per cycle. Providers
// are optional; a nil provider contributes its zero snapshot. The aggregator
// holds no cached signal state of its own: construct one at process start and
// pass it into the cycle pipeline.
type Aggregator struct {
	Calendar     CalendarProvider
	Motion       MotionProvider
	Screen       ScreenProvider
	Scroll       ScrollProvider
	Health       HealthProvider
	Battery      BatteryProvider
	Connectivity ConnectivityProvider

	// DoomScrollSeconds is the continuous-scroll threshold; zero means
	// DefaultDoomScrollSeconds.
	DoomScrollSeconds int

	log *logging.Logger
}

// NewAggregator creates an aggregator with no providers bound. Callers attach
// the providers they have; everything else stays at zero.
func NewAggregator() *Aggregator {
	return &Aggregator{log: logging.Global().WithComponent("Signals")}
}

// Collect builds the immutable context snapshot for one cycle.
func (a *Aggregator) Collect(now time.Time) Context {
	ctx := Context{Now: now}

	if a.Calendar != nil {
		ctx.Calendar = a.Calendar.Snapshot(now)
	}
	if a.Motion != nil {
		ctx.Motion = a.Motion.Snapshot(now)
	}
	if a.Screen != nil {
		ctx.Screen = a.Screen.Snapshot(now)
	}
	if a.Scroll != nil {
		ctx.Scroll = a.Scroll.Snapshot(now)
	}
	if a.Health != nil {
		ctx.Health = a.Health.Snapshot(now)
	}
	if a.Battery != nil {
		ctx.Battery = a.Battery.Snapshot(now)
	} else {
		ctx.Battery = BatterySnapshot{Level: 1.0}
	}
	if a.Connectivity != nil {
		ctx.Connectivity = a.Connectivity.Snapshot(now)
	} else {
		ctx.Connectivity = ConnectivitySnapshot{Online: true}
	}

	threshold := a.DoomScrollSeconds
	if threshold <= 0 {
		threshold = DefaultDoomScrollSeconds
	}
	ctx.DoomScrolling = ctx.Scroll.ContinuousSeconds >= threshold

	if a.log != nil {
		a.log.Debug("collected context: meeting=%v driving=%v battery=%.2f online=%v doomscroll=%v",
			ctx.Calendar.InMeeting, ctx.Motion.Driving, ctx.Battery.Level,
			ctx.Connectivity.Online, ctx.DoomScrolling)
	}

	return ctx
}
