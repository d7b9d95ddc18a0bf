// Package signal defines the pull-based context signal providers and the
// aggregator that merges their snapshots into one immutable Context per
// decision cycle. Providers are side-effect free and independently
// overridable, so every platform source can be replaced by a simulated one.
package signal

import (
	"time"
)

// CalendarSnapshot reports meeting state at a point in time.
type CalendarSnapshot struct {
	HasEvents        bool          `json:"has_events"`
	InMeeting        bool          `json:"in_meeting"`
	MeetingJustEnded bool          `json:"meeting_just_ended"`
	NextEventIn      time.Duration `json:"next_event_in,omitempty"`
}

// MotionSnapshot reports coarse device motion state.
type MotionSnapshot struct {
	Driving bool `json:"driving"`
	Walking bool `json:"walking"`
}

// ScreenSnapshot reports display state.
type ScreenSnapshot struct {
	On            bool `json:"on"`
	ActiveMinutes int  `json:"active_minutes"`
}

// ScrollSnapshot reports continuous scroll activity.
type ScrollSnapshot struct {
	ContinuousSeconds int `json:"continuous_seconds"`
}

// HealthSnapshot reports health signal availability and milestones.
type HealthSnapshot struct {
	Present          bool `json:"present"`
	Steps            int  `json:"steps"`
	MilestoneReached bool `json:"milestone_reached"`
}

// BatterySnapshot reports power state.
type BatterySnapshot struct {
	Level    float64 `json:"level"` // [0,1]
	Charging bool    `json:"charging"`
}

// ConnectivitySnapshot reports network state.
type ConnectivitySnapshot struct {
	Online  bool `json:"online"`
	Metered bool `json:"metered"`
}

// Provider interfaces, one per signal. Each Snapshot call must be pure: same
// now, same answer, no side effects.
type (
	CalendarProvider interface {
		Snapshot(now time.Time) CalendarSnapshot
	}
	MotionProvider interface {
		Snapshot(now time.Time) MotionSnapshot
	}
	ScreenProvider interface {
		Snapshot(now time.Time) ScreenSnapshot
	}
	ScrollProvider interface {
		Snapshot(now time.Time) ScrollSnapshot
	}
	HealthProvider interface {
		Snapshot(now time.Time) HealthSnapshot
	}
	BatteryProvider interface {
		Snapshot(now time.Time) BatterySnapshot
	}
	ConnectivityProvider interface {
		Snapshot(now time.Time) ConnectivitySnapshot
	}
)

// Context is the immutable merged snapshot for one cycle. It is constructed
// once by the Aggregator and never mutated afterwards; it is persisted only as
// an audit attachment to a cycle result.
type Context struct {
	Now          time.Time            `json:"now"`
	Calendar     CalendarSnapshot     `json:"calendar"`
	Motion       MotionSnapshot       `json:"motion"`
	Screen       ScreenSnapshot       `json:"screen"`
	Scroll       ScrollSnapshot       `json:"scroll"`
	Health       HealthSnapshot       `json:"health"`
	Battery      BatterySnapshot      `json:"battery"`
	Connectivity ConnectivitySnapshot `json:"connectivity"`

	// DoomScrolling is resolved at aggregation time against the configured
	// scroll threshold so downstream consumers share one verdict.
	DoomScrolling bool `json:"doom_scrolling"`
}

// LateNight reports whether the snapshot falls in the 22:00-05:00 band.
func (c Context) LateNight() bool {
	h := c.Now.Hour()
	return h >= 22 || h < 5
}

// Weekend reports whether the snapshot falls on Saturday or Sunday.
func (c Context) Weekend() bool {
	wd := c.Now.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
