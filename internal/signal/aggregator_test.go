package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectDefaults(t *testing.T) {
	a := NewAggregator()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	ctx := a.Collect(now)

	// With no providers bound the context is benign: online, full battery.
	assert.True(t, ctx.Connectivity.Online)
	assert.Equal(t, 1.0, ctx.Battery.Level)
	assert.False(t, ctx.DoomScrolling)
	assert.Equal(t, now, ctx.Now)
}

func TestCollectSimulated(t *testing.T) {
	a := NewAggregator()
	sim := NewSimulated()
	sim.Attach(a)

	sim.Set(func(s *Simulated) {
		s.CalendarState = CalendarSnapshot{InMeeting: true, HasEvents: true}
		s.ScrollState = ScrollSnapshot{ContinuousSeconds: 900}
		s.BatteryState = BatterySnapshot{Level: 0.1}
		s.ConnectivityState = ConnectivitySnapshot{Online: false}
	})

	ctx := a.Collect(time.Now())

	assert.True(t, ctx.Calendar.InMeeting)
	assert.True(t, ctx.DoomScrolling)
	assert.Equal(t, 0.1, ctx.Battery.Level)
	assert.False(t, ctx.Connectivity.Online)
}

func TestDoomScrollThreshold(t *testing.T) {
	a := NewAggregator()
	a.DoomScrollSeconds = 120
	sim := NewSimulated()
	sim.Attach(a)

	sim.Set(func(s *Simulated) { s.ScrollState = ScrollSnapshot{ContinuousSeconds: 119} })
	assert.False(t, a.Collect(time.Now()).DoomScrolling)

	sim.Set(func(s *Simulated) { s.ScrollState = ScrollSnapshot{ContinuousSeconds: 120} })
	assert.True(t, a.Collect(time.Now()).DoomScrolling)
}

func TestLateNightAndWeekend(t *testing.T) {
	c := Context{Now: time.Date(2026, 3, 7, 23, 30, 0, 0, time.UTC)} // Saturday
	assert.True(t, c.LateNight())
	assert.True(t, c.Weekend())

	c = Context{Now: time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)} // Wednesday
	assert.False(t, c.LateNight())
	assert.False(t, c.Weekend())
}
