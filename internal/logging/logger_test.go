package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LevelWarn, Colored: false, Output: &buf})

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warn("visible %d", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible 3")
}

func TestComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LevelDebug, Colored: false, Output: &buf})

	l.WithComponent("Engine").Info("cycle complete")

	assert.Contains(t, buf.String(), "[Engine] cycle complete")
}
