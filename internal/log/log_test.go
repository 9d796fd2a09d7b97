package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senses3/coolercontrol/internal/events"
)

func TestInfoEntryAppearsInRecent(t *testing.T) {
	// GIVEN
	require.NoError(t, Init(LevelDebug, true))
	marker := "ring-buffer-marker-info"

	// WHEN
	Info(marker)

	// THEN
	found := false
	for _, e := range Recent() {
		if e.Message == marker {
			found = true
			assert.Equal(t, "info", e.Level)
		}
	}
	assert.True(t, found)
}

func TestEntriesBelowConfiguredLevelAreSuppressed(t *testing.T) {
	// GIVEN
	require.NoError(t, Init(LevelError, true))
	marker := "ring-buffer-marker-suppressed-debug"

	// WHEN
	Debug(marker)

	// THEN
	for _, e := range Recent() {
		assert.NotEqual(t, marker, e.Message)
	}
}

func TestSetSinkPublishesLoggedEntries(t *testing.T) {
	// GIVEN
	require.NoError(t, Init(LevelDebug, true))
	topic := events.NewTopic[events.LogEntry]()
	SetSink(topic)
	defer SetSink(nil)
	ch, unsub := topic.Subscribe()
	defer unsub()
	marker := "ring-buffer-marker-sink"

	// WHEN
	Warn(marker)

	// THEN
	select {
	case e := <-ch:
		assert.Equal(t, marker, e.Message)
		assert.Equal(t, "warn", e.Level)
	default:
		t.Fatal("expected a published log entry on the sink topic")
	}
}

func TestRecentBufferIsBoundedByRingCap(t *testing.T) {
	// GIVEN
	require.NoError(t, Init(LevelDebug, true))
	SetSink(nil)

	// WHEN
	for i := 0; i < ringCap+10; i++ {
		Info("filler")
	}

	// THEN
	assert.LessOrEqual(t, len(Recent()), ringCap)
}
