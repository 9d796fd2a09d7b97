package log

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/senses3/coolercontrol/internal/events"
)

// ringCap bounds the in-memory log buffer GET /logs serves.
const ringCap = 500

var (
	ringMu sync.Mutex
	ring   []events.LogEntry
	sink   *events.Topic[events.LogEntry]
)

// SetSink registers the topic every logged entry is also published on,
// for the /sse/logs stream. Call before Init.
func SetSink(topic *events.Topic[events.LogEntry]) {
	ringMu.Lock()
	sink = topic
	ringMu.Unlock()
}

// Recent returns a copy of the bounded in-memory log buffer, oldest
// first, for GET /logs.
func Recent() []events.LogEntry {
	ringMu.Lock()
	defer ringMu.Unlock()
	out := make([]events.LogEntry, len(ring))
	copy(out, ring)
	return out
}

// ringCore is a zapcore.Core that mirrors every entry it sees into the
// bounded ring buffer and, if set, onto the SSE sink topic. It carries
// no structured fields of its own - the rest of this package only ever
// logs formatted messages via the Sugar() helpers, so field propagation
// would be dead code.
type ringCore struct {
	enabler zapcore.LevelEnabler
}

func newRingCore(enabler zapcore.LevelEnabler) zapcore.Core {
	return &ringCore{enabler: enabler}
}

func (r *ringCore) Enabled(level zapcore.Level) bool { return r.enabler.Enabled(level) }

func (r *ringCore) With(_ []zapcore.Field) zapcore.Core { return r }

func (r *ringCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if r.Enabled(entry.Level) {
		return ce.AddCore(entry, r)
	}
	return ce
}

func (r *ringCore) Write(entry zapcore.Entry, _ []zapcore.Field) error {
	e := events.LogEntry{
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Timestamp: entry.Time,
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	ringMu.Lock()
	ring = append(ring, e)
	if len(ring) > ringCap {
		ring = ring[len(ring)-ringCap:]
	}
	s := sink
	ringMu.Unlock()

	if s != nil {
		s.Publish(e)
	}
	return nil
}

func (r *ringCore) Sync() error { return nil }
