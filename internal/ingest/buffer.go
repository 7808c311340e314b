package ingest

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DrainFunc consumes a completed group after its quiet period elapses.
type DrainFunc func(key string, group BufferedGroup)

// GroupBuffer accumulates album parts per media-group key. Each append
// re-arms the key's drain timer for the full quiet period, so a group is
// considered complete only once no new part has arrived for that long. The
// upstream connection sends no end-of-album signal; this debounce is the
// only completion mechanism.
type GroupBuffer struct {
	logger  *slog.Logger
	clock   clockwork.Clock
	quiet   time.Duration
	onDrain DrainFunc

	mu      sync.Mutex
	entries map[string]*groupEntry
}

type groupEntry struct {
	group BufferedGroup
	timer clockwork.Timer
}

// NewGroupBuffer creates a buffer that calls onDrain once per group, after
// quiet has elapsed since the group's last append.
func NewGroupBuffer(log *slog.Logger, clock clockwork.Clock, quiet time.Duration, onDrain DrainFunc) *GroupBuffer {
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GroupBuffer{
		logger:  log.With(slog.String("service", "group_buffer")),
		clock:   clock,
		quiet:   quiet,
		onDrain: onDrain,
		entries: make(map[string]*groupEntry),
	}
}

// Append adds one message and its fetched media paths to the group,
// creating the entry when absent, and replaces the pending drain timer.
// At most one timer is pending per key at any time.
func (b *GroupBuffer) Append(key string, msg InboundMessage, media []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		entry = &groupEntry{}
		b.entries[key] = entry
	}
	entry.group.Messages = append(entry.group.Messages, msg)
	entry.group.Media = append(entry.group.Media, media...)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = b.clock.AfterFunc(b.quiet, func() {
		b.fire(key)
	})
}

// Drain atomically removes and returns the group for key. The second call
// for an already drained key reports false; a late duplicate timer fire is
// therefore a no-op.
func (b *GroupBuffer) Drain(key string) (BufferedGroup, bool) {
	b.mu.Lock()
	entry, ok := b.entries[key]
	if !ok {
		b.mu.Unlock()
		return BufferedGroup{}, false
	}
	delete(b.entries, key)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	b.mu.Unlock()
	return entry.group, true
}

// DrainAll removes and returns every pending group, stopping their timers.
// Used on shutdown so partially received albums are still materialized.
func (b *GroupBuffer) DrainAll() map[string]BufferedGroup {
	b.mu.Lock()
	drained := make(map[string]BufferedGroup, len(b.entries))
	for key, entry := range b.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		drained[key] = entry.group
	}
	b.entries = make(map[string]*groupEntry)
	b.mu.Unlock()
	return drained
}

// Len reports the number of groups currently buffered.
func (b *GroupBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// fire runs on the timer goroutine. The drain callback executes outside the
// buffer lock so it may append to or drain other keys freely.
func (b *GroupBuffer) fire(key string) {
	group, ok := b.Drain(key)
	if !ok {
		return
	}
	b.logger.Debug("group quiet period elapsed",
		slog.String("group_id", key),
		slog.Int("parts", len(group.Messages)),
	)
	if b.onDrain != nil {
		b.onDrain(key, group)
	}
}
