package ingest

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const testQuiet = 2 * time.Second

type drainRecorder struct {
	drained chan BufferedGroup
}

func newDrainRecorder() *drainRecorder {
	return &drainRecorder{drained: make(chan BufferedGroup, 8)}
}

func (r *drainRecorder) drain(_ string, group BufferedGroup) {
	r.drained <- group
}

func (r *drainRecorder) wait(t *testing.T) BufferedGroup {
	t.Helper()
	select {
	case group := <-r.drained:
		return group
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for drain")
		return BufferedGroup{}
	}
}

func (r *drainRecorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case group := <-r.drained:
		t.Fatalf("unexpected drain with %d messages", len(group.Messages))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGroupBuffer_DrainsAfterQuietPeriod(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	rec := newDrainRecorder()
	buf := NewGroupBuffer(nil, clock, testQuiet, rec.drain)

	buf.Append("g1", InboundMessage{MessageID: 1}, []string{"/uploads/a.jpg"})
	buf.Append("g1", InboundMessage{MessageID: 2}, nil)
	buf.Append("g1", InboundMessage{MessageID: 3}, []string{"/uploads/b.jpg"})

	clock.Advance(testQuiet)
	group := rec.wait(t)

	if len(group.Messages) != 3 {
		t.Fatalf("drained %d messages, want 3", len(group.Messages))
	}
	for i, msg := range group.Messages {
		if msg.MessageID != i+1 {
			t.Fatalf("message %d out of order: id %d", i, msg.MessageID)
		}
	}
	if len(group.Media) != 2 || group.Media[0] != "/uploads/a.jpg" || group.Media[1] != "/uploads/b.jpg" {
		t.Fatalf("unexpected media: %v", group.Media)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer still holds %d groups", buf.Len())
	}
}

func TestGroupBuffer_AppendReArmsTimer(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	rec := newDrainRecorder()
	buf := NewGroupBuffer(nil, clock, testQuiet, rec.drain)

	buf.Append("g1", InboundMessage{MessageID: 1}, nil)
	clock.Advance(testQuiet - time.Second)

	// The second part arrives inside the quiet period: the timer restarts
	// for the full period from now.
	buf.Append("g1", InboundMessage{MessageID: 2}, nil)
	clock.Advance(testQuiet - time.Second)
	rec.expectNone(t)

	clock.Advance(time.Second)
	group := rec.wait(t)
	if len(group.Messages) != 2 {
		t.Fatalf("drained %d messages, want 2", len(group.Messages))
	}
}

func TestGroupBuffer_GapBeyondQuietPeriodSplitsRuns(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	rec := newDrainRecorder()
	buf := NewGroupBuffer(nil, clock, testQuiet, rec.drain)

	buf.Append("g1", InboundMessage{MessageID: 1}, nil)
	clock.Advance(testQuiet)
	first := rec.wait(t)
	if len(first.Messages) != 1 || first.Messages[0].MessageID != 1 {
		t.Fatalf("unexpected first run: %+v", first.Messages)
	}

	// Same key after the gap starts a fresh run, never merging with the
	// drained one.
	buf.Append("g1", InboundMessage{MessageID: 2}, nil)
	clock.Advance(testQuiet)
	second := rec.wait(t)
	if len(second.Messages) != 1 || second.Messages[0].MessageID != 2 {
		t.Fatalf("unexpected second run: %+v", second.Messages)
	}
}

func TestGroupBuffer_IndependentKeys(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	rec := newDrainRecorder()
	buf := NewGroupBuffer(nil, clock, testQuiet, rec.drain)

	buf.Append("g1", InboundMessage{MessageID: 1}, nil)
	buf.Append("g2", InboundMessage{MessageID: 2}, nil)

	clock.Advance(testQuiet)
	got := map[int]bool{}
	for i := 0; i < 2; i++ {
		group := rec.wait(t)
		got[group.Messages[0].MessageID] = true
	}
	if !got[1] || !got[2] {
		t.Fatalf("expected both keys drained, got %v", got)
	}
}

func TestGroupBuffer_RedrainIsNoOp(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	rec := newDrainRecorder()
	buf := NewGroupBuffer(nil, clock, testQuiet, rec.drain)

	buf.Append("g1", InboundMessage{MessageID: 1}, nil)
	if _, ok := buf.Drain("g1"); !ok {
		t.Fatal("first drain should return the group")
	}
	if _, ok := buf.Drain("g1"); ok {
		t.Fatal("second drain should report absent")
	}
	// A leftover timer fire after a manual drain must not call back.
	clock.Advance(testQuiet)
	rec.expectNone(t)
}

func TestGroupBuffer_DrainAllStopsTimers(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	rec := newDrainRecorder()
	buf := NewGroupBuffer(nil, clock, testQuiet, rec.drain)

	buf.Append("g1", InboundMessage{MessageID: 1}, nil)
	buf.Append("g2", InboundMessage{MessageID: 2}, []string{"/uploads/x.jpg"})

	drained := buf.DrainAll()
	if len(drained) != 2 {
		t.Fatalf("drained %d groups, want 2", len(drained))
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer still holds %d groups", buf.Len())
	}
	clock.Advance(testQuiet)
	rec.expectNone(t)
}
