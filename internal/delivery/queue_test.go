package delivery

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

// fakeConn records sent commands and can be told to fail.
type fakeConn struct {
	sent    []Command
	sendErr error
}

func (c *fakeConn) Send(cmd Command) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, cmd)
	return nil
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(0, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	return q
}

func apply() Command  { return Command{Kind: KindApply, IntensityHint: 4} }
func remove() Command { return Command{Kind: KindRemove} }

func TestDeliverToAttachedConn(t *testing.T) {
	q := newTestQueue(t)
	conn := &fakeConn{}
	q.Attach(1, conn)

	if !q.Deliver(1, apply()) {
		t.Fatal("Deliver() = false, want true")
	}
	if len(conn.sent) != 1 || conn.sent[0].Kind != KindApply {
		t.Fatalf("conn.sent = %+v, want one apply", conn.sent)
	}
}

func TestRedundantCommandsSuppressed(t *testing.T) {
	q := newTestQueue(t)
	conn := &fakeConn{}
	q.Attach(1, conn)

	// A steady stream of identical verdicts yields exactly one command.
	q.Deliver(1, apply())
	for i := 0; i < 5; i++ {
		if q.Deliver(1, apply()) {
			t.Fatalf("Deliver() #%d = true, want suppressed", i+2)
		}
	}
	if len(conn.sent) != 1 {
		t.Errorf("conn.sent has %d commands, want 1", len(conn.sent))
	}

	// A flipped verdict goes through.
	if !q.Deliver(1, remove()) {
		t.Fatal("Deliver(remove) = false, want true")
	}
	if len(conn.sent) != 2 || conn.sent[1].Kind != KindRemove {
		t.Errorf("conn.sent = %+v, want apply then remove", conn.sent)
	}
}

func TestQueuedUntilAttachThenDrainedInOrder(t *testing.T) {
	q := newTestQueue(t)

	// Alternating blur states pass suppression and stack up in order.
	q.Deliver(1, apply())
	q.Deliver(1, remove())
	q.Deliver(1, apply())

	conn := &fakeConn{}
	q.Attach(1, conn)

	want := []Kind{KindApply, KindRemove, KindApply}
	if len(conn.sent) != len(want) {
		t.Fatalf("replayed %d commands, want %d", len(conn.sent), len(want))
	}
	for i, k := range want {
		if conn.sent[i].Kind != k {
			t.Errorf("replay[%d].Kind = %q, want %q", i, conn.sent[i].Kind, k)
		}
	}

	// The backlog is gone; reattaching replays nothing.
	conn2 := &fakeConn{}
	q.Attach(1, conn2)
	if len(conn2.sent) != 0 {
		t.Errorf("second attach replayed %d commands, want 0", len(conn2.sent))
	}
}

func TestSuppressionAppliesWhileQueued(t *testing.T) {
	q := newTestQueue(t)

	// Repeated identical verdicts before attach queue exactly one command.
	q.Deliver(1, apply())
	q.Deliver(1, apply())
	q.Deliver(1, apply())

	conn := &fakeConn{}
	q.Attach(1, conn)
	if len(conn.sent) != 1 {
		t.Errorf("replayed %d commands, want 1", len(conn.sent))
	}
}

func TestClearStateForcesRedelivery(t *testing.T) {
	q := newTestQueue(t)
	conn := &fakeConn{}
	q.Attach(1, conn)

	q.Deliver(1, apply())
	if q.Deliver(1, apply()) {
		t.Fatal("second apply not suppressed")
	}

	// After navigation the page starts unblurred, so the same verdict
	// must be delivered again.
	q.ClearState(1)
	if !q.Deliver(1, apply()) {
		t.Fatal("Deliver() after ClearState = false, want true")
	}
	if len(conn.sent) != 2 {
		t.Errorf("conn.sent has %d commands, want 2", len(conn.sent))
	}
}

func TestClearStateDropsPending(t *testing.T) {
	q := newTestQueue(t)

	q.Deliver(1, apply())
	q.ClearState(1)

	conn := &fakeConn{}
	q.Attach(1, conn)
	if len(conn.sent) != 0 {
		t.Errorf("replayed %d commands after ClearState, want 0", len(conn.sent))
	}
}

func TestSendNotAttachedRequeues(t *testing.T) {
	q := newTestQueue(t)
	dead := &fakeConn{sendErr: ErrNotAttached}
	q.Attach(1, dead)

	if !q.Deliver(1, apply()) {
		t.Fatal("Deliver() = false, want true (queued)")
	}
	if q.Attached(1) {
		t.Error("Attached() = true after ErrNotAttached, want false")
	}

	conn := &fakeConn{}
	q.Attach(1, conn)
	if len(conn.sent) != 1 || conn.sent[0].Kind != KindApply {
		t.Errorf("replay after reconnect = %+v, want one apply", conn.sent)
	}
}

func TestOtherSendErrorDropsCommand(t *testing.T) {
	q := newTestQueue(t)
	broken := &fakeConn{sendErr: errors.New("write: broken pipe")}
	q.Attach(1, broken)

	if q.Deliver(1, apply()) {
		t.Fatal("Deliver() = true on send failure, want false")
	}

	// The command was dropped, not queued, and the state cache was not
	// updated, so the next verdict is not suppressed.
	broken.sendErr = nil
	if !q.Deliver(1, apply()) {
		t.Fatal("Deliver() after recovered conn = false, want true")
	}
}

func TestDetachIgnoresStaleConn(t *testing.T) {
	q := newTestQueue(t)
	old := &fakeConn{}
	q.Attach(1, old)

	replacement := &fakeConn{}
	q.Attach(1, replacement)

	// The old stream's disconnect callback fires after replacement; it
	// must not tear down the live conn.
	q.Detach(1, old)
	if !q.Attached(1) {
		t.Fatal("Attached() = false after stale detach, want true")
	}

	q.Detach(1, replacement)
	if q.Attached(1) {
		t.Error("Attached() = true after real detach, want false")
	}
}

func TestRemoveDropsAllState(t *testing.T) {
	q := newTestQueue(t)
	conn := &fakeConn{}
	q.Attach(1, conn)
	q.Deliver(1, apply())

	q.Remove(1)

	if q.Attached(1) {
		t.Error("Attached() = true after Remove")
	}
	if _, known := q.LastCommanded(1); known {
		t.Error("LastCommanded() known after Remove, want forgotten")
	}
}

func TestBlurredTabs(t *testing.T) {
	q := newTestQueue(t)
	for _, tabID := range []int{1, 2, 3} {
		q.Attach(tabID, &fakeConn{})
	}

	q.Deliver(1, apply())
	q.Deliver(2, remove())
	q.Deliver(3, apply())

	tabs := q.BlurredTabs()
	if len(tabs) != 2 {
		t.Fatalf("BlurredTabs() = %v, want two tabs", tabs)
	}
	seen := map[int]bool{}
	for _, id := range tabs {
		seen[id] = true
	}
	if !seen[1] || !seen[3] || seen[2] {
		t.Errorf("BlurredTabs() = %v, want tabs 1 and 3", tabs)
	}
}
