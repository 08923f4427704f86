package override

import (
	"testing"
	"time"

	"github.com/dimtab/dimtab/internal/clock"
	"github.com/rs/zerolog"
)

func newTestWindow() (*Window, *clock.TestClock) {
	clk := &clock.TestClock{CurrentTime: time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)}
	return NewWindow(clk, zerolog.Nop()), clk
}

func TestInactiveByDefault(t *testing.T) {
	w, _ := newTestWindow()
	if w.IsActive() {
		t.Error("IsActive() on new window = true, want false")
	}
	if got := w.Remaining(); got != 0 {
		t.Errorf("Remaining() on new window = %v, want 0", got)
	}
}

func TestActivateAndExpire(t *testing.T) {
	w, clk := newTestWindow()

	w.Activate(5 * time.Second)
	if !w.IsActive() {
		t.Fatal("IsActive() after Activate = false, want true")
	}
	if got := w.Remaining(); got != 5*time.Second {
		t.Errorf("Remaining() = %v, want %v", got, 5*time.Second)
	}

	clk.Advance(4 * time.Second)
	if !w.IsActive() {
		t.Error("IsActive() at 4s of 5s window = false, want true")
	}

	clk.Advance(time.Second)
	if w.IsActive() {
		t.Error("IsActive() at exact end = true, want false")
	}
	if got := w.Remaining(); got != 0 {
		t.Errorf("Remaining() after expiry = %v, want 0", got)
	}
}

func TestActivateReplacesNotStacks(t *testing.T) {
	w, clk := newTestWindow()

	w.Activate(10 * time.Second)
	clk.Advance(8 * time.Second)

	// A second activation replaces the remaining 2s with a fresh 5s.
	w.Activate(5 * time.Second)
	if got := w.Remaining(); got != 5*time.Second {
		t.Errorf("Remaining() after replacement = %v, want %v", got, 5*time.Second)
	}
}

func TestClear(t *testing.T) {
	w, _ := newTestWindow()

	w.Activate(time.Minute)
	w.Clear()
	if w.IsActive() {
		t.Error("IsActive() after Clear = true, want false")
	}

	// Clearing an inactive window is safe.
	w.Clear()
}
