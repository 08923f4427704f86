package budget

import (
	"testing"
	"time"

	"github.com/dimtab/dimtab/internal/clock"
	"github.com/rs/zerolog"
)

func newTestStore(timeout time.Duration) (*Store, *clock.TestClock) {
	clk := &clock.TestClock{CurrentTime: time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)}
	return NewStore(timeout, clk, zerolog.Nop()), clk
}

func TestGetCreatesLazily(t *testing.T) {
	store, _ := newTestStore(30 * time.Minute)

	entry := store.Get("youtube.com")
	if entry.SiteKey != "youtube.com" {
		t.Errorf("Get() SiteKey = %q, want %q", entry.SiteKey, "youtube.com")
	}
	if entry.AccumulatedMillis != 0 {
		t.Errorf("Get() AccumulatedMillis = %d, want 0", entry.AccumulatedMillis)
	}
	if entry.LastResetDay != "2024-03-14" {
		t.Errorf("Get() LastResetDay = %q, want %q", entry.LastResetDay, "2024-03-14")
	}
}

func TestAddElapsed(t *testing.T) {
	store, _ := newTestStore(30 * time.Minute)

	store.AddElapsed("youtube.com", 90*time.Second)
	store.AddElapsed("youtube.com", 30*time.Second)

	if got := store.Accumulated("youtube.com"); got != 2*time.Minute {
		t.Errorf("Accumulated() = %v, want %v", got, 2*time.Minute)
	}

	// Other sites keep independent ledgers.
	if got := store.Accumulated("reddit.com"); got != 0 {
		t.Errorf("Accumulated(reddit.com) = %v, want 0", got)
	}
}

func TestAddElapsedNegativeClamped(t *testing.T) {
	store, _ := newTestStore(30 * time.Minute)

	store.AddElapsed("youtube.com", -5*time.Second)
	if got := store.Accumulated("youtube.com"); got != 0 {
		t.Errorf("Accumulated() after negative add = %v, want 0", got)
	}
}

func TestDailyResetOnGet(t *testing.T) {
	store, clk := newTestStore(30 * time.Minute)

	store.AddElapsed("youtube.com", 45*time.Minute)

	// Next calendar day: the first read zeroes the entry before use.
	clk.Advance(24 * time.Hour)

	entry := store.Get("youtube.com")
	if entry.AccumulatedMillis != 0 {
		t.Errorf("Get() after day change AccumulatedMillis = %d, want 0", entry.AccumulatedMillis)
	}
	if entry.LastResetDay != "2024-03-15" {
		t.Errorf("Get() after day change LastResetDay = %q, want %q", entry.LastResetDay, "2024-03-15")
	}
}

func TestDailyResetOnAddElapsed(t *testing.T) {
	store, clk := newTestStore(30 * time.Minute)

	store.AddElapsed("youtube.com", 45*time.Minute)
	clk.Advance(24 * time.Hour)

	// The reset check runs before the write, so yesterday's time is
	// discarded and only the new elapsed time remains.
	store.AddElapsed("youtube.com", time.Minute)

	if got := store.Accumulated("youtube.com"); got != time.Minute {
		t.Errorf("Accumulated() after day change = %v, want %v", got, time.Minute)
	}
}

func TestDailyResetIdempotent(t *testing.T) {
	store, clk := newTestStore(30 * time.Minute)

	store.AddElapsed("youtube.com", 45*time.Minute)
	clk.Advance(24 * time.Hour)

	// Repeated reads on the new day must be safe.
	for i := 0; i < 3; i++ {
		if entry := store.Get("youtube.com"); entry.AccumulatedMillis != 0 {
			t.Fatalf("Get() read %d AccumulatedMillis = %d, want 0", i, entry.AccumulatedMillis)
		}
	}
}

func TestTimeout(t *testing.T) {
	store, _ := newTestStore(42 * time.Minute)
	if got := store.Timeout(); got != 42*time.Minute {
		t.Errorf("Timeout() = %v, want %v", got, 42*time.Minute)
	}
}
