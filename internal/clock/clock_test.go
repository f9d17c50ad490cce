package clock

import (
	"testing"
	"time"

	"github.com/onchess/client-go/internal/chain"
)

func fixedClock(at int64) *MoveClock {
	c := NewMoveClock()
	c.SetNow(func() time.Time { return time.Unix(at, 0) })
	return c
}

func TestCountdown(t *testing.T) {
	meta := &chain.GameMetadata{TimePerMove: 60, TimeOfLastMove: 1000}

	c := fixedClock(1000)
	if got := c.TimeUntilExpiry(meta); got != 60 {
		t.Fatalf("expected 60s remaining, got %d", got)
	}
	if c.Expired(meta) {
		t.Fatalf("clock expired at move time")
	}

	c = fixedClock(1059)
	if got := c.TimeUntilExpiry(meta); got != 1 {
		t.Fatalf("expected 1s remaining, got %d", got)
	}

	// One past the budget: clamped to zero and expired.
	c = fixedClock(1061)
	if got := c.TimeUntilExpiry(meta); got != 0 {
		t.Fatalf("expected 0s remaining, got %d", got)
	}
	if !c.Expired(meta) {
		t.Fatalf("expected expiry at T+61")
	}
}

func TestFieldsChargeTheRightSide(t *testing.T) {
	meta := &chain.GameMetadata{TimePerMove: 60, TimeOfLastMove: 1000}
	c := fixedClock(2000)

	mine := c.Fields(meta, true)
	if !mine.TimerExpired || !mine.PlayerTimeExpired || mine.OpponentTimeExpired {
		t.Fatalf("expected player expiry: %+v", mine)
	}
	theirs := c.Fields(meta, false)
	if !theirs.TimerExpired || theirs.PlayerTimeExpired || !theirs.OpponentTimeExpired {
		t.Fatalf("expected opponent expiry: %+v", theirs)
	}
	if mine.TimeOfExpiry != 1060 {
		t.Fatalf("expected expiry at 1060, got %d", mine.TimeOfExpiry)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	c := NewMoveClock()
	ticks := make(chan struct{}, 1)
	c.Start(func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	// Second start while running must not spawn a second loop.
	c.Start(func() { t.Errorf("second tick callback installed") })
	if !c.Running() {
		t.Fatalf("clock not running after Start")
	}
	c.Stop()
	c.Stop()
	if c.Running() {
		t.Fatalf("clock running after Stop")
	}
}
