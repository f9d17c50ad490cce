package txtrack

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/onchess/client-go/internal/chain"
	"github.com/onchess/client-go/pkg/gamedto"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	url := fmt.Sprintf("redis://%s/0", mr.Addr())
	s, err := NewStoreFromURL(context.Background(), url)
	if err != nil {
		t.Fatalf("NewStoreFromURL: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBeginResolveProtocol(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(7, "0xabc", newTestStore(t))

	p, err := tr.Begin(ctx, KindMove)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !tr.Pending(KindMove) {
		t.Fatalf("expected pending flag after Begin")
	}

	// Second in-flight submission of the same kind is rejected.
	if _, err := tr.Begin(ctx, KindMove); !errors.Is(err, gamedto.ErrActionInFlight) {
		t.Fatalf("expected ErrActionInFlight, got %v", err)
	}
	// Different kind is independent.
	if _, err := tr.Begin(ctx, KindResign); err != nil {
		t.Fatalf("Begin resign: %v", err)
	}

	ev := &chain.Event{Kind: chain.EventMoveSAN, GameID: 7, SAN: "e4", Seq: chain.Seq{Block: 10}}
	if !tr.Resolve(ctx, KindMove, ev) {
		t.Fatalf("Resolve returned false for open action")
	}
	if tr.Pending(KindMove) {
		t.Fatalf("pending flag not cleared on resolve")
	}

	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	got, err := p.Wait(wctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got.SAN != "e4" {
		t.Fatalf("unexpected payload: %+v", got)
	}

	// One-shot: a duplicate confirmation resolves nothing.
	if tr.Resolve(ctx, KindMove, ev) {
		t.Fatalf("duplicate event resolved a second time")
	}
}

func TestFailClearsPendingAndPropagates(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(7, "0xabc", nil)

	p, err := tr.Begin(ctx, KindClaimVictory)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	boom := errors.New("execution reverted")
	tr.Fail(ctx, KindClaimVictory, boom)
	if tr.Pending(KindClaimVictory) {
		t.Fatalf("pending flag survived Fail")
	}
	if _, err := p.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected submission error from Wait, got %v", err)
	}
}

func TestAbandonStaleFromPreviousSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Previous session left a move pending.
	first := NewTracker(9, "0xdef", store)
	if _, err := first.Begin(ctx, KindMove); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	second := NewTracker(9, "0xdef", store)
	kinds, err := second.AbandonStale(ctx)
	if err != nil {
		t.Fatalf("AbandonStale: %v", err)
	}
	if len(kinds) != 1 || kinds[0] != KindMove {
		t.Fatalf("expected stale move action, got %v", kinds)
	}
	// Store is clean afterwards.
	stale, err := store.LoadPending(ctx, 9, "0xdef")
	if err != nil {
		t.Fatalf("LoadPending: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("stale actions not cleared: %v", stale)
	}
	// A fresh submission of the same kind is allowed again.
	if _, err := second.Begin(ctx, KindMove); err != nil {
		t.Fatalf("Begin after abandon: %v", err)
	}
}

func TestWatermarkRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, ok, err := store.LoadWatermark(ctx, 3, "0xaaa"); err != nil || ok {
		t.Fatalf("expected no watermark initially: ok=%v err=%v", ok, err)
	}
	want := chain.Seq{Block: 1234, Log: 7}
	if err := store.SaveWatermark(ctx, 3, "0xaaa", want); err != nil {
		t.Fatalf("SaveWatermark: %v", err)
	}
	got, ok, err := store.LoadWatermark(ctx, 3, "0xaaa")
	if err != nil || !ok {
		t.Fatalf("LoadWatermark: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("watermark mismatch: got %+v want %+v", got, want)
	}
}
