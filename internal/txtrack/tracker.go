package txtrack

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/onchess/client-go/internal/chain"
	"github.com/onchess/client-go/internal/obslog"
	"github.com/onchess/client-go/pkg/gamedto"
)

// Kind names the state-changing actions whose transactions are tracked.
type Kind string

const (
	KindMove         Kind = "move"
	KindResign       Kind = "resign"
	KindClaimVictory Kind = "claim_victory"
	KindDispute      Kind = "dispute"
)

// PendingAction is one submitted transaction awaiting its confirmation event.
// It resolves exactly once, either with the event payload or with the
// submission error.
type PendingAction struct {
	ID          string
	GameID      uint64
	Kind        Kind
	SubmittedAt time.Time

	once    sync.Once
	done    chan struct{}
	payload *chain.Event
	err     error
}

// Wait blocks until the action resolves or ctx expires.
func (p *PendingAction) Wait(ctx context.Context) (*chain.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.payload, p.err
	}
}

// Resolved reports whether the confirmation (or failure) already landed.
func (p *PendingAction) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *PendingAction) resolve(ev *chain.Event, err error) {
	p.once.Do(func() {
		p.payload = ev
		p.err = err
		close(p.done)
	})
}

// Tracker owns the pending flags for one game session. At most one action of
// a given kind may be in flight; a second submission before the first
// confirmation is rejected with ErrActionInFlight. Open actions are mirrored
// into the optional Store so a torn-down session can account for them on the
// next start.
type Tracker struct {
	mu     sync.Mutex
	gameID uint64
	wallet chain.Address
	store  *Store
	open   map[Kind]*PendingAction
}

func NewTracker(gameID uint64, wallet chain.Address, store *Store) *Tracker {
	return &Tracker{
		gameID: gameID,
		wallet: wallet,
		store:  store,
		open:   make(map[Kind]*PendingAction),
	}
}

// Begin opens a PendingAction of the given kind. The caller invokes the
// remote call after Begin succeeds and must pair every Begin with either
// Resolve (event observed) or Fail (call error).
func (t *Tracker) Begin(ctx context.Context, kind Kind) (*PendingAction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.open[kind]; exists {
		return nil, gamedto.ErrActionInFlight
	}
	p := &PendingAction{
		ID:          uuid.NewString(),
		GameID:      t.gameID,
		Kind:        kind,
		SubmittedAt: time.Now(),
		done:        make(chan struct{}),
	}
	t.open[kind] = p
	if t.store != nil {
		if err := t.store.SavePending(ctx, t.gameID, t.wallet, kind, p.SubmittedAt); err != nil {
			obslog.L().Warn("txtrack_persist_error", zap.Uint64("game_id", t.gameID), zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	obslog.L().Info("txtrack_begin",
		zap.Uint64("game_id", t.gameID),
		zap.String("kind", string(kind)),
		zap.String("action_id", p.ID),
	)
	return p, nil
}

// Resolve completes the open action of the given kind with the confirmation
// event. The listener is one-shot: the action is removed before the waiter is
// woken, so a duplicate event cannot resolve anything twice. Returns false
// when no action of that kind was open.
func (t *Tracker) Resolve(ctx context.Context, kind Kind, ev *chain.Event) bool {
	t.mu.Lock()
	p, ok := t.open[kind]
	if ok {
		delete(t.open, kind)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	t.clearStored(ctx, kind)
	p.resolve(ev, nil)
	obslog.L().Info("txtrack_confirm",
		zap.Uint64("game_id", t.gameID),
		zap.String("kind", string(kind)),
		zap.String("action_id", p.ID),
		zap.Uint64("block", ev.Seq.Block),
	)
	return true
}

// Fail aborts the open action of the given kind after its remote call failed.
// The pending flag clears immediately; the error propagates to any waiter.
func (t *Tracker) Fail(ctx context.Context, kind Kind, err error) {
	t.mu.Lock()
	p, ok := t.open[kind]
	if ok {
		delete(t.open, kind)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	t.clearStored(ctx, kind)
	p.resolve(nil, err)
	obslog.L().Warn("txtrack_fail",
		zap.Uint64("game_id", t.gameID),
		zap.String("kind", string(kind)),
		zap.String("action_id", p.ID),
		zap.Error(err),
	)
}

// Pending reports whether an action of the given kind is awaiting
// confirmation.
func (t *Tracker) Pending(kind Kind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.open[kind]
	return ok
}

// Flags snapshots all pending flags for the UI.
func (t *Tracker) Flags() gamedto.Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gamedto.Pending{
		Move:         t.open[KindMove] != nil,
		Resign:       t.open[KindResign] != nil,
		ClaimVictory: t.open[KindClaimVictory] != nil,
		Dispute:      t.open[KindDispute] != nil,
	}
}

// AbandonStale clears actions a previous session left in the store without
// observing their confirmation. They are abandoned, not re-armed: without the
// original transaction handle there is no safe way to re-attach, and the next
// metadata refresh reflects whatever the chain decided.
func (t *Tracker) AbandonStale(ctx context.Context) ([]Kind, error) {
	if t.store == nil {
		return nil, nil
	}
	stale, err := t.store.LoadPending(ctx, t.gameID, t.wallet)
	if err != nil {
		return nil, err
	}
	kinds := make([]Kind, 0, len(stale))
	for kind, at := range stale {
		kinds = append(kinds, kind)
		obslog.L().Warn("txtrack_abandon_stale",
			zap.Uint64("game_id", t.gameID),
			zap.String("kind", string(kind)),
			zap.Time("submitted_at", at),
		)
		t.clearStored(ctx, kind)
	}
	return kinds, nil
}

func (t *Tracker) clearStored(ctx context.Context, kind Kind) {
	if t.store == nil {
		return
	}
	if err := t.store.ClearPending(ctx, t.gameID, t.wallet, kind); err != nil {
		obslog.L().Warn("txtrack_persist_error", zap.Uint64("game_id", t.gameID), zap.String("kind", string(kind)), zap.Error(err))
	}
}
