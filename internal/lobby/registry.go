package lobby

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/onchess/client-go/internal/chain"
	"github.com/onchess/client-go/internal/obslog"
	"github.com/onchess/client-go/pkg/gamedto"
)

// Registry caches on-chain game metadata for one wallet and tracks which
// games are open challenges, running, or finished. All mutation funnels
// through Ensure/Refresh and HandleEvent; reads hand out copies. The chain is
// authoritative, so overlapping refreshes resolve last-write-wins.
type Registry struct {
	mu sync.RWMutex

	caller chain.Caller
	wallet chain.Address

	pending  []uint64
	current  []uint64
	finished []uint64

	metadata map[uint64]*chain.GameMetadata
}

func NewRegistry(caller chain.Caller, wallet chain.Address) *Registry {
	return &Registry{
		caller:   caller,
		wallet:   wallet,
		metadata: make(map[uint64]*chain.GameMetadata),
	}
}

func (r *Registry) Wallet() chain.Address { return r.wallet }

// Has reports whether gameID is cached.
func (r *Registry) Has(gameID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.metadata[gameID]
	return ok
}

// Metadata returns a copy of the cached record, or ErrMissingRecord when the
// game was never fetched; callers must Ensure first.
func (r *Registry) Metadata(gameID uint64) (*chain.GameMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.metadata[gameID]
	if !ok {
		return nil, gamedto.ErrMissingRecord
	}
	return meta.Clone(), nil
}

// Ensure returns the cached record, fetching it on first reference.
func (r *Registry) Ensure(ctx context.Context, gameID uint64) (*chain.GameMetadata, error) {
	r.mu.RLock()
	meta, ok := r.metadata[gameID]
	r.mu.RUnlock()
	if ok {
		return meta.Clone(), nil
	}
	return r.Refresh(ctx, gameID)
}

// Refresh re-fetches the record from chain and swaps it into the cache as one
// atomic write. It also re-files the game id into the right lifecycle bucket.
func (r *Registry) Refresh(ctx context.Context, gameID uint64) (*chain.GameMetadata, error) {
	meta, err := r.caller.Game(ctx, gameID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.metadata[gameID] = meta
	switch meta.State {
	case chain.StatePending:
		r.pending = union(r.pending, gameID)
	case chain.StateFinished, chain.StateMigrated:
		r.pending = without(r.pending, gameID)
		r.current = without(r.current, gameID)
		r.finished = union(r.finished, gameID)
	default:
		r.pending = without(r.pending, gameID)
		r.finished = without(r.finished, gameID)
		r.current = union(r.current, gameID)
	}
	r.mu.Unlock()

	obslog.L().Debug("lobby_refresh",
		zap.Uint64("game_id", gameID),
		zap.String("state", meta.State.String()),
		zap.String("outcome", meta.Outcome.String()),
	)
	return meta.Clone(), nil
}

// HandleEvent folds a lobby-level event into the registry. Metadata for the
// touched game is re-fetched rather than patched locally.
func (r *Registry) HandleEvent(ctx context.Context, ev *chain.Event) {
	if ev == nil {
		return
	}
	switch ev.Kind {
	case chain.EventNewChallenge:
		r.mu.Lock()
		r.pending = union(r.pending, ev.GameID)
		r.mu.Unlock()
		obslog.L().Info("lobby_new_challenge", zap.Uint64("game_id", ev.GameID))
		if _, err := r.Refresh(ctx, ev.GameID); err != nil {
			obslog.L().Warn("lobby_refresh_error", zap.Uint64("game_id", ev.GameID), zap.Error(err))
		}
	case chain.EventChallengeAccepted:
		r.mu.Lock()
		r.pending = without(r.pending, ev.GameID)
		r.current = union(r.current, ev.GameID)
		r.mu.Unlock()
		obslog.L().Info("lobby_game_start", zap.Uint64("game_id", ev.GameID))
		if _, err := r.Refresh(ctx, ev.GameID); err != nil {
			obslog.L().Warn("lobby_refresh_error", zap.Uint64("game_id", ev.GameID), zap.Error(err))
		}
	case chain.EventChallengeDeclined:
		r.mu.Lock()
		r.pending = without(r.pending, ev.GameID)
		delete(r.metadata, ev.GameID)
		r.mu.Unlock()
		obslog.L().Info("lobby_challenge_declined", zap.Uint64("game_id", ev.GameID))
	case chain.EventGameFinished:
		r.mu.Lock()
		r.current = without(r.current, ev.GameID)
		r.finished = union(r.finished, ev.GameID)
		r.mu.Unlock()
		obslog.L().Info("lobby_game_finish", zap.Uint64("game_id", ev.GameID))
		if _, err := r.Refresh(ctx, ev.GameID); err != nil {
			obslog.L().Warn("lobby_refresh_error", zap.Uint64("game_id", ev.GameID), zap.Error(err))
		}
	case chain.EventTouchRecord:
		if r.Has(ev.GameID) {
			if _, err := r.Refresh(ctx, ev.GameID); err != nil {
				obslog.L().Warn("lobby_refresh_error", zap.Uint64("game_id", ev.GameID), zap.Error(err))
			}
		}
	}
}

// Opponent returns the other participant, or ErrNotAPlayer when the wallet is
// a spectator.
func (r *Registry) Opponent(gameID uint64) (chain.Address, error) {
	meta, err := r.Metadata(gameID)
	if err != nil {
		return "", err
	}
	switch r.wallet {
	case meta.WhitePlayer:
		return meta.BlackPlayer, nil
	case meta.BlackPlayer:
		return meta.WhitePlayer, nil
	}
	return "", gamedto.ErrNotAPlayer
}

func (r *Registry) IsWhitePlayer(gameID uint64) (bool, error) {
	meta, err := r.Metadata(gameID)
	if err != nil {
		return false, err
	}
	return r.wallet == meta.WhitePlayer, nil
}

func (r *Registry) IsCurrentMove(gameID uint64) (bool, error) {
	meta, err := r.Metadata(gameID)
	if err != nil {
		return false, err
	}
	return r.wallet == meta.CurrentMove, nil
}

// Challenges lists open challenge game ids.
func (r *Registry) Challenges() []uint64 { return r.snapshotIDs(&r.pending) }

// Games lists running game ids.
func (r *Registry) Games() []uint64 { return r.snapshotIDs(&r.current) }

// History lists finished game ids.
func (r *Registry) History() []uint64 { return r.snapshotIDs(&r.finished) }

func (r *Registry) snapshotIDs(list *[]uint64) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]uint64(nil), (*list)...)
}

// Challenge, AcceptChallenge and DeclineChallenge pass through to the
// contract; the resulting lobby events drive the registry's own bookkeeping.
func (r *Registry) Challenge(ctx context.Context, req chain.ChallengeRequest) (uint64, error) {
	return r.caller.Challenge(ctx, req)
}

func (r *Registry) AcceptChallenge(ctx context.Context, gameID uint64) error {
	return r.caller.AcceptChallenge(ctx, gameID)
}

func (r *Registry) DeclineChallenge(ctx context.Context, gameID uint64) error {
	return r.caller.DeclineChallenge(ctx, gameID)
}

func union(list []uint64, id uint64) []uint64 {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func without(list []uint64, id uint64) []uint64 {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
