package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/onchess/client-go/internal/chain"
	"github.com/onchess/client-go/pkg/gamedto"
)

const (
	me       = chain.Address("0xaaa0000000000000000000000000000000000001")
	opponent = chain.Address("0xbbb0000000000000000000000000000000000002")
)

type stubCaller struct {
	mu    sync.Mutex
	games map[uint64]*chain.GameMetadata
	calls int
}

func newStubCaller() *stubCaller {
	return &stubCaller{games: make(map[uint64]*chain.GameMetadata)}
}

func (s *stubCaller) put(meta *chain.GameMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[meta.ID] = meta
}

func (s *stubCaller) Game(ctx context.Context, gameID uint64) (*chain.GameMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	meta, ok := s.games[gameID]
	if !ok {
		return nil, errors.New("game not found")
	}
	return meta.Clone(), nil
}

func (s *stubCaller) Moves(ctx context.Context, gameID uint64) ([]string, error) { return nil, nil }
func (s *stubCaller) BlockNumber(ctx context.Context) (uint64, error)            { return 0, nil }
func (s *stubCaller) Move(ctx context.Context, gameID uint64, san string) error  { return nil }
func (s *stubCaller) Resign(ctx context.Context, gameID uint64) error            { return nil }
func (s *stubCaller) ClaimVictory(ctx context.Context, gameID uint64) error      { return nil }
func (s *stubCaller) DisputeGame(ctx context.Context, gameID uint64) error       { return nil }

func (s *stubCaller) Challenge(ctx context.Context, req chain.ChallengeRequest) (uint64, error) {
	return 42, nil
}
func (s *stubCaller) AcceptChallenge(ctx context.Context, gameID uint64) error  { return nil }
func (s *stubCaller) DeclineChallenge(ctx context.Context, gameID uint64) error { return nil }

func (s *stubCaller) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testMeta(id uint64, state chain.GameState) *chain.GameMetadata {
	return &chain.GameMetadata{
		ID:          id,
		State:       state,
		WhitePlayer: me,
		BlackPlayer: opponent,
		CurrentMove: me,
	}
}

func TestEnsureFetchesOnce(t *testing.T) {
	caller := newStubCaller()
	caller.put(testMeta(1, chain.StateStarted))
	reg := NewRegistry(caller, me)
	ctx := context.Background()

	if _, err := reg.Metadata(1); !errors.Is(err, gamedto.ErrMissingRecord) {
		t.Fatalf("Metadata before Ensure: err = %v, want ErrMissingRecord", err)
	}

	if _, err := reg.Ensure(ctx, 1); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := reg.Ensure(ctx, 1); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if got := caller.callCount(); got != 1 {
		t.Fatalf("gateway fetches = %d, want 1", got)
	}
}

func TestMetadataReturnsCopy(t *testing.T) {
	caller := newStubCaller()
	caller.put(testMeta(1, chain.StateStarted))
	reg := NewRegistry(caller, me)

	if _, err := reg.Ensure(context.Background(), 1); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	first, err := reg.Metadata(1)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	first.State = chain.StateFinished

	second, err := reg.Metadata(1)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if second.State != chain.StateStarted {
		t.Fatal("mutating a returned record changed the cache")
	}
}

func TestRefreshRefilesBuckets(t *testing.T) {
	caller := newStubCaller()
	caller.put(testMeta(1, chain.StatePending))
	reg := NewRegistry(caller, me)
	ctx := context.Background()

	if _, err := reg.Ensure(ctx, 1); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got := reg.Challenges(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("Challenges = %v, want [1]", got)
	}

	caller.put(testMeta(1, chain.StateStarted))
	if _, err := reg.Refresh(ctx, 1); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(reg.Challenges()) != 0 {
		t.Fatalf("Challenges = %v, want empty", reg.Challenges())
	}
	if got := reg.Games(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("Games = %v, want [1]", got)
	}

	caller.put(testMeta(1, chain.StateFinished))
	if _, err := reg.Refresh(ctx, 1); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(reg.Games()) != 0 {
		t.Fatalf("Games = %v, want empty", reg.Games())
	}
	if got := reg.History(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("History = %v, want [1]", got)
	}
}

func TestHandleLobbyEvents(t *testing.T) {
	caller := newStubCaller()
	caller.put(testMeta(5, chain.StatePending))
	reg := NewRegistry(caller, me)
	ctx := context.Background()

	reg.HandleEvent(ctx, &chain.Event{Kind: chain.EventNewChallenge, GameID: 5})
	if got := reg.Challenges(); len(got) != 1 || got[0] != 5 {
		t.Fatalf("Challenges = %v, want [5]", got)
	}

	caller.put(testMeta(5, chain.StateStarted))
	reg.HandleEvent(ctx, &chain.Event{Kind: chain.EventChallengeAccepted, GameID: 5})
	if len(reg.Challenges()) != 0 {
		t.Fatalf("Challenges = %v, want empty", reg.Challenges())
	}
	if got := reg.Games(); len(got) != 1 || got[0] != 5 {
		t.Fatalf("Games = %v, want [5]", got)
	}

	caller.put(testMeta(5, chain.StateFinished))
	reg.HandleEvent(ctx, &chain.Event{Kind: chain.EventGameFinished, GameID: 5})
	if len(reg.Games()) != 0 {
		t.Fatalf("Games = %v, want empty", reg.Games())
	}
	if got := reg.History(); len(got) != 1 || got[0] != 5 {
		t.Fatalf("History = %v, want [5]", got)
	}
}

func TestChallengeDeclinedDropsRecord(t *testing.T) {
	caller := newStubCaller()
	caller.put(testMeta(5, chain.StatePending))
	reg := NewRegistry(caller, me)
	ctx := context.Background()

	reg.HandleEvent(ctx, &chain.Event{Kind: chain.EventNewChallenge, GameID: 5})
	reg.HandleEvent(ctx, &chain.Event{Kind: chain.EventChallengeDeclined, GameID: 5})

	if len(reg.Challenges()) != 0 {
		t.Fatalf("Challenges = %v, want empty", reg.Challenges())
	}
	if _, err := reg.Metadata(5); !errors.Is(err, gamedto.ErrMissingRecord) {
		t.Fatalf("Metadata after decline: err = %v, want ErrMissingRecord", err)
	}
}

func TestOpponentAndTurnHelpers(t *testing.T) {
	caller := newStubCaller()
	caller.put(testMeta(1, chain.StateStarted))
	reg := NewRegistry(caller, me)
	ctx := context.Background()

	if _, err := reg.Ensure(ctx, 1); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	opp, err := reg.Opponent(1)
	if err != nil {
		t.Fatalf("Opponent: %v", err)
	}
	if opp != opponent {
		t.Fatalf("Opponent = %s, want %s", opp, opponent)
	}

	white, err := reg.IsWhitePlayer(1)
	if err != nil || !white {
		t.Fatalf("IsWhitePlayer = %v, %v; want true, nil", white, err)
	}
	myTurn, err := reg.IsCurrentMove(1)
	if err != nil || !myTurn {
		t.Fatalf("IsCurrentMove = %v, %v; want true, nil", myTurn, err)
	}

	spectator := NewRegistry(caller, chain.Address("0xnobody"))
	if _, err := spectator.Ensure(ctx, 1); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := spectator.Opponent(1); !errors.Is(err, gamedto.ErrNotAPlayer) {
		t.Fatalf("spectator Opponent err = %v, want ErrNotAPlayer", err)
	}
}
