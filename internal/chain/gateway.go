package chain

import "context"

// Caller exposes the contract's read and state-changing entry points via the
// bridge gateway. State-changing calls return once the transaction is
// broadcast and accepted by the signer; confirmation arrives separately as an
// event on the EventStream.
type Caller interface {
	// Reads.
	Game(ctx context.Context, gameID uint64) (*GameMetadata, error)
	Moves(ctx context.Context, gameID uint64) ([]string, error)
	BlockNumber(ctx context.Context) (uint64, error)

	// Game actions.
	Move(ctx context.Context, gameID uint64, san string) error
	Resign(ctx context.Context, gameID uint64) error
	ClaimVictory(ctx context.Context, gameID uint64) error
	DisputeGame(ctx context.Context, gameID uint64) error

	// Lobby actions.
	Challenge(ctx context.Context, req ChallengeRequest) (uint64, error)
	AcceptChallenge(ctx context.Context, gameID uint64) error
	DeclineChallenge(ctx context.Context, gameID uint64) error
}

// EventStream delivers decoded contract events. Delivery is at-least-once and
// in block order per the transport contract; consumers dedupe with Seq.
// Callback registration returns an id for paired removal so sessions can tear
// down without leaking handlers.
type EventStream interface {
	Connect(ctx context.Context) error
	OnEvent(cb func(*Event)) int
	RemoveCallback(id int)
	Close(ctx context.Context) error
}
