package chain

// Seq is the delivery sequence of an on-chain event: block number plus log
// index within the block. Listeners dedupe by keeping a high-watermark and
// discarding anything not strictly after it.
type Seq struct {
	Block uint64
	Log   uint32
}

// After reports whether s was emitted strictly after other.
func (s Seq) After(other Seq) bool {
	if s.Block != other.Block {
		return s.Block > other.Block
	}
	return s.Log > other.Log
}

// EventKind names the contract events the client consumes.
type EventKind string

const (
	EventMoveSAN           EventKind = "MoveSAN"
	EventGameOver          EventKind = "GameOver"
	EventGameDisputed      EventKind = "GameDisputed"
	EventNewChallenge      EventKind = "NewChallenge"
	EventChallengeAccepted EventKind = "ChallengeAccepted"
	EventChallengeDeclined EventKind = "ChallengeDeclined"
	EventGameFinished      EventKind = "GameFinished"
	EventTouchRecord       EventKind = "TouchRecord"
)

// Event is one decoded contract event. Fields beyond Kind/GameID/Seq are
// populated per kind: SAN+Player for moves, Outcome+Winner for terminations.
type Event struct {
	Kind    EventKind
	GameID  uint64
	Player  Address
	SAN     string
	Outcome GameOutcome
	Winner  Address
	Seq     Seq
}
