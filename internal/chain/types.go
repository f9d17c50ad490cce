package chain

import (
	"math/big"
	"strings"
)

// GameState mirrors the contract's game lifecycle enum. Values advance
// monotonically on-chain; the client only ever re-fetches them.
type GameState uint8

const (
	StatePending GameState = iota
	StateStarted
	StateDraw
	StateFinished
	StateReview
	StateMigrated
)

func (s GameState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarted:
		return "started"
	case StateDraw:
		return "draw"
	case StateFinished:
		return "finished"
	case StateReview:
		return "review"
	case StateMigrated:
		return "migrated"
	}
	return "unknown"
}

// GameOutcome mirrors the contract's outcome enum.
type GameOutcome uint8

const (
	OutcomeUndecided GameOutcome = iota
	OutcomeDeclined
	OutcomeWhiteWon
	OutcomeBlackWon
	OutcomeDraw
)

func (o GameOutcome) String() string {
	switch o {
	case OutcomeUndecided:
		return "undecided"
	case OutcomeDeclined:
		return "declined"
	case OutcomeWhiteWon:
		return "white_won"
	case OutcomeBlackWon:
		return "black_won"
	case OutcomeDraw:
		return "draw"
	}
	return "unknown"
}

// Address is a normalized (lowercased) hex account address.
type Address string

func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

func (a Address) IsZero() bool { return strings.TrimSpace(string(a)) == "" }

// GameMetadata is the cached copy of the on-chain game record. The chain owns
// it; the client refreshes the whole record atomically and never mutates
// fields locally. WagerAmount stays a big integer because on-chain amounts
// exceed int64; timestamps and counters are contractually bounded and use
// native integers.
type GameMetadata struct {
	ID             uint64
	State          GameState
	Outcome        GameOutcome
	WhitePlayer    Address
	BlackPlayer    Address
	CurrentMove    Address
	TimePerMove    int64
	TimeOfLastMove int64
	WagerAmount    *big.Int
}

// Clone returns a deep copy so cached records can be handed out without
// aliasing the registry's storage.
func (m *GameMetadata) Clone() *GameMetadata {
	if m == nil {
		return nil
	}
	out := *m
	if m.WagerAmount != nil {
		out.WagerAmount = new(big.Int).Set(m.WagerAmount)
	}
	return &out
}

// IsPlayer reports whether addr participates in this game.
func (m *GameMetadata) IsPlayer(addr Address) bool {
	return addr == m.WhitePlayer || addr == m.BlackPlayer
}

// ChallengeRequest is the payload for creating a new lobby challenge.
type ChallengeRequest struct {
	Opponent    Address
	StartAsWhite bool
	TimePerMove int64
	WagerAmount *big.Int
}
