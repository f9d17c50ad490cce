package domain

import "time"

// FinishedGame is the archived record of a completed on-chain game, written
// once when a session observes the terminal state.
type FinishedGame struct {
	ID          int64
	GameID      uint64
	SessionUUID string
	Wallet      string
	WhitePlayer string
	BlackPlayer string
	Outcome     string
	Winner      string
	WagerAmount string
	MovesSAN    []string
	FinalFEN    string
	TimePerMove int64
	StartedAt   time.Time
	EndedAt     time.Time
}
