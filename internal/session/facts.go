package session

import (
	"github.com/onchess/client-go/internal/chain"
	"github.com/onchess/client-go/internal/rules"
	"github.com/onchess/client-go/pkg/gamedto"
)

// Facts is the derived truth for one wallet looking at one game. It is never
// stored; Project recomputes it from the current position and metadata on
// every read so no field can go stale.
type Facts struct {
	IsPlayer      bool
	IsWhitePlayer bool
	IsBlackPlayer bool
	PlayerColor   rules.Color
	OpponentColor rules.Color

	IsCurrentMove   bool
	IsOpponentsMove bool

	InCheck             bool
	OpponentInCheck     bool
	InCheckmate         bool
	OpponentInCheckmate bool
	InStalemate         bool

	CheckmatePending         bool
	OpponentCheckmatePending bool

	GameOver    bool
	IsStalemate bool
	IsWinner    bool
	IsLoser     bool
}

// Colors resolves the wallet's side. Spectators get ErrNotAPlayer.
func Colors(meta *chain.GameMetadata, wallet chain.Address) (player, opponent rules.Color, err error) {
	switch {
	case meta.WhitePlayer == wallet:
		return rules.White, rules.Black, nil
	case meta.BlackPlayer == wallet:
		return rules.Black, rules.White, nil
	}
	return rules.NoColor, rules.NoColor, gamedto.ErrNotAPlayer
}

// Project derives all game facts from the merged state of the local position
// and the authoritative metadata. Spectator wallets get board-level facts
// only; every player-relative field stays false.
func Project(eng *rules.Engine, fen string, meta *chain.GameMetadata, wallet chain.Address) Facts {
	var f Facts
	if meta == nil {
		return f
	}

	f.GameOver = meta.State == chain.StateFinished || meta.State == chain.StateDraw
	f.IsStalemate = meta.Outcome == chain.OutcomeDraw
	f.InStalemate = eng.IsStalemate(fen)

	player, opponent, err := Colors(meta, wallet)
	if err != nil {
		return f
	}
	f.IsPlayer = true
	f.IsWhitePlayer = player == rules.White
	f.IsBlackPlayer = player == rules.Black
	f.PlayerColor = player
	f.OpponentColor = opponent

	if meta.State == chain.StateStarted {
		f.IsCurrentMove = meta.CurrentMove == wallet
		f.IsOpponentsMove = !f.IsCurrentMove
	}

	turn, terr := eng.Turn(fen)
	if terr == nil {
		check := eng.IsCheck(fen)
		mate := eng.IsCheckmate(fen)
		f.InCheck = check && turn == player
		f.OpponentInCheck = check && turn == opponent
		f.InCheckmate = mate && turn == player
		f.OpponentInCheckmate = mate && turn == opponent
	}

	// The window between a mating move confirming and the contract's own
	// finalization; UI shows claim-victory affordances off these.
	f.CheckmatePending = f.InCheckmate && meta.State != chain.StateFinished
	f.OpponentCheckmatePending = f.OpponentInCheckmate && meta.State != chain.StateFinished

	finished := meta.State == chain.StateFinished
	f.IsWinner = finished &&
		((f.IsWhitePlayer && meta.Outcome == chain.OutcomeWhiteWon) ||
			(f.IsBlackPlayer && meta.Outcome == chain.OutcomeBlackWon))
	f.IsLoser = finished && !f.IsStalemate && !f.IsWinner

	return f
}

// View flattens Facts into the wire DTO.
func (f Facts) View() gamedto.FactsView {
	return gamedto.FactsView{
		IsPlayer:                 f.IsPlayer,
		IsWhitePlayer:            f.IsWhitePlayer,
		IsBlackPlayer:            f.IsBlackPlayer,
		PlayerColor:              string(f.PlayerColor),
		OpponentColor:            string(f.OpponentColor),
		IsCurrentMove:            f.IsCurrentMove,
		IsOpponentsMove:          f.IsOpponentsMove,
		InCheck:                  f.InCheck,
		OpponentInCheck:          f.OpponentInCheck,
		InCheckmate:              f.InCheckmate,
		OpponentInCheckmate:      f.OpponentInCheckmate,
		InStalemate:              f.InStalemate,
		CheckmatePending:         f.CheckmatePending,
		OpponentCheckmatePending: f.OpponentCheckmatePending,
		GameOver:                 f.GameOver,
		IsStalemate:              f.IsStalemate,
		IsWinner:                 f.IsWinner,
		IsLoser:                  f.IsLoser,
	}
}
