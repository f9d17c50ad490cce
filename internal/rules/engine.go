package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/onchess/client-go/pkg/gamedto"
)

// InitialFEN is the standard chess starting position.
const InitialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Color identifies a side in the single-letter form used by board front ends.
type Color string

const (
	White   Color = "w"
	Black   Color = "b"
	NoColor Color = ""
)

func (c Color) Other() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	}
	return NoColor
}

// Engine adapts the rules library to the reconciliation core. It is stateless:
// every call reconstructs the position from the given FEN and returns new
// values, never mutating shared state.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Applied is the result of a legal move application.
type Applied struct {
	FEN string
	SAN string // canonical SAN, regardless of input notation
	UCI string
}

// Apply validates notation against fen and returns the resulting position.
// With sloppy=true a UCI coordinate pair is tried first and SAN second, since
// moves arrive both from board-click interfaces and as typed SAN; strict mode
// accepts SAN only. Rejected moves return gamedto.ErrIllegalMove and leave no
// trace.
func (e *Engine) Apply(fen, notation string, sloppy bool) (Applied, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return Applied{}, fmt.Errorf("invalid position %q: %w", fen, err)
	}
	pos := game.Position()

	raw := strings.TrimSpace(notation)
	if raw == "" {
		return Applied{}, gamedto.ErrIllegalMove
	}

	if sloppy {
		if mv, derr := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); derr == nil {
			san := nchess.AlgebraicNotation{}.Encode(pos, mv)
			game.Move(mv, nil)
			return Applied{FEN: game.FEN(), SAN: san, UCI: mv.String()}, nil
		}
	}

	mv, derr := (nchess.AlgebraicNotation{}).Decode(pos, raw)
	if derr != nil {
		return Applied{}, gamedto.ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	game.Move(mv, nil)
	return Applied{FEN: game.FEN(), SAN: san, UCI: mv.String()}, nil
}

// Turn returns which side moves next in fen.
func (e *Engine) Turn(fen string) (Color, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return NoColor, fmt.Errorf("invalid position %q: %w", fen, err)
	}
	if game.Position().Turn() == nchess.White {
		return White, nil
	}
	return Black, nil
}

// IsCheck reports whether the side to move is in check. Invalid FENs read as
// false; the session only ever holds engine-produced positions.
func (e *Engine) IsCheck(fen string) bool {
	game, err := gameFromFEN(fen)
	if err != nil {
		return false
	}
	return game.Position().InCheck()
}

func (e *Engine) IsCheckmate(fen string) bool {
	game, err := gameFromFEN(fen)
	if err != nil {
		return false
	}
	return game.Position().Status() == nchess.Checkmate
}

func (e *Engine) IsStalemate(fen string) bool {
	game, err := gameFromFEN(fen)
	if err != nil {
		return false
	}
	return game.Position().Status() == nchess.Stalemate
}

// LegalTargets maps each origin square with at least one legal move to its
// destination squares. Board front ends use this for move affordances.
func (e *Engine) LegalTargets(fen string) (map[string][]string, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid position %q: %w", fen, err)
	}
	out := make(map[string][]string)
	moves := game.ValidMoves()
	for i := range moves {
		mv := moves[i]
		from := mv.S1().String()
		out[from] = append(out[from], mv.S2().String())
	}
	return out, nil
}

func gameFromFEN(fen string) (*nchess.Game, error) {
	trimmed := strings.TrimSpace(fen)
	if trimmed == "" || trimmed == InitialFEN {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(trimmed)
	if err != nil {
		return nil, err
	}
	return nchess.NewGame(opt), nil
}
