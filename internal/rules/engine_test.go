package rules

import (
	"errors"
	"testing"

	"github.com/onchess/client-go/pkg/gamedto"
)

func TestApplySANAndSloppyUCI(t *testing.T) {
	e := NewEngine()

	strict, err := e.Apply(InitialFEN, "e4", false)
	if err != nil {
		t.Fatalf("Apply SAN: %v", err)
	}
	if strict.SAN != "e4" || strict.UCI != "e2e4" {
		t.Fatalf("unexpected canonical forms: san=%q uci=%q", strict.SAN, strict.UCI)
	}

	sloppy, err := e.Apply(InitialFEN, "e2e4", true)
	if err != nil {
		t.Fatalf("Apply sloppy UCI: %v", err)
	}
	if sloppy.FEN != strict.FEN {
		t.Fatalf("sloppy and strict application diverged: %q vs %q", sloppy.FEN, strict.FEN)
	}
	if sloppy.SAN != "e4" {
		t.Fatalf("expected canonical SAN e4, got %q", sloppy.SAN)
	}

	// Coordinate input must fail in strict mode.
	if _, err := e.Apply(InitialFEN, "e2e4", false); !errors.Is(err, gamedto.ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove for strict coordinate input, got %v", err)
	}
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	e := NewEngine()
	for _, notation := range []string{"e5", "Ke2", "invalid", "", "e2e5"} {
		if _, err := e.Apply(InitialFEN, notation, true); !errors.Is(err, gamedto.ErrIllegalMove) {
			t.Fatalf("notation %q: expected ErrIllegalMove, got %v", notation, err)
		}
	}
}

func TestApplyBadFEN(t *testing.T) {
	e := NewEngine()
	if _, err := e.Apply("not a fen", "e4", true); err == nil || errors.Is(err, gamedto.ErrIllegalMove) {
		t.Fatalf("expected position error, got %v", err)
	}
}

func TestTurnAlternates(t *testing.T) {
	e := NewEngine()
	c, err := e.Turn(InitialFEN)
	if err != nil || c != White {
		t.Fatalf("initial turn: %v %v", c, err)
	}
	applied, err := e.Apply(InitialFEN, "e4", false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	c, err = e.Turn(applied.FEN)
	if err != nil || c != Black {
		t.Fatalf("turn after e4: %v %v", c, err)
	}
}

func TestPredicates(t *testing.T) {
	e := NewEngine()

	// Rook on e2 checks the black king down the open e-file.
	checkFEN := "4k3/8/8/8/8/8/4R3/4K3 b - - 0 1"
	if !e.IsCheck(checkFEN) {
		t.Fatalf("expected check in %s", checkFEN)
	}
	if e.IsCheckmate(checkFEN) {
		t.Fatalf("did not expect mate in %s", checkFEN)
	}

	// Fool's mate final position, white to move and mated.
	mateFEN := "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	if !e.IsCheckmate(mateFEN) {
		t.Fatalf("expected checkmate in %s", mateFEN)
	}
	if !e.IsCheck(mateFEN) {
		t.Fatalf("checkmate implies check in %s", mateFEN)
	}

	// Classic queen stalemate, black to move with no legal moves and no check.
	staleFEN := "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	if !e.IsStalemate(staleFEN) {
		t.Fatalf("expected stalemate in %s", staleFEN)
	}
	if e.IsCheck(staleFEN) || e.IsCheckmate(staleFEN) {
		t.Fatalf("stalemate position misreported as check/mate")
	}

	if e.IsCheck(InitialFEN) || e.IsCheckmate(InitialFEN) || e.IsStalemate(InitialFEN) {
		t.Fatalf("initial position misreported")
	}
}

func TestLegalTargets(t *testing.T) {
	e := NewEngine()
	targets, err := e.LegalTargets(InitialFEN)
	if err != nil {
		t.Fatalf("LegalTargets: %v", err)
	}
	// 8 pawns and 2 knights can move from the initial position.
	if len(targets) != 10 {
		t.Fatalf("expected 10 origin squares, got %d (%v)", len(targets), targets)
	}
	if got := targets["e2"]; len(got) != 2 {
		t.Fatalf("expected 2 destinations from e2, got %v", got)
	}
	if got := targets["g1"]; len(got) != 2 {
		t.Fatalf("expected 2 knight destinations from g1, got %v", got)
	}
}
