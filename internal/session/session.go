package session

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/onchess/client-go/internal/archive"
	"github.com/onchess/client-go/internal/chain"
	"github.com/onchess/client-go/internal/clock"
	"github.com/onchess/client-go/internal/domain"
	"github.com/onchess/client-go/internal/lobby"
	"github.com/onchess/client-go/internal/obslog"
	"github.com/onchess/client-go/internal/rules"
	"github.com/onchess/client-go/internal/txtrack"
	"github.com/onchess/client-go/pkg/gamedto"
)

// Phase is the reconciliation state machine's position in the session
// lifecycle.
type Phase uint8

const (
	PhaseUninitialized Phase = iota
	PhaseSeeding
	PhaseLive
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseSeeding:
		return "seeding"
	case PhaseLive:
		return "live"
	case PhaseTerminal:
		return "terminal"
	}
	return "unknown"
}

// MoveRecord is one ledger entry. Rejected moves stay in the ledger with
// Accepted=false so disputes can be audited; they never touched the position.
type MoveRecord struct {
	Index     int
	Notation  string
	Accepted  bool
	Confirmed bool
}

// Session reconciles the local position of one game with its on-chain record.
// Local attempts are applied optimistically; confirmations arrive on the
// event feed and are deduped against a per-session delivery-sequence
// watermark. All mutating entry points are safe for concurrent use.
type Session struct {
	gameID uint64
	uuid   string
	wallet chain.Address

	eng     *rules.Engine
	caller  chain.Caller
	feed    chain.EventStream
	reg     *lobby.Registry
	tracker *txtrack.Tracker
	store   *txtrack.Store
	clock   *clock.MoveClock
	repo    archive.Repository

	mu           sync.Mutex
	phase        Phase
	fen          string
	records      []MoveRecord
	watermark    chain.Seq
	watermarkSet bool
	callbackID   int
	listening    bool
	archived     bool
	refresh      func()
}

// New assembles a session for one game. store and repo may be nil: without a
// store, pending actions and the watermark do not survive teardown; without a
// repo, finished games are not archived.
func New(
	gameID uint64,
	wallet chain.Address,
	eng *rules.Engine,
	caller chain.Caller,
	feed chain.EventStream,
	reg *lobby.Registry,
	store *txtrack.Store,
	repo archive.Repository,
) *Session {
	return &Session{
		gameID:  gameID,
		uuid:    uuid.NewString(),
		wallet:  wallet,
		eng:     eng,
		caller:  caller,
		feed:    feed,
		reg:     reg,
		tracker: txtrack.NewTracker(gameID, wallet, store),
		store:   store,
		clock:   clock.NewMoveClock(),
		repo:    repo,
		fen:     rules.InitialFEN,
	}
}

func (s *Session) GameID() uint64        { return s.gameID }
func (s *Session) UUID() string          { return s.uuid }
func (s *Session) Wallet() chain.Address { return s.wallet }

// SetRefresh registers the UI refresh trigger invoked after every state
// change and clock tick. Must be called before Init.
func (s *Session) SetRefresh(fn func()) {
	s.mu.Lock()
	s.refresh = fn
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.refresh
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Init fetches the authoritative record, abandons any pending actions left by
// a previous session, and replays the on-chain move history through the rules
// engine. A single illegal historical move is recorded and skipped; replay of
// the remainder continues so spectators still see the legal tail.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseUninitialized {
		s.mu.Unlock()
		return nil
	}
	s.phase = PhaseSeeding
	s.mu.Unlock()

	meta, err := s.reg.Ensure(ctx, s.gameID)
	if err != nil {
		s.mu.Lock()
		s.phase = PhaseUninitialized
		s.mu.Unlock()
		return err
	}

	if _, err := s.tracker.AbandonStale(ctx); err != nil {
		obslog.L().Warn("session_abandon_error", zap.Uint64("game_id", s.gameID), zap.Error(err))
	}

	history, err := s.caller.Moves(ctx, s.gameID)
	if err != nil {
		s.mu.Lock()
		s.phase = PhaseUninitialized
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.fen = rules.InitialFEN
	s.records = s.records[:0]
	for _, notation := range history {
		applied, aerr := s.eng.Apply(s.fen, notation, true)
		rec := MoveRecord{Index: len(s.records), Notation: notation, Confirmed: true}
		if aerr != nil {
			obslog.L().Warn("session_seed_illegal",
				zap.Uint64("game_id", s.gameID),
				zap.Int("index", rec.Index),
				zap.String("notation", notation),
			)
		} else {
			rec.Notation = applied.SAN
			rec.Accepted = true
			s.fen = applied.FEN
		}
		s.records = append(s.records, rec)
	}
	if meta.State == chain.StateFinished || meta.State == chain.StateDraw {
		s.phase = PhaseTerminal
	} else {
		s.phase = PhaseLive
	}
	phase := s.phase
	s.mu.Unlock()

	if phase == PhaseLive && meta.State == chain.StateStarted {
		s.clock.Start(s.notify)
	}

	obslog.L().Info("session_seeded",
		zap.Uint64("game_id", s.gameID),
		zap.String("session_uuid", s.uuid),
		zap.Int("moves", len(history)),
		zap.String("phase", phase.String()),
		zap.String("state", meta.State.String()),
	)
	return nil
}

// TryMove validates notation against the current position, applies it
// optimistically, and submits it on-chain. The returned PendingAction
// resolves when the matching confirmation event lands. A failed submission
// rolls the optimistic apply back before returning TxFailedError.
func (s *Session) TryMove(ctx context.Context, notation string) (*txtrack.PendingAction, error) {
	s.mu.Lock()
	switch s.phase {
	case PhaseTerminal:
		s.mu.Unlock()
		return nil, gamedto.ErrGameOver
	case PhaseLive:
	default:
		s.mu.Unlock()
		return nil, gamedto.ErrMissingRecord
	}

	applied, err := s.eng.Apply(s.fen, notation, true)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	pending, err := s.tracker.Begin(ctx, txtrack.KindMove)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	prevFEN := s.fen
	s.fen = applied.FEN
	s.records = append(s.records, MoveRecord{
		Index:    len(s.records),
		Notation: applied.SAN,
		Accepted: true,
	})
	s.mu.Unlock()

	obslog.L().Info("move_submit",
		zap.Uint64("game_id", s.gameID),
		zap.String("san", applied.SAN),
		zap.String("action_id", pending.ID),
	)

	if err := s.caller.Move(ctx, s.gameID, applied.SAN); err != nil {
		s.rollbackMove(prevFEN)
		s.tracker.Fail(ctx, txtrack.KindMove, err)
		s.notify()
		return nil, &gamedto.TxFailedError{Action: string(txtrack.KindMove), Err: err}
	}
	s.notify()
	return pending, nil
}

// rollbackMove undoes an optimistic apply whose submission failed. The
// confirmation event cannot have landed for a transaction that was never
// broadcast, but the record is re-checked under the lock anyway.
func (s *Session) rollbackMove(prevFEN string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	if n == 0 || s.records[n-1].Confirmed {
		return
	}
	s.records = s.records[:n-1]
	s.fen = prevFEN
	obslog.L().Warn("move_rollback", zap.Uint64("game_id", s.gameID))
}

// Resign submits a resignation. The board is not touched; the outcome arrives
// as a GameOver event.
func (s *Session) Resign(ctx context.Context) (*txtrack.PendingAction, error) {
	return s.submitPlain(ctx, txtrack.KindResign, s.caller.Resign)
}

// ClaimVictory claims a win after the opponent's clock or a pending
// checkmate; the contract decides whether the claim holds.
func (s *Session) ClaimVictory(ctx context.Context) (*txtrack.PendingAction, error) {
	return s.submitPlain(ctx, txtrack.KindClaimVictory, s.caller.ClaimVictory)
}

// Dispute flags the game record for review.
func (s *Session) Dispute(ctx context.Context) (*txtrack.PendingAction, error) {
	return s.submitPlain(ctx, txtrack.KindDispute, s.caller.DisputeGame)
}

func (s *Session) submitPlain(ctx context.Context, kind txtrack.Kind, call func(context.Context, uint64) error) (*txtrack.PendingAction, error) {
	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()
	switch phase {
	case PhaseTerminal:
		return nil, gamedto.ErrGameOver
	case PhaseLive:
	default:
		return nil, gamedto.ErrMissingRecord
	}

	pending, err := s.tracker.Begin(ctx, kind)
	if err != nil {
		return nil, err
	}
	if err := call(ctx, s.gameID); err != nil {
		s.tracker.Fail(ctx, kind, err)
		return nil, &gamedto.TxFailedError{Action: string(kind), Err: err}
	}
	obslog.L().Info("action_submit",
		zap.Uint64("game_id", s.gameID),
		zap.String("kind", string(kind)),
		zap.String("action_id", pending.ID),
	)
	return pending, nil
}

// RegisterListeners subscribes the session to the event feed. The dedupe
// watermark restores from the store when a previous session persisted one;
// otherwise it seeds from the current chain head so that replayed events at
// or before the head are dropped.
func (s *Session) RegisterListeners(ctx context.Context) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var (
		mark   chain.Seq
		marked bool
	)
	if s.store != nil {
		wm, ok, err := s.store.LoadWatermark(ctx, s.gameID, s.wallet)
		if err != nil {
			obslog.L().Warn("watermark_load_error", zap.Uint64("game_id", s.gameID), zap.Error(err))
		} else if ok {
			mark, marked = wm, true
		}
	}
	if !marked {
		head, err := s.caller.BlockNumber(ctx)
		if err != nil {
			return err
		}
		mark, marked = chain.Seq{Block: head, Log: math.MaxUint32}, true
	}

	s.mu.Lock()
	s.watermark = mark
	s.watermarkSet = true
	s.callbackID = s.feed.OnEvent(s.handleEvent)
	s.listening = true
	s.mu.Unlock()

	obslog.L().Info("session_listen",
		zap.Uint64("game_id", s.gameID),
		zap.Uint64("watermark_block", mark.Block),
		zap.Uint32("watermark_log", mark.Log),
	)
	return nil
}

// DestroyListeners removes the feed callback, persists the watermark, and
// stops the clock. Every RegisterListeners must be paired with one of these
// or the handler leaks across sessions.
func (s *Session) DestroyListeners(ctx context.Context) {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return
	}
	id := s.callbackID
	mark := s.watermark
	marked := s.watermarkSet
	s.listening = false
	s.mu.Unlock()

	s.feed.RemoveCallback(id)
	s.clock.Stop()
	if s.store != nil && marked {
		if err := s.store.SaveWatermark(ctx, s.gameID, s.wallet, mark); err != nil {
			obslog.L().Warn("watermark_save_error", zap.Uint64("game_id", s.gameID), zap.Error(err))
		}
	}
	obslog.L().Info("session_unlisten", zap.Uint64("game_id", s.gameID))
}

// handleEvent runs on the feed's dispatch goroutine; events for one game
// arrive serially.
func (s *Session) handleEvent(ev *chain.Event) {
	if ev == nil || ev.GameID != s.gameID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !s.advance(ctx, ev.Seq) {
		obslog.L().Debug("event_dedupe_drop",
			zap.Uint64("game_id", s.gameID),
			zap.String("kind", string(ev.Kind)),
			zap.Uint64("block", ev.Seq.Block),
			zap.Uint32("log", ev.Seq.Log),
		)
		return
	}

	switch ev.Kind {
	case chain.EventMoveSAN:
		s.handleMoveEvent(ctx, ev)
	case chain.EventGameOver, chain.EventGameFinished:
		s.handleGameOver(ctx, ev, txtrack.KindResign, txtrack.KindClaimVictory)
	case chain.EventGameDisputed:
		s.handleGameOver(ctx, ev, txtrack.KindDispute)
	case chain.EventTouchRecord:
		if _, err := s.reg.Refresh(ctx, s.gameID); err != nil {
			obslog.L().Warn("refresh_error", zap.Uint64("game_id", s.gameID), zap.Error(err))
		}
	}
	s.notify()
}

// advance moves the watermark past seq; a seq at or below it is a replay and
// is reported as not advanced.
func (s *Session) advance(ctx context.Context, seq chain.Seq) bool {
	s.mu.Lock()
	if s.watermarkSet && !seq.After(s.watermark) {
		s.mu.Unlock()
		return false
	}
	s.watermark = seq
	s.watermarkSet = true
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveWatermark(ctx, s.gameID, s.wallet, seq); err != nil {
			obslog.L().Warn("watermark_save_error", zap.Uint64("game_id", s.gameID), zap.Error(err))
		}
	}
	return true
}

func (s *Session) handleMoveEvent(ctx context.Context, ev *chain.Event) {
	if ev.Player == s.wallet {
		s.confirmOwnMove(ev)
	} else {
		s.applyOpponentMove(ev)
	}
	if meta, err := s.reg.Refresh(ctx, s.gameID); err == nil {
		s.maybeEnterTerminal(ctx, meta)
	} else {
		obslog.L().Warn("refresh_error", zap.Uint64("game_id", s.gameID), zap.Error(err))
	}
}

// confirmOwnMove marks the optimistic record confirmed instead of re-applying
// the move; the position already advanced at submission time. The ledger
// keeps exactly one entry per ply.
func (s *Session) confirmOwnMove(ev *chain.Event) {
	s.mu.Lock()
	confirmed := false
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Accepted && !s.records[i].Confirmed {
			s.records[i].Confirmed = true
			confirmed = true
			break
		}
	}
	s.mu.Unlock()

	if !confirmed {
		// No optimistic record: the move was authored by this wallet
		// elsewhere (another device). Apply it like an opponent move.
		s.applyOpponentMove(ev)
	}
	s.tracker.Resolve(context.Background(), txtrack.KindMove, ev)
	obslog.L().Info("move_confirmed",
		zap.Uint64("game_id", s.gameID),
		zap.String("san", ev.SAN),
		zap.Bool("optimistic", confirmed),
	)
}

func (s *Session) applyOpponentMove(ev *chain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied, err := s.eng.Apply(s.fen, ev.SAN, true)
	rec := MoveRecord{Index: len(s.records), Notation: ev.SAN, Confirmed: true}
	if err != nil {
		obslog.L().Warn("event_move_illegal",
			zap.Uint64("game_id", s.gameID),
			zap.String("san", ev.SAN),
			zap.String("player", string(ev.Player)),
		)
	} else {
		rec.Notation = applied.SAN
		rec.Accepted = true
		s.fen = applied.FEN
	}
	s.records = append(s.records, rec)
}

func (s *Session) handleGameOver(ctx context.Context, ev *chain.Event, kinds ...txtrack.Kind) {
	for _, kind := range kinds {
		s.tracker.Resolve(ctx, kind, ev)
	}
	meta, err := s.reg.Refresh(ctx, s.gameID)
	if err != nil {
		obslog.L().Warn("refresh_error", zap.Uint64("game_id", s.gameID), zap.Error(err))
		return
	}
	s.maybeEnterTerminal(ctx, meta)
}

func (s *Session) maybeEnterTerminal(ctx context.Context, meta *chain.GameMetadata) {
	if meta.State != chain.StateFinished && meta.State != chain.StateDraw {
		return
	}
	s.mu.Lock()
	if s.phase == PhaseTerminal {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseTerminal
	s.mu.Unlock()

	s.clock.Stop()
	obslog.L().Info("session_terminal",
		zap.Uint64("game_id", s.gameID),
		zap.String("state", meta.State.String()),
		zap.String("outcome", meta.Outcome.String()),
	)
	s.archiveGame(ctx, meta)
}

func (s *Session) archiveGame(ctx context.Context, meta *chain.GameMetadata) {
	if s.repo == nil {
		return
	}
	s.mu.Lock()
	if s.archived {
		s.mu.Unlock()
		return
	}
	s.archived = true
	moves := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Accepted {
			moves = append(moves, rec.Notation)
		}
	}
	fen := s.fen
	s.mu.Unlock()

	wager := ""
	if meta.WagerAmount != nil {
		wager = meta.WagerAmount.String()
	}
	var winner chain.Address
	switch meta.Outcome {
	case chain.OutcomeWhiteWon:
		winner = meta.WhitePlayer
	case chain.OutcomeBlackWon:
		winner = meta.BlackPlayer
	}
	game := &domain.FinishedGame{
		GameID:      s.gameID,
		SessionUUID: s.uuid,
		Wallet:      string(s.wallet),
		WhitePlayer: string(meta.WhitePlayer),
		BlackPlayer: string(meta.BlackPlayer),
		Outcome:     meta.Outcome.String(),
		Winner:      string(winner),
		WagerAmount: wager,
		MovesSAN:    moves,
		FinalFEN:    fen,
		TimePerMove: meta.TimePerMove,
		StartedAt:   time.Unix(meta.TimeOfLastMove, 0).UTC(),
		EndedAt:     time.Now().UTC(),
	}
	if _, err := s.repo.InsertGame(ctx, game); err != nil && err != archive.ErrDuplicateGame {
		obslog.L().Warn("archive_error", zap.Uint64("game_id", s.gameID), zap.Error(err))
	}
}

// Phase reports the state machine's current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// FEN returns the current local position.
func (s *Session) FEN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fen
}

// Records returns a copy of the move ledger.
func (s *Session) Records() []MoveRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MoveRecord(nil), s.records...)
}

// Facts recomputes the derived facts from the current position and cached
// metadata. A missing record yields zero facts rather than an error so
// snapshots stay total.
func (s *Session) Facts() Facts {
	meta, err := s.reg.Metadata(s.gameID)
	if err != nil {
		return Facts{}
	}
	return Project(s.eng, s.FEN(), meta, s.wallet)
}

// View assembles the read-only snapshot handed to UI layers.
func (s *Session) View() gamedto.GameView {
	s.mu.Lock()
	fen := s.fen
	moves := make([]gamedto.MoveView, len(s.records))
	for i, rec := range s.records {
		moves[i] = gamedto.MoveView{
			Index:     rec.Index,
			Notation:  rec.Notation,
			Accepted:  rec.Accepted,
			Confirmed: rec.Confirmed,
		}
	}
	s.mu.Unlock()

	view := gamedto.GameView{
		GameID:      s.gameID,
		SessionUUID: s.uuid,
		FEN:         fen,
		Moves:       moves,
		Pending:     s.tracker.Flags(),
	}
	meta, err := s.reg.Metadata(s.gameID)
	if err != nil {
		return view
	}
	facts := Project(s.eng, fen, meta, s.wallet)
	view.Facts = facts.View()
	view.Clock = s.clock.Fields(meta, facts.IsCurrentMove)
	return view
}
