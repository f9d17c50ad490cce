package gamedto

// GameView is the read-only snapshot handed to UI layers. Every field is a
// copy; mutating a view never touches session state.
type GameView struct {
	GameID      uint64     `json:"game_id"`
	SessionUUID string     `json:"session_uuid"`
	FEN         string     `json:"fen"`
	Moves       []MoveView `json:"moves"`
	Facts       FactsView  `json:"facts"`
	Pending     Pending    `json:"pending"`
	Clock       ClockView  `json:"clock"`
}

// MoveView is one ledger entry. Accepted=false entries were rejected by the
// rules engine and never touched the board; they remain for dispute audit.
type MoveView struct {
	Index     int    `json:"index"`
	Notation  string `json:"notation"`
	Accepted  bool   `json:"accepted"`
	Confirmed bool   `json:"confirmed"`
}

// FactsView mirrors the derived facts recomputed on every snapshot.
type FactsView struct {
	IsPlayer                 bool   `json:"is_player"`
	IsWhitePlayer            bool   `json:"is_white_player"`
	IsBlackPlayer            bool   `json:"is_black_player"`
	PlayerColor              string `json:"player_color,omitempty"`
	OpponentColor            string `json:"opponent_color,omitempty"`
	IsCurrentMove            bool   `json:"is_current_move"`
	IsOpponentsMove          bool   `json:"is_opponents_move"`
	InCheck                  bool   `json:"in_check"`
	OpponentInCheck          bool   `json:"opponent_in_check"`
	InCheckmate              bool   `json:"in_checkmate"`
	OpponentInCheckmate      bool   `json:"opponent_in_checkmate"`
	InStalemate              bool   `json:"in_stalemate"`
	CheckmatePending         bool   `json:"checkmate_pending"`
	OpponentCheckmatePending bool   `json:"opponent_checkmate_pending"`
	GameOver                 bool   `json:"game_over"`
	IsStalemate              bool   `json:"is_stalemate"`
	IsWinner                 bool   `json:"is_winner"`
	IsLoser                  bool   `json:"is_loser"`
}

// Pending exposes one flag per action kind, true while the matching
// confirmation event has not been observed.
type Pending struct {
	Move         bool `json:"move"`
	Resign       bool `json:"resign"`
	ClaimVictory bool `json:"claim_victory"`
	Dispute      bool `json:"dispute"`
}

// ClockView carries the locally ticking countdown. The authoritative timeout
// check lives on-chain; these fields are display only.
type ClockView struct {
	TimeOfExpiry        int64 `json:"time_of_expiry"`
	TimeUntilExpiry     int64 `json:"time_until_expiry"`
	TimerExpired        bool  `json:"timer_expired"`
	PlayerTimeExpired   bool  `json:"player_time_expired"`
	OpponentTimeExpired bool  `json:"opponent_time_expired"`
}
