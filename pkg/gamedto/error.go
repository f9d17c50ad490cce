package gamedto

import "fmt"

// DomainError is the error shape surfaced to front ends. Code is stable and
// machine-readable; Message is display text. Retryable marks failures the user
// may simply resubmit.
type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "game client error"
}

// Validation and lookup failures. These never leave partial state behind.
var (
	ErrIllegalMove   = &DomainError{Code: "illegal_move", Message: "move rejected by rules engine"}
	ErrNotAPlayer    = &DomainError{Code: "not_a_player", Message: "wallet is not a participant of this game"}
	ErrGameOver      = &DomainError{Code: "game_over", Message: "game already finished"}
	ErrMissingRecord = &DomainError{Code: "missing_record", Message: "game record not cached; fetch it first"}
	ErrActionInFlight = &DomainError{Code: "action_in_flight", Message: "an identical action is still awaiting confirmation", Retryable: true}
)

// TxFailedError wraps a state-changing call that failed before its
// confirmation event arrived (revert, gas, declined signing). The pending flag
// is already cleared when this is returned; resubmission is an explicit user
// action.
type TxFailedError struct {
	Action string
	Err    error
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("transaction failed: %s: %v", e.Action, e.Err)
}

func (e *TxFailedError) Unwrap() error { return e.Err }
