package sessions

import "fmt"

// AuthSessionState is the position of a session in the authorization flow.
// The flow only moves forward, apart from SESSION_ABORTED which can be
// entered from any non-terminal state and is never left.
type AuthSessionState string

const (
	StateSessionCreated    AuthSessionState = "SESSION_CREATED"
	StateDataReceived      AuthSessionState = "DATA_RECEIVED"
	StateAuthCodeIssued    AuthSessionState = "AUTH_CODE_ISSUED"
	StateAccessTokenIssued AuthSessionState = "ACCESS_TOKEN_ISSUED"
	StateSessionAborted    AuthSessionState = "SESSION_ABORTED"
)

var stateOrder = map[AuthSessionState]int{
	StateSessionCreated:    1,
	StateDataReceived:      2,
	StateAuthCodeIssued:    3,
	StateAccessTokenIssued: 4,
}

// Valid reports whether s is a known state
func (s AuthSessionState) Valid() bool {
	_, ok := stateOrder[s]
	return ok || s == StateSessionAborted
}

// Terminal reports whether no further flow step can run from s
func (s AuthSessionState) Terminal() bool {
	return s == StateAccessTokenIssued || s == StateSessionAborted
}

// AtOrPast reports whether s has reached other on the forward path. Aborted
// sessions are not on the path and never compare as at or past anything.
func (s AuthSessionState) AtOrPast(other AuthSessionState) bool {
	a, okA := stateOrder[s]
	b, okB := stateOrder[other]
	return okA && okB && a >= b
}

// Outcome is the result of checking a session against a flow step.
type Outcome int

const (
	// Reject means the session is behind the step's precondition, or aborted.
	Reject Outcome = iota
	// Advance means the step may run and move the session to its next state.
	Advance
	// Duplicate means the step already ran; the stored result must be replayed.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Advance:
		return "advance"
	case Duplicate:
		return "duplicate"
	default:
		return "reject"
	}
}

// CanTransition decides whether a step requiring the session to be in
// required, and moving it to next, may run against current.
func CanTransition(current, required, next AuthSessionState) Outcome {
	switch {
	case current == required:
		return Advance
	case current.AtOrPast(next):
		return Duplicate
	default:
		return Reject
	}
}

// StateMismatchError names the expected and actual state of a rejected step.
type StateMismatchError struct {
	Expected AuthSessionState
	Actual   AuthSessionState
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("Session in incorrect state: expected %s, actual %s", e.Expected, e.Actual)
}
