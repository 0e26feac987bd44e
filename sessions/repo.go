package sessions

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyExists = errors.New("session already exists")

	// ErrStateChanged reports that the stored session left the expected state
	// before a conditional write landed
	ErrStateChanged = errors.New("session state changed concurrently")
)

// Repo defines the storage operations the request processors need.
// Every write after Create is conditional on the stored state, so of two
// requests racing on one session exactly one wins; the processors never lock.
type Repo interface {
	// Create stores a new session, failing with ErrAlreadyExists if the id is taken
	Create(ctx context.Context, session *SessionItem) error

	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*SessionItem, error)

	// Update replaces a stored session that is still in state expected,
	// failing with ErrStateChanged otherwise
	Update(ctx context.Context, session *SessionItem, expected AuthSessionState) error

	// AssignAuthorizationCode stores the session and indexes its authorization
	// code. The stored session must be in DATA_RECEIVED, otherwise
	// ErrStateChanged is returned and nothing is written.
	AssignAuthorizationCode(ctx context.Context, session *SessionItem) error

	// GetByAuthorizationCode retrieves a session by its redeemable authorization code
	GetByAuthorizationCode(ctx context.Context, code string) (*SessionItem, error)

	// RedeemAuthorizationCode stores the session and drops the index for code,
	// so the code cannot be exchanged again. It fails with ErrNotFound when the
	// code no longer indexes the session or the stored session is not in
	// AUTH_CODE_ISSUED.
	RedeemAuthorizationCode(ctx context.Context, session *SessionItem, code string) error
}
