package persons

import (
	"context"
	"errors"

	"github.com/jrsteele09/claimed-identity-cri/credential"
)

var ErrNotFound = errors.New("person identity not found")

// SharedClaims are the identity attributes the upstream journey already holds
// about the user, carried in the request object's shared_claims claim.
type SharedClaims struct {
	Name      []credential.Name      `json:"name,omitempty"`
	BirthDate []credential.BirthDate `json:"birthDate,omitempty"`
}

// PersonIdentity is the shared claims stored against a session
type PersonIdentity struct {
	SessionID  string                 `json:"sessionId"`
	Names      []credential.Name      `json:"names,omitempty"`
	BirthDates []credential.BirthDate `json:"birthDates,omitempty"`
	ExpiryDate int64                  `json:"expiryDate"`
}

// FromSharedClaims builds the record stored for sessionID
func FromSharedClaims(sessionID string, claims SharedClaims, expiryDate int64) *PersonIdentity {
	return &PersonIdentity{
		SessionID:  sessionID,
		Names:      claims.Name,
		BirthDates: claims.BirthDate,
		ExpiryDate: expiryDate,
	}
}

// Empty reports whether there is nothing worth storing
func (p *PersonIdentity) Empty() bool {
	return len(p.Names) == 0 && len(p.BirthDates) == 0
}

type Repo interface {
	Save(ctx context.Context, person *PersonIdentity) error
	Get(ctx context.Context, sessionID string) (*PersonIdentity, error)
}
