package sessions

import (
	"time"
)

// DefaultJourney is the journey tag recorded when the request object names none.
const DefaultJourney = "default"

// SessionItem is the server side record of one user's progress through the
// authorization code flow. Timestamps are epoch seconds.
type SessionItem struct {
	SessionID                   string           `json:"sessionId"`
	ClientID                    string           `json:"clientId"`
	ClientSessionID             string           `json:"clientSessionId"`
	RedirectURI                 string           `json:"redirectUri"`
	State                       string           `json:"state"`
	Subject                     string           `json:"subject"`
	PersistentSessionID         string           `json:"persistentSessionId,omitempty"`
	ClientIPAddress             string           `json:"clientIpAddress,omitempty"`
	CreatedDate                 int64            `json:"createdDate"`
	ExpiryDate                  int64            `json:"expiryDate"`
	AttemptCount                int              `json:"attemptCount"`
	AuthorizationCode           string           `json:"authorizationCode,omitempty"`
	AuthorizationCodeExpiryDate int64            `json:"authorizationCodeExpiryDate,omitempty"`
	AccessTokenExpiryDate       int64            `json:"accessTokenExpiryDate,omitempty"`
	GivenNames                  []string         `json:"given_names,omitempty"`
	FamilyNames                 string           `json:"family_names,omitempty"`
	DateOfBirth                 string           `json:"date_of_birth,omitempty"`
	AuthSessionState            AuthSessionState `json:"authSessionState"`
	Journey                     string           `json:"journey"`
}

// Expired reports whether the session lifetime has passed at now
func (s *SessionItem) Expired(now time.Time) bool {
	return s.ExpiryDate < now.Unix()
}

// AuthorizationCodeExpired reports whether the issued code can no longer be redeemed
func (s *SessionItem) AuthorizationCodeExpired(now time.Time) bool {
	return s.AuthorizationCodeExpiryDate < now.Unix()
}

// HasClaimedIdentity reports whether every claimed identity field needed for a credential is present
func (s *SessionItem) HasClaimedIdentity() bool {
	if len(s.GivenNames) == 0 || s.FamilyNames == "" || s.DateOfBirth == "" {
		return false
	}
	for _, name := range s.GivenNames {
		if name == "" {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so stores never share slices with callers
func (s *SessionItem) Clone() *SessionItem {
	c := *s
	if s.GivenNames != nil {
		c.GivenNames = append([]string(nil), s.GivenNames...)
	}
	return &c
}
