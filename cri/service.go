// Package cri implements the request processors of the claimed identity
// credential issuer: session creation, identity capture, authorization code
// issue, token exchange, credential issue and abort.
package cri

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/claimed-identity-cri/audit"
	"github.com/jrsteele09/claimed-identity-cri/clients"
	"github.com/jrsteele09/claimed-identity-cri/credential"
	"github.com/jrsteele09/claimed-identity-cri/persons"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
	"github.com/pkg/errors"
)

const DefaultCredentialClaimKey = "https://vocab.account.gov.uk/v1/credentialJWT"

// CryptoAdapter is the signing, verification and decryption surface the
// processors depend on. jose.Adapter implements it against KMS.
type CryptoAdapter interface {
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	Verify(ctx context.Context, compact string) (bool, error)
	VerifyWithJWKS(ctx context.Context, compact, jwksEndpoint, kid string) (jwt.MapClaims, error)
	Decrypt(ctx context.Context, compact string) ([]byte, error)
}

// Repos holds all repository dependencies for the Service
type Repos struct {
	Sessions sessions.Repo
	Persons  persons.Repo
	Clients  clients.Repo
}

// Settings are the issuer values and lifetimes read from configuration
type Settings struct {
	Issuer             string
	SessionTTL         time.Duration
	AuthCodeTTL        time.Duration
	AccessTokenTTL     time.Duration
	CredentialTTL      time.Duration
	CredentialClaimKey string
}

// Service runs the issuer's request processors. It holds no per request
// state; the session store arbitrates concurrent writes.
type Service struct {
	repos    Repos
	crypto   CryptoAdapter
	settings Settings
	builder  *credential.Builder
	audit    *audit.Emitter
	nowTime  func() time.Time
	newID    func() string
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithAuditEmitter sets where journey events are published
func WithAuditEmitter(emitter *audit.Emitter) ServiceOption {
	return func(s *Service) {
		s.audit = emitter
	}
}

// WithIDGenerator replaces the UUID source for session ids and codes
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) {
		s.newID = newID
	}
}

func NewService(repos Repos, crypto CryptoAdapter, settings Settings, options ...ServiceOption) (*Service, error) {
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions repo is required")
	}
	if repos.Persons == nil {
		return nil, errors.New("[NewService] Persons repo is required")
	}
	if repos.Clients == nil {
		return nil, errors.New("[NewService] Clients repo is required")
	}
	if crypto == nil {
		return nil, errors.New("[NewService] crypto adapter is required")
	}
	if settings.Issuer == "" {
		return nil, errors.New("[NewService] issuer is required")
	}
	if settings.SessionTTL <= 0 || settings.AuthCodeTTL <= 0 || settings.AccessTokenTTL <= 0 {
		return nil, errors.New("[NewService] session, authorization code and access token TTLs must be positive")
	}
	if settings.CredentialClaimKey == "" {
		settings.CredentialClaimKey = DefaultCredentialClaimKey
	}

	s := &Service{
		repos:    repos,
		crypto:   crypto,
		settings: settings,
		nowTime:  time.Now,
		newID:    newUUID,
	}
	for _, opt := range options {
		opt(s)
	}

	s.builder = credential.NewBuilder(settings.Issuer,
		credential.WithTTL(settings.CredentialTTL),
		credential.WithNowFunc(s.nowTime))
	return s, nil
}

// auditUser describes the session owner on audit events
func auditUser(session *sessions.SessionItem) audit.User {
	return audit.User{
		UserID:               session.Subject,
		SessionID:            session.SessionID,
		GovukSigninJourneyID: session.ClientSessionID,
		PersistentSessionID:  session.PersistentSessionID,
		IPAddress:            session.ClientIPAddress,
	}
}

func (s *Service) emit(ctx context.Context, eventType string, session *sessions.SessionItem, extensions map[string]any) {
	s.audit.Emit(ctx, eventType, auditUser(session), extensions)
}
