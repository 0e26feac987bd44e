package cri

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/claimed-identity-cri/audit"
	"github.com/jrsteele09/claimed-identity-cri/credential"
	apperrors "github.com/jrsteele09/claimed-identity-cri/internal/errors"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
	"github.com/rs/zerolog/log"
)

// CredentialResponse is the userinfo body: the subject and, under the
// configured claim key, the list of issued credential JWTs.
type CredentialResponse map[string]any

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, TokenTypeBearer) || strings.TrimSpace(token) == "" {
		return "", apperrors.New(apperrors.KindValidation, "Missing or malformed bearer token")
	}
	return strings.TrimSpace(token), nil
}

// IssueCredential verifies an access token and returns a signed credential
// describing the claimed identity of its session.
func (s *Service) IssueCredential(ctx context.Context, accessToken string) (CredentialResponse, error) {
	if accessToken == "" || strings.Count(accessToken, ".") != 2 {
		return nil, apperrors.New(apperrors.KindValidation, "Missing or malformed bearer token")
	}

	valid, err := s.crypto.Verify(ctx, accessToken)
	if err != nil {
		log.Err(err).Msg("access token verification failed")
		return nil, apperrors.Wrap(apperrors.KindAuthentication, err, "Access token could not be verified")
	}
	if !valid {
		return nil, apperrors.New(apperrors.KindAuthentication, "Access token signature is invalid")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuthentication, err, "Access token could not be decoded")
	}
	now := s.nowTime()
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || !exp.After(now) {
		return nil, apperrors.New(apperrors.KindAuthentication, "Access token has expired")
	}
	sessionID, err := claims.GetSubject()
	if err != nil || sessionID == "" {
		return nil, apperrors.New(apperrors.KindAuthentication, "Access token has no subject")
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.AuthSessionState != sessions.StateAccessTokenIssued {
		return nil, stateConflict(sessions.StateAccessTokenIssued, session.AuthSessionState)
	}
	if !session.HasClaimedIdentity() {
		log.Error().Str("session_id", session.SessionID).Msg("session reached token issue without a complete claimed identity")
		return nil, apperrors.New(apperrors.KindServer, "Session is missing claimed identity data")
	}

	subject := credential.NewCredentialSubject(session.GivenNames, []string{session.FamilyNames}, session.DateOfBirth)
	vcClaims := s.builder.Claims(session.Subject, subject)
	vc, err := s.crypto.Sign(ctx, vcClaims)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindServer, err, "Failed to sign verifiable credential")
	}

	s.emit(ctx, audit.EventVCIssued, session, map[string]any{"iss": s.settings.Issuer, "jti": vcClaims["jti"]})
	s.emit(ctx, audit.EventEnd, session, nil)

	return CredentialResponse{
		"sub":                         session.Subject,
		s.settings.CredentialClaimKey: []string{vc},
	}, nil
}
