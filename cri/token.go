package cri

import (
	"context"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/claimed-identity-cri/internal/errors"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	TokenTypeBearer            = "Bearer"
)

type TokenRequest struct {
	Code        string
	GrantType   string
	RedirectURI string
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ParseTokenRequest reads an application/x-www-form-urlencoded token request
// body and reports every missing or invalid field.
func ParseTokenRequest(body string) (TokenRequest, error) {
	if strings.TrimSpace(body) == "" {
		return TokenRequest{}, apperrors.New(apperrors.KindValidation, "Missing request body")
	}
	form, err := url.ParseQuery(body)
	if err != nil {
		return TokenRequest{}, apperrors.Wrap(apperrors.KindValidation, err, "Malformed request body")
	}

	req := TokenRequest{
		Code:        form.Get("code"),
		GrantType:   form.Get("grant_type"),
		RedirectURI: form.Get("redirect_uri"),
	}

	var errs FieldErrors
	switch {
	case req.Code == "":
		errs.add("code", "is required")
	case !isUUID(req.Code):
		errs.add("code", "must be a UUID")
	}
	switch {
	case req.GrantType == "":
		errs.add("grant_type", "is required")
	case req.GrantType != GrantTypeAuthorizationCode:
		errs.add("grant_type", "must be "+GrantTypeAuthorizationCode)
	}
	if req.RedirectURI == "" {
		errs.add("redirect_uri", "is required")
	}
	if !errs.empty() {
		return TokenRequest{}, apperrors.Wrap(apperrors.KindValidation, errs, "Invalid token request: "+errs.Error())
	}
	return req, nil
}

// ExchangeToken redeems an authorization code for an access token. The code
// stops resolving to the session once redeemed.
func (s *Service) ExchangeToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	session, err := s.repos.Sessions.GetByAuthorizationCode(ctx, req.Code)
	if err != nil {
		return nil, sessionLookupError(err, "No session found by authorization code: "+req.Code)
	}

	now := s.nowTime()
	if session.Expired(now) {
		return nil, apperrors.ErrSessionExpired
	}
	if session.AuthorizationCodeExpired(now) {
		return nil, apperrors.New(apperrors.KindAuthentication, "Authorization code expired")
	}
	if !redirectURIMatches(session.RedirectURI, req.RedirectURI) {
		log.Warn().Str("session_id", session.SessionID).Msg("token request redirect_uri mismatch")
		return nil, apperrors.New(apperrors.KindAuthentication, "redirect_uri does not match the authorization request")
	}
	if session.AuthSessionState != sessions.StateAuthCodeIssued {
		return nil, stateConflict(sessions.StateAuthCodeIssued, session.AuthSessionState)
	}

	exp := now.Add(s.settings.AccessTokenTTL)
	accessToken, err := s.crypto.Sign(ctx, jwt.MapClaims{
		"iss": s.settings.Issuer,
		"sub": session.SessionID,
		"aud": s.settings.Issuer,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"jti": s.newID(),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindServer, err, "Failed to sign access token")
	}

	session.AccessTokenExpiryDate = exp.Unix()
	session.AuthorizationCodeExpiryDate = 0
	session.AuthSessionState = sessions.StateAccessTokenIssued
	if err := s.repos.Sessions.RedeemAuthorizationCode(ctx, session, req.Code); err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			// A concurrent exchange redeemed the code after we looked it up
			return nil, sessionLookupError(err, "No session found by authorization code: "+req.Code)
		}
		return nil, storeError(err, "Failed to redeem authorization code")
	}

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(s.settings.AccessTokenTTL.Seconds()),
	}, nil
}
