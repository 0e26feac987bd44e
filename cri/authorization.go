package cri

import (
	"context"

	"github.com/jrsteele09/claimed-identity-cri/audit"
	apperrors "github.com/jrsteele09/claimed-identity-cri/internal/errors"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
)

type AuthorizationRequest struct {
	SessionID string
	// ClientID and RedirectURI are optional; when given they must match the session
	ClientID    string
	RedirectURI string
}

type AuthorizationCode struct {
	Value string `json:"value"`
}

type AuthorizationResponse struct {
	AuthorizationCode AuthorizationCode `json:"authorizationCode"`
	RedirectURI       string            `json:"redirect_uri"`
	State             string            `json:"state"`
}

// Authorize issues the authorization code for a session holding a claimed
// identity. Repeat calls return the code issued the first time.
func (s *Service) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResponse, error) {
	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	var errs FieldErrors
	if req.ClientID != "" && req.ClientID != session.ClientID {
		errs.add("client_id", "does not match the session")
	}
	if req.RedirectURI != "" && !redirectURIMatches(session.RedirectURI, req.RedirectURI) {
		errs.add("redirect_uri", "does not match the session")
	}
	if !errs.empty() {
		return nil, apperrors.Wrap(apperrors.KindValidation, errs, "Invalid authorization request: "+errs.Error())
	}

	switch sessions.CanTransition(session.AuthSessionState, sessions.StateDataReceived, sessions.StateAuthCodeIssued) {
	case sessions.Duplicate:
		return authorizationResponse(session), nil
	case sessions.Reject:
		return nil, stateConflict(sessions.StateDataReceived, session.AuthSessionState)
	}

	now := s.nowTime()
	session.AuthorizationCode = s.newID()
	session.AuthorizationCodeExpiryDate = now.Add(s.settings.AuthCodeTTL).Unix()
	session.AuthSessionState = sessions.StateAuthCodeIssued
	if err := s.repos.Sessions.AssignAuthorizationCode(ctx, session); err != nil {
		if !lostRace(err) {
			return nil, storeError(err, "Failed to store authorization code")
		}
		// Another request issued the code first; hand back that one
		current, err := s.loadSession(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if sessions.CanTransition(current.AuthSessionState, sessions.StateDataReceived, sessions.StateAuthCodeIssued) == sessions.Duplicate {
			return authorizationResponse(current), nil
		}
		return nil, stateConflict(sessions.StateDataReceived, current.AuthSessionState)
	}

	s.emit(ctx, audit.EventAuthCodeIssued, session, nil)
	return authorizationResponse(session), nil
}

func authorizationResponse(session *sessions.SessionItem) *AuthorizationResponse {
	return &AuthorizationResponse{
		AuthorizationCode: AuthorizationCode{Value: session.AuthorizationCode},
		RedirectURI:       session.RedirectURI,
		State:             session.State,
	}
}
