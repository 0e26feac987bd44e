package cri

import (
	"context"
	"net/url"

	"github.com/jrsteele09/claimed-identity-cri/audit"
	apperrors "github.com/jrsteele09/claimed-identity-cri/internal/errors"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
	"github.com/pkg/errors"
)

type AbortResponse struct {
	RedirectURI string `json:"redirect_uri"`
}

// Abort ends the journey at the user's request and returns where to send
// them. Aborting an aborted session succeeds without doing anything.
func (s *Service) Abort(ctx context.Context, sessionID string) (*AbortResponse, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	redirect, err := abortRedirect(session)
	if err != nil {
		return nil, err
	}

	switch session.AuthSessionState {
	case sessions.StateSessionAborted:
		return &AbortResponse{RedirectURI: redirect}, nil
	case sessions.StateAccessTokenIssued:
		return nil, apperrors.Newf(apperrors.KindStateConflict,
			"Session in incorrect state: cannot abort from %s", session.AuthSessionState)
	}

	previous := session.AuthSessionState
	session.AuthSessionState = sessions.StateSessionAborted
	if err := s.repos.Sessions.Update(ctx, session, previous); err != nil {
		if !lostRace(err) {
			return nil, storeError(err, "Failed to abort session")
		}
		// A concurrent step moved the session; retry against what it left
		return s.Abort(ctx, sessionID)
	}

	s.emit(ctx, audit.EventAborted, session, nil)
	return &AbortResponse{RedirectURI: redirect}, nil
}

func abortRedirect(session *sessions.SessionItem) (string, error) {
	u, err := url.Parse(session.RedirectURI)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindServer, errors.Wrap(err, "stored redirect uri"), "Invalid redirect URI on session")
	}
	q := u.Query()
	q.Set("error", "access_denied")
	q.Set("state", session.State)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
