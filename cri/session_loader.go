package cri

import (
	"context"

	apperrors "github.com/jrsteele09/claimed-identity-cri/internal/errors"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// loadSession reads a session and rejects it once expired, whatever step
// is asking.
func (s *Service) loadSession(ctx context.Context, sessionID string) (*sessions.SessionItem, error) {
	if sessionID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "Missing session id header")
	}
	session, err := s.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, sessionLookupError(err, "Session not found")
	}
	if session.Expired(s.nowTime()) {
		log.Info().Str("session_id", session.SessionID).Msg("session expired")
		return nil, apperrors.ErrSessionExpired
	}
	return session, nil
}

func sessionLookupError(err error, notFoundMessage string) error {
	if errors.Is(err, sessions.ErrNotFound) {
		return apperrors.Wrap(apperrors.KindNotFound, err, notFoundMessage)
	}
	return apperrors.Wrap(apperrors.KindServer, err, "Failed to read session")
}

func stateConflict(expected, actual sessions.AuthSessionState) error {
	mismatch := &sessions.StateMismatchError{Expected: expected, Actual: actual}
	return apperrors.Wrap(apperrors.KindStateConflict, mismatch, mismatch.Error())
}

// lostRace reports whether a conditional write failed because another
// request moved the session first
func lostRace(err error) bool {
	return errors.Is(err, sessions.ErrStateChanged)
}

func storeError(err error, message string) error {
	return apperrors.Wrap(apperrors.KindServer, err, message)
}
