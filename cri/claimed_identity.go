package cri

import (
	"context"

	"github.com/jrsteele09/claimed-identity-cri/audit"
	apperrors "github.com/jrsteele09/claimed-identity-cri/internal/errors"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
)

const (
	ResultDataReceived     = "DATA_RECEIVED"
	ResultAlreadyProcessed = "SESSION_ALREADY_PROCESSED"
)

type ClaimedIdentityRequest struct {
	GivenNames  []string `json:"given_names"`
	FamilyNames string   `json:"family_names"`
	DateOfBirth string   `json:"date_of_birth"`
}

type ClaimedIdentityResponse struct {
	Result string `json:"result"`
}

// SubmitClaimedIdentity records the identity the user claims. A repeat
// submission after the first succeeded is acknowledged without changing
// anything.
func (s *Service) SubmitClaimedIdentity(ctx context.Context, sessionID string, req ClaimedIdentityRequest) (*ClaimedIdentityResponse, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch sessions.CanTransition(session.AuthSessionState, sessions.StateSessionCreated, sessions.StateDataReceived) {
	case sessions.Duplicate:
		return &ClaimedIdentityResponse{Result: ResultAlreadyProcessed}, nil
	case sessions.Reject:
		return nil, stateConflict(sessions.StateSessionCreated, session.AuthSessionState)
	}

	if errs := validateClaimedIdentity(req, s.nowTime()); !errs.empty() {
		return nil, apperrors.Wrap(apperrors.KindValidation, errs, "Invalid claimed identity: "+errs.Error())
	}

	session.GivenNames = append([]string(nil), req.GivenNames...)
	session.FamilyNames = req.FamilyNames
	session.DateOfBirth = req.DateOfBirth
	session.AttemptCount++
	session.AuthSessionState = sessions.StateDataReceived
	if err := s.repos.Sessions.Update(ctx, session, sessions.StateSessionCreated); err != nil {
		if !lostRace(err) {
			return nil, storeError(err, "Failed to save claimed identity")
		}
		current, err := s.loadSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sessions.CanTransition(current.AuthSessionState, sessions.StateSessionCreated, sessions.StateDataReceived) == sessions.Duplicate {
			return &ClaimedIdentityResponse{Result: ResultAlreadyProcessed}, nil
		}
		return nil, stateConflict(sessions.StateSessionCreated, current.AuthSessionState)
	}

	s.emit(ctx, audit.EventRequestReceived, session, nil)
	return &ClaimedIdentityResponse{Result: ResultDataReceived}, nil
}
