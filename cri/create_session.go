package cri

import (
	"context"

	"github.com/jrsteele09/claimed-identity-cri/audit"
	apperrors "github.com/jrsteele09/claimed-identity-cri/internal/errors"
	"github.com/jrsteele09/claimed-identity-cri/jose"
	"github.com/jrsteele09/claimed-identity-cri/persons"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type CreateSessionRequest struct {
	ClientID string `json:"client_id"`
	Request  string `json:"request"`
	// IPAddress of the end user, taken from the forwarding headers
	IPAddress string `json:"-"`
}

type CreateSessionResponse struct {
	SessionID   string `json:"session_id"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

// CreateSession opens a session from a relying party's encrypted, signed
// request object.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	var errs FieldErrors
	if req.ClientID == "" {
		errs.add("client_id", "is required")
	}
	if req.Request == "" {
		errs.add("request", "is required")
	}
	if !errs.empty() {
		return nil, apperrors.Wrap(apperrors.KindValidation, errs, "Invalid session request: "+errs.Error())
	}

	client, err := s.repos.Clients.Get(req.ClientID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, err, "Unknown client id")
	}

	requestJWT, err := s.crypto.Decrypt(ctx, req.Request)
	if err != nil {
		log.Err(err).Str("client_id", req.ClientID).Msg("request object decryption failed")
		if errors.Is(err, jose.ErrMalformedJWE) || errors.Is(err, jose.ErrUnsupportedJWE) {
			return nil, apperrors.Wrap(apperrors.KindValidation, err, "Malformed request object")
		}
		return nil, apperrors.Wrap(apperrors.KindAuthentication, err, "Failed to decrypt request object")
	}

	kid, err := jose.HeaderKeyID(string(requestJWT))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuthentication, err, "Invalid request object")
	}

	claims, err := s.crypto.VerifyWithJWKS(ctx, string(requestJWT), client.JWKSEndpoint, kid)
	if err != nil {
		log.Err(err).Str("client_id", req.ClientID).Str("kid", kid).Msg("request object verification failed")
		if errors.Is(err, jose.ErrJWKSFetch) {
			return nil, apperrors.Wrap(apperrors.KindServer, err, "Unable to retrieve client signing keys")
		}
		return nil, apperrors.Wrap(apperrors.KindAuthentication, err, "Request object signature verification failed")
	}
	if claims == nil {
		return nil, apperrors.New(apperrors.KindAuthentication, "Request object signature verification failed")
	}

	now := s.nowTime()
	ro, verrs, authFailure := validateRequestObject(claims, client, req.ClientID, s.settings.Issuer, now)
	if !verrs.empty() {
		kind := apperrors.KindValidation
		if authFailure {
			kind = apperrors.KindAuthentication
		}
		log.Warn().Str("client_id", req.ClientID).Str("violations", verrs.Error()).Msg("request object rejected")
		return nil, apperrors.Wrap(kind, verrs, "Invalid request object: "+verrs.Error())
	}

	session := &sessions.SessionItem{
		SessionID:           s.newID(),
		ClientID:            ro.ClientID,
		ClientSessionID:     ro.GovukSigninJourneyID,
		RedirectURI:         ro.RedirectURI,
		State:               ro.State,
		Subject:             ro.Subject,
		PersistentSessionID: ro.PersistentSessionID,
		ClientIPAddress:     req.IPAddress,
		CreatedDate:         now.Unix(),
		ExpiryDate:          now.Add(s.settings.SessionTTL).Unix(),
		AuthSessionState:    sessions.StateSessionCreated,
		Journey:             ro.Journey,
	}
	if err := s.repos.Sessions.Create(ctx, session); err != nil {
		if errors.Is(err, sessions.ErrAlreadyExists) {
			log.Error().Str("session_id", session.SessionID).Msg("generated session id already exists")
		}
		return nil, storeError(err, "Failed to create session")
	}

	if ro.SharedClaims != nil {
		person := persons.FromSharedClaims(session.SessionID, *ro.SharedClaims, session.ExpiryDate)
		if !person.Empty() {
			if err := s.repos.Persons.Save(ctx, person); err != nil {
				log.Err(err).Str("session_id", session.SessionID).Msg("failed to save shared claims")
			}
		}
	}

	s.emit(ctx, audit.EventStart, session, map[string]any{"journey": session.Journey})

	return &CreateSessionResponse{
		SessionID:   session.SessionID,
		State:       session.State,
		RedirectURI: session.RedirectURI,
	}, nil
}
