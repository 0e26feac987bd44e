package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/jrsteele09/claimed-identity-cri/cri"
	apperrors "github.com/jrsteele09/claimed-identity-cri/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	// maxBodyBytes bounds request bodies; a request object is a few kilobytes
	maxBodyBytes = 64 << 10
)

// OAuth style error codes returned in the error body
const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeAccessDenied   = "access_denied"
	errorCodeInvalidGrant   = "invalid_grant"
	errorCodeServer         = "server_error"
)

// CreateSession starts a journey from the relying party's encrypted request object
func (s *Server) CreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cri.CreateSessionRequest
		if err := decodeJSONBody(w, r, &req); err != nil {
			recordOutcome(stepSession, err)
			writeError(w, err, errorCodeAccessDenied)
			return
		}
		req.IPAddress = clientIP(r)

		resp, err := s.cri.CreateSession(r.Context(), req)
		recordOutcome(stepSession, err)
		if err != nil {
			writeError(w, err, errorCodeAccessDenied)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ClaimedIdentity records the names and date of birth the user entered
func (s *Server) ClaimedIdentity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cri.ClaimedIdentityRequest
		if err := decodeJSONBody(w, r, &req); err != nil {
			recordOutcome(stepClaimedIdentity, err)
			writeError(w, err, errorCodeAccessDenied)
			return
		}

		resp, err := s.cri.SubmitClaimedIdentity(r.Context(), r.Header.Get(HeaderJourneySessionID), req)
		recordOutcome(stepClaimedIdentity, err)
		if err != nil {
			writeError(w, err, errorCodeAccessDenied)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Authorization issues, or replays, the authorization code for a session
func (s *Server) Authorization() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		resp, err := s.cri.Authorize(r.Context(), cri.AuthorizationRequest{
			SessionID:   r.Header.Get(HeaderSessionID),
			ClientID:    query.Get("client_id"),
			RedirectURI: query.Get("redirect_uri"),
		})
		recordOutcome(stepAuthorization, err)
		if err != nil {
			writeError(w, err, errorCodeAccessDenied)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Token exchanges an authorization code for an access token
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			err = apperrors.Wrap(apperrors.KindValidation, err, "Unreadable request body")
			recordOutcome(stepToken, err)
			writeError(w, err, errorCodeInvalidRequest)
			return
		}

		req, err := cri.ParseTokenRequest(string(body))
		if err != nil {
			recordOutcome(stepToken, err)
			writeError(w, err, errorCodeInvalidRequest)
			return
		}

		resp, err := s.cri.ExchangeToken(r.Context(), req)
		recordOutcome(stepToken, err)
		if err != nil {
			writeError(w, err, errorCodeInvalidGrant)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// UserInfo returns the signed identity credential for a bearer access token
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := cri.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			recordOutcome(stepUserInfo, err)
			writeError(w, err, errorCodeInvalidRequest)
			return
		}

		resp, err := s.cri.IssueCredential(r.Context(), token)
		recordOutcome(stepUserInfo, err)
		if err != nil {
			if apperrors.StatusCode(err) == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			}
			writeError(w, err, "invalid_token")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Abort ends the journey and redirects the user back to the relying party
func (s *Server) Abort() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.cri.Abort(r.Context(), r.Header.Get(HeaderJourneySessionID))
		recordOutcome(stepAbort, err)
		if err != nil {
			writeError(w, err, errorCodeAccessDenied)
			return
		}
		w.Header().Set("Location", resp.RedirectURI)
		writeJSON(w, http.StatusFound, resp)
	}
}

// JWKS publishes the signing and encryption public keys
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.keys.PublicJWKS(r.Context())
		if err != nil {
			log.Err(err).Msg("failed to build public key set")
			writeJSONError(w, errorCodeServer, "Failed to get JWKS", http.StatusInternalServerError)
			return
		}

		w.Header().Del("Pragma")
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		writeJSON(w, http.StatusOK, jwks)
	}
}

func (s *Server) Healthcheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store != nil {
			if err := s.store.Ping(r.Context()); err != nil {
				log.Err(err).Msg("health check: store unreachable")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Preflight answers OPTIONS requests not already handled by CorsMiddleware
func (s *Server) Preflight() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.New(apperrors.KindValidation, "Missing request body")
		}
		return apperrors.Wrap(apperrors.KindValidation, err, "Malformed request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to write response")
	}
}

// writeError logs the internal cause and writes only the public message.
// Validation failures use invalid_request and server failures server_error;
// every 401 uses the endpoint's own code.
func writeError(w http.ResponseWriter, err error, unauthorizedCode string) {
	status := apperrors.StatusCode(err)
	code := unauthorizedCode
	switch status {
	case http.StatusBadRequest:
		code = errorCodeInvalidRequest
	case http.StatusInternalServerError:
		code = errorCodeServer
	}

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("message_code", errorKindLabel(err)).
		Int("status", status).
		Msg("request failed")

	writeJSONError(w, code, apperrors.PublicMessage(err), status)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func errorKindLabel(err error) string {
	return apperrors.KindOf(err).String()
}
