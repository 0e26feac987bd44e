package cri

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/claimed-identity-cri/clients"
	"github.com/jrsteele09/claimed-identity-cri/persons"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
)

var mandatoryRequestClaims = []string{
	"iss", "sub", "aud", "exp", "nbf", "client_id", "response_type",
	"redirect_uri", "state", "govuk_signin_journey_id",
}

// requestObject is the verified content of the signed request object
type requestObject struct {
	ClientID             string
	RedirectURI          string
	State                string
	Subject              string
	GovukSigninJourneyID string
	PersistentSessionID  string
	Journey              string
	SharedClaims         *persons.SharedClaims
}

func stringClaim(claims jwt.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}

// validateRequestObject checks every claim rule and reports all violations.
// authFailure is set when any violation concerns who sent the request or
// when, rather than its shape.
func validateRequestObject(claims jwt.MapClaims, client *clients.Client, bodyClientID, issuer string, now time.Time) (*requestObject, FieldErrors, bool) {
	var errs FieldErrors
	authFailure := false

	for _, name := range mandatoryRequestClaims {
		v, ok := claims[name]
		if !ok || v == nil || v == "" {
			errs.add(name, "is required")
		}
	}

	if exp, err := claims.GetExpirationTime(); err != nil {
		errs.add("exp", "must be a numeric date")
	} else if exp != nil && !exp.After(now) {
		errs.add("exp", "request object has expired")
		authFailure = true
	}
	if nbf, err := claims.GetNotBefore(); err != nil {
		errs.add("nbf", "must be a numeric date")
	} else if nbf != nil && nbf.After(now) {
		errs.add("nbf", "request object is not yet valid")
		authFailure = true
	}

	clientID := stringClaim(claims, "client_id")
	if clientID != "" && clientID != bodyClientID {
		errs.add("client_id", "does not match the request body")
		authFailure = true
	}
	if iss := stringClaim(claims, "iss"); iss != "" && iss != bodyClientID {
		errs.add("iss", "does not match the client id")
		authFailure = true
	}

	if rt := stringClaim(claims, "response_type"); rt != "" && rt != "code" {
		errs.add("response_type", "must be code")
	}

	redirectURI := stringClaim(claims, "redirect_uri")
	if redirectURI != "" && !client.RedirectURIMatches(redirectURI) {
		errs.add("redirect_uri", "does not match the registered redirect URI")
		authFailure = true
	}

	if _, present := claims["aud"]; present && issuer != "" {
		aud, err := claims.GetAudience()
		if err != nil {
			errs.add("aud", "must be a string or array of strings")
		} else if !slices.Contains(aud, issuer) {
			errs.add("aud", "does not include this issuer")
			authFailure = true
		}
	}

	ro := &requestObject{
		ClientID:             clientID,
		RedirectURI:          redirectURI,
		State:                stringClaim(claims, "state"),
		Subject:              stringClaim(claims, "sub"),
		GovukSigninJourneyID: stringClaim(claims, "govuk_signin_journey_id"),
		PersistentSessionID:  stringClaim(claims, "persistent_session_id"),
		Journey:              stringClaim(claims, "context"),
	}
	if ro.Journey == "" {
		ro.Journey = sessions.DefaultJourney
	}

	if raw, ok := claims["shared_claims"]; ok && raw != nil {
		shared, err := decodeSharedClaims(raw)
		if err != nil {
			errs.add("shared_claims", "is not a valid shared claims object")
		} else {
			ro.SharedClaims = shared
		}
	}
	return ro, errs, authFailure
}

func decodeSharedClaims(raw any) (*persons.SharedClaims, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var shared persons.SharedClaims
	if err := json.Unmarshal(b, &shared); err != nil {
		return nil, err
	}
	return &shared, nil
}
