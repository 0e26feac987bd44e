package cri_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/claimed-identity-cri/cri"
	apperrors "github.com/jrsteele09/claimed-identity-cri/internal/errors"
	"github.com/jrsteele09/claimed-identity-cri/internal/testrp"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	resp, err := f.service.CreateSession(ctx, cri.CreateSessionRequest{
		ClientID: testrp.ClientID,
		Request:  f.requestObject(t, nil),
	})
	require.NoError(t, err)
	require.Equal(t, "client-state-123", resp.State)
	require.Equal(t, testrp.RedirectURI, resp.RedirectURI)

	session, err := f.sessions.Get(ctx, resp.SessionID)
	require.NoError(t, err)
	require.Equal(t, sessions.StateSessionCreated, session.AuthSessionState)
	require.Equal(t, "journey-abc", session.ClientSessionID)
	require.Equal(t, "persistent-xyz", session.PersistentSessionID)
	require.Equal(t, sessions.DefaultJourney, session.Journey)
	require.Equal(t, f.now.Add(2*time.Hour).Unix(), session.ExpiryDate)

	person, err := f.persons.Get(ctx, resp.SessionID)
	require.NoError(t, err)
	require.Equal(t, "Jane", person.Names[0].NameParts[0].Value)
	require.Equal(t, "1990-01-01", person.BirthDates[0].Value)
}

func TestCreateSession_JourneyContext(t *testing.T) {
	f := setupTestFixture(t)
	resp, err := f.service.CreateSession(context.Background(), cri.CreateSessionRequest{
		ClientID: testrp.ClientID,
		Request:  f.requestObject(t, func(c jwt.MapClaims) { c["context"] = "bank_account" }),
	})
	require.NoError(t, err)

	session, err := f.sessions.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Equal(t, "bank_account", session.Journey)
}

func TestCreateSession_PersonSaveFailureIsIgnored(t *testing.T) {
	f := setupTestFixture(t)
	f.persons.SaveErr = context.Canceled

	_, err := f.service.CreateSession(context.Background(), cri.CreateSessionRequest{
		ClientID: testrp.ClientID,
		Request:  f.requestObject(t, nil),
	})
	require.NoError(t, err)
}

func TestCreateSession_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		mutate   func(jwt.MapClaims)
		request  string
		kind     apperrors.Kind
	}{
		{name: "missing client id", clientID: "", kind: apperrors.KindValidation},
		{name: "unknown client", clientID: "other-client", kind: apperrors.KindValidation},
		{name: "malformed jwe", clientID: testrp.ClientID, request: "a.b.c", kind: apperrors.KindValidation},
		{
			name: "expired", clientID: testrp.ClientID, kind: apperrors.KindAuthentication,
			mutate: func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() },
		},
		{
			name: "not yet valid", clientID: testrp.ClientID, kind: apperrors.KindAuthentication,
			mutate: func(c jwt.MapClaims) { c["nbf"] = time.Now().Add(time.Hour).Unix() },
		},
		{
			name: "redirect uri mismatch", clientID: testrp.ClientID, kind: apperrors.KindAuthentication,
			mutate: func(c jwt.MapClaims) { c["redirect_uri"] = "https://evil.example/cb" },
		},
		{
			name: "client id mismatch", clientID: testrp.ClientID, kind: apperrors.KindAuthentication,
			mutate: func(c jwt.MapClaims) { c["client_id"] = "someone-else" },
		},
		{
			name: "audience excludes issuer", clientID: testrp.ClientID, kind: apperrors.KindAuthentication,
			mutate: func(c jwt.MapClaims) { c["aud"] = []string{"https://other.example"} },
		},
		{
			name: "wrong response type", clientID: testrp.ClientID, kind: apperrors.KindValidation,
			mutate: func(c jwt.MapClaims) { c["response_type"] = "token" },
		},
		{
			name: "missing state", clientID: testrp.ClientID, kind: apperrors.KindValidation,
			mutate: func(c jwt.MapClaims) { delete(c, "state") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			request := tt.request
			if request == "" {
				request = f.requestObject(t, tt.mutate)
			}
			_, err := f.service.CreateSession(context.Background(), cri.CreateSessionRequest{
				ClientID: tt.clientID,
				Request:  request,
			})
			requireKind(t, err, tt.kind)
		})
	}
}

func TestCreateSession_AggregatesViolations(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.service.CreateSession(context.Background(), cri.CreateSessionRequest{
		ClientID: testrp.ClientID,
		Request: f.requestObject(t, func(c jwt.MapClaims) {
			delete(c, "state")
			delete(c, "govuk_signin_journey_id")
			c["response_type"] = "token"
		}),
	})
	requireKind(t, err, apperrors.KindValidation)
	msg := apperrors.PublicMessage(err)
	require.Contains(t, msg, "state: is required")
	require.Contains(t, msg, "govuk_signin_journey_id: is required")
	require.Contains(t, msg, "response_type: must be code")
}

func TestCreateSession_ForgedSignature(t *testing.T) {
	f := setupTestFixture(t)
	other := testrp.New(t)
	// signed with a key that is not the one published at the client's endpoint
	forged := other.RequestObject(t, &f.encKey.PublicKey, f.rp.Claims(testIssuer, f.now))

	_, err := f.service.CreateSession(context.Background(), cri.CreateSessionRequest{
		ClientID: testrp.ClientID,
		Request:  forged,
	})
	requireKind(t, err, apperrors.KindAuthentication)
}

func TestCreateSession_UnknownKid(t *testing.T) {
	f := setupTestFixture(t)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, f.rp.Claims(testIssuer, f.now))
	token.Header["kid"] = "rotated-away"
	signed, err := token.SignedString(f.rp.SigningKey)
	require.NoError(t, err)

	_, err = f.service.CreateSession(context.Background(), cri.CreateSessionRequest{
		ClientID: testrp.ClientID,
		Request:  testrp.Encrypt(t, &f.encKey.PublicKey, []byte(signed)),
	})
	requireKind(t, err, apperrors.KindAuthentication)
}

func TestCreateSession_IDCollision(t *testing.T) {
	f := setupTestFixture(t)
	existing := f.sessionAt(sessions.StateSessionCreated)

	service, err := cri.NewService(
		cri.Repos{Sessions: f.sessions, Persons: f.persons, Clients: clientRepoFor(f)},
		f.adapter,
		cri.Settings{Issuer: testIssuer, SessionTTL: time.Hour, AuthCodeTTL: time.Minute, AccessTokenTTL: time.Hour},
		cri.WithIDGenerator(func() string { return existing.SessionID }),
	)
	require.NoError(t, err)

	_, err = service.CreateSession(context.Background(), cri.CreateSessionRequest{
		ClientID: testrp.ClientID,
		Request:  f.requestObject(t, nil),
	})
	requireKind(t, err, apperrors.KindServer)
}
