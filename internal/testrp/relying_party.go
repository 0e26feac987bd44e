// Package testrp plays the relying party in tests: it publishes a signing key
// set over HTTP and builds encrypted request objects for the issuer.
package testrp

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	ClientID    = "test-client"
	RedirectURI = "https://cb.example/cb"
	SigningKID  = "test-client-signing-key"
)

type RelyingParty struct {
	SigningKey *ecdsa.PrivateKey
	Server     *httptest.Server
	fetches    atomic.Int32
}

// New starts a key set endpoint that lives for the duration of the test
func New(t *testing.T) *RelyingParty {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	rp := &RelyingParty{SigningKey: key}

	body, err := json.Marshal(gojose.JSONWebKeySet{Keys: []gojose.JSONWebKey{{
		Key: &key.PublicKey, KeyID: SigningKID, Algorithm: "ES256", Use: "sig",
	}}})
	require.NoError(t, err)

	rp.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rp.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=300")
		_, _ = w.Write(body)
	}))
	t.Cleanup(rp.Server.Close)
	return rp
}

// JWKSEndpoint is the URL to register for the client
func (rp *RelyingParty) JWKSEndpoint() string {
	return rp.Server.URL + "/.well-known/jwks.json"
}

func (rp *RelyingParty) Fetches() int {
	return int(rp.fetches.Load())
}

// Claims returns a valid request object claim set for issuer at now
func (rp *RelyingParty) Claims(issuer string, now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":                     ClientID,
		"sub":                     "urn:fdc:gov.uk:2022:subject-1",
		"aud":                     issuer,
		"exp":                     now.Add(5 * time.Minute).Unix(),
		"nbf":                     now.Add(-time.Minute).Unix(),
		"iat":                     now.Unix(),
		"client_id":               ClientID,
		"response_type":           "code",
		"redirect_uri":            RedirectURI,
		"state":                   "client-state-123",
		"govuk_signin_journey_id": "journey-abc",
		"persistent_session_id":   "persistent-xyz",
		"shared_claims": map[string]any{
			"name": []any{map[string]any{"nameParts": []any{
				map[string]any{"type": "GivenName", "value": "Jane"},
				map[string]any{"type": "FamilyName", "value": "Doe"},
			}}},
			"birthDate": []any{map[string]any{"value": "1990-01-01"}},
		},
	}
}

// Sign signs claims with the published key
func (rp *RelyingParty) Sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = SigningKID
	signed, err := token.SignedString(rp.SigningKey)
	require.NoError(t, err)
	return signed
}

// Encrypt wraps payload in an RSA-OAEP-256 / A256GCM compact JWE
func Encrypt(t *testing.T, pub *rsa.PublicKey, payload []byte) string {
	t.Helper()
	enc, err := gojose.NewEncrypter(gojose.A256GCM,
		gojose.Recipient{Algorithm: gojose.RSA_OAEP_256, Key: pub},
		(&gojose.EncrypterOptions{}).WithContentType("JWT"))
	require.NoError(t, err)
	obj, err := enc.Encrypt(payload)
	require.NoError(t, err)
	compact, err := obj.CompactSerialize()
	require.NoError(t, err)
	return compact
}

// RequestObject signs then encrypts claims for the issuer's encryption key
func (rp *RelyingParty) RequestObject(t *testing.T, encryptionKey *rsa.PublicKey, claims jwt.MapClaims) string {
	t.Helper()
	return Encrypt(t, encryptionKey, []byte(rp.Sign(t, claims)))
}
