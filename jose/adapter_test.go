package jose_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	gojose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/claimed-identity-cri/jose"
	"github.com/jrsteele09/claimed-identity-cri/jose/kmsfake"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	signingKeyID    = "arn:aws:kms:eu-west-2:111122223333:key/signing-key"
	encryptionKeyID = "arn:aws:kms:eu-west-2:111122223333:key/encryption-key"
)

type testFixture struct {
	kms     *kmsfake.FakeKMS
	encKey  *rsa.PrivateKey
	adapter *jose.Adapter
}

func setupTestFixture(t *testing.T, options ...jose.AdapterOption) *testFixture {
	t.Helper()
	fake := kmsfake.New()
	fake.AddSigningKey(signingKeyID)
	encKey := fake.AddEncryptionKey(encryptionKeyID)

	options = append([]jose.AdapterOption{jose.WithJWKSRetryDelay(0)}, options...)
	return &testFixture{
		kms:     fake,
		encKey:  encKey,
		adapter: jose.NewAdapter(fake, signingKeyID, encryptionKeyID, options...),
	}
}

func encryptJWE(t *testing.T, pub *rsa.PublicKey, payload []byte) string {
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

func TestSignAndVerify(t *testing.T) {
	f := setupTestFixture(t, jose.WithDIDDomain("cri.example.com"))
	ctx := context.Background()

	token, err := f.adapter.Sign(ctx, jwt.MapClaims{"sub": "session-1", "iss": "cri"})
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)
	require.Equal(t, "ES256", parsed.Header["alg"])
	require.Equal(t, "JWT", parsed.Header["typ"])
	require.Equal(t, f.adapter.SigningKeyID(), parsed.Header["kid"])
	require.True(t, strings.HasPrefix(f.adapter.SigningKeyID(), "did:web:cri.example.com#"))

	ok, err := f.adapter.Verify(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerify_TamperedPayload(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token, err := f.adapter.Sign(ctx, jwt.MapClaims{"sub": "session-1"})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"session-2"}`))
	ok, err := f.adapter.Verify(ctx, strings.Join(parts, "."))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerify_KMSUnavailable(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token, err := f.adapter.Sign(ctx, jwt.MapClaims{"sub": "session-1"})
	require.NoError(t, err)

	f.kms.FailNext("Verify", &types.KMSInternalException{Message: aws.String("boom")})
	ok, err := f.adapter.Verify(ctx, token)
	require.ErrorIs(t, err, jose.ErrVerification)
	require.False(t, ok)
}

func TestVerify_Malformed(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.adapter.Verify(context.Background(), "only.two")
	require.ErrorIs(t, err, jose.ErrMalformedJWT)
}

func TestSign_KMSFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.kms.FailNext("Sign", errors.New("throttled"))
	_, err := f.adapter.Sign(context.Background(), jwt.MapClaims{})
	require.ErrorIs(t, err, jose.ErrSigning)
}

func TestDecrypt(t *testing.T) {
	f := setupTestFixture(t)
	compact := encryptJWE(t, &f.encKey.PublicKey, []byte("inner.jwt.value"))

	plaintext, err := f.adapter.Decrypt(context.Background(), compact)
	require.NoError(t, err)
	require.Equal(t, "inner.jwt.value", string(plaintext))
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	f := setupTestFixture(t)
	compact := encryptJWE(t, &f.encKey.PublicKey, []byte("inner.jwt.value"))

	parts := strings.Split(compact, ".")
	ct, err := base64.RawURLEncoding.DecodeString(parts[3])
	require.NoError(t, err)
	ct[0] ^= 0x01
	parts[3] = base64.RawURLEncoding.EncodeToString(ct)

	plaintext, err := f.adapter.Decrypt(context.Background(), strings.Join(parts, "."))
	require.ErrorIs(t, err, jose.ErrDecryption)
	require.Nil(t, plaintext)
}

func TestDecrypt_TamperedTag(t *testing.T) {
	f := setupTestFixture(t)
	compact := encryptJWE(t, &f.encKey.PublicKey, []byte("inner.jwt.value"))

	parts := strings.Split(compact, ".")
	tag, err := base64.RawURLEncoding.DecodeString(parts[4])
	require.NoError(t, err)
	tag[len(tag)-1] ^= 0x01
	parts[4] = base64.RawURLEncoding.EncodeToString(tag)

	plaintext, err := f.adapter.Decrypt(context.Background(), strings.Join(parts, "."))
	require.ErrorIs(t, err, jose.ErrDecryption)
	require.Nil(t, plaintext)
}

func TestDecrypt_TamperedHeader(t *testing.T) {
	f := setupTestFixture(t)
	compact := encryptJWE(t, &f.encKey.PublicKey, []byte("inner.jwt.value"))

	parts := strings.Split(compact, ".")
	parts[0] = base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RSA-OAEP-256","enc":"A256GCM","cty":"jwt"}`))

	_, err := f.adapter.Decrypt(context.Background(), strings.Join(parts, "."))
	require.ErrorIs(t, err, jose.ErrDecryption)
}

func TestDecrypt_WrongSegmentCount(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.adapter.Decrypt(context.Background(), "a.b.c.d")
	require.ErrorIs(t, err, jose.ErrMalformedJWE)
	require.Zero(t, f.kms.Calls("Decrypt"))
}

func TestDecrypt_UnsupportedAlgorithm(t *testing.T) {
	f := setupTestFixture(t)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RSA1_5","enc":"A128CBC-HS256"}`))
	_, err := f.adapter.Decrypt(context.Background(), header+".a.b.c.d")
	require.ErrorIs(t, err, jose.ErrUnsupportedJWE)
}

func TestDecrypt_SingleKeyFailureIsTerminal(t *testing.T) {
	f := setupTestFixture(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	compact := encryptJWE(t, &other.PublicKey, []byte("payload"))

	_, err = f.adapter.Decrypt(context.Background(), compact)
	require.ErrorIs(t, err, jose.ErrKeyUnwrap)
	require.Equal(t, 1, f.kms.Calls("Decrypt"))
}

func TestDecrypt_KeyRotation(t *testing.T) {
	f := setupTestFixture(t, jose.WithKeyRotation([]string{"alias/previous", "alias/current"}))
	f.kms.AddEncryptionKey("alias/previous")
	f.kms.SetEncryptionKey("alias/current", f.encKey)
	compact := encryptJWE(t, &f.encKey.PublicKey, []byte("payload"))

	plaintext, err := f.adapter.Decrypt(context.Background(), compact)
	require.NoError(t, err)
	require.Equal(t, "payload", string(plaintext))
	require.Equal(t, 2, f.kms.Calls("Decrypt"))
}

func TestDecrypt_KeyRotationExhausted(t *testing.T) {
	f := setupTestFixture(t, jose.WithKeyRotation([]string{"alias/a", "alias/b"}))
	f.kms.AddEncryptionKey("alias/a")
	f.kms.AddEncryptionKey("alias/b")
	compact := encryptJWE(t, &f.encKey.PublicKey, []byte("payload"))

	_, err := f.adapter.Decrypt(context.Background(), compact)
	require.ErrorIs(t, err, jose.ErrKeyUnwrap)
	require.Equal(t, 2, f.kms.Calls("Decrypt"))
}

type relyingParty struct {
	key     *ecdsa.PrivateKey
	kid     string
	server  *httptest.Server
	fetches atomic.Int32
}

func newRelyingParty(t *testing.T, cacheControl string) *relyingParty {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	rp := &relyingParty{key: key, kid: "rp-signing-key"}

	set := gojose.JSONWebKeySet{Keys: []gojose.JSONWebKey{{
		Key: &key.PublicKey, KeyID: rp.kid, Algorithm: "ES256", Use: "sig",
	}}}
	body, err := json.Marshal(set)
	require.NoError(t, err)

	rp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rp.fetches.Add(1)
		if cacheControl != "" {
			w.Header().Set("Cache-Control", cacheControl)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(rp.server.Close)
	return rp
}

func (rp *relyingParty) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = rp.kid
	signed, err := token.SignedString(rp.key)
	require.NoError(t, err)
	return signed
}

func TestVerifyWithJWKS(t *testing.T) {
	rp := newRelyingParty(t, "")
	f := setupTestFixture(t)
	token := rp.sign(t, jwt.MapClaims{"client_id": "ipv-core", "exp": time.Now().Add(-time.Hour).Unix()})

	claims, err := f.adapter.VerifyWithJWKS(context.Background(), token, rp.server.URL, rp.kid)
	require.NoError(t, err)
	require.Equal(t, "ipv-core", claims["client_id"])
}

func TestVerifyWithJWKS_BadSignatureReturnsNil(t *testing.T) {
	rp := newRelyingParty(t, "")
	f := setupTestFixture(t)
	token := rp.sign(t, jwt.MapClaims{"client_id": "ipv-core"})
	parts := strings.Split(token, ".")
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"client_id":"attacker"}`))

	claims, err := f.adapter.VerifyWithJWKS(context.Background(), strings.Join(parts, "."), rp.server.URL, rp.kid)
	require.NoError(t, err)
	require.Nil(t, claims)
}

func TestVerifyWithJWKS_UnknownKid(t *testing.T) {
	rp := newRelyingParty(t, "")
	f := setupTestFixture(t)
	token := rp.sign(t, jwt.MapClaims{})

	_, err := f.adapter.VerifyWithJWKS(context.Background(), token, rp.server.URL, "other-kid")
	require.ErrorIs(t, err, jose.ErrUnknownKey)

	_, err = f.adapter.VerifyWithJWKS(context.Background(), token, rp.server.URL, "other-kid")
	require.ErrorIs(t, err, jose.ErrUnknownKey)
	require.EqualValues(t, 1, rp.fetches.Load())
}

func TestVerifyWithJWKS_CacheExpiry(t *testing.T) {
	rp := newRelyingParty(t, "public, max-age=60")
	now := time.Unix(1_700_000_000, 0)
	f := setupTestFixture(t, jose.WithNowFunc(func() time.Time { return now }))
	token := rp.sign(t, jwt.MapClaims{"sub": "x"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		claims, err := f.adapter.VerifyWithJWKS(ctx, token, rp.server.URL, rp.kid)
		require.NoError(t, err)
		require.NotNil(t, claims)
	}
	require.EqualValues(t, 1, rp.fetches.Load())

	now = now.Add(59 * time.Second)
	_, err := f.adapter.VerifyWithJWKS(ctx, token, rp.server.URL, rp.kid)
	require.NoError(t, err)
	require.EqualValues(t, 1, rp.fetches.Load())

	now = now.Add(2 * time.Second)
	_, err = f.adapter.VerifyWithJWKS(ctx, token, rp.server.URL, rp.kid)
	require.NoError(t, err)
	require.EqualValues(t, 2, rp.fetches.Load())
}

func TestVerifyWithJWKS_DefaultTTL(t *testing.T) {
	rp := newRelyingParty(t, "no-store")
	now := time.Unix(1_700_000_000, 0)
	f := setupTestFixture(t, jose.WithNowFunc(func() time.Time { return now }))
	token := rp.sign(t, jwt.MapClaims{"sub": "x"})
	ctx := context.Background()

	_, err := f.adapter.VerifyWithJWKS(ctx, token, rp.server.URL, rp.kid)
	require.NoError(t, err)
	now = now.Add(299 * time.Second)
	_, err = f.adapter.VerifyWithJWKS(ctx, token, rp.server.URL, rp.kid)
	require.NoError(t, err)
	require.EqualValues(t, 1, rp.fetches.Load())

	now = now.Add(2 * time.Second)
	_, err = f.adapter.VerifyWithJWKS(ctx, token, rp.server.URL, rp.kid)
	require.NoError(t, err)
	require.EqualValues(t, 2, rp.fetches.Load())
}

func TestVerifyWithJWKS_FetchRetriedThenFails(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := setupTestFixture(t)
	_, err := f.adapter.VerifyWithJWKS(context.Background(), "a.b.c", server.URL, "kid")
	require.ErrorIs(t, err, jose.ErrJWKSFetch)
	require.EqualValues(t, 2, fetches.Load())
}

func TestVerifyWithJWKS_ClientErrorNotRetried(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := setupTestFixture(t)
	_, err := f.adapter.VerifyWithJWKS(context.Background(), "a.b.c", server.URL, "kid")
	require.ErrorIs(t, err, jose.ErrJWKSFetch)
	require.EqualValues(t, 1, fetches.Load())
}

func TestHeaderKeyID(t *testing.T) {
	rp := newRelyingParty(t, "")
	kid, err := jose.HeaderKeyID(rp.sign(t, jwt.MapClaims{}))
	require.NoError(t, err)
	require.Equal(t, rp.kid, kid)

	_, err = jose.HeaderKeyID("garbage")
	require.ErrorIs(t, err, jose.ErrMalformedJWT)
}

func TestPublicJWKS(t *testing.T) {
	f := setupTestFixture(t, jose.WithDIDDomain("cri.example.com"))
	ctx := context.Background()

	set, err := f.adapter.PublicJWKS(ctx)
	require.NoError(t, err)
	require.Len(t, set.Keys, 2)

	require.Equal(t, "EC", set.Keys[0].Kty)
	require.Equal(t, "sig", set.Keys[0].Use)
	require.Equal(t, "ES256", set.Keys[0].Alg)
	require.Equal(t, f.adapter.SigningKeyID(), set.Keys[0].Kid)

	require.Equal(t, "RSA", set.Keys[1].Kty)
	require.Equal(t, "enc", set.Keys[1].Use)
	require.Equal(t, "RSA-OAEP-256", set.Keys[1].Alg)

	_, err = f.adapter.PublicJWKS(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.kms.Calls("GetPublicKey"))
}
