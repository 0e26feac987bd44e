// Package jose signs, verifies and decrypts the compact JOSE objects exchanged
// with relying parties. Private key material never leaves the remote key
// service; this package only moves bytes to and from it.
package jose

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
)

const (
	defaultJWKSTimeout    = 5 * time.Second
	defaultJWKSCacheTTL   = 300 * time.Second
	defaultJWKSRetryDelay = 200 * time.Millisecond
)

// KMSClient is the subset of the AWS KMS API the adapter needs
type KMSClient interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	Verify(ctx context.Context, params *kms.VerifyInput, optFns ...func(*kms.Options)) (*kms.VerifyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// Adapter performs all cryptographic operations of the issuer
type Adapter struct {
	kms             KMSClient
	signingKeyID    string
	encryptionKeyID string
	decryptionKeys  []string
	keyRotation     bool
	didDomain       string
	jwks            *jwksCache

	publicLock sync.Mutex
	publicSet  *JWKS
}

type AdapterOption func(*Adapter)

// WithDIDDomain renders kid values as did:web references under domain
func WithDIDDomain(domain string) AdapterOption {
	return func(a *Adapter) {
		a.didDomain = domain
	}
}

// WithKeyRotation makes Decrypt try each alias in order instead of the single
// encryption key.
func WithKeyRotation(aliases []string) AdapterOption {
	return func(a *Adapter) {
		if len(aliases) == 0 {
			return
		}
		a.keyRotation = true
		a.decryptionKeys = append([]string(nil), aliases...)
	}
}

// WithHTTPClient replaces the client used to fetch relying party key sets
func WithHTTPClient(client *http.Client) AdapterOption {
	return func(a *Adapter) {
		a.jwks.client = client
	}
}

// WithNowFunc sets the clock used for key set cache expiry
func WithNowFunc(now func() time.Time) AdapterOption {
	return func(a *Adapter) {
		a.jwks.now = now
	}
}

// WithJWKSRetryDelay sets the pause between the two key set fetch attempts
func WithJWKSRetryDelay(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.jwks.retryDelay = d
	}
}

func NewAdapter(client KMSClient, signingKeyID, encryptionKeyID string, options ...AdapterOption) *Adapter {
	a := &Adapter{
		kms:             client,
		signingKeyID:    signingKeyID,
		encryptionKeyID: encryptionKeyID,
		decryptionKeys:  []string{encryptionKeyID},
		jwks:            newJWKSCache(),
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// SigningKeyID returns the kid placed in the header of every signed token
func (a *Adapter) SigningKeyID() string {
	return deriveKeyID(a.signingKeyID, a.didDomain)
}
