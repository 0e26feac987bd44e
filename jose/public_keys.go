package jose

import (
	"context"
	"crypto/x509"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/pkg/errors"
)

// PublicJWKS returns the public halves of the signing and encryption keys for
// publication. The set is built on first success and reused afterwards.
func (a *Adapter) PublicJWKS(ctx context.Context) (*JWKS, error) {
	a.publicLock.Lock()
	defer a.publicLock.Unlock()
	if a.publicSet != nil {
		return a.publicSet, nil
	}

	sig, err := a.publicJWK(ctx, a.signingKeyID, "sig", "ES256")
	if err != nil {
		return nil, err
	}
	set := &JWKS{Keys: []JWK{*sig}}

	seen := map[string]bool{sig.Kid: true}
	for _, keyID := range a.encryptionKeyIDs() {
		enc, err := a.publicJWK(ctx, keyID, "enc", jweAlgRSAOAEP256)
		if err != nil {
			return nil, err
		}
		if seen[enc.Kid] {
			continue
		}
		seen[enc.Kid] = true
		set.Keys = append(set.Keys, *enc)
	}

	a.publicSet = set
	return set, nil
}

func (a *Adapter) encryptionKeyIDs() []string {
	var ids []string
	if a.encryptionKeyID != "" {
		ids = append(ids, a.encryptionKeyID)
	}
	if a.keyRotation {
		ids = append(ids, a.decryptionKeys...)
	}
	return ids
}

func (a *Adapter) publicJWK(ctx context.Context, keyID, use, alg string) (*JWK, error) {
	out, err := a.kms.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, errors.Wrapf(ErrPublicKey, "kms get public key %s: %v", keyID, err)
	}
	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(ErrPublicKey, "parse public key %s: %v", keyID, err)
	}
	jwk, err := publicKeyToJWK(pub, deriveKeyID(keyID, a.didDomain), use, alg)
	if err != nil {
		return nil, errors.Wrapf(ErrPublicKey, "%s: %v", keyID, err)
	}
	return jwk, nil
}
