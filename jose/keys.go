package jose

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

const es256KeySize = 32

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a public JSON Web Key
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`

	// RSA
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

type ecdsaSignature struct {
	R, S *big.Int
}

// deriveKeyID takes the last path segment of a KMS key id or ARN. With a DID
// domain the kid becomes did:web:<domain>#<sha256 hex of the segment>.
func deriveKeyID(keyID, didDomain string) string {
	kid := keyID
	if i := strings.LastIndex(kid, "/"); i >= 0 {
		kid = kid[i+1:]
	}
	if didDomain == "" {
		return kid
	}
	sum := sha256.Sum256([]byte(kid))
	return "did:web:" + didDomain + "#" + hex.EncodeToString(sum[:])
}

// derToJOSE converts an ASN.1 DER ECDSA signature into fixed width R||S
func derToJOSE(der []byte, keySize int) ([]byte, error) {
	var sig ecdsaSignature
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return nil, errors.Wrap(err, "invalid DER signature")
	}
	if len(rest) != 0 || sig.R == nil || sig.S == nil {
		return nil, errors.New("invalid DER signature")
	}
	r, s := sig.R.Bytes(), sig.S.Bytes()
	if len(r) > keySize || len(s) > keySize {
		return nil, errors.New("signature component exceeds key size")
	}

	copyPadded := func(source []byte, size int) []byte {
		dest := make([]byte, size)
		copy(dest[size-len(source):], source)
		return dest
	}
	return append(copyPadded(r, keySize), copyPadded(s, keySize)...), nil
}

// joseToDER converts a fixed width R||S signature back into ASN.1 DER
func joseToDER(sig []byte, keySize int) ([]byte, error) {
	if len(sig) != 2*keySize {
		return nil, errors.Errorf("signature must be %d bytes, got %d", 2*keySize, len(sig))
	}
	return asn1.Marshal(ecdsaSignature{
		R: new(big.Int).SetBytes(sig[:keySize]),
		S: new(big.Int).SetBytes(sig[keySize:]),
	})
}

func publicKeyToJWK(pub any, kid, use, alg string) (*JWK, error) {
	jwk := &JWK{Kid: kid, Use: use, Alg: alg}

	switch key := pub.(type) {
	case *rsa.PublicKey:
		jwk.Kty = "RSA"
		jwk.N = base64.RawURLEncoding.EncodeToString(key.N.Bytes())
		jwk.E = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes())
	case *ecdsa.PublicKey:
		if key.Curve != elliptic.P256() {
			return nil, errors.New("unsupported elliptic curve")
		}
		jwk.Kty = "EC"
		jwk.Crv = "P-256"
		jwk.X = base64.RawURLEncoding.EncodeToString(key.X.FillBytes(make([]byte, es256KeySize)))
		jwk.Y = base64.RawURLEncoding.EncodeToString(key.Y.FillBytes(make([]byte, es256KeySize)))
	default:
		return nil, errors.New("unsupported public key type")
	}
	return jwk, nil
}
