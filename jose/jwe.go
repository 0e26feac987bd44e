package jose

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	jweAlgRSAOAEP256 = "RSA-OAEP-256"
	jweEncA256GCM    = "A256GCM"
	cekSize          = 32
)

type jweHeader struct {
	Alg string `json:"alg"`
	Enc string `json:"enc"`
	Cty string `json:"cty,omitempty"`
}

type compactJWE struct {
	protected    string
	encryptedKey []byte
	iv           []byte
	ciphertext   []byte
	tag          []byte
}

func parseCompactJWE(compact string) (*compactJWE, error) {
	parts := strings.Split(compact, ".")
	if len(parts) != 5 {
		return nil, errors.Wrapf(ErrMalformedJWE, "expected 5 segments, got %d", len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.Wrap(ErrMalformedJWE, "protected header is not base64url")
	}
	var header jweHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, errors.Wrap(ErrMalformedJWE, "protected header is not JSON")
	}
	if header.Alg != jweAlgRSAOAEP256 || header.Enc != jweEncA256GCM {
		return nil, errors.Wrapf(ErrUnsupportedJWE, "alg %q enc %q", header.Alg, header.Enc)
	}

	jwe := &compactJWE{protected: parts[0]}
	segments := []*[]byte{&jwe.encryptedKey, &jwe.iv, &jwe.ciphertext, &jwe.tag}
	for i, dest := range segments {
		b, err := base64.RawURLEncoding.DecodeString(parts[i+1])
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedJWE, "segment %d is not base64url", i+1)
		}
		*dest = b
	}
	return jwe, nil
}

// Decrypt opens a compact RSA-OAEP-256 / A256GCM JWE and returns the payload
// bytes, normally the serialized request object JWT.
func (a *Adapter) Decrypt(ctx context.Context, compact string) ([]byte, error) {
	jwe, err := parseCompactJWE(compact)
	if err != nil {
		return nil, err
	}

	cek, err := a.unwrapKey(ctx, jwe.encryptedKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, errors.Wrapf(ErrDecryption, "content key: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrapf(ErrDecryption, "gcm: %v", err)
	}
	if len(jwe.iv) != gcm.NonceSize() {
		return nil, errors.Wrapf(ErrDecryption, "iv must be %d bytes", gcm.NonceSize())
	}
	if len(jwe.tag) != gcm.Overhead() {
		return nil, errors.Wrapf(ErrDecryption, "tag must be %d bytes", gcm.Overhead())
	}

	sealed := make([]byte, 0, len(jwe.ciphertext)+len(jwe.tag))
	sealed = append(sealed, jwe.ciphertext...)
	sealed = append(sealed, jwe.tag...)

	plaintext, err := gcm.Open(nil, jwe.iv, sealed, []byte(jwe.protected))
	if err != nil {
		return nil, errors.Wrap(ErrDecryption, "authentication failed")
	}
	return plaintext, nil
}

// unwrapKey recovers the content encryption key. With key rotation each alias
// is tried in order and the first success wins; otherwise the single key's
// failure is final.
func (a *Adapter) unwrapKey(ctx context.Context, encryptedKey []byte) ([]byte, error) {
	var lastErr error
	for _, keyID := range a.decryptionKeys {
		out, err := a.kms.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob:      encryptedKey,
			KeyId:               aws.String(keyID),
			EncryptionAlgorithm: types.EncryptionAlgorithmSpecRsaesOaepSha256,
		})
		if err == nil && len(out.Plaintext) == cekSize {
			return out.Plaintext, nil
		}
		if err == nil {
			err = errors.Errorf("content key is %d bytes", len(out.Plaintext))
		}
		lastErr = err
		if !a.keyRotation {
			break
		}
		log.Warn().Err(err).Str("key_alias", keyID).Msg("unwrap failed, trying next key alias")
	}
	return nil, errors.Wrapf(ErrKeyUnwrap, "%v", lastErr)
}
