package jose

import "github.com/pkg/errors"

var (
	ErrSigning        = errors.New("signing failed")
	ErrVerification   = errors.New("could not verify signature")
	ErrUnknownKey     = errors.New("key id not found in key set")
	ErrJWKSFetch      = errors.New("failed to fetch key set")
	ErrMalformedJWT   = errors.New("malformed JWT")
	ErrMalformedJWE   = errors.New("malformed JWE")
	ErrUnsupportedJWE = errors.New("unsupported JWE algorithm")
	ErrKeyUnwrap      = errors.New("failed to unwrap content encryption key")
	ErrDecryption     = errors.New("failed to decrypt JWE payload")
	ErrPublicKey      = errors.New("failed to export public key")
)
