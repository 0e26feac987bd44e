package jose

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Verify checks a token signed by Sign. A signature that does not match is a
// false result; failing to reach the key service is an error.
func (a *Adapter) Verify(ctx context.Context, compact string) (bool, error) {
	signingInput, sig, err := splitJWT(compact)
	if err != nil {
		return false, err
	}
	der, err := joseToDER(sig, es256KeySize)
	if err != nil {
		return false, nil
	}

	out, err := a.kms.Verify(ctx, &kms.VerifyInput{
		KeyId:            aws.String(a.signingKeyID),
		Message:          []byte(signingInput),
		MessageType:      types.MessageTypeRaw,
		Signature:        der,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		var invalid *types.KMSInvalidSignatureException
		if errors.As(err, &invalid) {
			return false, nil
		}
		return false, errors.Wrapf(ErrVerification, "kms verify: %v", err)
	}
	return out.SignatureValid, nil
}

// VerifyWithJWKS verifies a token signed by a relying party against the key
// set published at jwksEndpoint. It returns nil claims when the token does not
// verify, and an error when the key set cannot be obtained or has no key kid.
func (a *Adapter) VerifyWithJWKS(ctx context.Context, compact, jwksEndpoint, kid string) (jwt.MapClaims, error) {
	set, err := a.jwks.getOrRefresh(ctx, jwksEndpoint)
	if err != nil {
		return nil, err
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, errors.Wrapf(ErrUnknownKey, "kid %s at %s", kid, jwksEndpoint)
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, errors.Wrapf(ErrVerification, "export key %s: %v", kid, err)
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(compact, claims, func(*jwt.Token) (any, error) {
		return rawKey, nil
	},
		jwt.WithValidMethods([]string{"ES256", "RS256", "PS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		log.Debug().Err(err).Str("kid", kid).Msg("request object failed verification")
		return nil, nil
	}
	return claims, nil
}
