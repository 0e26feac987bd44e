package jose

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Sign produces a compact ES256 JWT over claims using the signing key
func (a *Adapter) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = a.SigningKeyID()

	signingString, err := token.SigningString()
	if err != nil {
		return "", errors.Wrapf(ErrSigning, "encode token: %v", err)
	}

	out, err := a.kms.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.signingKeyID),
		Message:          []byte(signingString),
		MessageType:      types.MessageTypeRaw,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return "", errors.Wrapf(ErrSigning, "kms sign: %v", err)
	}
	if out == nil || len(out.Signature) == 0 {
		return "", errors.Wrap(ErrSigning, "kms returned no signature")
	}

	sig, err := derToJOSE(out.Signature, es256KeySize)
	if err != nil {
		return "", errors.Wrapf(ErrSigning, "convert signature: %v", err)
	}
	return signingString + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// splitJWT returns the signing input and the decoded signature of a compact JWT
func splitJWT(compact string) (string, []byte, error) {
	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return "", nil, errors.Wrapf(ErrMalformedJWT, "expected 3 segments, got %d", len(parts))
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", nil, errors.Wrap(ErrMalformedJWT, "signature is not base64url")
	}
	return parts[0] + "." + parts[1], sig, nil
}

// HeaderKeyID reads the kid from a JWT header without verifying anything
func HeaderKeyID(compact string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(compact, jwt.MapClaims{})
	if err != nil {
		return "", errors.Wrapf(ErrMalformedJWT, "%v", err)
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return "", errors.Wrap(ErrMalformedJWT, "token header missing kid")
	}
	return kid, nil
}
