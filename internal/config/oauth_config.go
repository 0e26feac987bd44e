package config

import "time"

const (
	issuerEnvVar          = "VC_ISSUER"
	sessionTTLEnvVar      = "SESSION_TTL"
	authCodeTTLEnvVar     = "AUTHORIZATION_CODE_TTL"
	accessTokenTTLEnvVar  = "ACCESS_TOKEN_TTL"
	maxJWTTTLEnvVar       = "MAX_JWT_TTL"
	credentialClaimEnvVar = "VC_CREDENTIAL_CLAIM_KEY"
)

type OAuthConfig interface {
	GetIssuer() string
	GetSessionTTL() time.Duration
	GetAuthCodeTTL() time.Duration
	GetAccessTokenTTL() time.Duration
	GetCredentialTTL() time.Duration
	GetCredentialClaimKey() string
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetIssuer() string {
	return GetEnv(issuerEnvVar, "")
}

func (OAuth) GetSessionTTL() time.Duration {
	return GetEnvSeconds(sessionTTLEnvVar, 2*time.Hour)
}

func (OAuth) GetAuthCodeTTL() time.Duration {
	return GetEnvSeconds(authCodeTTLEnvVar, 10*time.Minute)
}

func (OAuth) GetAccessTokenTTL() time.Duration {
	return GetEnvSeconds(accessTokenTTLEnvVar, time.Hour)
}

// GetCredentialTTL is zero unless configured, meaning issued credentials carry no exp.
func (OAuth) GetCredentialTTL() time.Duration {
	return GetEnvSeconds(maxJWTTTLEnvVar, 0)
}

func (OAuth) GetCredentialClaimKey() string {
	return GetEnv(credentialClaimEnvVar, "https://vocab.account.gov.uk/v1/credentialJWT")
}
