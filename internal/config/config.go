package config

import (
	"strings"

	apperrors "github.com/jrsteele09/claimed-identity-cri/internal/errors"
)

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	KeyConfig
	ClientConfig
	StoreConfig
	AuditConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetRegion() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Keys
	Clients
	Store
	Audit
}

func New() Config {
	return mainConfig{}
}

// Validate reports every missing or malformed required setting in one error.
func Validate(c Config) error {
	var problems []string

	if c.GetIssuer() == "" {
		problems = append(problems, issuerEnvVar+" is required")
	}
	if c.GetSigningKeyID() == "" {
		problems = append(problems, signingKeyEnvVar+" is required")
	}
	if c.GetKeyRotationEnabled() {
		if len(c.GetDecryptionKeyAliases()) == 0 {
			problems = append(problems, decryptionAliasesEnvVar+" is required when key rotation is enabled")
		}
	} else if c.GetEncryptionKeyID() == "" {
		problems = append(problems, encryptionKeyEnvVar+" is required")
	}
	if _, err := c.GetClients(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.GetSessionTTL() <= 0 {
		problems = append(problems, sessionTTLEnvVar+" must be positive")
	}
	if c.GetSessionStore() == SessionStoreRedis && c.GetRedisAddr() == "" {
		problems = append(problems, redisAddrEnvVar+" is required for the redis session store")
	}

	if len(problems) > 0 {
		return apperrors.New(apperrors.KindConfiguration, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}
