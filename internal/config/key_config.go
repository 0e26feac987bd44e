package config

import "strings"

const (
	signingKeyEnvVar        = "SIGNING_KEY_ID"
	encryptionKeyEnvVar     = "ENCRYPTION_KEY_ID"
	decryptionAliasesEnvVar = "DECRYPTION_KEY_ALIASES"
	keyRotationEnvVar       = "ENV_VAR_FEATURE_FLAG_KEY_ROTATION"
	didDomainEnvVar         = "DID_DOMAIN"
)

// KeyConfig locates the KMS keys used for signing issued tokens and for
// unwrapping the content keys of inbound request objects.
type KeyConfig interface {
	GetSigningKeyID() string
	GetEncryptionKeyID() string
	GetDecryptionKeyAliases() []string
	GetKeyRotationEnabled() bool
	GetDIDDomain() string
}

type Keys struct{}

var _ KeyConfig = Keys{}

func (Keys) GetSigningKeyID() string {
	return GetEnv(signingKeyEnvVar, "")
}

func (Keys) GetEncryptionKeyID() string {
	return GetEnv(encryptionKeyEnvVar, "")
}

func (Keys) GetDecryptionKeyAliases() []string {
	return GetEnvList(decryptionAliasesEnvVar)
}

func (Keys) GetKeyRotationEnabled() bool {
	return strings.EqualFold(GetEnv(keyRotationEnvVar, "false"), "true")
}

func (Keys) GetDIDDomain() string {
	return GetEnv(didDomainEnvVar, "")
}
