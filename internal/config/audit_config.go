package config

const (
	auditQueueEnvVar  = "SQS_AUDIT_EVENT_QUEUE_URL"
	auditPrefixEnvVar = "SQS_AUDIT_EVENT_PREFIX"
)

type AuditConfig interface {
	GetAuditQueueURL() string
	GetAuditEventPrefix() string
}

type Audit struct{}

var _ AuditConfig = Audit{}

// GetAuditQueueURL is optional. Without it audit events are only logged.
func (Audit) GetAuditQueueURL() string {
	return GetEnv(auditQueueEnvVar, "")
}

func (Audit) GetAuditEventPrefix() string {
	return GetEnv(auditPrefixEnvVar, "IPV_CLAIMED_IDENTITY_CRI")
}
