package constants

// Tier A key names and prefixes.
const (
	RecordPrefix    = "encrypted_"
	VaultKeyPrefix  = "vault_key_"
	SnapshotPrefix  = "anon_"
	ConsentKey      = "compliance_consent"
	PrivacyKey      = "compliance_privacy"
	AuditLogKey     = "compliance_audit_log"
	BreachesKey     = "compliance_breaches"
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendVault    = "hashicorp-vault"
)

const (
	NamespaceKeys    = "keys"
	NamespaceRecords = "records"
)
