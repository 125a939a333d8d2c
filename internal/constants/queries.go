package constants

// Prepared statement names
const (
	StmtGetValue     = "get_value"
	StmtUpsertValue  = "upsert_value"
	StmtDeleteValue  = "delete_value"
	StmtListKeys     = "list_keys"
	StmtInsertAudit  = "insert_audit_entry"
	StmtAuditHistory = "audit_history"
)

var Queries = map[string]string{
	StmtGetValue: `
		SELECT value FROM kv_store
		WHERE namespace = $1 AND key = $2`,

	StmtUpsertValue: `
		INSERT INTO kv_store (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,

	StmtDeleteValue: `
		DELETE FROM kv_store
		WHERE namespace = $1 AND key = $2`,

	StmtListKeys: `
		SELECT key FROM kv_store
		WHERE namespace = $1 AND key LIKE $2 ESCAPE '\'
		ORDER BY key`,

	StmtInsertAudit: `
		INSERT INTO audit_entries (id, timestamp, actor_id, action, payload_hash, session_id, data_kind, severity, success, error_message, details, exempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,

	StmtAuditHistory: `
		SELECT id, timestamp, actor_id, action, payload_hash, session_id, data_kind, severity, success, error_message, details, exempt
		FROM audit_entries
		WHERE ($1 = '' OR action = $1)
		ORDER BY timestamp DESC
		LIMIT $2`,
}
