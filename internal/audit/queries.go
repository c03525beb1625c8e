package audit

// Schema:
//
//	CREATE TABLE IF NOT EXISTS audit_log (
//	    id UUID PRIMARY KEY,
//	    at TIMESTAMPTZ NOT NULL,
//	    action TEXT NOT NULL,
//	    details TEXT NOT NULL DEFAULT '',
//	    actor_id TEXT NOT NULL,
//	    actor_name TEXT NOT NULL DEFAULT '',
//	    platform TEXT NOT NULL DEFAULT ''
//	);
//	CREATE INDEX IF NOT EXISTS audit_log_at_idx ON audit_log (at DESC);

const queryInsertEntry = `
INSERT INTO audit_log (id, at, action, details, actor_id, actor_name, platform)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const queryRecentEntries = `
SELECT id, at, action, details, actor_id, actor_name, platform
FROM audit_log
ORDER BY at DESC
LIMIT $1`
