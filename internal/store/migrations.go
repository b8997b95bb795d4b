package store

import "fmt"

// migrate applies the entity schema. Statements are idempotent so the store
// can be reopened against an existing database.
func (s *Store) migrate() error {
	var migrations []string

	switch s.driver {
	case DriverPostgres:
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				username TEXT UNIQUE NOT NULL,
				email TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'viewer',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				failed_login_attempts INTEGER NOT NULL DEFAULT 0,
				locked_until TIMESTAMPTZ,
				last_login_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id),
				session_token_hash TEXT UNIQUE NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL,
				is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
				revoked_at TIMESTAMPTZ,
				ip TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS audit_logs (
				id BIGSERIAL PRIMARY KEY,
				actor_id BIGINT NOT NULL,
				actor_email TEXT NOT NULL DEFAULT '',
				action TEXT NOT NULL,
				target_user_id BIGINT NOT NULL DEFAULT 0,
				details TEXT NOT NULL DEFAULT '',
				ip TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS saved_views (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				page TEXT NOT NULL DEFAULT '',
				filters TEXT NOT NULL DEFAULT '{}',
				owner_id BIGINT NOT NULL,
				is_public BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_token_hash ON sessions(session_token_hash)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`,
		}
	default:
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT UNIQUE NOT NULL,
				email TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'viewer',
				is_active INTEGER NOT NULL DEFAULT 1,
				failed_login_attempts INTEGER NOT NULL DEFAULT 0,
				locked_until DATETIME,
				last_login_at DATETIME,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL REFERENCES users(id),
				session_token_hash TEXT UNIQUE NOT NULL,
				expires_at DATETIME NOT NULL,
				is_revoked INTEGER NOT NULL DEFAULT 0,
				revoked_at DATETIME,
				ip TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS audit_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				actor_id INTEGER NOT NULL,
				actor_email TEXT NOT NULL DEFAULT '',
				action TEXT NOT NULL,
				target_user_id INTEGER NOT NULL DEFAULT 0,
				details TEXT NOT NULL DEFAULT '',
				ip TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS saved_views (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				page TEXT NOT NULL DEFAULT '',
				filters TEXT NOT NULL DEFAULT '{}',
				owner_id INTEGER NOT NULL,
				is_public INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_token_hash ON sessions(session_token_hash)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`,
		}
	}

	for i, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
