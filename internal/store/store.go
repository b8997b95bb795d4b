// Package store persists the gateway's durable entities: users, sessions,
// audit log entries, and saved views. It is backed by SQLite by default
// (pure Go driver, no cgo) and can run against PostgreSQL for multi-instance
// deployments. All analytical data lives elsewhere; this store only holds
// account state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/agiannakidis/insightflow/internal/model"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the entity repository. It satisfies the repository interfaces
// consumed by the service and handler layers.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore opens a SQLite-backed store under dataDir. Pass empty string for
// an in-memory database (used by tests).
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "insightflow.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open(DriverSQLite, dsn)
}

// Open connects to the entity database using the given driver ("sqlite" or
// "postgres") and DSN, and applies migrations.
func Open(driver, dsn string) (*Store, error) {
	var db *sqlx.DB
	var err error

	switch driver {
	case DriverSQLite:
		db, err = sqlx.Connect("sqlite", dsn)
		if err == nil {
			db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
			_, err = db.Exec("PRAGMA foreign_keys = ON")
		}
	case DriverPostgres:
		db, err = sqlx.Connect("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open entity database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate entity database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// insert runs a named INSERT and returns the new row id, papering over the
// LastInsertId/RETURNING split between SQLite and PostgreSQL.
func (s *Store) insert(ctx context.Context, q string, arg interface{}) (int64, error) {
	if s.driver == DriverPostgres {
		rows, err := sqlx.NamedQueryContext(ctx, s.db, q+" RETURNING id", arg)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		var id int64
		if !rows.Next() {
			return 0, fmt.Errorf("insert returned no id")
		}
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	result, err := s.db.NamedExecContext(ctx, q, arg)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser inserts a new user. The ID, CreatedAt, and UpdatedAt fields on
// u are populated after a successful insert.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	const q = `INSERT INTO users
		(username, email, password_hash, role, is_active, failed_login_attempts,
		 locked_until, last_login_at, created_at, updated_at)
		VALUES
		(:username, :email, :password_hash, :role, :is_active, :failed_login_attempts,
		 :locked_until, :last_login_at, :created_at, :updated_at)`

	id, err := s.insert(ctx, q, u)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, s.db.Rebind("SELECT * FROM users WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByUsername returns a user by its unique username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, s.db.Rebind("SELECT * FROM users WHERE username = ?"), username); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &u, nil
}

// GetUserByEmail returns the first user matching the given email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	q := s.db.Rebind("SELECT * FROM users WHERE email = ? ORDER BY id LIMIT 1")
	if err := s.db.GetContext(ctx, &u, q, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY username"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CountUsers returns the total number of user accounts, active or not.
// The setup endpoint uses this to decide whether first-run is still open.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// RecordLoginFailure stores the updated failure counter and, once the
// lockout threshold is hit, the lockout deadline.
func (s *Store) RecordLoginFailure(ctx context.Context, id int64, attempts int, lockedUntil *time.Time) error {
	q := s.db.Rebind(`UPDATE users SET failed_login_attempts = ?, locked_until = ?, updated_at = ? WHERE id = ?`)
	return s.execOne(ctx, q, attempts, lockedUntil, time.Now().UTC(), id)
}

// RecordLoginSuccess resets the failure counters and stamps last_login_at.
func (s *Store) RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error {
	q := s.db.Rebind(`UPDATE users SET failed_login_attempts = 0, locked_until = NULL,
		last_login_at = ?, updated_at = ? WHERE id = ?`)
	return s.execOne(ctx, q, at, time.Now().UTC(), id)
}

// SetUserActive enables or disables an account.
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	q := s.db.Rebind(`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`)
	return s.execOne(ctx, q, active, time.Now().UTC(), id)
}

// SetUserPassword replaces the stored password hash and clears the lockout
// counters, mirroring an administrative reset.
func (s *Store) SetUserPassword(ctx context.Context, id int64, passwordHash string) error {
	q := s.db.Rebind(`UPDATE users SET password_hash = ?, failed_login_attempts = 0,
		locked_until = NULL, updated_at = ? WHERE id = ?`)
	return s.execOne(ctx, q, passwordHash, time.Now().UTC(), id)
}

// SetUserRole changes an account's role.
func (s *Store) SetUserRole(ctx context.Context, id int64, role string) error {
	q := s.db.Rebind(`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`)
	return s.execOne(ctx, q, role, time.Now().UTC(), id)
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// CreateSession inserts a new session. The ID and CreatedAt fields on sess
// are populated after a successful insert.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	sess.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO sessions
		(user_id, session_token_hash, expires_at, is_revoked, revoked_at, ip, user_agent, created_at)
		VALUES
		(:user_id, :session_token_hash, :expires_at, :is_revoked, :revoked_at, :ip, :user_agent, :created_at)`

	id, err := s.insert(ctx, q, sess)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	sess.ID = id
	return nil
}

// GetSessionByTokenHash returns the session matching the given token digest.
func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	var sess model.Session
	q := s.db.Rebind("SELECT * FROM sessions WHERE session_token_hash = ?")
	if err := s.db.GetContext(ctx, &sess, q, tokenHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// RevokeSession marks a single session revoked. Revoking an already-revoked
// session is a no-op.
func (s *Store) RevokeSession(ctx context.Context, id int64, at time.Time) error {
	q := s.db.Rebind(`UPDATE sessions SET is_revoked = ?, revoked_at = ? WHERE id = ? AND is_revoked = ?`)
	if _, err := s.db.ExecContext(ctx, q, true, at, id, false); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeSessionsForUser revokes every live session belonging to a user.
// Used when an admin disables an account.
func (s *Store) RevokeSessionsForUser(ctx context.Context, userID int64, at time.Time) error {
	q := s.db.Rebind(`UPDATE sessions SET is_revoked = ?, revoked_at = ? WHERE user_id = ? AND is_revoked = ?`)
	if _, err := s.db.ExecContext(ctx, q, true, at, userID, false); err != nil {
		return fmt.Errorf("revoke sessions for user: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

// AppendAudit inserts an audit log entry. Entries are append-only.
func (s *Store) AppendAudit(ctx context.Context, entry *model.AuditLog) error {
	entry.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO audit_logs
		(actor_id, actor_email, action, target_user_id, details, ip, created_at)
		VALUES
		(:actor_id, :actor_email, :action, :target_user_id, :details, :ip, :created_at)`

	id, err := s.insert(ctx, q, entry)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	entry.ID = id
	return nil
}

// ListAuditLogs returns the most recent entries, newest first.
func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []model.AuditLog
	q := s.db.Rebind("SELECT * FROM audit_logs ORDER BY created_at DESC, id DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &logs, q, limit); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

// ---------------------------------------------------------------------------
// Saved views
// ---------------------------------------------------------------------------

// CreateSavedView inserts a saved view owned by a user.
func (s *Store) CreateSavedView(ctx context.Context, v *model.SavedView) error {
	v.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO saved_views
		(name, description, page, filters, owner_id, is_public, created_at)
		VALUES
		(:name, :description, :page, :filters, :owner_id, :is_public, :created_at)`

	id, err := s.insert(ctx, q, v)
	if err != nil {
		return fmt.Errorf("insert saved view: %w", err)
	}
	v.ID = id
	return nil
}

// ListSavedViews returns the views visible to a user: their own plus any
// marked public.
func (s *Store) ListSavedViews(ctx context.Context, ownerID int64) ([]model.SavedView, error) {
	var views []model.SavedView
	q := s.db.Rebind(`SELECT * FROM saved_views WHERE owner_id = ? OR is_public = ? ORDER BY created_at DESC, id DESC`)
	if err := s.db.SelectContext(ctx, &views, q, ownerID, true); err != nil {
		return nil, fmt.Errorf("list saved views: %w", err)
	}
	return views, nil
}

// DeleteSavedView removes a view. Only the owner may delete it.
func (s *Store) DeleteSavedView(ctx context.Context, id, ownerID int64) error {
	q := s.db.Rebind("DELETE FROM saved_views WHERE id = ? AND owner_id = ?")
	return s.execOne(ctx, q, id, ownerID)
}

// execOne runs an UPDATE/DELETE expected to touch exactly one row and maps
// zero affected rows to ErrNotFound.
func (s *Store) execOne(ctx context.Context, q string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
