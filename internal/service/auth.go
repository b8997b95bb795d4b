// Package service implements the session and credential subsystem: login
// with brute-force lockout, opaque bearer-token sessions stored as digests,
// and role checks.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/agiannakidis/insightflow/internal/model"
	"github.com/agiannakidis/insightflow/internal/store"
)

var (
	// ErrInvalidCredentials covers both unknown users and wrong passwords,
	// deliberately indistinguishable to avoid user enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLocked is returned while a temporary lockout window is active.
	ErrLocked = errors.New("account temporarily locked")
	// ErrUnauthorized is returned for missing, expired, or revoked tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSetupComplete is returned when setup is attempted after first run.
	ErrSetupComplete = errors.New("setup already complete")
)

// UserStore is the slice of the entity repository the auth service needs
// for user records.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CountUsers(ctx context.Context) (int64, error)
	RecordLoginFailure(ctx context.Context, id int64, attempts int, lockedUntil *time.Time) error
	RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error
}

// SessionStore is the slice of the entity repository the auth service needs
// for session records.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *model.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error)
	RevokeSession(ctx context.Context, id int64, at time.Time) error
	RevokeSessionsForUser(ctx context.Context, userID int64, at time.Time) error
}

// Policy holds the lockout and session-expiry constants. They are observed
// behavior in the dashboard, exposed here as configuration rather than
// magic numbers.
type Policy struct {
	MaxFailedLogins int
	LockoutDuration time.Duration
	SessionTTL      time.Duration
}

// DefaultPolicy returns the stock policy: 5 attempts, 15 minute lockout,
// 24 hour sessions.
func DefaultPolicy() Policy {
	return Policy{
		MaxFailedLogins: 5,
		LockoutDuration: 15 * time.Minute,
		SessionTTL:      24 * time.Hour,
	}
}

// AuthService implements login, token validation, logout, and the lockout
// policy over the entity repository.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	policy   Policy
	now      func() time.Time
}

// NewAuthService creates an AuthService. A zero-valued policy field falls
// back to its default.
func NewAuthService(users UserStore, sessions SessionStore, policy Policy) *AuthService {
	def := DefaultPolicy()
	if policy.MaxFailedLogins <= 0 {
		policy.MaxFailedLogins = def.MaxFailedLogins
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = def.LockoutDuration
	}
	if policy.SessionTTL <= 0 {
		policy.SessionTTL = def.SessionTTL
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		policy:   policy,
		now:      time.Now,
	}
}

// Login authenticates a user by username (falling back to email), enforces
// the lockout policy, and on success mints a new session. The raw token is
// returned to the caller exactly once; only its digest is stored.
func (s *AuthService) Login(ctx context.Context, username, password, ip, userAgent string) (string, *model.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.users.GetUserByEmail(ctx, username)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !user.IsActive {
		return "", nil, ErrInvalidCredentials
	}

	now := s.now()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return "", nil, ErrLocked
	}

	if !VerifyPassword(password, user.PasswordHash) {
		if err := s.recordFailure(ctx, user, now); err != nil {
			return "", nil, err
		}
		return "", nil, ErrInvalidCredentials
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now.UTC()); err != nil {
		return "", nil, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	t := now.UTC()
	user.LastLoginAt = &t

	token, err := GenerateToken()
	if err != nil {
		return "", nil, err
	}
	sess := &model.Session{
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: now.UTC().Add(s.policy.SessionTTL),
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// recordFailure increments the failure counter and, once the threshold is
// reached, arms the lockout deadline. The lockout is a soft lock: after
// LockedUntil elapses the next attempt is evaluated normally.
func (s *AuthService) recordFailure(ctx context.Context, user *model.User, now time.Time) error {
	attempts := user.FailedLoginAttempts + 1
	var lockedUntil *time.Time
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		lockedUntil = user.LockedUntil
	}
	if attempts >= s.policy.MaxFailedLogins {
		t := now.UTC().Add(s.policy.LockoutDuration)
		lockedUntil = &t
	}
	return s.users.RecordLoginFailure(ctx, user.ID, attempts, lockedUntil)
}

// Validate resolves a bearer token to its owning user. It returns
// ErrUnauthorized for missing, revoked, or expired sessions and for
// deactivated users. The returned user never carries the password hash to
// callers that serialize it (the json tag strips it).
func (s *AuthService) Validate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	sess, err := s.sessions.GetSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if sess.IsRevoked || !sess.ExpiresAt.After(s.now()) {
		return nil, ErrUnauthorized
	}
	user, err := s.users.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// Logout revokes the session for the given token. Unknown or already
// revoked tokens are not an error; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sess, err := s.sessions.GetSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.sessions.RevokeSession(ctx, sess.ID, s.now().UTC())
}

// RevokeUserSessions revokes every live session owned by a user. Called
// when an admin disables the account so existing tokens stop validating.
func (s *AuthService) RevokeUserSessions(ctx context.Context, userID int64) error {
	return s.sessions.RevokeSessionsForUser(ctx, userID, s.now().UTC())
}

// Setup creates the first admin account. It succeeds only while zero users
// exist; afterwards it returns ErrSetupComplete.
func (s *AuthService) Setup(ctx context.Context, username, password string) (*model.User, error) {
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrSetupComplete
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// RequireRole reports whether the user holds the given role. Callers map a
// false result to a 403 response.
func RequireRole(user *model.User, role string) bool {
	return user != nil && user.Role == role
}
