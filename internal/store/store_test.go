package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agiannakidis/insightflow/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "pbkdf2:aa:bb",
		Role:         model.RoleViewer,
		IsActive:     true,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "alice")
	if u.ID == 0 {
		t.Fatal("expected assigned ID")
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "alice" || got.Role != model.RoleViewer || !got.IsActive {
		t.Errorf("got %+v", got)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil || byName.ID != u.ID {
		t.Errorf("GetUserByUsername: %v %+v", err, byName)
	}
	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil || byEmail.ID != u.ID {
		t.Errorf("GetUserByEmail: %v %+v", err, byEmail)
	}

	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user: err = %v, want ErrNotFound", err)
	}

	n, err := s.CountUsers(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountUsers = %d, %v", n, err)
	}

	seedUser(t, s, "bob")
	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Errorf("ListUsers order: %+v", users)
	}
}

func TestUniqueUsername(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "alice")

	dup := &model.User{Username: "alice", PasswordHash: "x", Role: model.RoleViewer}
	if err := s.CreateUser(context.Background(), dup); err == nil {
		t.Error("expected unique constraint violation")
	}
}

func TestLoginCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")

	deadline := time.Now().UTC().Add(15 * time.Minute).Truncate(time.Second)
	if err := s.RecordLoginFailure(ctx, u.ID, 5, &deadline); err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	got, _ := s.GetUser(ctx, u.ID)
	if got.FailedLoginAttempts != 5 || got.LockedUntil == nil {
		t.Errorf("after failure: %+v", got)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := s.RecordLoginSuccess(ctx, u.ID, at); err != nil {
		t.Fatalf("RecordLoginSuccess: %v", err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if got.FailedLoginAttempts != 0 || got.LockedUntil != nil || got.LastLoginAt == nil {
		t.Errorf("after success: %+v", got)
	}
}

func TestUserMutations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")

	if err := s.SetUserActive(ctx, u.ID, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	got, _ := s.GetUser(ctx, u.ID)
	if got.IsActive {
		t.Error("user should be inactive")
	}

	if err := s.SetUserPassword(ctx, u.ID, "pbkdf2:cc:dd"); err != nil {
		t.Fatalf("SetUserPassword: %v", err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if got.PasswordHash != "pbkdf2:cc:dd" {
		t.Errorf("password hash = %q", got.PasswordHash)
	}

	if err := s.SetUserRole(ctx, u.ID, model.RoleAdmin); err != nil {
		t.Fatalf("SetUserRole: %v", err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if got.Role != model.RoleAdmin {
		t.Errorf("role = %q", got.Role)
	}

	if err := s.SetUserActive(ctx, 9999, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("mutating missing user: err = %v, want ErrNotFound", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")

	sess := &model.Session{
		UserID:    u.ID,
		TokenHash: "digest-1",
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
		IP:        "127.0.0.1",
		UserAgent: "test",
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSessionByTokenHash(ctx, "digest-1")
	if err != nil {
		t.Fatalf("GetSessionByTokenHash: %v", err)
	}
	if got.UserID != u.ID || got.IsRevoked {
		t.Errorf("session = %+v", got)
	}

	if _, err := s.GetSessionByTokenHash(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing session: err = %v, want ErrNotFound", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := s.RevokeSession(ctx, sess.ID, now); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	got, _ = s.GetSessionByTokenHash(ctx, "digest-1")
	if !got.IsRevoked || got.RevokedAt == nil {
		t.Errorf("session not revoked: %+v", got)
	}

	// Idempotent re-revocation keeps the original timestamp.
	if err := s.RevokeSession(ctx, sess.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	again, _ := s.GetSessionByTokenHash(ctx, "digest-1")
	if !again.RevokedAt.Equal(*got.RevokedAt) {
		t.Errorf("revoked_at changed on re-revoke: %v vs %v", again.RevokedAt, got.RevokedAt)
	}
}

func TestRevokeSessionsForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")
	other := seedUser(t, s, "bob")

	for i, hash := range []string{"d1", "d2"} {
		sess := &model.Session{UserID: u.ID, TokenHash: hash, ExpiresAt: time.Now().Add(time.Hour)}
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("session %d: %v", i, err)
		}
	}
	bobSess := &model.Session{UserID: other.ID, TokenHash: "d3", ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.CreateSession(ctx, bobSess); err != nil {
		t.Fatal(err)
	}

	if err := s.RevokeSessionsForUser(ctx, u.ID, time.Now().UTC()); err != nil {
		t.Fatalf("RevokeSessionsForUser: %v", err)
	}

	for _, hash := range []string{"d1", "d2"} {
		got, _ := s.GetSessionByTokenHash(ctx, hash)
		if !got.IsRevoked {
			t.Errorf("session %s should be revoked", hash)
		}
	}
	bobGot, _ := s.GetSessionByTokenHash(ctx, "d3")
	if bobGot.IsRevoked {
		t.Error("other user's session must survive")
	}
}

func TestAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, action := range []string{model.AuditCreateUser, model.AuditDisableUser, model.AuditChangeRole} {
		entry := &model.AuditLog{
			ActorID:      1,
			ActorEmail:   "admin@example.com",
			Action:       action,
			TargetUserID: int64(i + 2),
			IP:           "127.0.0.1",
		}
		if err := s.AppendAudit(ctx, entry); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	logs, err := s.ListAuditLogs(ctx, 0)
	if err != nil {
		t.Fatalf("ListAuditLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("len = %d", len(logs))
	}
	// Newest first.
	if logs[0].Action != model.AuditChangeRole || logs[2].Action != model.AuditCreateUser {
		t.Errorf("order: %s, %s, %s", logs[0].Action, logs[1].Action, logs[2].Action)
	}

	limited, err := s.ListAuditLogs(ctx, 2)
	if err != nil || len(limited) != 2 {
		t.Errorf("limit: %d entries, %v", len(limited), err)
	}
}

func TestSavedViews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "alice")
	other := seedUser(t, s, "bob")

	mine := &model.SavedView{Name: "errors today", Page: "logs", Filters: `{"level":["error"]}`, OwnerID: owner.ID}
	if err := s.CreateSavedView(ctx, mine); err != nil {
		t.Fatalf("CreateSavedView: %v", err)
	}
	shared := &model.SavedView{Name: "slow spans", Page: "traces", Filters: `{}`, OwnerID: other.ID, IsPublic: true}
	if err := s.CreateSavedView(ctx, shared); err != nil {
		t.Fatal(err)
	}
	private := &model.SavedView{Name: "bob private", Page: "logs", Filters: `{}`, OwnerID: other.ID}
	if err := s.CreateSavedView(ctx, private); err != nil {
		t.Fatal(err)
	}

	views, err := s.ListSavedViews(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListSavedViews: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("visible views = %d, want own + public", len(views))
	}

	// Only the owner can delete.
	if err := s.DeleteSavedView(ctx, shared.ID, owner.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting another user's view: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSavedView(ctx, mine.ID, owner.ID); err != nil {
		t.Fatalf("DeleteSavedView: %v", err)
	}
	views, _ = s.ListSavedViews(ctx, owner.ID)
	if len(views) != 1 {
		t.Errorf("after delete: %d views", len(views))
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "dsn"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
