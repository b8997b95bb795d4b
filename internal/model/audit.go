package model

import "time"

// Audit action vocabulary. Each administrative mutation appends exactly one
// entry with one of these tags.
const (
	AuditCreateUser    = "create_user"
	AuditDisableUser   = "disable_user"
	AuditEnableUser    = "enable_user"
	AuditResetPassword = "reset_password"
	AuditChangeRole    = "change_role"
)

// AuditLog is an append-only record of an administrative action. Entries are
// never mutated or deleted.
type AuditLog struct {
	ID           int64     `json:"id" db:"id"`
	ActorID      int64     `json:"actor_id" db:"actor_id"`
	ActorEmail   string    `json:"actor_email" db:"actor_email"`
	Action       string    `json:"action" db:"action"`
	TargetUserID int64     `json:"target_user_id" db:"target_user_id"`
	Details      string    `json:"details,omitempty" db:"details"`
	IP           string    `json:"ip" db:"ip"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SavedView is a named, shareable snapshot of a page's filter state. The
// filter payload is stored as opaque JSON text; the gateway never interprets
// it, only the UI does.
type SavedView struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Page        string    `json:"page" db:"page"`
	Filters     string    `json:"filters" db:"filters"`
	OwnerID     int64     `json:"owner_id" db:"owner_id"`
	IsPublic    bool      `json:"is_public" db:"is_public"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
