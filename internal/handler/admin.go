package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/agiannakidis/insightflow/internal/model"
	"github.com/agiannakidis/insightflow/internal/service"
	"github.com/agiannakidis/insightflow/internal/store"
)

// AdminHandler serves account management. Every action requires a valid
// session belonging to an admin, and every mutation appends one audit entry.
type AdminHandler struct {
	store  *store.Store
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(st *store.Store, auth *service.AuthService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: st, auth: auth, logger: logger}
}

type adminRequest struct {
	Action      string `json:"action"`
	Token       string `json:"token"`
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
	Role        string `json:"role"`
	NewRole     string `json:"newRole"`
}

// Handle dispatches on the action field after the admin gate.
// POST /api/admin
func (h *AdminHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor, err := h.auth.Validate(r.Context(), req.Token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if !service.RequireRole(actor, model.RoleAdmin) {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	switch req.Action {
	case "listUsers":
		h.listUsers(w, r)
	case "createUser":
		h.createUser(w, r, req, actor)
	case "disableUser":
		h.disableUser(w, r, req, actor)
	case "enableUser":
		h.enableUser(w, r, req, actor)
	case "resetPassword":
		h.resetPassword(w, r, req, actor)
	case "changeRole":
		h.changeRole(w, r, req, actor)
	case "listAuditLog":
		h.listAuditLog(w, r)
	default:
		writeError(w, http.StatusBadRequest, "Unknown action")
	}
}

// audit appends one log entry after a successful mutation. Audit failures
// never fail the action that triggered them.
func (h *AdminHandler) audit(ctx context.Context, actor *model.User, action string, targetID int64, details, ip string) {
	actorEmail := actor.Email
	if actorEmail == "" {
		actorEmail = actor.Username
	}
	entry := &model.AuditLog{
		ActorID:      actor.ID,
		ActorEmail:   actorEmail,
		Action:       action,
		TargetUserID: targetID,
		Details:      details,
		IP:           ip,
	}
	if err := h.store.AppendAudit(ctx, entry); err != nil {
		h.logger.Warn("audit append failed", "action", action, "error", err)
	}
}

func (h *AdminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]interface{}, len(users))
	for i, u := range users {
		out[i] = map[string]interface{}{
			"id":            u.ID,
			"username":      u.Username,
			"email":         u.Email,
			"role":          u.Role,
			"is_active":     u.IsActive,
			"created_at":    u.CreatedAt,
			"last_login_at": u.LastLoginAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": out})
}

func (h *AdminHandler) createUser(w http.ResponseWriter, r *http.Request, req adminRequest, actor *model.User) {
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleViewer
	}
	if !model.ValidRole(role) {
		writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	hash, err := service.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.audit(r.Context(), actor, model.AuditCreateUser, user.ID, "Created user: "+req.Username, clientIP(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    map[string]interface{}{"id": user.ID, "username": user.Username},
	})
}

// disableUser deactivates the account and revokes every live session so the
// lockout takes effect immediately.
func (h *AdminHandler) disableUser(w http.ResponseWriter, r *http.Request, req adminRequest, actor *model.User) {
	if err := h.store.SetUserActive(r.Context(), req.UserID, false); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.auth.RevokeUserSessions(r.Context(), req.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.audit(r.Context(), actor, model.AuditDisableUser, req.UserID, "", clientIP(r))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) enableUser(w http.ResponseWriter, r *http.Request, req adminRequest, actor *model.User) {
	if err := h.store.SetUserActive(r.Context(), req.UserID, true); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.audit(r.Context(), actor, model.AuditEnableUser, req.UserID, "", clientIP(r))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// resetPassword installs a new hash and clears the failure counters so a
// locked-out user can log in right away.
func (h *AdminHandler) resetPassword(w http.ResponseWriter, r *http.Request, req adminRequest, actor *model.User) {
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "New password required")
		return
	}
	hash, err := service.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.store.SetUserPassword(r.Context(), req.UserID, hash); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.audit(r.Context(), actor, model.AuditResetPassword, req.UserID, "", clientIP(r))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) changeRole(w http.ResponseWriter, r *http.Request, req adminRequest, actor *model.User) {
	if !model.ValidRole(req.NewRole) {
		writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}
	if err := h.store.SetUserRole(r.Context(), req.UserID, req.NewRole); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.audit(r.Context(), actor, model.AuditChangeRole, req.UserID, "New role: "+req.NewRole, clientIP(r))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) listAuditLog(w http.ResponseWriter, r *http.Request) {
	logs, err := h.store.ListAuditLogs(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}
