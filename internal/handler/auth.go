// Package handler exposes the gateway's HTTP surface: the action-dispatch
// auth, admin, and saved-view endpoints, and the query endpoint that fronts
// the column store.
package handler

import (
	"errors"
	"net/http"

	"github.com/agiannakidis/insightflow/internal/service"
)

// AuthHandler serves account authentication: login, logout, token
// validation, and first-run setup.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// authRequest is the combined payload for all auth actions. Unused fields
// are simply absent for a given action.
type authRequest struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// Handle dispatches on the action field.
// POST /api/auth
func (h *AuthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "login":
		h.login(w, r, req)
	case "logout":
		h.logout(w, r, req)
	case "validate":
		h.validate(w, r, req)
	case "hashPassword":
		h.hashPassword(w, req)
	case "setup":
		h.setup(w, r, req)
	default:
		writeError(w, http.StatusBadRequest, "Unknown action")
	}
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, req authRequest) {
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password, clientIP(r), r.UserAgent())
	switch {
	case errors.Is(err, service.ErrLocked):
		writeError(w, http.StatusTooManyRequests, "Account temporarily locked. Try again later.")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
		"user":    user.Public(),
	})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request, req authRequest) {
	if err := h.auth.Logout(r.Context(), req.Token); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// validate reports token validity without an error status; the UI polls it
// on page load and treats any non-valid answer uniformly.
func (h *AuthHandler) validate(w http.ResponseWriter, r *http.Request, req authRequest) {
	user, err := h.auth.Validate(r.Context(), req.Token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]bool{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid": true,
		"user":  user.Public(),
	})
}

func (h *AuthHandler) hashPassword(w http.ResponseWriter, req authRequest) {
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "Password required")
		return
	}
	hash, err := service.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
}

func (h *AuthHandler) setup(w http.ResponseWriter, r *http.Request, req authRequest) {
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	if _, err := h.auth.Setup(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, service.ErrSetupComplete) {
			writeError(w, http.StatusForbidden, "Setup already complete. Users already exist.")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Admin user created successfully",
	})
}
