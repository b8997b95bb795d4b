package handler

import (
	"errors"
	"net/http"

	"github.com/agiannakidis/insightflow/internal/model"
	"github.com/agiannakidis/insightflow/internal/service"
	"github.com/agiannakidis/insightflow/internal/store"
)

// ViewsHandler serves saved filter views. Any authenticated user can create
// views and see their own plus public ones; deletion is owner-only.
type ViewsHandler struct {
	store *store.Store
	auth  *service.AuthService
}

// NewViewsHandler creates a new ViewsHandler.
func NewViewsHandler(st *store.Store, auth *service.AuthService) *ViewsHandler {
	return &ViewsHandler{store: st, auth: auth}
}

type viewsRequest struct {
	Action      string `json:"action"`
	Token       string `json:"token"`
	ViewID      int64  `json:"viewId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Page        string `json:"page"`
	Filters     string `json:"filters"`
	IsPublic    bool   `json:"is_public"`
}

// Handle dispatches on the action field.
// POST /api/views
func (h *ViewsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req viewsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.auth.Validate(r.Context(), req.Token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	switch req.Action {
	case "list":
		h.list(w, r, user)
	case "create":
		h.create(w, r, req, user)
	case "delete":
		h.delete(w, r, req, user)
	default:
		writeError(w, http.StatusBadRequest, "Unknown action")
	}
}

func (h *ViewsHandler) list(w http.ResponseWriter, r *http.Request, user *model.User) {
	views, err := h.store.ListSavedViews(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"views": views})
}

func (h *ViewsHandler) create(w http.ResponseWriter, r *http.Request, req viewsRequest, user *model.User) {
	if req.Name == "" || req.Page == "" {
		writeError(w, http.StatusBadRequest, "Name and page required")
		return
	}
	view := &model.SavedView{
		Name:        req.Name,
		Description: req.Description,
		Page:        req.Page,
		Filters:     req.Filters,
		OwnerID:     user.ID,
		IsPublic:    req.IsPublic,
	}
	if err := h.store.CreateSavedView(r.Context(), view); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "view": view})
}

func (h *ViewsHandler) delete(w http.ResponseWriter, r *http.Request, req viewsRequest, user *model.User) {
	if err := h.store.DeleteSavedView(r.Context(), req.ViewID, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "View not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
