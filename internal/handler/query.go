package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agiannakidis/insightflow/internal/clickhouse"
	"github.com/agiannakidis/insightflow/internal/model"
	"github.com/agiannakidis/insightflow/internal/query"
	"github.com/agiannakidis/insightflow/internal/service"
)

// Executor runs compiled SQL against the column store. Satisfied by
// *clickhouse.Client.
type Executor interface {
	Query(ctx context.Context, sql string) (*clickhouse.Result, error)
	Ping(ctx context.Context) (*clickhouse.Result, error)
}

// QueryHandler serves the analytical query endpoint. Every request names a
// query kind and a filter; the handler compiles, executes, and echoes the
// SQL back alongside the results.
type QueryHandler struct {
	auth     *service.AuthService
	executor Executor
	logger   *slog.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(auth *service.AuthService, executor Executor, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{auth: auth, executor: executor, logger: logger}
}

type queryRequest struct {
	Type   string          `json:"type"`
	Token  string          `json:"token"`
	Params json.RawMessage `json:"params"`
}

// Handle compiles and executes one query.
// POST /api/query
func (h *QueryHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The reachability probe carries no data and skips authentication.
	if req.Type == query.KindPing {
		res, err := h.executor.Ping(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		var first map[string]interface{}
		if len(res.Data) > 0 {
			first = res.Data[0]
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "clickhouse": first})
		return
	}

	if _, err := h.auth.Validate(r.Context(), req.Token); err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	filter, err := query.ParseFilter(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sql, err := query.Build(req.Type, filter)
	switch {
	case errors.Is(err, query.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, "Unknown query type")
		return
	case errors.Is(err, query.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	res, err := h.executor.Query(r.Context(), sql)
	if err != nil {
		h.logger.Error("query failed", "type", req.Type, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.QueryResponse{
		Data:                   res.Data,
		Rows:                   res.Rows,
		RowsBeforeLimitAtLeast: res.RowsBeforeLimitAtLeast,
		QueryDurationMs:        res.QueryDurationMs,
		SQL:                    sql,
	})
}
