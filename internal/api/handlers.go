// Package api exposes the conversation pipeline and broadcast workflow to
// external renderers over HTTP and MCP. Handlers never mutate stored
// entities directly; every mutation goes through the owning component.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/orgcopilot/orgcopilot/internal/broadcast"
	"github.com/orgcopilot/orgcopilot/internal/conversation"
)

const maxRequestBodySize = 1 << 20 // 1MB

const sentNoticeText = "Broadcast sent successfully!"

// Roles a caller may act as. Unknown roles are rejected at this surface;
// below it the role is an opaque part of the user id.
var validRoles = map[string]bool{
	"student":   true,
	"faculty":   true,
	"admin":     true,
	"principal": true,
}

// Deps holds what the HTTP layer needs from the core.
type Deps struct {
	Pipeline *conversation.Pipeline
	Workflow *broadcast.Workflow
	Token    string
}

// NewHandler returns the HTTP API. All routes except /health require the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/chat", handleChat(deps))
		r.Get("/history", handleHistory(deps))

		r.Post("/broadcasts", handleCompose(deps))
		r.Get("/broadcasts", handleListBroadcasts(deps))
		r.Get("/broadcasts/{id}", handleGetBroadcast(deps))
		r.Post("/broadcasts/{id}/approve", handleApprove(deps))
		r.Delete("/broadcasts/{id}", handleReject(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type submitRequest struct {
	Text string `json:"text"`
	Role string `json:"role"`
}

// resolveUserID validates the role and builds the role-qualified identity
// string passed through to agents. An empty role defaults to student.
func resolveUserID(role string) (string, error) {
	if role == "" {
		role = "student"
	}
	if !validRoles[role] {
		return "", fmt.Errorf("unknown role %q", role)
	}
	return "user-" + role, nil
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		userID, err := resolveUserID(req.Role)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		turn, err := deps.Pipeline.Submit(r.Context(), req.Text, userID)
		switch {
		case errors.Is(err, conversation.ErrEmptyInput):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		case errors.Is(err, conversation.ErrTurnInFlight):
			httpError(w, http.StatusConflict, "turn_in_flight", "a previous turn is still being processed")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		writeJSON(w, turn)
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		turns := deps.Pipeline.History(limit)
		if turns == nil {
			turns = []conversation.Turn{}
		}
		writeJSON(w, turns)
	}
}

func handleCompose(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		userID, err := resolveUserID(req.Role)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		draft, err := deps.Workflow.Compose(r.Context(), req.Text, userID)
		if errors.Is(err, broadcast.ErrEmptyInput) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		if err != nil {
			// Nothing was stored; echo the text back so the caller can
			// resubmit it unchanged.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"message": err.Error(),
					"type":    "compose_failed",
				},
				"text": req.Text,
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(draft)
	}
}

func handleListBroadcasts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := broadcast.Status(r.URL.Query().Get("status"))
		drafts := deps.Workflow.List(status)
		if drafts == nil {
			drafts = []broadcast.Draft{}
		}
		writeJSON(w, drafts)
	}
}

func handleGetBroadcast(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := deps.Workflow.Get(chi.URLParam(r, "id"))
		if errors.Is(err, broadcast.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "broadcast not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, draft)
	}
}

func handleApprove(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role string `json:"role"`
		}
		if r.ContentLength > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		userID, err := resolveUserID(req.Role)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		draft, err := deps.Workflow.Approve(r.Context(), chi.URLParam(r, "id"), userID)
		switch {
		case errors.Is(err, broadcast.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "broadcast not found")
			return
		case errors.Is(err, broadcast.ErrInvalidTransition):
			httpError(w, http.StatusConflict, "invalid_state_transition", "%v", err)
			return
		case err != nil:
			// The draft transitioned to failed; return it with the error.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"message": err.Error(),
					"type":    "send_failed",
				},
				"broadcast": draft,
			})
			return
		}

		// Surface the delivery outcome into the conversation, after the
		// authoritative sender result only.
		deps.Pipeline.AppendNotice(sentNoticeText, draft.DeliveryRaw)

		writeJSON(w, draft)
	}
}

func handleReject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Workflow.Reject(chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, broadcast.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "broadcast not found")
			return
		case errors.Is(err, broadcast.ErrInvalidTransition):
			httpError(w, http.StatusConflict, "invalid_state_transition", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "rejected"})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
