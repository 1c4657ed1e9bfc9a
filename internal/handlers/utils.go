package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/microblog-app/apiserver/internal/authz"
)

type contextKey string

const contextIdentityKey contextKey = "identity"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a simple confirmation payload.
type MessageResponse struct {
	Message string `json:"message"`
}

func identityFromContext(ctx context.Context) (authz.Identity, error) {
	identity, ok := ctx.Value(contextIdentityKey).(authz.Identity)
	if !ok || identity.ID < 1 {
		return authz.Identity{}, errors.New("missing identity")
	}
	return identity, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// Healthz reports server liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
