// Package api provides HTTP handlers for the Tiny Agents API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/tinyagents/internal/credits"
	"github.com/ashureev/tinyagents/internal/miniapp"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

// Limiter throttles message sends per user key.
type Limiter interface {
	Allow(key string) bool
}

// Handler provides common handler utilities.
type Handler struct {
	sessions *miniapp.Manager
	credits  *credits.Service
	limiter  Limiter
}

// NewHandler creates a new Handler with common dependencies. limiter may be nil.
func NewHandler(sessions *miniapp.Manager, creditSvc *credits.Service, limiter Limiter) *Handler {
	return &Handler{
		sessions: sessions,
		credits:  creditSvc,
		limiter:  limiter,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
