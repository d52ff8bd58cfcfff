package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ledgerkeep/ledgerkeep/internal/auth"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
	pkghttp "github.com/ledgerkeep/ledgerkeep/pkg/http"
)

// SessionServiceInterface defines the interface for session management
type SessionServiceInterface interface {
	ListActive(ctx context.Context, userID string) ([]*models.Session, error)
	InvalidateForUser(ctx context.Context, sessionID, userID string) error
	InvalidateOthers(ctx context.Context, userID, keepSessionID string) (int64, error)
}

// SessionHandler handles session management HTTP requests
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

// SessionResponse represents one session in HTTP responses
type SessionResponse struct {
	ID           string `json:"id"`
	IPAddress    string `json:"ip_address,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	Current      bool   `json:"current"`
	LastActivity string `json:"last_activity"`
	ExpiresAt    string `json:"expires_at"`
	CreatedAt    string `json:"created_at"`
}

// SessionListResponse wraps the session list
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// RevokedResponse reports how many sessions were ended
type RevokedResponse struct {
	Revoked int64 `json:"revoked"`
}

// List returns the caller's active sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	sessions, err := h.service.ListActive(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		item := SessionResponse{
			ID:           s.ID,
			Current:      s.ID == claims.SessionID,
			LastActivity: s.LastActivity.Format(time.RFC3339),
			ExpiresAt:    s.ExpiresAt.Format(time.RFC3339),
			CreatedAt:    s.CreatedAt.Format(time.RFC3339),
		}
		if s.IPAddress != nil {
			item.IPAddress = *s.IPAddress
		}
		if s.UserAgent != nil {
			item.UserAgent = *s.UserAgent
		}
		resp.Sessions = append(resp.Sessions, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Revoke ends one of the caller's sessions by id
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "Missing session id")
		return
	}

	if err := h.service.InvalidateForUser(r.Context(), sessionID, claims.UserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Not found and not-yours look identical.
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Session revoked"})
}

// RevokeOthers ends every session except the caller's current one
func (h *SessionHandler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	count, err := h.service.InvalidateOthers(r.Context(), claims.UserID, claims.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RevokedResponse{Revoked: count})
}
