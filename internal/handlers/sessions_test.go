package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkeep/ledgerkeep/internal/auth"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

type mockSessionService struct {
	ListActiveFunc        func(ctx context.Context, userID string) ([]*models.Session, error)
	InvalidateForUserFunc func(ctx context.Context, sessionID, userID string) error
	InvalidateOthersFunc  func(ctx context.Context, userID, keepSessionID string) (int64, error)
}

func (m *mockSessionService) ListActive(ctx context.Context, userID string) ([]*models.Session, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockSessionService) InvalidateForUser(ctx context.Context, sessionID, userID string) error {
	if m.InvalidateForUserFunc != nil {
		return m.InvalidateForUserFunc(ctx, sessionID, userID)
	}
	return models.ErrNotFound
}

func (m *mockSessionService) InvalidateOthers(ctx context.Context, userID, keepSessionID string) (int64, error) {
	if m.InvalidateOthersFunc != nil {
		return m.InvalidateOthersFunc(ctx, userID, keepSessionID)
	}
	return 0, nil
}

func requestWithClaims(r *http.Request, userID, sessionID string) *http.Request {
	claims := &auth.Claims{UserID: userID, SessionID: sessionID}
	return r.WithContext(context.WithValue(r.Context(), auth.UserContextKey, claims))
}

func TestSessionListMarksCurrent(t *testing.T) {
	now := time.Now()
	svc := &mockSessionService{
		ListActiveFunc: func(ctx context.Context, userID string) ([]*models.Session, error) {
			assert.Equal(t, "user-1", userID)
			return []*models.Session{
				{ID: "session-1", UserID: userID, LastActivity: now, ExpiresAt: now.Add(time.Hour), CreatedAt: now},
				{ID: "session-2", UserID: userID, LastActivity: now, ExpiresAt: now.Add(time.Hour), CreatedAt: now},
			}, nil
		},
	}
	h := NewSessionHandler(svc)

	r := requestWithClaims(httptest.NewRequest("GET", "/auth/sessions", nil), "user-1", "session-2")
	w := httptest.NewRecorder()
	h.List(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp SessionListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Sessions, 2)
	assert.False(t, resp.Sessions[0].Current)
	assert.True(t, resp.Sessions[1].Current)
}

func TestSessionListRequiresClaims(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{})

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest("GET", "/auth/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionRevokeUnknownSessionIs404(t *testing.T) {
	var gotSessionID, gotUserID string
	svc := &mockSessionService{
		InvalidateForUserFunc: func(ctx context.Context, sessionID, userID string) error {
			gotSessionID, gotUserID = sessionID, userID
			return models.ErrNotFound
		},
	}
	h := NewSessionHandler(svc)

	router := chi.NewRouter()
	router.Delete("/auth/sessions/{id}", h.Revoke)

	r := requestWithClaims(httptest.NewRequest("DELETE", "/auth/sessions/session-9", nil), "user-1", "session-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "session-9", gotSessionID)
	assert.Equal(t, "user-1", gotUserID)
}

func TestSessionRevokeOthersReportsCount(t *testing.T) {
	svc := &mockSessionService{
		InvalidateOthersFunc: func(ctx context.Context, userID, keepSessionID string) (int64, error) {
			assert.Equal(t, "session-1", keepSessionID)
			return 3, nil
		},
	}
	h := NewSessionHandler(svc)

	r := requestWithClaims(httptest.NewRequest("POST", "/auth/sessions/revoke-others", nil), "user-1", "session-1")
	w := httptest.NewRecorder()
	h.RevokeOthers(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp RevokedResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, int64(3), resp.Revoked)
}
