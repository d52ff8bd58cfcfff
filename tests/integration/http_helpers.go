package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerkeep/ledgerkeep/internal/auth"
	"github.com/ledgerkeep/ledgerkeep/internal/database"
	"github.com/ledgerkeep/ledgerkeep/internal/handlers"
	middlewareCustom "github.com/ledgerkeep/ledgerkeep/internal/middleware"
	"github.com/ledgerkeep/ledgerkeep/internal/repositories"
	"github.com/ledgerkeep/ledgerkeep/internal/routes"
	"github.com/ledgerkeep/ledgerkeep/internal/services"
	pkgauth "github.com/ledgerkeep/ledgerkeep/pkg/auth"
	pkghttp "github.com/ledgerkeep/ledgerkeep/pkg/http"
)

// SentEmail is a captured outbound email
type SentEmail struct {
	To    string
	Kind  string // "verification" or "password_reset"
	Token string
}

// CapturingEmailService records sent emails for test assertions
type CapturingEmailService struct {
	mu     sync.Mutex
	Emails []SentEmail
}

func (m *CapturingEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Emails = append(m.Emails, SentEmail{To: email, Kind: "verification", Token: token})
	return nil
}

func (m *CapturingEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Emails = append(m.Emails, SentEmail{To: email, Kind: "password_reset", Token: token})
	return nil
}

// WaitForEmail polls for an email of the given kind, since delivery happens
// on a background goroutine.
func (m *CapturingEmailService) WaitForEmail(kind string, timeout time.Duration) *SentEmail {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		for i := len(m.Emails) - 1; i >= 0; i-- {
			if m.Emails[i].Kind == kind {
				email := m.Emails[i]
				m.mu.Unlock()
				return &email
			}
		}
		m.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

// TestServer wraps httptest.Server with the full auth stack over a real database
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *CapturingEmailService
	AuthService  *services.AuthService
	MFAService   *services.MFAService
	Sessions     *services.SessionService
	Users        *repositories.UserRepository
}

// NewTestServer initializes a complete HTTP server with real database + captured email
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	userRepo := repositories.NewUserRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	rateLimitRepo := repositories.NewRateLimitRepository(db)
	mfaPendingRepo := repositories.NewMFAPendingRepository(db)
	mfaChallengeRepo := repositories.NewMFAChallengeRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	tokenManager := auth.NewTokenManager(
		auth.TokenSecrets{
			Access:            "test-access-secret-32-chars-long!",
			Refresh:           "test-refresh-secret-32-chars-ok!!",
			EmailVerification: "test-verify-secret-32-chars-ok!!!",
			PasswordReset:     "test-reset-secret-32-chars-long!!",
		},
		auth.TokenExpiries{
			Access:            15 * time.Minute,
			Refresh:           7 * 24 * time.Hour,
			EmailVerification: 24 * time.Hour,
			PasswordReset:     time.Hour,
		},
		"ledgerkeep",
	)

	totpManager := auth.NewTOTPManager("LedgerkeepTest")
	hasher := pkgauth.NewHasher(pkgauth.MinBcryptCost)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})
	email := &CapturingEmailService{}

	auditService := services.NewAuditService(auditRepo, logger)
	rateLimitService := services.NewRateLimitService(rateLimitRepo, logger)
	sessionService := services.NewSessionService(sessionRepo, services.SessionPolicy{
		InactivityTimeout:     30 * time.Minute,
		AbsoluteTimeout:       24 * time.Hour,
		RememberMeDuration:    30 * 24 * time.Hour,
		MaxConcurrentSessions: 5,
	}, logger)
	mfaService := services.NewMFAService(userRepo, mfaPendingRepo, totpManager, hasher, auditService, sessionService, time.Hour, logger)

	policies := services.AuthPolicies{
		Login:        services.RateLimitPolicy{MaxAttempts: 5, Window: 15 * time.Minute, LockoutDuration: 30 * time.Minute},
		MFA:          services.RateLimitPolicy{MaxAttempts: 5, Window: 15 * time.Minute, LockoutDuration: 15 * time.Minute},
		Reset:        services.RateLimitPolicy{MaxAttempts: 3, Window: time.Hour},
		ChallengeTTL: 5 * time.Minute,
	}
	authService := services.NewAuthService(
		userRepo, orgRepo, mfaChallengeRepo,
		sessionService, mfaService, rateLimitService,
		tokenManager, hasher, email, auditService, timingDelay,
		policies, logger,
	)

	ipConfig := &pkghttp.IPConfig{}
	cookieConfig := auth.CookieConfig{SameSite: "strict"}
	authHandler := handlers.NewAuthHandler(authService, ipConfig, cookieConfig, int((7 * 24 * time.Hour).Seconds()))
	mfaHandler := handlers.NewMFAHandler(mfaService, ipConfig)
	sessionHandler := handlers.NewSessionHandler(sessionService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Generous transport limit so tests exercise the per-account limits in
	// the service layer, not the per-IP backstop.
	routes.RegisterRoutes(r, authHandler, mfaHandler, sessionHandler,
		tokenManager, sessionService, auth.SessionConfig{FailClosed: true},
		middlewareCustom.RateLimitConfig{RequestsPerMinute: 10000})

	return &TestServer{
		Server:       httptest.NewServer(r),
		DB:           db,
		EmailService: email,
		AuthService:  authService,
		MFAService:   mfaService,
		Sessions:     sessionService,
		Users:        userRepo,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with an access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses a JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
