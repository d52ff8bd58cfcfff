package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test database: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Teardown(ctx)
	os.Exit(code)
}

func freshServer(t *testing.T) *TestServer {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
	ts := NewTestServer(testDB.DB)
	t.Cleanup(ts.Close)
	return ts
}

type authBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

type loginBody struct {
	MFARequired bool      `json:"mfa_required"`
	ChallengeID string    `json:"challenge_id"`
	Auth        *authBody `json:"auth"`
}

func signupAndVerify(t *testing.T, ts *TestServer, email, password string) {
	t.Helper()

	resp, err := ts.Request("POST", "/auth/signup", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	sent := ts.EmailService.WaitForEmail("verification", 2*time.Second)
	require.NotNil(t, sent, "verification email should be sent")

	resp, err = ts.Request("POST", "/auth/verify-email", map[string]string{"token": sent.Token}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func login(t *testing.T, ts *TestServer, email, password string) *loginBody {
	t.Helper()

	resp, err := ts.Request("POST", "/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result loginBody
	require.NoError(t, ParseJSONResponse(resp, &result))
	return &result
}

func TestSignupVerifyLoginFlow(t *testing.T) {
	ts := freshServer(t)

	signupAndVerify(t, ts, "alice@example.com", "Sturdy-Pass1!")

	result := login(t, ts, "alice@example.com", "Sturdy-Pass1!")
	require.False(t, result.MFARequired)
	require.NotNil(t, result.Auth)
	assert.NotEmpty(t, result.Auth.AccessToken)
	assert.NotEmpty(t, result.Auth.RefreshToken)

	// Access token works against the protected surface
	resp, err := ts.RequestWithAuth("GET", "/auth/sessions", result.Auth.AccessToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestLoginRejectedBeforeEmailVerification(t *testing.T) {
	ts := freshServer(t)

	resp, err := ts.Request("POST", "/auth/signup", map[string]string{
		"email":    "bob@example.com",
		"password": "Sturdy-Pass1!",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err = ts.Request("POST", "/auth/login", map[string]interface{}{
		"email":    "bob@example.com",
		"password": "Sturdy-Pass1!",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRefreshKeepsSessionVersionUntilRevoked(t *testing.T) {
	ts := freshServer(t)

	signupAndVerify(t, ts, "carol@example.com", "Sturdy-Pass1!")
	result := login(t, ts, "carol@example.com", "Sturdy-Pass1!")
	firstRefresh := result.Auth.RefreshToken

	resp, err := ts.Request("POST", "/auth/refresh", map[string]string{"refresh_token": firstRefresh}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var refreshed authBody
	require.NoError(t, ParseJSONResponse(resp, &refreshed))
	assert.NotEqual(t, firstRefresh, refreshed.RefreshToken)
	assert.Equal(t, result.Auth.SessionID, refreshed.SessionID)

	// Plain refresh does not move the session's token version, so the
	// original token refreshes a second time just as well
	resp, err = ts.Request("POST", "/auth/refresh", map[string]string{"refresh_token": firstRefresh}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Bumping the version revokes every refresh token minted so far while
	// the session itself stays alive
	_, err = ts.Sessions.IncrementTokenVersion(context.Background(), result.Auth.SessionID)
	require.NoError(t, err)

	resp, err = ts.Request("POST", "/auth/refresh", map[string]string{"refresh_token": refreshed.RefreshToken}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Logout-all then deletes the session outright
	resp, err = ts.RequestWithAuth("POST", "/auth/logout-all", refreshed.AccessToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ts.RequestWithAuth("GET", "/auth/sessions", refreshed.AccessToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLogoutRevokesSession(t *testing.T) {
	ts := freshServer(t)

	signupAndVerify(t, ts, "dave@example.com", "Sturdy-Pass1!")
	result := login(t, ts, "dave@example.com", "Sturdy-Pass1!")
	access := result.Auth.AccessToken

	resp, err := ts.RequestWithAuth("POST", "/auth/logout", access, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Session validation now fails even though the JWT itself is unexpired
	resp, err = ts.RequestWithAuth("GET", "/auth/sessions", access, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	ts := freshServer(t)

	signupAndVerify(t, ts, "eve@example.com", "Sturdy-Pass1!")

	for i := 0; i < 5; i++ {
		resp, err := ts.Request("POST", "/auth/login", map[string]interface{}{
			"email":    "eve@example.com",
			"password": "wrong-password",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i+1)
		resp.Body.Close()
	}

	// Sixth attempt trips the limiter, correct password notwithstanding
	resp, err := ts.Request("POST", "/auth/login", map[string]interface{}{
		"email":    "eve@example.com",
		"password": "Sturdy-Pass1!",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	resp.Body.Close()
}

func TestPasswordResetFlow(t *testing.T) {
	ts := freshServer(t)

	signupAndVerify(t, ts, "frank@example.com", "Sturdy-Pass1!")
	result := login(t, ts, "frank@example.com", "Sturdy-Pass1!")

	resp, err := ts.Request("POST", "/auth/password-reset/request", map[string]string{
		"email": "frank@example.com",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	sent := ts.EmailService.WaitForEmail("password_reset", 2*time.Second)
	require.NotNil(t, sent, "reset email should be sent")

	resp, err = ts.Request("POST", "/auth/password-reset/complete", map[string]string{
		"token":        sent.Token,
		"new_password": "Even-Sturdier2!",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Old password no longer works
	resp, err = ts.Request("POST", "/auth/login", map[string]interface{}{
		"email":    "frank@example.com",
		"password": "Sturdy-Pass1!",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Pre-reset session was revoked
	resp, err = ts.RequestWithAuth("GET", "/auth/sessions", result.Auth.AccessToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Reset token is single use
	resp, err = ts.Request("POST", "/auth/password-reset/complete", map[string]string{
		"token":        sent.Token,
		"new_password": "Another-Pass3!",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// New password logs in
	relogin := login(t, ts, "frank@example.com", "Even-Sturdier2!")
	require.NotNil(t, relogin.Auth)
}

func TestUnknownEmailResetRequestLooksIdentical(t *testing.T) {
	ts := freshServer(t)

	resp, err := ts.Request("POST", "/auth/password-reset/request", map[string]string{
		"email": "nobody@example.com",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestMFAEnrollmentAndLogin(t *testing.T) {
	ts := freshServer(t)

	signupAndVerify(t, ts, "grace@example.com", "Sturdy-Pass1!")
	result := login(t, ts, "grace@example.com", "Sturdy-Pass1!")
	access := result.Auth.AccessToken

	// Enroll
	resp, err := ts.RequestWithAuth("POST", "/auth/mfa/enroll", access, map[string]string{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var enrollment struct {
		Secret        string   `json:"secret"`
		OTPAuthURL    string   `json:"otpauth_url"`
		QRCode        string   `json:"qr_code"`
		RecoveryCodes []string `json:"recovery_codes"`
	}
	require.NoError(t, ParseJSONResponse(resp, &enrollment))
	require.NotEmpty(t, enrollment.Secret)
	require.Len(t, enrollment.RecoveryCodes, 10)

	// Confirm with a live TOTP code
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	resp, err = ts.RequestWithAuth("POST", "/auth/mfa/confirm", access, map[string]string{"code": code})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Password alone now yields a challenge, not tokens
	challenge := login(t, ts, "grace@example.com", "Sturdy-Pass1!")
	require.True(t, challenge.MFARequired)
	require.NotEmpty(t, challenge.ChallengeID)
	require.Nil(t, challenge.Auth)

	// Complete with a TOTP code
	code, err = totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	resp, err = ts.Request("POST", "/auth/login/mfa", map[string]string{
		"challenge_id": challenge.ChallengeID,
		"code":         code,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokens authBody
	require.NoError(t, ParseJSONResponse(resp, &tokens))
	assert.NotEmpty(t, tokens.AccessToken)

	// A challenge is single use
	resp, err = ts.Request("POST", "/auth/login/mfa", map[string]string{
		"challenge_id": challenge.ChallengeID,
		"code":         code,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestMFARecoveryCodeLogin(t *testing.T) {
	ts := freshServer(t)

	signupAndVerify(t, ts, "heidi@example.com", "Sturdy-Pass1!")
	result := login(t, ts, "heidi@example.com", "Sturdy-Pass1!")
	access := result.Auth.AccessToken

	resp, err := ts.RequestWithAuth("POST", "/auth/mfa/enroll", access, map[string]string{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var enrollment struct {
		Secret        string   `json:"secret"`
		RecoveryCodes []string `json:"recovery_codes"`
	}
	require.NoError(t, ParseJSONResponse(resp, &enrollment))

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	resp, err = ts.RequestWithAuth("POST", "/auth/mfa/confirm", access, map[string]string{"code": code})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	recoveryCode := enrollment.RecoveryCodes[0]

	// First use works
	challenge := login(t, ts, "heidi@example.com", "Sturdy-Pass1!")
	require.True(t, challenge.MFARequired)

	resp, err = ts.Request("POST", "/auth/login/mfa", map[string]string{
		"challenge_id": challenge.ChallengeID,
		"code":         recoveryCode,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Second use of the same code is rejected
	challenge = login(t, ts, "heidi@example.com", "Sturdy-Pass1!")
	resp, err = ts.Request("POST", "/auth/login/mfa", map[string]string{
		"challenge_id": challenge.ChallengeID,
		"code":         recoveryCode,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionRevocationEndpoints(t *testing.T) {
	ts := freshServer(t)

	signupAndVerify(t, ts, "ivan@example.com", "Sturdy-Pass1!")
	first := login(t, ts, "ivan@example.com", "Sturdy-Pass1!")
	second := login(t, ts, "ivan@example.com", "Sturdy-Pass1!")

	// Two sessions visible
	resp, err := ts.RequestWithAuth("GET", "/auth/sessions", second.Auth.AccessToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Sessions []struct {
			ID      string `json:"id"`
			Current bool   `json:"current"`
		} `json:"sessions"`
	}
	require.NoError(t, ParseJSONResponse(resp, &list))
	require.Len(t, list.Sessions, 2)

	// Revoke everything but the current session
	resp, err = ts.RequestWithAuth("POST", "/auth/sessions/revoke-others", second.Auth.AccessToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var revoked struct {
		Revoked int64 `json:"revoked"`
	}
	require.NoError(t, ParseJSONResponse(resp, &revoked))
	assert.Equal(t, int64(1), revoked.Revoked)

	// The first session's access token no longer passes session validation
	resp, err = ts.RequestWithAuth("GET", "/auth/sessions", first.Auth.AccessToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
