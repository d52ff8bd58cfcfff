package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod     = 30
	totpSecretSize = 32
	totpSkew       = 1 // ±1 time step for clock drift

	recoveryCodeLen   = 8
	recoveryCodeCount = 10

	// A-Z 2-9 without 0/O/1/I/L, which are easy to misread
	recoveryCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

var (
	totpCodeRe     = regexp.MustCompile(`^\d{6}$`)
	recoveryCodeRe = regexp.MustCompile(`^[A-Z2-9]{4}-?[A-Z2-9]{4}$`)
)

// Enrollment is the material handed to a user beginning MFA setup. Codes are
// returned in plaintext exactly once; only their hashes are stored.
type Enrollment struct {
	Secret        string
	OTPAuthURL    string
	QRCodeDataURL string
	RecoveryCodes []string
}

// TOTPManager generates and validates TOTP secrets and recovery codes.
type TOTPManager struct {
	issuer string
}

// NewTOTPManager creates a TOTP manager. issuer appears in authenticator
// apps next to the account label.
func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{issuer: issuer}
}

// GenerateEnrollment creates a fresh shared secret, its provisioning URI and
// QR code, and a batch of recovery codes.
func (tm *TOTPManager) GenerateEnrollment(accountLabel string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountLabel,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	codes, err := GenerateRecoveryCodes(recoveryCodeCount)
	if err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret:        key.Secret(),
		OTPAuthURL:    key.URL(),
		QRCodeDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		RecoveryCodes: codes,
	}, nil
}

// ValidateCode checks a 6-digit TOTP code against the shared secret,
// accepting ±1 time step of drift. Malformed codes are rejected before any
// HMAC work.
func (tm *TOTPManager) ValidateCode(secret, code string) bool {
	return tm.ValidateCodeAt(secret, code, time.Now())
}

// ValidateCodeAt is ValidateCode at an explicit instant (used by tests).
func (tm *TOTPManager) ValidateCodeAt(secret, code string, at time.Time) bool {
	if !ValidateCodeFormat(code) {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// ValidateCodeFormat reports whether code looks like a 6-digit TOTP code.
func ValidateCodeFormat(code string) bool {
	return totpCodeRe.MatchString(code)
}

// GenerateRecoveryCodes generates count random recovery codes, each 8
// characters formatted XXXX-XXXX.
func GenerateRecoveryCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := 0; i < count; i++ {
		raw := make([]byte, recoveryCodeLen)
		random := make([]byte, recoveryCodeLen)
		if _, err := rand.Read(random); err != nil {
			return nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		for j := 0; j < recoveryCodeLen; j++ {
			raw[j] = recoveryCodeCharset[int(random[j])%len(recoveryCodeCharset)]
		}
		codes[i] = FormatRecoveryCode(string(raw))
	}
	return codes, nil
}

// FormatRecoveryCode renders a raw 8-character code as XXXX-XXXX.
func FormatRecoveryCode(raw string) string {
	raw = normalizeRecoveryCode(raw)
	if len(raw) != recoveryCodeLen {
		return raw
	}
	return raw[:4] + "-" + raw[4:]
}

// ValidateRecoveryCodeFormat reports whether code looks like a recovery
// code (with or without the dash).
func ValidateRecoveryCodeFormat(code string) bool {
	return recoveryCodeRe.MatchString(strings.ToUpper(strings.TrimSpace(code)))
}

// HashRecoveryCode returns a deterministic one-way hash of a recovery code.
// Deterministic hashing lets a presented code be matched against the stored
// list without iterating an adaptive hash per entry; the code space is
// random enough that offline guessing is not a concern.
func HashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(normalizeRecoveryCode(code)))
	return hex.EncodeToString(sum[:])
}

// VerifyRecoveryCode compares a presented code against a stored hash in
// constant time.
func VerifyRecoveryCode(code, hash string) bool {
	computed := HashRecoveryCode(code)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// normalizeRecoveryCode strips the dash and whitespace and upper-cases, so
// user input matches regardless of formatting.
func normalizeRecoveryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.ReplaceAll(code, "-", "")
}
