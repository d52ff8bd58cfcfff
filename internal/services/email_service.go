package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	pkglogger "github.com/ledgerkeep/ledgerkeep/pkg/logger"
)

// EmailService defines the interface for sending account emails
type EmailService interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

// SendVerificationEmail sends the email-verification link to a new account
func (s *AWSSESEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)

	textBody := fmt.Sprintf(`Verify your email address

Welcome to Ledgerkeep! To finish creating your account, open the link below:

%s

This link expires in 24 hours.

If you didn't sign up for Ledgerkeep, you can ignore this email.
`, link)

	htmlBody := fmt.Sprintf(`<html><body>
<h2>Verify your email address</h2>
<p>Welcome to Ledgerkeep! To finish creating your account, click the link below:</p>
<p><a href="%s">Verify email address</a></p>
<p>Or copy and paste this link in your browser:<br><code>%s</code></p>
<p>This link expires in 24 hours.</p>
<p>If you didn't sign up for Ledgerkeep, you can ignore this email.</p>
</body></html>`, link, link)

	return s.send(ctx, email, "Verify your Ledgerkeep email address", textBody, htmlBody)
}

// SendPasswordResetEmail sends a password-reset link. The same email is
// sent whether or not the account exists; callers handle that upstream.
func (s *AWSSESEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)

	textBody := fmt.Sprintf(`Reset your password

Someone requested a password reset for your Ledgerkeep account. Open the link below to choose a new password:

%s

This link expires in 1 hour and can be used once.

If you didn't request this, you can ignore this email; your password has not changed.
`, link)

	htmlBody := fmt.Sprintf(`<html><body>
<h2>Reset your password</h2>
<p>Someone requested a password reset for your Ledgerkeep account. Click the link below to choose a new password:</p>
<p><a href="%s">Reset password</a></p>
<p>Or copy and paste this link in your browser:<br><code>%s</code></p>
<p>This link expires in 1 hour and can be used once.</p>
<p>If you didn't request this, you can ignore this email; your password has not changed.</p>
</body></html>`, link, link)

	return s.send(ctx, email, "Reset your Ledgerkeep password", textBody, htmlBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, email, subject, textBody, htmlBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogEmailService logs emails instead of sending them, for development.
type LogEmailService struct {
	logger *slog.Logger
}

// NewLogEmailService creates an email service that only logs
func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	s.logger.Info("verification email (log provider)",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("token", token))
	return nil
}

func (s *LogEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	s.logger.Info("password reset email (log provider)",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("token", token))
	return nil
}
