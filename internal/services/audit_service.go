package services

import (
	"context"
	"log/slog"

	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

// AuditLogRepository defines the interface for the security event log
type AuditLogRepository interface {
	Append(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error)
}

// AuditService writes security events. Failures are logged and swallowed:
// audit trouble must never turn a successful login into an error.
type AuditService struct {
	repo   AuditLogRepository
	logger *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

// Record appends one event. userID may be empty for events with no known
// actor (failed logins for unknown emails).
func (s *AuditService) Record(ctx context.Context, event, userID, ipAddress string, metadata map[string]string) {
	log := &models.AuditLog{
		Event:     event,
		IPAddress: ipAddress,
		Metadata:  metadata,
	}
	if userID != "" {
		log.UserID = &userID
	}

	if _, err := s.repo.Append(ctx, log); err != nil {
		s.logger.Error("failed to record audit event",
			slog.String("event", event),
			slog.Any("error", err))
	}
}

// ListForUser returns a user's recent security events.
func (s *AuditService) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	return s.repo.ListByUserID(ctx, userID, limit, offset)
}
