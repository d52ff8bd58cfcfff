package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerkeep/ledgerkeep/internal/database"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

// AuditLogRepository handles the append-only security event log.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

func scanAuditLogRow(scanner rowScanner) (*models.AuditLog, error) {
	var log models.AuditLog

	err := scanner.Scan(
		&log.ID, &log.UserID, &log.Event, &log.Metadata,
		&log.IPAddress, &log.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &log, nil
}

func scanAuditLogRows(rows pgx.Rows) ([]*models.AuditLog, error) {
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)

	for rows.Next() {
		log, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}

// Append writes one event row. Metadata is stored as jsonb.
func (r *AuditLogRepository) Append(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	query := `
		INSERT INTO audit_logs (user_id, event, metadata, ip_address)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, event, metadata, ip_address, created_at
	`

	result, err := scanAuditLogRow(r.pool.QueryRow(ctx, query,
		log.UserID, log.Event, log.Metadata, log.IPAddress,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to append audit log: %w", err)
	}

	return result, nil
}

// ListByUserID returns a user's events, newest first.
func (r *AuditLogRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, user_id, event, metadata, ip_address, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	return scanAuditLogRows(rows)
}
