package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerkeep/ledgerkeep/internal/database"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

type OrganizationRepository struct {
	pool *pgxpool.Pool
}

func NewOrganizationRepository(db *database.DB) *OrganizationRepository {
	return &OrganizationRepository{pool: db.Pool}
}

func scanOrganizationRow(scanner rowScanner) (*models.Organization, error) {
	var org models.Organization

	err := scanner.Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &org, nil
}

func (r *OrganizationRepository) Create(ctx context.Context, name string) (*models.Organization, error) {
	query := `
		INSERT INTO organizations (id, name, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, name, created_at
	`

	return scanOrganizationRow(r.pool.QueryRow(ctx, query,
		uuid.New().String(), strings.TrimSpace(name), time.Now(),
	))
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT id, name, created_at FROM organizations WHERE id = $1`

	return scanOrganizationRow(r.pool.QueryRow(ctx, query, id))
}

// Delete removes an organization. Used to unwind signup when the user
// insert loses a duplicate-email race after the org was created.
func (r *OrganizationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
