package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-lms-api/internal/models"
)

// RegistrationRepository reads onboarding registration records.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// LatestByEmail returns the most recently updated registration for an email.
func (r *RegistrationRepository) LatestByEmail(ctx context.Context, email string) (*models.Registration, error) {
	const query = `SELECT id, email, college_id, department_id, status, created_at, updated_at
        FROM registrations WHERE email = $1 ORDER BY updated_at DESC LIMIT 1`
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, email); err != nil {
		return nil, err
	}
	return &reg, nil
}
