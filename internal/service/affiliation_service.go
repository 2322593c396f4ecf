package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
)

type registrationReader interface {
	LatestByEmail(ctx context.Context, email string) (*models.Registration, error)
}

// AffiliationService resolves a user's organizational context. The latest
// registration record for the user's email is authoritative; accounts that
// were provisioned directly fall back to the permissions attribute. Callers
// never learn which source was used.
type AffiliationService struct {
	registrations registrationReader
	logger        *zap.Logger
}

// NewAffiliationService constructs AffiliationService.
func NewAffiliationService(registrations registrationReader, logger *zap.Logger) *AffiliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AffiliationService{registrations: registrations, logger: logger}
}

// Resolve returns the user's affiliation, or nil when neither source yields a
// college. A nil affiliation means the user is ineligible for any org-scoped
// operation.
func (s *AffiliationService) Resolve(ctx context.Context, user *models.User) (*models.Affiliation, error) {
	if user == nil {
		return nil, nil
	}

	reg, err := s.registrations.LatestByEmail(ctx, user.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if reg != nil && reg.CollegeID != "" {
		aff := &models.Affiliation{CollegeID: reg.CollegeID}
		if reg.DepartmentID != nil && *reg.DepartmentID != "" {
			aff.DepartmentIDs = []string{*reg.DepartmentID}
		}
		return aff, nil
	}

	if user.Permissions.CollegeID != "" {
		return &models.Affiliation{
			CollegeID:     user.Permissions.CollegeID,
			DepartmentIDs: user.Permissions.DepartmentIDs,
		}, nil
	}

	return nil, nil
}
