package directory

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
)

var (
	ErrProviderNotFound = apperr.NotFound("Doctor not found.")
	ErrPatientNotFound  = apperr.NotFound("Patient not found.")
)

// Repository resolves providers and patients. Accounts themselves are owned
// by the identity service; these rows only link a user id to a profile.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetProviderByUserID(ctx context.Context, userID uuid.UUID) (*Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)

	// Seeding
	CreateProvider(ctx context.Context, p *Provider) error
	CreatePatient(ctx context.Context, p *Patient) error
}
