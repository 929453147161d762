package services

import (
	"context"
	"errors"
	"fmt"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/models"

	"gorm.io/gorm"
)

// IdentityDirectory resolves verified credentials against the user and
// partner tables.
type IdentityDirectory struct {
	parties PartyServiceDB
}

func NewIdentityDirectory(parties PartyServiceDB) *IdentityDirectory {
	return &IdentityDirectory{parties: parties}
}

func (d *IdentityDirectory) ResolveIdentity(ctx context.Context, id string, role models.Role) (*models.Identity, error) {
	switch role {
	case models.RoleUser:
		user, err := d.parties.GetUser(ctx, id)
		if err != nil {
			return nil, notFoundOr500(err, "User not found")
		}
		return &models.Identity{ID: user.ID, Role: role, Name: user.Name}, nil
	case models.RolePartner:
		partner, err := d.parties.GetPartner(ctx, id)
		if err != nil {
			return nil, notFoundOr500(err, "Partner not found")
		}
		return &models.Identity{ID: partner.ID, Role: role, Name: partner.Name}, nil
	}
	return nil, apperrors.NewValidationError(fmt.Sprintf("unknown role %q", role))
}

func notFoundOr500(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewNotFoundError(message)
	}
	return apperrors.New500Error(err)
}
