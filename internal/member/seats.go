package member

import (
	"context"

	"github.com/coursekit/coursekit/internal/organization"
)

// SeatAccountant computes seat usage for an organization and judges whether
// a new seat may be created.
//
// CanAddSeat is an advisory read: it pre-gates invitation issuance and feeds
// status displays. The binding check happens inside the store transaction
// that creates the member, where the organization row is locked and the
// count re-taken. Relying on CanAddSeat alone would admit a race between
// concurrent accepts.
type SeatAccountant struct {
	orgs    organization.Repository
	members Repository
}

// NewSeatAccountant creates a new seat accountant.
func NewSeatAccountant(orgs organization.Repository, members Repository) *SeatAccountant {
	return &SeatAccountant{orgs: orgs, members: members}
}

// ActiveSeatCount returns the number of active members of the organization.
func (a *SeatAccountant) ActiveSeatCount(ctx context.Context, orgID string) (int, error) {
	return a.members.CountActive(ctx, orgID)
}

// CanAddSeat reports whether the organization has capacity for one more
// active member.
func (a *SeatAccountant) CanAddSeat(ctx context.Context, orgID string) (bool, error) {
	org, err := a.orgs.GetByID(ctx, orgID)
	if err != nil {
		return false, err
	}
	count, err := a.members.CountActive(ctx, orgID)
	if err != nil {
		return false, err
	}
	return count < org.MaxSeats, nil
}
