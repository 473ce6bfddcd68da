package organization

import (
	"context"
	"errors"
	"time"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrSlugTaken            = errors.New("organization slug already taken")
	ErrStaleUpdate          = errors.New("organization state changed concurrently")
)

// TransitionUpdate carries the fields written by ApplyTransition. Nil
// pointers leave the stored value untouched.
type TransitionUpdate struct {
	Status                Status
	Tier                  *Tier
	MaxSeats              *int
	TrialEndsAt           *time.Time
	SubscriptionStartedAt *time.Time
	SubscriptionEndsAt    *time.Time
	StripeCustomerID      *string
	StripeSubscriptionID  *string
}

// Repository defines the interface for organization storage.
type Repository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	GetByStripeSubscription(ctx context.Context, subscriptionID string) (*Organization, error)

	// UpdateSubscription performs a single-row atomic update guarded by the
	// expected current status. It returns ErrStaleUpdate when the stored
	// status no longer matches expectedStatus, leaving the row unchanged.
	UpdateSubscription(ctx context.Context, id string, expectedStatus Status, update TransitionUpdate) (*Organization, error)

	// ListInTrial returns organizations in TRIAL whose trial window ends
	// within the given horizon after now.
	ListInTrial(ctx context.Context, now time.Time, horizon time.Duration) ([]*Organization, error)
}
