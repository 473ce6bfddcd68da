package organization

import (
	"fmt"
	"time"
)

// Status is the internal subscription state of an organization.
type Status string

const (
	StatusTrial    Status = "TRIAL"
	StatusActive   Status = "ACTIVE"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
	StatusUnpaid   Status = "UNPAID"
)

// Tier is the purchased subscription tier.
type Tier string

const (
	TierStarter    Tier = "STARTER"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

// UnlimitedSeats is the capacity sentinel for the enterprise tier.
const UnlimitedSeats = 999999

// Organization is the billing and seat-capacity unit. All members and
// subscription state are scoped to one organization.
type Organization struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Slug                  string     `json:"slug"`
	SubscriptionStatus    Status     `json:"subscription_status"`
	SubscriptionTier      Tier       `json:"subscription_tier"`
	MaxSeats              int        `json:"max_seats"`
	TrialEndsAt           *time.Time `json:"trial_ends_at,omitempty"`
	SubscriptionStartedAt *time.Time `json:"subscription_started_at,omitempty"`
	SubscriptionEndsAt    *time.Time `json:"subscription_ends_at,omitempty"`
	StripeCustomerID      *string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID  *string    `json:"stripe_subscription_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// IsTrialExpired reports whether the trial window has passed. Expiry
// enforcement is a read-time check on the authorization path; it never
// mutates subscription state by itself.
func (o *Organization) IsTrialExpired(now time.Time) bool {
	return o.SubscriptionStatus == StatusTrial && o.TrialEndsAt != nil && o.TrialEndsAt.Before(now)
}

// TrialDaysRemaining returns the integer number of days left in the trial
// window, rounded up. Zero when the org is not in trial or the window has
// passed.
func (o *Organization) TrialDaysRemaining(now time.Time) int {
	if o.SubscriptionStatus != StatusTrial || o.TrialEndsAt == nil {
		return 0
	}
	delta := o.TrialEndsAt.Sub(now)
	if delta <= 0 {
		return 0
	}
	days := int(delta / (24 * time.Hour))
	if delta%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// SeatsForTier maps a tier to its seat capacity.
func SeatsForTier(t Tier) int {
	switch t {
	case TierStarter:
		return 25
	case TierPro:
		return 500
	case TierEnterprise:
		return UnlimitedSeats
	default:
		return 25
	}
}

// ValidTransitions is the closed set of legal subscription state edges.
// CANCELED is terminal.
var ValidTransitions = map[Status][]Status{
	StatusTrial:    {StatusActive, StatusCanceled},
	StatusActive:   {StatusPastDue, StatusCanceled},
	StatusPastDue:  {StatusActive, StatusUnpaid, StatusCanceled},
	StatusUnpaid:   {StatusActive, StatusCanceled},
	StatusCanceled: {},
}

// CanTransition reports whether the edge from -> to is legal. A transition
// to the current status is allowed so that reconciliation can refresh tier
// and period fields without a state change.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, t := range ValidTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an illegal subscription state edge.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid subscription transition: %s -> %s", e.From, e.To)
}
