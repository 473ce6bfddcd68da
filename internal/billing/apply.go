package billing

import (
	"context"
	"fmt"

	"github.com/coursekit/coursekit/internal/audit"
	"github.com/coursekit/coursekit/internal/organization"
)

// ApplyResult reports the outcome of re-deriving organization state from the
// ledger.
type ApplyResult struct {
	EventType EventType           `json:"event_type"`
	Status    organization.Status `json:"status"`
	Tier      organization.Tier   `json:"tier"`
	MaxSeats  int                 `json:"max_seats"`
	Applied   bool                `json:"applied"`
}

// ApplyLatest re-derives tier, seats and status from the newest ledger row.
// Used when no direct provider read is available. Rows that carry no
// subscription state (customer creation) leave the organization untouched.
func (r *Reconciler) ApplyLatest(ctx context.Context, orgID string) (*ApplyResult, error) {
	org, err := r.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	latest, err := r.ledger.Latest(ctx, orgID)
	if err != nil {
		return nil, err
	}

	status := org.SubscriptionStatus
	tier := org.SubscriptionTier
	applied := true

	switch p := latest.Payload.(type) {
	case SyncPayload:
		status, tier = p.Status, p.Tier
	case SubscriptionPayload:
		mapped, recognized := MapProviderStatus(p.ProviderStatus)
		if recognized {
			status = mapped
		}
		tier = p.Tier
		if latest.Type == EventSubscriptionDeleted {
			status = organization.StatusCanceled
		}
	case CheckoutPayload:
		tier = p.Tier
		status = organization.StatusActive
	case TrialPayload:
		status = organization.StatusTrial
		tier = p.Tier
	case PaymentPayload:
		if latest.Type == EventPaymentSucceeded {
			status = organization.StatusActive
		} else {
			status = organization.StatusPastDue
		}
	default:
		applied = false
	}

	result := &ApplyResult{
		EventType: latest.Type,
		Status:    status,
		Tier:      tier,
		MaxSeats:  organization.SeatsForTier(tier),
		Applied:   applied,
	}
	if !applied {
		return result, nil
	}

	if !organization.CanTransition(org.SubscriptionStatus, status) {
		return nil, fmt.Errorf("ledger row %s demands %s from %s: %w",
			latest.ID, status, org.SubscriptionStatus,
			&organization.InvalidTransitionError{From: org.SubscriptionStatus, To: status})
	}

	if _, err := r.orgs.ApplyTransition(ctx, orgID, status, organization.TransitionUpdate{
		Tier: &tier,
	}); err != nil {
		return nil, err
	}

	r.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeBillingEventApplied,
		OrganizationID: orgID,
		Resource:       string(latest.Type),
		Metadata:       map[string]any{"status": string(status), "tier": string(tier)},
	})

	return result, nil
}

// ListEvents returns the organization's ledger rows, newest first.
func (r *Reconciler) ListEvents(ctx context.Context, orgID string, limit, offset int) ([]*Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	return r.ledger.List(ctx, orgID, limit, offset)
}

// RecordTrialStart appends the TRIAL_STARTED row for a newly registered
// organization.
func (r *Reconciler) RecordTrialStart(ctx context.Context, org *organization.Organization) error {
	if org.TrialEndsAt == nil {
		return fmt.Errorf("organization %s has no trial window", org.ID)
	}
	return r.append(ctx, &Event{
		OrganizationID: org.ID,
		Type:           EventTrialStarted,
		Payload:        TrialPayload{TrialEndsAt: *org.TrialEndsAt, Tier: org.SubscriptionTier},
	})
}
