package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/coursekit/coursekit/internal/audit"
	"github.com/coursekit/coursekit/internal/organization"
)

var ErrNoCustomer = errors.New("organization has no provider customer")

// CheckoutConfig carries the provider price references and redirect URLs
// used when starting a checkout.
type CheckoutConfig struct {
	PriceIDs   map[organization.Tier]string
	TrialDays  int64
	SuccessURL string
	CancelURL  string
}

// SetupBilling creates the provider customer for an organization when
// missing and opens a checkout session for the requested tier. The returned
// URL is where the owner completes payment; the resulting webhook drives the
// actual state transition.
func (r *Reconciler) SetupBilling(ctx context.Context, orgID, ownerEmail, ownerName string, tier organization.Tier, cfg CheckoutConfig) (string, error) {
	org, err := r.orgs.Get(ctx, orgID)
	if err != nil {
		return "", err
	}

	priceID, ok := cfg.PriceIDs[tier]
	if !ok || priceID == "" {
		return "", fmt.Errorf("no price configured for tier %s", tier)
	}

	customerID := ""
	if org.StripeCustomerID != nil {
		customerID = *org.StripeCustomerID
	}
	if customerID == "" {
		customerID, err = r.provider.CreateCustomer(ctx, ownerEmail, ownerName, map[string]string{
			"organizationId": org.ID,
		})
		if err != nil {
			return "", err
		}

		// Persist the reference before opening checkout so a failed checkout
		// does not orphan the customer.
		if _, err := r.orgs.ApplyTransition(ctx, org.ID, org.SubscriptionStatus, organization.TransitionUpdate{
			StripeCustomerID: &customerID,
		}); err != nil {
			return "", err
		}

		if err := r.append(ctx, &Event{
			OrganizationID: org.ID,
			Type:           EventCustomerCreated,
			Payload:        CustomerPayload{CustomerID: customerID, Email: ownerEmail},
		}); err != nil {
			return "", err
		}
	}

	session, err := r.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		TrialDays:  cfg.TrialDays,
		SuccessURL: cfg.SuccessURL,
		CancelURL:  cfg.CancelURL,
		Metadata: map[string]string{
			"organizationId":   org.ID,
			"subscriptionTier": string(tier),
		},
	})
	if err != nil {
		return "", err
	}

	r.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeCheckoutStarted,
		OrganizationID: org.ID,
		Resource:       string(tier),
		Metadata:       map[string]any{"checkout_session_id": session.ID},
	})

	return session.URL, nil
}

// PortalSession returns a redirect URL into the provider's billing portal
// for the organization's customer.
func (r *Reconciler) PortalSession(ctx context.Context, orgID, returnURL string) (string, error) {
	org, err := r.orgs.Get(ctx, orgID)
	if err != nil {
		return "", err
	}
	if org.StripeCustomerID == nil || *org.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	return r.provider.CreateBillingPortalSession(ctx, *org.StripeCustomerID, returnURL)
}
