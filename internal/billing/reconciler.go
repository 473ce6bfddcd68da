// Copyright 2026 The CourseKit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit/internal/audit"
	"github.com/coursekit/coursekit/internal/observability/logger"
	"github.com/coursekit/coursekit/internal/organization"
)

var ErrNoSubscription = errors.New("organization has no provider subscription")

// MapProviderStatus maps the provider's status vocabulary to the internal
// enum. The second return is false when the status is not in the closed set;
// callers surface that loudly instead of silently defaulting.
func MapProviderStatus(providerStatus string) (organization.Status, bool) {
	switch providerStatus {
	case "trialing":
		return organization.StatusTrial, true
	case "active":
		return organization.StatusActive, true
	case "past_due":
		return organization.StatusPastDue, true
	case "canceled", "incomplete_expired":
		return organization.StatusCanceled, true
	case "unpaid":
		return organization.StatusUnpaid, true
	default:
		// Unrecognized statuses map to ACTIVE so a new provider vocabulary
		// never locks paying tenants out; the caller logs the fallback.
		return organization.StatusActive, false
	}
}

// TierFromString parses a tier name from provider metadata, falling back to
// the given default when absent or unknown.
func TierFromString(s string, fallback organization.Tier) organization.Tier {
	switch organization.Tier(s) {
	case organization.TierStarter, organization.TierPro, organization.TierEnterprise:
		return organization.Tier(s)
	default:
		return fallback
	}
}

// SyncResult reports the outcome of a pull-based reconciliation.
type SyncResult struct {
	Status           organization.Status `json:"status"`
	Tier             organization.Tier   `json:"tier"`
	MaxSeats         int                 `json:"max_seats"`
	CurrentPeriodEnd time.Time           `json:"current_period_end"`
	Changed          bool                `json:"changed"`
}

// Reconciler folds external billing-provider state into internal
// subscription state, recording every applied change in the ledger. The
// provider client is injected; tests use a fake.
type Reconciler struct {
	orgs        *organization.Service
	ledger      Ledger
	provider    Provider
	auditLogger audit.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(orgs *organization.Service, ledger Ledger, provider Provider, auditLogger audit.Logger) *Reconciler {
	return &Reconciler{
		orgs:        orgs,
		ledger:      ledger,
		provider:    provider,
		auditLogger: auditLogger,
	}
}

// HandleWebhook verifies and applies one provider webhook payload. Provider
// I/O (signature check, optional subscription fetch) happens before any
// organization row is touched; the state write itself is guarded against
// concurrent reconciliations.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := r.provider.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}

	switch event.Kind {
	case WebhookCheckoutCompleted:
		return r.handleCheckoutCompleted(ctx, event)
	case WebhookSubscriptionCreated, WebhookSubscriptionUpdated:
		return r.handleSubscriptionChange(ctx, event)
	case WebhookSubscriptionDeleted:
		return r.handleSubscriptionDeleted(ctx, event)
	case WebhookPaymentSucceeded, WebhookPaymentFailed:
		return r.handlePayment(ctx, event)
	case WebhookIgnored:
		slog.DebugContext(ctx, "ignoring unconsumed provider webhook", logger.ProviderEventID(event.ID))
		return nil
	default:
		return fmt.Errorf("unhandled webhook kind %q", event.Kind)
	}
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, event *WebhookEvent) error {
	if event.OrganizationID == "" {
		return fmt.Errorf("checkout session %s carries no organization reference", event.Checkout.ID)
	}

	// The session itself does not carry subscription state; fetch it before
	// we take any decision about the organization row.
	sub, err := r.provider.RetrieveSubscription(ctx, event.SubscriptionID)
	if err != nil {
		return err
	}

	tier := TierFromString(event.Tier, organization.TierPro)
	if _, err := r.applySubscription(ctx, event.OrganizationID, sub, tier); err != nil {
		return err
	}

	return r.append(ctx, &Event{
		OrganizationID: event.OrganizationID,
		Type:           EventCheckoutCompleted,
		StripeEventID:  &event.ID,
		Payload: CheckoutPayload{
			CheckoutSessionID: event.Checkout.ID,
			SubscriptionID:    sub.ID,
			Tier:              tier,
		},
	})
}

func (r *Reconciler) handleSubscriptionChange(ctx context.Context, event *WebhookEvent) error {
	orgID := event.OrganizationID
	if orgID == "" {
		org, err := r.orgs.GetByStripeSubscription(ctx, event.SubscriptionID)
		if err != nil {
			return fmt.Errorf("subscription %s maps to no organization: %w", event.SubscriptionID, err)
		}
		orgID = org.ID
	}

	tier := TierFromString(event.Tier, organization.TierStarter)
	if _, err := r.applySubscription(ctx, orgID, event.Subscription, tier); err != nil {
		return err
	}

	evType := EventSubscriptionCreated
	if event.Kind == WebhookSubscriptionUpdated {
		evType = EventSubscriptionUpdated
	}
	return r.append(ctx, &Event{
		OrganizationID: orgID,
		Type:           evType,
		StripeEventID:  &event.ID,
		Payload: SubscriptionPayload{
			SubscriptionID:   event.Subscription.ID,
			ProviderStatus:   event.Subscription.Status,
			Tier:             tier,
			CurrentPeriodEnd: event.Subscription.CurrentPeriodEnd,
		},
	})
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, event *WebhookEvent) error {
	org, err := r.resolveOrg(ctx, event)
	if err != nil {
		return err
	}

	if _, err := r.orgs.ApplyTransition(ctx, org.ID, organization.StatusCanceled, organization.TransitionUpdate{}); err != nil {
		var invalid *organization.InvalidTransitionError
		if !errors.As(err, &invalid) {
			return err
		}
		// Already canceled; the ledger row below still records the event.
		slog.InfoContext(ctx, "subscription already canceled", logger.OrgID(org.ID))
	}

	return r.append(ctx, &Event{
		OrganizationID: org.ID,
		Type:           EventSubscriptionDeleted,
		StripeEventID:  &event.ID,
		Payload: SubscriptionPayload{
			SubscriptionID:   event.Subscription.ID,
			ProviderStatus:   event.Subscription.Status,
			Tier:             org.SubscriptionTier,
			CurrentPeriodEnd: event.Subscription.CurrentPeriodEnd,
		},
	})
}

func (r *Reconciler) handlePayment(ctx context.Context, event *WebhookEvent) error {
	org, err := r.resolveOrg(ctx, event)
	if err != nil {
		return err
	}

	evType := EventPaymentSucceeded
	target := organization.StatusActive
	if event.Kind == WebhookPaymentFailed {
		evType = EventPaymentFailed
		target = organization.StatusPastDue
	}

	// A successful payment recovers delinquent orgs; a failed one marks an
	// active org delinquent. Other combinations are no-ops on state.
	if organization.CanTransition(org.SubscriptionStatus, target) && org.SubscriptionStatus != target {
		if _, err := r.orgs.ApplyTransition(ctx, org.ID, target, organization.TransitionUpdate{}); err != nil {
			return err
		}
	}

	return r.append(ctx, &Event{
		OrganizationID: org.ID,
		Type:           evType,
		Amount:         &event.Invoice.Amount,
		Currency:       &event.Invoice.Currency,
		StripeEventID:  &event.ID,
		Payload: PaymentPayload{
			InvoiceID:      event.Invoice.ID,
			SubscriptionID: event.Invoice.SubscriptionID,
			Amount:         event.Invoice.Amount,
			Currency:       event.Invoice.Currency,
		},
	})
}

// Sync performs pull-based reconciliation for one organization. Safe to call
// repeatedly: when the provider's view matches internal state nothing is
// written and no ledger row is appended.
func (r *Reconciler) Sync(ctx context.Context, orgID string) (*SyncResult, error) {
	org, err := r.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.StripeSubscriptionID == nil || *org.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}

	// Blocking provider I/O happens here, before any row is locked.
	sub, err := r.provider.RetrieveSubscription(ctx, *org.StripeSubscriptionID)
	if err != nil {
		return nil, err
	}

	status, recognized := MapProviderStatus(sub.Status)
	if !recognized {
		slog.WarnContext(ctx, "unrecognized provider subscription status, defaulting",
			logger.OrgID(orgID),
			logger.ProviderStatus(sub.Status),
			logger.Status(string(status)),
		)
	}
	tier := TierFromString(sub.Metadata["subscriptionTier"], organization.TierPro)
	seats := organization.SeatsForTier(tier)

	result := &SyncResult{
		Status:           status,
		Tier:             tier,
		MaxSeats:         seats,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	}

	if org.SubscriptionStatus == status && org.SubscriptionTier == tier && org.MaxSeats == seats &&
		org.SubscriptionEndsAt != nil && org.SubscriptionEndsAt.Equal(sub.CurrentPeriodEnd) {
		return result, nil
	}

	if _, err := r.orgs.ApplyTransition(ctx, orgID, status, organization.TransitionUpdate{
		Tier:               &tier,
		SubscriptionEndsAt: &sub.CurrentPeriodEnd,
	}); err != nil {
		return nil, err
	}
	result.Changed = true

	if err := r.append(ctx, &Event{
		OrganizationID: orgID,
		Type:           EventSubscriptionSynced,
		Payload: SyncPayload{
			SubscriptionID:   sub.ID,
			ProviderStatus:   sub.Status,
			Status:           status,
			Tier:             tier,
			MaxSeats:         seats,
			CurrentPeriodEnd: sub.CurrentPeriodEnd,
		},
	}); err != nil {
		return nil, err
	}

	r.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeSubscriptionSynced,
		OrganizationID: orgID,
		Resource:       sub.ID,
		Metadata:       map[string]any{"status": string(status), "tier": string(tier)},
	})

	return result, nil
}

// applySubscription maps one provider subscription onto an organization and
// writes it through the state machine.
func (r *Reconciler) applySubscription(ctx context.Context, orgID string, sub *Subscription, tier organization.Tier) (*organization.Organization, error) {
	status, recognized := MapProviderStatus(sub.Status)
	if !recognized {
		slog.WarnContext(ctx, "unrecognized provider subscription status, defaulting",
			logger.OrgID(orgID),
			logger.ProviderStatus(sub.Status),
			logger.Status(string(status)),
		)
	}

	return r.orgs.ApplyTransition(ctx, orgID, status, organization.TransitionUpdate{
		Tier:                  &tier,
		SubscriptionStartedAt: &sub.StartedAt,
		SubscriptionEndsAt:    &sub.CurrentPeriodEnd,
		StripeSubscriptionID:  &sub.ID,
	})
}

func (r *Reconciler) resolveOrg(ctx context.Context, event *WebhookEvent) (*organization.Organization, error) {
	if event.OrganizationID != "" {
		return r.orgs.Get(ctx, event.OrganizationID)
	}
	if event.SubscriptionID == "" {
		return nil, fmt.Errorf("provider event %s carries no organization or subscription reference", event.ID)
	}
	return r.orgs.GetByStripeSubscription(ctx, event.SubscriptionID)
}

func (r *Reconciler) append(ctx context.Context, event *Event) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate event id: %w", err)
	}
	event.ID = id.String()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := r.ledger.Append(ctx, event); err != nil {
		// A redelivered provider event is acknowledged, not recorded twice.
		// The preceding state write was a same-status refresh and is safe.
		if errors.Is(err, ErrDuplicateEvent) {
			slog.DebugContext(ctx, "skipping already-recorded provider event",
				logger.OrgID(event.OrganizationID))
			return nil
		}
		return fmt.Errorf("failed to append billing event: %w", err)
	}

	r.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeBillingEventRecorded,
		OrganizationID: event.OrganizationID,
		Resource:       string(event.Type),
	})
	return nil
}
