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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeConfig holds Stripe client configuration.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

// StripeProvider implements Provider against the Stripe API. The client is
// constructed explicitly and injected; nothing here touches stripe-go's
// package-level key.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a Stripe-backed billing provider with a bounded
// HTTP timeout on every call.
func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: timeout},
	}

	api := &client.API{}
	api.Init(cfg.APIKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}
}

// CreateCustomer creates a Stripe customer and returns its reference.
func (p *StripeProvider) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	cust, err := p.api.Customers.New(params)
	if err != nil {
		return "", &ProviderError{Op: "create customer", Err: err}
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a subscription-mode checkout session.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(cp.CustomerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(cp.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	for k, v := range cp.Metadata {
		params.AddMetadata(k, v)
	}
	if cp.TrialDays > 0 || len(cp.Metadata) > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: cp.Metadata,
		}
		if cp.TrialDays > 0 {
			params.SubscriptionData.TrialPeriodDays = stripe.Int64(cp.TrialDays)
		}
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, &ProviderError{Op: "create checkout session", Err: err}
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// RetrieveSubscription fetches current provider state for a subscription.
func (p *StripeProvider) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, &ProviderError{Op: "retrieve subscription", Err: err}
	}
	return mapStripeSubscription(sub), nil
}

// CreateBillingPortalSession returns a redirect URL into the Stripe billing
// portal.
func (p *StripeProvider) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", &ProviderError{Op: "create portal session", Err: err}
	}
	return sess.URL, nil
}

// VerifyWebhook checks the Stripe signature and maps the event into neutral
// vocabulary.
func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, &ProviderError{Op: "verify webhook", Err: err}
	}

	out := &WebhookEvent{ID: event.ID}
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		out.Kind = WebhookCheckoutCompleted
		out.OrganizationID = sess.Metadata["organizationId"]
		out.Tier = sess.Metadata["subscriptionTier"]
		out.Checkout = &CheckoutSession{ID: sess.ID, URL: sess.URL}
		if sess.Subscription != nil {
			out.SubscriptionID = sess.Subscription.ID
		}

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		switch event.Type {
		case "customer.subscription.created":
			out.Kind = WebhookSubscriptionCreated
		case "customer.subscription.updated":
			out.Kind = WebhookSubscriptionUpdated
		default:
			out.Kind = WebhookSubscriptionDeleted
		}
		out.OrganizationID = sub.Metadata["organizationId"]
		out.Tier = sub.Metadata["subscriptionTier"]
		out.Subscription = mapStripeSubscription(&sub)
		out.SubscriptionID = sub.ID

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("failed to decode invoice: %w", err)
		}
		if event.Type == "invoice.payment_succeeded" {
			out.Kind = WebhookPaymentSucceeded
			out.Invoice = &Invoice{ID: inv.ID, Amount: inv.AmountPaid, Currency: string(inv.Currency)}
		} else {
			out.Kind = WebhookPaymentFailed
			out.Invoice = &Invoice{ID: inv.ID, Amount: inv.AmountDue, Currency: string(inv.Currency)}
		}
		if inv.Subscription != nil {
			out.Invoice.SubscriptionID = inv.Subscription.ID
			out.SubscriptionID = inv.Subscription.ID
		}

	default:
		out.Kind = WebhookIgnored
	}

	return out, nil
}

func mapStripeSubscription(sub *stripe.Subscription) *Subscription {
	return &Subscription{
		ID:               sub.ID,
		Status:           string(sub.Status),
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		StartedAt:        time.Unix(sub.Created, 0).UTC(),
		Metadata:         sub.Metadata,
	}
}
