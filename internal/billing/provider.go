package billing

import (
	"context"
	"fmt"
	"time"
)

// ProviderError wraps a failed call to the external billing provider. The
// operation that observed it must leave internal state unchanged; callers
// may retry.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("billing provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Subscription is the provider's view of one subscription, reduced to the
// fields this system consumes.
type Subscription struct {
	ID               string
	Status           string
	CurrentPeriodEnd time.Time
	StartedAt        time.Time
	Metadata         map[string]string
}

// Invoice is the provider's view of one invoice.
type Invoice struct {
	ID             string
	SubscriptionID string
	Amount         int64
	Currency       string
}

// CheckoutSession is a provider-hosted checkout.
type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutParams configures a new checkout session.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	TrialDays  int64
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// WebhookEvent is a provider webhook payload mapped to neutral vocabulary.
// Exactly one of Subscription, Invoice or Checkout is set depending on Kind.
type WebhookEvent struct {
	ID             string
	Kind           WebhookKind
	OrganizationID string
	Tier           string
	Subscription   *Subscription
	Invoice        *Invoice
	Checkout       *CheckoutSession
	SubscriptionID string
}

// WebhookKind is the closed set of webhook shapes this system consumes.
type WebhookKind string

const (
	WebhookCheckoutCompleted   WebhookKind = "checkout.completed"
	WebhookSubscriptionCreated WebhookKind = "subscription.created"
	WebhookSubscriptionUpdated WebhookKind = "subscription.updated"
	WebhookSubscriptionDeleted WebhookKind = "subscription.deleted"
	WebhookPaymentSucceeded    WebhookKind = "payment.succeeded"
	WebhookPaymentFailed       WebhookKind = "payment.failed"
	WebhookIgnored             WebhookKind = "ignored"
)

// Provider is the external billing system. Implementations are injected
// explicitly; there is no shared module-level client. All calls perform
// network I/O and must respect the context deadline.
type Provider interface {
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// VerifyWebhook checks the payload signature and maps the event into
	// neutral vocabulary. Unconsumed provider event types come back with
	// Kind == WebhookIgnored.
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
