package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coursekit/coursekit/internal/organization"
)

var ErrNoEvents = errors.New("no billing events recorded")

// ErrDuplicateEvent reports an Append whose provider event id is already in
// the ledger. Stripe may deliver the same event more than once; the second
// delivery is acknowledged, not recorded again.
var ErrDuplicateEvent = errors.New("billing event already recorded")

// EventType tags a billing ledger entry. Each type carries its own payload
// variant.
type EventType string

const (
	EventTrialStarted        EventType = "TRIAL_STARTED"
	EventCustomerCreated     EventType = "CUSTOMER_CREATED"
	EventCheckoutCompleted   EventType = "CHECKOUT_COMPLETED"
	EventSubscriptionCreated EventType = "SUBSCRIPTION_CREATED"
	EventSubscriptionUpdated EventType = "SUBSCRIPTION_UPDATED"
	EventSubscriptionDeleted EventType = "SUBSCRIPTION_DELETED"
	EventSubscriptionSynced  EventType = "SUBSCRIPTION_SYNCED"
	EventPaymentSucceeded    EventType = "PAYMENT_SUCCEEDED"
	EventPaymentFailed       EventType = "PAYMENT_FAILED"
)

// Event is one immutable row of the billing ledger. Rows are ordered by
// CreatedAt; the latest row per organization is the authoritative input for
// re-deriving tier and seats when no direct provider read is available.
type Event struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Type           EventType `json:"event_type"`
	Amount         *int64    `json:"amount,omitempty"`
	Currency       *string   `json:"currency,omitempty"`
	StripeEventID  *string   `json:"stripe_event_id,omitempty"`
	Payload        Payload   `json:"payload,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Payload is the typed, event-specific part of a ledger row. One concrete
// variant exists per EventType; rows are never stored with an untyped blob.
type Payload interface {
	isPayload()
}

// TrialPayload accompanies TRIAL_STARTED.
type TrialPayload struct {
	TrialEndsAt time.Time         `json:"trial_ends_at"`
	Tier        organization.Tier `json:"tier"`
}

// CustomerPayload accompanies CUSTOMER_CREATED.
type CustomerPayload struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
}

// CheckoutPayload accompanies CHECKOUT_COMPLETED.
type CheckoutPayload struct {
	CheckoutSessionID string            `json:"checkout_session_id"`
	SubscriptionID    string            `json:"subscription_id"`
	Tier              organization.Tier `json:"tier"`
}

// SubscriptionPayload accompanies SUBSCRIPTION_CREATED / _UPDATED /
// _DELETED.
type SubscriptionPayload struct {
	SubscriptionID   string            `json:"subscription_id"`
	ProviderStatus   string            `json:"provider_status"`
	Tier             organization.Tier `json:"tier"`
	CurrentPeriodEnd time.Time         `json:"current_period_end"`
}

// SyncPayload accompanies SUBSCRIPTION_SYNCED.
type SyncPayload struct {
	SubscriptionID   string              `json:"subscription_id"`
	ProviderStatus   string              `json:"provider_status"`
	Status           organization.Status `json:"status"`
	Tier             organization.Tier   `json:"tier"`
	MaxSeats         int                 `json:"max_seats"`
	CurrentPeriodEnd time.Time           `json:"current_period_end"`
}

// PaymentPayload accompanies PAYMENT_SUCCEEDED / PAYMENT_FAILED.
type PaymentPayload struct {
	InvoiceID      string `json:"invoice_id"`
	SubscriptionID string `json:"subscription_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

func (TrialPayload) isPayload()        {}
func (CustomerPayload) isPayload()     {}
func (CheckoutPayload) isPayload()     {}
func (SubscriptionPayload) isPayload() {}
func (SyncPayload) isPayload()         {}
func (PaymentPayload) isPayload()      {}

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// DecodePayload deserializes the stored payload for the given event type.
func DecodePayload(t EventType, data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var p Payload
	switch t {
	case EventTrialStarted:
		p = &TrialPayload{}
	case EventCustomerCreated:
		p = &CustomerPayload{}
	case EventCheckoutCompleted:
		p = &CheckoutPayload{}
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		p = &SubscriptionPayload{}
	case EventSubscriptionSynced:
		p = &SyncPayload{}
	case EventPaymentSucceeded, EventPaymentFailed:
		p = &PaymentPayload{}
	default:
		return nil, fmt.Errorf("unknown billing event type %q", t)
	}

	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
	}
	return derefPayload(p), nil
}

func derefPayload(p Payload) Payload {
	switch v := p.(type) {
	case *TrialPayload:
		return *v
	case *CustomerPayload:
		return *v
	case *CheckoutPayload:
		return *v
	case *SubscriptionPayload:
		return *v
	case *SyncPayload:
		return *v
	case *PaymentPayload:
		return *v
	}
	return p
}
