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

package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/coursekit/coursekit/internal/billing"
	"github.com/coursekit/coursekit/internal/observability/logger"
	"github.com/coursekit/coursekit/internal/organization"
)

// maxWebhookBody bounds the raw payload read for signature verification.
const maxWebhookBody = 1 << 20

// StripeWebhook ingests provider events. Authentication is the webhook
// signature over the raw body; the bearer-token middleware does not apply.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		respondError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}

	if err := h.reconciler.HandleWebhook(r.Context(), payload, signature); err != nil {
		slog.ErrorContext(r.Context(), "webhook processing failed", logger.Error(err))
		// Non-2xx makes Stripe retry; invalid signatures must not be retried.
		var provErr *billing.ProviderError
		if errors.As(err, &provErr) && provErr.Op == "verify webhook" {
			respondError(w, http.StatusBadRequest, "invalid webhook signature")
			return
		}
		respondError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// SetupBillingRequest starts checkout for a tier.
type SetupBillingRequest struct {
	Tier string `json:"tier"`
}

// SetupBilling creates the provider customer if needed and returns a
// checkout URL for the requested tier.
func (h *Handler) SetupBilling(w http.ResponseWriter, r *http.Request) {
	var req SetupBillingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tier := organization.Tier(req.Tier)
	if _, ok := h.checkoutCfg.PriceIDs[tier]; !ok {
		respondError(w, http.StatusBadRequest, "unknown or unpurchasable tier")
		return
	}

	orgID := GetOrganizationID(r.Context())
	actorID := GetMemberID(r.Context())

	actor, err := h.memberService.Get(r.Context(), actorID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	url, err := h.reconciler.SetupBilling(r.Context(), orgID, actor.Email, actor.FirstName+" "+actor.LastName, tier, h.checkoutCfg)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to set up billing",
			logger.Error(err),
			logger.OrgID(orgID),
		)
		respondError(w, http.StatusBadGateway, "billing provider unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}

// BillingPortalRequest opens the provider's self-service portal.
type BillingPortalRequest struct {
	ReturnURL string `json:"return_url"`
}

// BillingPortal returns a provider-hosted portal URL for the caller's
// organization.
func (h *Handler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	var req BillingPortalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID := GetOrganizationID(r.Context())

	url, err := h.reconciler.PortalSession(r.Context(), orgID, req.ReturnURL)
	if err != nil {
		if errors.Is(err, billing.ErrNoCustomer) {
			respondError(w, http.StatusConflict, "organization has no billing account")
			return
		}
		slog.ErrorContext(r.Context(), "failed to open billing portal",
			logger.Error(err),
			logger.OrgID(orgID),
		)
		respondError(w, http.StatusBadGateway, "billing provider unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"portal_url": url})
}

// SyncSubscription pulls the provider's view of the subscription and
// reconciles internal state against it.
func (h *Handler) SyncSubscription(w http.ResponseWriter, r *http.Request) {
	orgID := GetOrganizationID(r.Context())

	result, err := h.reconciler.Sync(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, billing.ErrNoSubscription) {
			respondError(w, http.StatusConflict, "organization has no provider subscription")
			return
		}
		slog.ErrorContext(r.Context(), "subscription sync failed",
			logger.Error(err),
			logger.OrgID(orgID),
		)
		respondError(w, http.StatusBadGateway, "failed to sync with billing provider")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ApplyLatestEvent re-derives subscription state from the newest ledger row.
// Used when the provider is unreachable and state must be restored from
// local history.
func (h *Handler) ApplyLatestEvent(w http.ResponseWriter, r *http.Request) {
	orgID := GetOrganizationID(r.Context())

	result, err := h.reconciler.ApplyLatest(r.Context(), orgID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrNoEvents):
			respondError(w, http.StatusNotFound, "no billing events recorded")
		default:
			var invalid *organization.InvalidTransitionError
			if errors.As(err, &invalid) {
				respondError(w, http.StatusConflict, invalid.Error())
				return
			}
			slog.ErrorContext(r.Context(), "failed to apply latest event",
				logger.Error(err),
				logger.OrgID(orgID),
			)
			respondError(w, http.StatusInternalServerError, "failed to apply latest event")
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ListBillingEvents returns the organization's ledger, newest first.
func (h *Handler) ListBillingEvents(w http.ResponseWriter, r *http.Request) {
	orgID := GetOrganizationID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	events, err := h.reconciler.ListEvents(r.Context(), orgID, limit, offset)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list billing events",
			logger.Error(err),
			logger.OrgID(orgID),
		)
		respondError(w, http.StatusInternalServerError, "failed to list billing events")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
