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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/coursekit/coursekit/internal/audit"
	"github.com/coursekit/coursekit/internal/billing"
	"github.com/coursekit/coursekit/internal/invitation"
	"github.com/coursekit/coursekit/internal/member"
	"github.com/coursekit/coursekit/internal/organization"
	"github.com/coursekit/coursekit/internal/trial"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	orgService    *organization.Service
	memberService *member.Service
	inviteService *invitation.Service
	reconciler    *billing.Reconciler
	checkoutCfg   billing.CheckoutConfig
	trialRunner   *trial.Runner
	tokens        *TokenIssuer
	hasher        *member.PasswordHasher
	creator       member.Creator
	seats         *member.SeatAccountant
	auditLogger   audit.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orgService *organization.Service,
	memberService *member.Service,
	inviteService *invitation.Service,
	reconciler *billing.Reconciler,
	checkoutCfg billing.CheckoutConfig,
	trialRunner *trial.Runner,
	tokens *TokenIssuer,
	hasher *member.PasswordHasher,
	creator member.Creator,
	seats *member.SeatAccountant,
	auditLogger audit.Logger,
) *Handler {
	return &Handler{
		orgService:    orgService,
		memberService: memberService,
		inviteService: inviteService,
		reconciler:    reconciler,
		checkoutCfg:   checkoutCfg,
		trialRunner:   trialRunner,
		tokens:        tokens,
		hasher:        hasher,
		creator:       creator,
		seats:         seats,
		auditLogger:   auditLogger,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Stripe webhooks authenticate via signature, not bearer token
	r.Post("/webhooks/stripe", h.StripeWebhook)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/organizations", h.RegisterOrganization)
		r.Post("/auth/login", h.Login)
		r.Get("/invitations/validate", h.ValidateInvitation)
		r.Post("/invitations/accept", h.AcceptInvitation)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/subscription/status", h.SubscriptionStatus)

			r.Route("/members", func(r chi.Router) {
				r.Get("/", h.ListMembers)
				r.Group(func(r chi.Router) {
					r.Use(RequireRole(member.RoleOwner, member.RoleAdmin))
					r.Post("/bulk-import", h.BulkImportMembers)
					r.Delete("/{memberID}", h.DeactivateMember)
				})
			})

			r.Route("/invitations", func(r chi.Router) {
				r.Use(RequireRole(member.RoleOwner, member.RoleAdmin))
				r.Post("/", h.IssueInvitation)
				r.Get("/", h.ListPendingInvitations)
				r.Post("/cleanup", h.CleanupInvitations)
				r.Delete("/{invitationID}", h.RevokeInvitation)
			})

			r.With(RequireRole(member.RoleOwner)).Post("/trials/scan", h.TriggerTrialScan)

			r.Route("/billing", func(r chi.Router) {
				r.Use(RequireRole(member.RoleOwner, member.RoleAdmin))
				r.Get("/events", h.ListBillingEvents)
				r.Group(func(r chi.Router) {
					r.Use(RequireRole(member.RoleOwner))
					r.Post("/setup", h.SetupBilling)
					r.Post("/portal", h.BillingPortal)
					r.Post("/sync", h.SyncSubscription)
					r.Post("/apply-latest", h.ApplyLatestEvent)
				})
			})
		})
	})

	return r
}

// TriggerTrialScan runs one trial warning pass immediately instead of
// waiting for the background interval.
func (h *Handler) TriggerTrialScan(w http.ResponseWriter, r *http.Request) {
	delivered, err := h.trialRunner.RunOnce(r.Context(), time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "trial scan failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"warnings_delivered": delivered})
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "coursekit",
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
