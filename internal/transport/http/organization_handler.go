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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit/internal/member"
	"github.com/coursekit/coursekit/internal/observability/logger"
	"github.com/coursekit/coursekit/internal/organization"
)

// RegisterOrganizationRequest creates a workspace with its first OWNER.
type RegisterOrganizationRequest struct {
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	OwnerEmail    string `json:"owner_email"`
	OwnerUsername string `json:"owner_username"`
	OwnerPassword string `json:"owner_password"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
}

// RegisterOrganization creates an organization in TRIAL with its OWNER
// member, records the trial start in the billing ledger, and returns an API
// token for the owner.
func (h *Handler) RegisterOrganization(w http.ResponseWriter, r *http.Request) {
	var req RegisterOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" || req.OwnerEmail == "" || req.OwnerUsername == "" {
		respondError(w, http.StatusBadRequest, "name, owner_email and owner_username are required")
		return
	}
	if len(req.OwnerPassword) < 8 {
		respondError(w, http.StatusBadRequest, "owner_password must be at least 8 characters")
		return
	}

	slug := req.Slug
	if slug == "" {
		slug = organization.Slugify(req.Name)
	}

	org, err := h.orgService.Register(r.Context(), req.Name, slug)
	if err != nil {
		if errors.Is(err, organization.ErrSlugTaken) {
			respondError(w, http.StatusConflict, "organization slug already taken")
			return
		}
		slog.ErrorContext(r.Context(), "failed to register organization", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to register organization")
		return
	}

	hash, err := h.hasher.Hash(req.OwnerPassword)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to hash owner password", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to register organization")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to register organization")
		return
	}

	owner := &member.Member{
		ID:             id.String(),
		OrganizationID: org.ID,
		Email:          strings.ToLower(strings.TrimSpace(req.OwnerEmail)),
		Username:       strings.ToLower(strings.TrimSpace(req.OwnerUsername)),
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		PasswordHash:   hash,
		Role:           member.RoleOwner,
		IsActive:       true,
		JoinedAt:       time.Now(),
	}

	if err := h.creator.CreateMember(r.Context(), owner); err != nil {
		if errors.Is(err, member.ErrEmailTaken) {
			respondError(w, http.StatusConflict, "email already in use")
			return
		}
		slog.ErrorContext(r.Context(), "failed to create owner member",
			logger.Error(err),
			logger.OrgID(org.ID),
		)
		respondError(w, http.StatusInternalServerError, "failed to register organization")
		return
	}

	if err := h.reconciler.RecordTrialStart(r.Context(), org); err != nil {
		// The organization is usable without the ledger row; log and move on.
		slog.ErrorContext(r.Context(), "failed to record trial start",
			logger.Error(err),
			logger.OrgID(org.ID),
		)
	}

	token, err := h.tokens.Issue(owner.ID, org.ID, owner.Role)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue token", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to register organization")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"organization": org,
		"member":       owner,
		"token":        token,
	})
}

// SubscriptionStatus reports the caller's subscription state, seat usage,
// and what the caller's role is allowed to manage.
func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	orgID := GetOrganizationID(r.Context())
	role := GetRole(r.Context())

	org, err := h.orgService.Get(r.Context(), orgID)
	if err != nil {
		respondError(w, http.StatusNotFound, "organization not found")
		return
	}

	occupied, err := h.seats.ActiveSeatCount(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to count seats",
			logger.Error(err),
			logger.OrgID(orgID),
		)
		respondError(w, http.StatusInternalServerError, "failed to load subscription status")
		return
	}

	now := time.Now()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":                 org.SubscriptionStatus,
		"tier":                   org.SubscriptionTier,
		"max_seats":              org.MaxSeats,
		"seats_used":             occupied,
		"trial_ends_at":          org.TrialEndsAt,
		"trial_days_remaining":   org.TrialDaysRemaining(now),
		"trial_expired":          org.IsTrialExpired(now),
		"can_manage_billing":     role == member.RoleOwner,
		"can_manage_invitations": member.CanManageInvitations(role),
	})
}
