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

	"github.com/go-chi/chi/v5"

	"github.com/coursekit/coursekit/internal/audit"
	"github.com/coursekit/coursekit/internal/member"
	"github.com/coursekit/coursekit/internal/observability/logger"
)

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and returns an API token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.memberService.GetByEmail(r.Context(), req.Email)
	if err != nil || !m.IsActive {
		// Same response for unknown email and bad password.
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := h.hasher.Verify(req.Password, m.PasswordHash)
	if err != nil || !ok {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(m.ID, m.OrganizationID, m.Role)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue token", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:           audit.TypeMemberLogin,
		OrganizationID: m.OrganizationID,
		ActorID:        m.ID,
		Resource:       "member:" + m.ID,
		IPAddress:      getIPAddress(r),
		UserAgent:      r.UserAgent(),
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"token":  token,
		"member": m,
	})
}

// ListMembers returns all members of the caller's organization.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	orgID := GetOrganizationID(r.Context())

	members, err := h.memberService.List(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list members",
			logger.Error(err),
			logger.OrgID(orgID),
		)
		respondError(w, http.StatusInternalServerError, "failed to list members")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// BulkImportRequest carries the emails to import as LEARNER members.
type BulkImportRequest struct {
	Emails []string `json:"emails"`
}

// BulkImportMembers creates LEARNER members for a batch of emails. The
// batch is all-or-nothing against the seat ceiling.
func (h *Handler) BulkImportMembers(w http.ResponseWriter, r *http.Request) {
	var req BulkImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID := GetOrganizationID(r.Context())
	actorID := GetMemberID(r.Context())

	result, err := h.memberService.BulkImport(r.Context(), orgID, actorID, req.Emails)
	if err != nil {
		switch {
		case errors.Is(err, member.ErrSeatLimitExceeded):
			respondError(w, http.StatusConflict, "organization has reached its seat limit")
		case errors.Is(err, member.ErrCrossTenantEmail):
			respondError(w, http.StatusConflict, "an email belongs to a member of another organization")
		default:
			slog.ErrorContext(r.Context(), "failed to import members",
				logger.Error(err),
				logger.OrgID(orgID),
			)
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// DeactivateMember frees a member's seat. The row is kept; only the seat is
// released.
func (h *Handler) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	orgID := GetOrganizationID(r.Context())
	actorID := GetMemberID(r.Context())
	memberID := chi.URLParam(r, "memberID")

	if memberID == actorID {
		respondError(w, http.StatusBadRequest, "cannot deactivate yourself")
		return
	}

	if err := h.memberService.Deactivate(r.Context(), orgID, memberID, actorID); err != nil {
		if errors.Is(err, member.ErrMemberNotFound) {
			respondError(w, http.StatusNotFound, "member not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to deactivate member",
			logger.Error(err),
			logger.OrgID(orgID),
			logger.MemberID(memberID),
		)
		respondError(w, http.StatusInternalServerError, "failed to deactivate member")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
