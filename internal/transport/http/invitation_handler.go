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

	"github.com/go-chi/chi/v5"

	"github.com/coursekit/coursekit/internal/invitation"
	"github.com/coursekit/coursekit/internal/member"
	"github.com/coursekit/coursekit/internal/observability/logger"
)

// IssueInvitationRequest creates one invitation.
type IssueInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// IssueInvitation creates a pending invitation and emails the accept link.
func (h *Handler) IssueInvitation(w http.ResponseWriter, r *http.Request) {
	var req IssueInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID := GetOrganizationID(r.Context())
	actorID := GetMemberID(r.Context())

	inv, err := h.inviteService.Issue(r.Context(), orgID, actorID, req.Email, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, member.ErrEmailTaken):
			respondError(w, http.StatusConflict, "email already belongs to a member")
		case errors.Is(err, member.ErrCrossTenantEmail):
			respondError(w, http.StatusConflict, "email belongs to a member of another organization")
		case errors.Is(err, invitation.ErrDuplicatePending):
			respondError(w, http.StatusConflict, "a pending invitation already exists for this email")
		case errors.Is(err, member.ErrSeatLimitExceeded):
			respondError(w, http.StatusConflict, "organization has reached its seat limit")
		default:
			slog.ErrorContext(r.Context(), "failed to issue invitation",
				logger.Error(err),
				logger.OrgID(orgID),
			)
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusCreated, inv)
}

// ValidateInvitation resolves a token without consuming it. Public: the
// invitee has no account yet.
func (h *Handler) ValidateInvitation(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	inv, org, err := h.inviteService.Validate(r.Context(), token)
	if err != nil {
		respondInvitationError(w, err)
		return
	}

	invitedBy := ""
	if inviter, err := h.memberService.Get(r.Context(), inv.InvitedBy); err == nil {
		invitedBy = strings.TrimSpace(inviter.FirstName + " " + inviter.LastName)
		if invitedBy == "" {
			invitedBy = inviter.Username
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"email":             inv.Email,
		"role":              inv.Role,
		"expires_at":        inv.ExpiresAt,
		"organization_name": org.Name,
		"invited_by":        invitedBy,
	})
}

// AcceptInvitationRequest carries the invitee's account details.
type AcceptInvitationRequest struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AcceptInvitation consumes the token, creates the member, and returns an
// API token for the new account.
func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req AcceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.inviteService.Accept(r.Context(), invitation.AcceptRequest{
		Token:     req.Token,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		switch {
		case errors.Is(err, member.ErrSeatLimitExceeded):
			respondError(w, http.StatusConflict, "organization has reached its seat limit")
		case errors.Is(err, member.ErrEmailTaken):
			respondError(w, http.StatusConflict, "email already belongs to a member")
		case errors.Is(err, member.ErrUsernameTaken):
			respondError(w, http.StatusConflict, "username already taken")
		default:
			respondInvitationError(w, err)
		}
		return
	}

	token, err := h.tokens.Issue(m.ID, m.OrganizationID, m.Role)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue token", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to accept invitation")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"member": m,
		"token":  token,
	})
}

// ListPendingInvitations returns the organization's live invitations.
func (h *Handler) ListPendingInvitations(w http.ResponseWriter, r *http.Request) {
	orgID := GetOrganizationID(r.Context())

	invs, err := h.inviteService.ListPending(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list invitations",
			logger.Error(err),
			logger.OrgID(orgID),
		)
		respondError(w, http.StatusInternalServerError, "failed to list invitations")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"invitations": invs,
		"count":       len(invs),
	})
}

// RevokeInvitation deletes a pending invitation, invalidating its token.
func (h *Handler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	orgID := GetOrganizationID(r.Context())
	actorID := GetMemberID(r.Context())
	invitationID := chi.URLParam(r, "invitationID")

	if err := h.inviteService.Revoke(r.Context(), orgID, invitationID, actorID); err != nil {
		respondInvitationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// CleanupInvitations removes expired unaccepted invitations on demand. The
// same sweep runs hourly in the background.
func (h *Handler) CleanupInvitations(w http.ResponseWriter, r *http.Request) {
	n, err := h.inviteService.CleanupExpired(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to clean up invitations", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to clean up invitations")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

func respondInvitationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invitation.ErrInvitationNotFound):
		respondError(w, http.StatusNotFound, "invitation not found")
	case errors.Is(err, invitation.ErrInvitationExpired):
		respondError(w, http.StatusGone, "invitation has expired")
	case errors.Is(err, invitation.ErrAlreadyAccepted):
		respondError(w, http.StatusConflict, "invitation has already been accepted")
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}
