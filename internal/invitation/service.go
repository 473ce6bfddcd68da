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

package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit/internal/audit"
	"github.com/coursekit/coursekit/internal/member"
	"github.com/coursekit/coursekit/internal/notify"
	"github.com/coursekit/coursekit/internal/observability/logger"
	"github.com/coursekit/coursekit/internal/organization"
)

// Service implements the invitation lifecycle: issue, validate, accept,
// revoke, and expiry cleanup.
type Service struct {
	repo        Repository
	acceptor    Acceptor
	orgs        *organization.Service
	members     member.Repository
	seats       *member.SeatAccountant
	hasher      *member.PasswordHasher
	mailer      notify.Mailer
	auditLogger audit.Logger
	baseURL     string
}

// NewService creates an invitation service. baseURL is the public app URL
// used to build accept links in invitation emails.
func NewService(
	repo Repository,
	acceptor Acceptor,
	orgs *organization.Service,
	members member.Repository,
	seats *member.SeatAccountant,
	hasher *member.PasswordHasher,
	mailer notify.Mailer,
	auditLogger audit.Logger,
	baseURL string,
) *Service {
	return &Service{
		repo:        repo,
		acceptor:    acceptor,
		orgs:        orgs,
		members:     members,
		seats:       seats,
		hasher:      hasher,
		mailer:      mailer,
		auditLogger: auditLogger,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// Issue creates a pending invitation and emails the accept link.
//
// The seat check here is advisory: it rejects obviously-full organizations
// early, but the ceiling is enforced again inside the accept transaction.
// Issuing more invitations than remaining seats is allowed; acceptance is
// first-come-first-served.
func (s *Service) Issue(ctx context.Context, orgID, actorID, email, role string) (*Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email address is required")
	}
	if !member.ValidRole(role) {
		return nil, fmt.Errorf("invalid role: %s", role)
	}

	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	existing, err := s.members.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, member.ErrMemberNotFound) {
		return nil, fmt.Errorf("failed to check existing member: %w", err)
	}
	if existing != nil {
		if existing.OrganizationID == orgID {
			return nil, member.ErrEmailTaken
		}
		return nil, member.ErrCrossTenantEmail
	}

	now := time.Now()
	if _, err := s.repo.GetPendingByEmail(ctx, orgID, email, now); err == nil {
		return nil, ErrDuplicatePending
	} else if !errors.Is(err, ErrInvitationNotFound) {
		return nil, fmt.Errorf("failed to check pending invitations: %w", err)
	}

	ok, err := s.seats.CanAddSeat(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to check seat availability: %w", err)
	}
	if !ok {
		return nil, member.ErrSeatLimitExceeded
	}

	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation id: %w", err)
	}

	inv := &Invitation{
		ID:             id.String(),
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		Token:          token,
		InvitedBy:      actorID,
		ExpiresAt:      now.Add(DefaultTTL),
		CreatedAt:      now,
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeInvitationIssued,
		OrganizationID: orgID,
		ActorID:        actorID,
		Resource:       "invitation:" + inv.ID,
		Metadata: map[string]any{
			"email": email,
			"role":  role,
		},
	})

	s.sendInvitationEmail(ctx, org, inv)

	return inv, nil
}

// Validate resolves a token without consuming it. Used by the accept page
// to show the organization before the invitee commits.
func (s *Service) Validate(ctx context.Context, token string) (*Invitation, *organization.Organization, error) {
	inv, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if inv.IsAccepted() {
		return nil, nil, ErrAlreadyAccepted
	}
	if inv.IsExpired(time.Now()) {
		return nil, nil, ErrInvitationExpired
	}

	org, err := s.orgs.Get(ctx, inv.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	return inv, org, nil
}

// AcceptRequest carries the invitee's account details.
type AcceptRequest struct {
	Token     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// Accept consumes the invitation and creates the member. Token validity is
// re-checked here, but the binding checks (single use, seat ceiling, unique
// email and username) happen inside the acceptor's transaction.
func (s *Service) Accept(ctx context.Context, req AcceptRequest) (*member.Member, error) {
	inv, org, err := s.Validate(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate member id: %w", err)
	}

	invitedBy := inv.InvitedBy
	m := &member.Member{
		ID:             id.String(),
		OrganizationID: inv.OrganizationID,
		Email:          inv.Email,
		Username:       username,
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		PasswordHash:   hash,
		Role:           inv.Role,
		IsActive:       true,
		InvitedBy:      &invitedBy,
		JoinedAt:       time.Now(),
	}

	if err := s.acceptor.AcceptInvitation(ctx, inv.ID, m); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeInvitationAccepted,
		OrganizationID: inv.OrganizationID,
		ActorID:        m.ID,
		Resource:       "invitation:" + inv.ID,
		Metadata: map[string]any{
			"email": inv.Email,
			"role":  inv.Role,
		},
	})

	s.sendWelcomeEmail(ctx, org, m)

	return m, nil
}

// ListPending returns the organization's unaccepted, unexpired invitations.
func (s *Service) ListPending(ctx context.Context, orgID string) ([]*Invitation, error) {
	return s.repo.ListPending(ctx, orgID, time.Now())
}

// Revoke deletes a pending invitation, invalidating its token.
func (s *Service) Revoke(ctx context.Context, orgID, invitationID, actorID string) error {
	inv, err := s.repo.GetByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.OrganizationID != orgID {
		return ErrInvitationNotFound
	}
	if inv.IsAccepted() {
		return ErrAlreadyAccepted
	}

	if err := s.repo.Delete(ctx, invitationID); err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeInvitationRevoked,
		OrganizationID: orgID,
		ActorID:        actorID,
		Resource:       "invitation:" + invitationID,
		Metadata: map[string]any{
			"email": inv.Email,
		},
	})
	return nil
}

// CleanupExpired removes expired unaccepted invitations. Called on a timer
// from the server process.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "expired invitations removed", slog.Int64("count", n))
	}
	return n, nil
}

func (s *Service) acceptURL(token string) string {
	return s.baseURL + "/invitations/accept?token=" + url.QueryEscape(token)
}

func (s *Service) sendInvitationEmail(ctx context.Context, org *organization.Organization, inv *Invitation) {
	inviterName := "A workspace administrator"
	if inviter, err := s.members.GetByID(ctx, inv.InvitedBy); err == nil {
		if name := strings.TrimSpace(inviter.FirstName + " " + inviter.LastName); name != "" {
			inviterName = name
		} else {
			inviterName = inviter.Username
		}
	}

	body, err := notify.RenderInvitation(notify.InvitationEmail{
		OrganizationName: org.Name,
		InviterName:      inviterName,
		Role:             strings.ToLower(inv.Role),
		AcceptURL:        s.acceptURL(inv.Token),
		ExpiresAt:        inv.ExpiresAt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to render invitation email", logger.Error(err))
		return
	}

	subject := fmt.Sprintf("You're invited to join %s on CourseKit", org.Name)
	if err := s.mailer.Send(ctx, inv.Email, subject, body); err != nil {
		// Delivery failure never fails the issue: the token is valid and
		// can be re-sent.
		slog.ErrorContext(ctx, "failed to send invitation email",
			logger.Error(err),
			logger.OrgID(org.ID),
			logger.InvitationID(inv.ID),
		)
	}
}

func (s *Service) sendWelcomeEmail(ctx context.Context, org *organization.Organization, m *member.Member) {
	body, err := notify.RenderWelcome(notify.WelcomeEmail{
		OrganizationName: org.Name,
		Username:         m.Username,
		LoginURL:         s.baseURL + "/login",
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to render welcome email", logger.Error(err))
		return
	}

	subject := fmt.Sprintf("Welcome to %s", org.Name)
	if err := s.mailer.Send(ctx, m.Email, subject, body); err != nil {
		slog.ErrorContext(ctx, "failed to send welcome email",
			logger.Error(err),
			logger.OrgID(org.ID),
			logger.MemberID(m.ID),
		)
	}
}
