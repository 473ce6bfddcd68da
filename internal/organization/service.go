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

package organization

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit/internal/audit"
)

// DefaultTrialDays is the trial window granted to newly registered
// organizations.
const DefaultTrialDays = 30

// Service provides organization subscription state management. All mutations
// of subscription fields flow through ApplyTransition, which enforces the
// state machine.
type Service struct {
	repo        Repository
	auditLogger audit.Logger
}

// NewService creates a new organization service.
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
	}
}

// Register creates a new organization in TRIAL with a fresh trial window.
func (s *Service) Register(ctx context.Context, name, slug string) (*Organization, error) {
	if name == "" {
		return nil, fmt.Errorf("organization name is required")
	}
	if slug == "" {
		slug = Slugify(name)
	}

	if _, err := s.repo.GetBySlug(ctx, slug); err == nil {
		return nil, ErrSlugTaken
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate organization id: %w", err)
	}

	now := time.Now()
	trialEnd := now.Add(DefaultTrialDays * 24 * time.Hour)
	org := &Organization{
		ID:                 id.String(),
		Name:               name,
		Slug:               slug,
		SubscriptionStatus: StatusTrial,
		SubscriptionTier:   TierStarter,
		MaxSeats:           SeatsForTier(TierStarter),
		TrialEndsAt:        &trialEnd,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeOrganizationCreated,
		OrganizationID: org.ID,
		Resource:       org.Slug,
		Metadata:       map[string]any{"trial_ends_at": trialEnd},
	})

	return org, nil
}

// Get retrieves an organization by ID.
func (s *Service) Get(ctx context.Context, id string) (*Organization, error) {
	return s.repo.GetByID(ctx, id)
}

// GetBySlug retrieves an organization by slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// GetByStripeSubscription resolves the organization owning a provider
// subscription reference.
func (s *Service) GetByStripeSubscription(ctx context.Context, subscriptionID string) (*Organization, error) {
	return s.repo.GetByStripeSubscription(ctx, subscriptionID)
}

// ApplyTransition moves an organization to targetStatus, checking the edge
// against the transition table first. A tier change always recomputes the
// seat ceiling unless the update carries an explicit capacity. The write is a
// single guarded row update; when the stored status moved underneath us the
// repository reports ErrStaleUpdate and nothing is written.
func (s *Service) ApplyTransition(ctx context.Context, orgID string, targetStatus Status, update TransitionUpdate) (*Organization, error) {
	org, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(org.SubscriptionStatus, targetStatus) {
		return nil, &InvalidTransitionError{From: org.SubscriptionStatus, To: targetStatus}
	}

	update.Status = targetStatus
	if update.Tier != nil && update.MaxSeats == nil {
		seats := SeatsForTier(*update.Tier)
		update.MaxSeats = &seats
	}

	updated, err := s.repo.UpdateSubscription(ctx, orgID, org.SubscriptionStatus, update)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeSubscriptionTransition,
		OrganizationID: orgID,
		Resource:       string(targetStatus),
		Metadata: map[string]any{
			"from": string(org.SubscriptionStatus),
			"tier": string(updated.SubscriptionTier),
		},
	})

	return updated, nil
}

// Slugify derives a URL-safe slug from an organization name.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
