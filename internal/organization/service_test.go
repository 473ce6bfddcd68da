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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/coursekit/internal/audit"
)

// MockOrganizationRepository is a simple in-memory implementation of
// Repository
type MockOrganizationRepository struct {
	orgs map[string]*Organization
}

func NewMockOrganizationRepository() *MockOrganizationRepository {
	return &MockOrganizationRepository{orgs: make(map[string]*Organization)}
}

func (m *MockOrganizationRepository) Create(ctx context.Context, org *Organization) error {
	for _, o := range m.orgs {
		if o.Slug == org.Slug {
			return ErrSlugTaken
		}
	}
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *MockOrganizationRepository) GetByID(ctx context.Context, id string) (*Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	cp := *org
	return &cp, nil
}

func (m *MockOrganizationRepository) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	for _, o := range m.orgs {
		if o.Slug == slug {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrganizationNotFound
}

func (m *MockOrganizationRepository) GetByStripeSubscription(ctx context.Context, subscriptionID string) (*Organization, error) {
	for _, o := range m.orgs {
		if o.StripeSubscriptionID != nil && *o.StripeSubscriptionID == subscriptionID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrganizationNotFound
}

func (m *MockOrganizationRepository) UpdateSubscription(ctx context.Context, id string, expectedStatus Status, update TransitionUpdate) (*Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	if org.SubscriptionStatus != expectedStatus {
		return nil, ErrStaleUpdate
	}

	org.SubscriptionStatus = update.Status
	if update.Tier != nil {
		org.SubscriptionTier = *update.Tier
	}
	if update.MaxSeats != nil {
		org.MaxSeats = *update.MaxSeats
	}
	if update.TrialEndsAt != nil {
		org.TrialEndsAt = update.TrialEndsAt
	}
	if update.SubscriptionStartedAt != nil {
		org.SubscriptionStartedAt = update.SubscriptionStartedAt
	}
	if update.SubscriptionEndsAt != nil {
		org.SubscriptionEndsAt = update.SubscriptionEndsAt
	}
	if update.StripeCustomerID != nil {
		org.StripeCustomerID = update.StripeCustomerID
	}
	if update.StripeSubscriptionID != nil {
		org.StripeSubscriptionID = update.StripeSubscriptionID
	}
	org.UpdatedAt = time.Now()

	cp := *org
	return &cp, nil
}

func (m *MockOrganizationRepository) ListInTrial(ctx context.Context, now time.Time, horizon time.Duration) ([]*Organization, error) {
	var out []*Organization
	cutoff := now.Add(horizon)
	for _, o := range m.orgs {
		if o.SubscriptionStatus == StatusTrial && o.TrialEndsAt != nil && !o.TrialEndsAt.After(cutoff) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// TestPurpose: Validates that registration creates a TRIAL organization with STARTER capacity and a 30-day window.
// Scope: Unit Test
// Expected: New organizations start in TRIAL, tier STARTER, 25 seats, trial_ends_at ~30 days out.
// Test Case ID: ORG-01
func TestService_Register(t *testing.T) {
	repo := NewMockOrganizationRepository()
	svc := NewService(repo, audit.NewSlogLogger())

	org, err := svc.Register(context.Background(), "Acme Learning", "")
	require.NoError(t, err)

	assert.Equal(t, StatusTrial, org.SubscriptionStatus)
	assert.Equal(t, TierStarter, org.SubscriptionTier)
	assert.Equal(t, 25, org.MaxSeats)
	assert.Equal(t, "acme-learning", org.Slug)
	require.NotNil(t, org.TrialEndsAt)
	assert.InDelta(t, 30*24*time.Hour, time.Until(*org.TrialEndsAt), float64(time.Minute))

	// Duplicate slug is rejected.
	_, err = svc.Register(context.Background(), "Acme Learning", "")
	assert.ErrorIs(t, err, ErrSlugTaken)
}

// TestPurpose: Validates that illegal subscription edges are rejected and leave state untouched.
// Scope: Unit Test
// Expected: CANCELED -> ACTIVE fails with InvalidTransitionError; stored status remains CANCELED.
// Test Case ID: ORG-02
func TestService_ApplyTransition_Rejected(t *testing.T) {
	repo := NewMockOrganizationRepository()
	svc := NewService(repo, audit.NewSlogLogger())

	org, err := svc.Register(context.Background(), "Terminal Co", "")
	require.NoError(t, err)

	_, err = svc.ApplyTransition(context.Background(), org.ID, StatusCanceled, TransitionUpdate{})
	require.NoError(t, err)

	_, err = svc.ApplyTransition(context.Background(), org.ID, StatusActive, TransitionUpdate{})
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusCanceled, invalid.From)
	assert.Equal(t, StatusActive, invalid.To)

	stored, err := svc.Get(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, stored.SubscriptionStatus)
}

// TestPurpose: Validates that a tier change recomputes the seat ceiling.
// Scope: Unit Test
// Expected: Activating with tier PRO sets max_seats to 500 without an explicit capacity in the update.
// Test Case ID: ORG-03
func TestService_ApplyTransition_TierRecomputesSeats(t *testing.T) {
	repo := NewMockOrganizationRepository()
	svc := NewService(repo, audit.NewSlogLogger())

	org, err := svc.Register(context.Background(), "Upgraders", "")
	require.NoError(t, err)

	tier := TierPro
	updated, err := svc.ApplyTransition(context.Background(), org.ID, StatusActive, TransitionUpdate{Tier: &tier})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, updated.SubscriptionStatus)
	assert.Equal(t, TierPro, updated.SubscriptionTier)
	assert.Equal(t, 500, updated.MaxSeats)
}

// TestPurpose: Validates that a same-status transition refreshes provider fields.
// Scope: Unit Test
// Expected: ACTIVE -> ACTIVE succeeds and updates the stored subscription reference.
// Test Case ID: ORG-04
func TestService_ApplyTransition_SameStatusRefresh(t *testing.T) {
	repo := NewMockOrganizationRepository()
	svc := NewService(repo, audit.NewSlogLogger())

	org, err := svc.Register(context.Background(), "Refreshers", "")
	require.NoError(t, err)
	_, err = svc.ApplyTransition(context.Background(), org.ID, StatusActive, TransitionUpdate{})
	require.NoError(t, err)

	subID := "sub_123"
	updated, err := svc.ApplyTransition(context.Background(), org.ID, StatusActive, TransitionUpdate{StripeSubscriptionID: &subID})
	require.NoError(t, err)
	require.NotNil(t, updated.StripeSubscriptionID)
	assert.Equal(t, "sub_123", *updated.StripeSubscriptionID)
}
