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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/coursekit/internal/member"
	"github.com/coursekit/coursekit/internal/organization"
)

// TestPurpose: Validates that the seat ceiling holds under concurrent member creation.
// Scope: Database Integration Test
// Security: Resource Limit Enforcement (CWE-770)
// Expected: With one seat remaining, exactly one of N concurrent accepts succeeds; the rest fail with ErrSeatLimitExceeded.
// Test Case ID: SEAT-01
// Metadata:
//   - Category: Billing
//   - Priority: High
//   - Tags: seats, concurrency, transactions
func TestMembershipTx_ConcurrentSeatGate(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Host:         "localhost",
		Port:         "5432",
		User:         "coursekit",
		Password:     "coursekit_dev_password",
		Database:     "coursekit",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}

	db, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to database: %v", err)
	}
	defer db.Close()

	require.NoError(t, db.Migrate(ctx, InitialSchema))

	orgs := NewOrganizationRepository(db)
	tx := NewMembershipTx(db)

	orgID := uuid.NewString()
	trialEnd := time.Now().Add(30 * 24 * time.Hour)
	org := &organization.Organization{
		ID:                 orgID,
		Name:               "Seat Gate Test",
		Slug:               "seat-gate-" + orgID[:8],
		SubscriptionStatus: organization.StatusTrial,
		SubscriptionTier:   organization.TierStarter,
		MaxSeats:           1,
		TrialEndsAt:        &trialEnd,
	}
	require.NoError(t, orgs.Create(ctx, org))

	const contenders = 8
	var wg sync.WaitGroup
	errs := make([]error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = tx.CreateMember(ctx, &member.Member{
				ID:             uuid.NewString(),
				OrganizationID: orgID,
				Email:          fmt.Sprintf("contender-%d-%s@example.com", i, orgID[:8]),
				Username:       fmt.Sprintf("contender%d%s", i, orgID[:8]),
				Role:           member.RoleLearner,
				IsActive:       true,
				JoinedAt:       time.Now(),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, member.ErrSeatLimitExceeded)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one contender should win the last seat")

	members := NewMemberRepository(db)
	count, err := members.CountActive(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
