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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates the subscription state machine edge table.
// Scope: Unit Test
// Expected: Only documented edges are allowed; CANCELED is terminal; same-status refreshes always pass.
// Test Case ID: SUB-01
func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from, to Status
	}{
		{StatusTrial, StatusActive},
		{StatusTrial, StatusCanceled},
		{StatusActive, StatusPastDue},
		{StatusActive, StatusCanceled},
		{StatusPastDue, StatusActive},
		{StatusPastDue, StatusUnpaid},
		{StatusPastDue, StatusCanceled},
		{StatusUnpaid, StatusActive},
		{StatusUnpaid, StatusCanceled},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct {
		from, to Status
	}{
		{StatusTrial, StatusPastDue},
		{StatusTrial, StatusUnpaid},
		{StatusActive, StatusTrial},
		{StatusCanceled, StatusActive},
		{StatusCanceled, StatusTrial},
		{StatusUnpaid, StatusPastDue},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}

	// Same-status transitions refresh provider fields without moving state.
	for _, s := range []Status{StatusTrial, StatusActive, StatusPastDue, StatusUnpaid, StatusCanceled} {
		assert.True(t, CanTransition(s, s))
	}
}

// TestPurpose: Validates that remaining trial days are rounded up, never down.
// Scope: Unit Test
// Expected: A trial ending in 3 days and 2 hours has 4 days remaining; exactly 3 days has 3.
// Test Case ID: SUB-02
func TestTrialDaysRemaining(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		endIn time.Duration
		want  int
	}{
		{"exactly three days", 3 * 24 * time.Hour, 3},
		{"three days and change rounds up", 3*24*time.Hour + 2*time.Hour, 4},
		{"under a day counts as one", 5 * time.Hour, 1},
		{"expired", -time.Hour, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			end := now.Add(tc.endIn)
			org := &Organization{
				SubscriptionStatus: StatusTrial,
				TrialEndsAt:        &end,
			}
			assert.Equal(t, tc.want, org.TrialDaysRemaining(now))
		})
	}

	t.Run("non-trial status has no remaining days", func(t *testing.T) {
		end := now.Add(10 * 24 * time.Hour)
		org := &Organization{SubscriptionStatus: StatusActive, TrialEndsAt: &end}
		assert.Equal(t, 0, org.TrialDaysRemaining(now))
	})
}

func TestSeatsForTier(t *testing.T) {
	assert.Equal(t, 25, SeatsForTier(TierStarter))
	assert.Equal(t, 500, SeatsForTier(TierPro))
	assert.Equal(t, UnlimitedSeats, SeatsForTier(TierEnterprise))
	// Unknown tiers get the most conservative capacity.
	assert.Equal(t, 25, SeatsForTier(Tier("BESPOKE")))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "acme-learning", Slugify("Acme Learning"))
	assert.Equal(t, "acme-learning", Slugify("  Acme -- Learning!  "))
	assert.Equal(t, "42-degrees", Slugify("42 Degrees"))
}
