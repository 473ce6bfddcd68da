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

// Package trial watches organizations approaching trial expiry and warns
// their owners at fixed checkpoints before the window closes.
package trial

import (
	"context"
	"fmt"
	"time"

	"github.com/coursekit/coursekit/internal/member"
	"github.com/coursekit/coursekit/internal/organization"
)

// WarningDays are the days-remaining checkpoints at which owners are
// warned. A scan emits a warning only when the remaining days land exactly
// on a checkpoint, so an hourly scan sends at most one warning per
// checkpoint per organization per day of drift.
var WarningDays = []int{7, 3, 1}

// scanHorizon bounds how far ahead the scan looks. Slightly past the
// largest checkpoint so day-7 trials are always in range.
const scanHorizon = 8 * 24 * time.Hour

// Warning is a pending notification for one organization's owners.
type Warning struct {
	Organization  *organization.Organization
	Owners        []*member.Member
	DaysRemaining int
}

// Monitor computes trial warnings. It only reads; delivery and state
// changes belong to the Runner.
type Monitor struct {
	orgs    organization.Repository
	members member.Repository
}

// NewMonitor creates a trial monitor.
func NewMonitor(orgs organization.Repository, members member.Repository) *Monitor {
	return &Monitor{orgs: orgs, members: members}
}

// Scan returns a warning for every trialing organization whose remaining
// days land on a checkpoint. Remaining days are rounded up: a trial ending
// in 2 days and 5 hours still has 3 days remaining.
func (m *Monitor) Scan(ctx context.Context, now time.Time) ([]Warning, error) {
	orgs, err := m.orgs.ListInTrial(ctx, now, scanHorizon)
	if err != nil {
		return nil, fmt.Errorf("failed to list trialing organizations: %w", err)
	}

	var warnings []Warning
	for _, org := range orgs {
		days := org.TrialDaysRemaining(now)
		if !isCheckpoint(days) {
			continue
		}

		owners, err := m.members.ListByRole(ctx, org.ID, member.RoleOwner)
		if err != nil {
			return nil, fmt.Errorf("failed to list owners for %s: %w", org.ID, err)
		}
		if len(owners) == 0 {
			continue
		}

		warnings = append(warnings, Warning{
			Organization:  org,
			Owners:        owners,
			DaysRemaining: days,
		})
	}
	return warnings, nil
}

func isCheckpoint(days int) bool {
	for _, d := range WarningDays {
		if days == d {
			return true
		}
	}
	return false
}
