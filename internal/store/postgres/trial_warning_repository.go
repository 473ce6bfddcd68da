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

package postgres

import (
	"context"
	"fmt"
)

// TrialWarningRepository implements trial.SentLog
type TrialWarningRepository struct {
	db *DB
}

// NewTrialWarningRepository creates a new trial warning repository
func NewTrialWarningRepository(db *DB) *TrialWarningRepository {
	return &TrialWarningRepository{db: db}
}

// MarkSent records an organization/checkpoint pair. Returns false when the
// pair was already recorded, so restarts and hourly rescans stay
// idempotent.
func (r *TrialWarningRepository) MarkSent(ctx context.Context, orgID string, daysRemaining int) (bool, error) {
	tag, err := r.db.pool.Exec(ctx, `
		INSERT INTO trial_warnings (organization_id, days_remaining)
		VALUES ($1, $2)
		ON CONFLICT (organization_id, days_remaining) DO NOTHING
	`, orgID, daysRemaining)
	if err != nil {
		return false, fmt.Errorf("failed to record trial warning: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
