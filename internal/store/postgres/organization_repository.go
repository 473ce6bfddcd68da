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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coursekit/coursekit/internal/organization"
)

// OrganizationRepository implements organization.Repository
type OrganizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `
	id, name, slug, subscription_status, subscription_tier, max_seats,
	trial_ends_at, subscription_started_at, subscription_ends_at,
	stripe_customer_id, stripe_subscription_id, created_at, updated_at`

// Create inserts a new organization
func (r *OrganizationRepository) Create(ctx context.Context, org *organization.Organization) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO organizations (
			id, name, slug, subscription_status, subscription_tier, max_seats,
			trial_ends_at, subscription_started_at, subscription_ends_at,
			stripe_customer_id, stripe_subscription_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		org.ID, org.Name, org.Slug, org.SubscriptionStatus, org.SubscriptionTier, org.MaxSeats,
		org.TrialEndsAt, org.SubscriptionStartedAt, org.SubscriptionEndsAt,
		org.StripeCustomerID, org.StripeSubscriptionID, now, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return organization.ErrSlugTaken
		}
		return fmt.Errorf("failed to insert organization: %w", err)
	}

	org.CreatedAt = now
	org.UpdatedAt = now

	return nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*organization.Organization, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetBySlug retrieves an organization by slug
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	return r.getOne(ctx, `WHERE slug = $1`, slug)
}

// GetByStripeSubscription retrieves the organization bound to a Stripe
// subscription ID
func (r *OrganizationRepository) GetByStripeSubscription(ctx context.Context, subscriptionID string) (*organization.Organization, error) {
	return r.getOne(ctx, `WHERE stripe_subscription_id = $1`, subscriptionID)
}

func (r *OrganizationRepository) getOne(ctx context.Context, where string, arg any) (*organization.Organization, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations `+where, arg)
	org, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, organization.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to query organization: %w", err)
	}
	return org, nil
}

// UpdateSubscription atomically updates the subscription columns, guarded
// by the expected current status. Columns with nil update fields keep
// their stored value.
func (r *OrganizationRepository) UpdateSubscription(ctx context.Context, id string, expectedStatus organization.Status, update organization.TransitionUpdate) (*organization.Organization, error) {
	row := r.db.pool.QueryRow(ctx, `
		UPDATE organizations SET
			subscription_status = $3,
			subscription_tier = COALESCE($4, subscription_tier),
			max_seats = COALESCE($5, max_seats),
			trial_ends_at = COALESCE($6, trial_ends_at),
			subscription_started_at = COALESCE($7, subscription_started_at),
			subscription_ends_at = COALESCE($8, subscription_ends_at),
			stripe_customer_id = COALESCE($9, stripe_customer_id),
			stripe_subscription_id = COALESCE($10, stripe_subscription_id),
			updated_at = now()
		WHERE id = $1 AND subscription_status = $2
		RETURNING `+organizationColumns,
		id, expectedStatus, update.Status,
		update.Tier, update.MaxSeats,
		update.TrialEndsAt, update.SubscriptionStartedAt, update.SubscriptionEndsAt,
		update.StripeCustomerID, update.StripeSubscriptionID,
	)

	org, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row missing or status changed under us. Distinguish the two.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, organization.ErrStaleUpdate
		}
		return nil, fmt.Errorf("failed to update organization subscription: %w", err)
	}
	return org, nil
}

// ListInTrial returns TRIAL organizations whose trial ends within the
// horizon
func (r *OrganizationRepository) ListInTrial(ctx context.Context, now time.Time, horizon time.Duration) ([]*organization.Organization, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE subscription_status = $1
		  AND trial_ends_at IS NOT NULL
		  AND trial_ends_at <= $2
		ORDER BY trial_ends_at
	`, organization.StatusTrial, now.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("failed to query trialing organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*organization.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func scanOrganization(row pgx.Row) (*organization.Organization, error) {
	var org organization.Organization
	err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.SubscriptionStatus, &org.SubscriptionTier, &org.MaxSeats,
		&org.TrialEndsAt, &org.SubscriptionStartedAt, &org.SubscriptionEndsAt,
		&org.StripeCustomerID, &org.StripeSubscriptionID, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &org, nil
}
