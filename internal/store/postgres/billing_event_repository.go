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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coursekit/coursekit/internal/billing"
)

// BillingEventRepository implements billing.Ledger. The table is
// append-only: this type exposes no update or delete path.
type BillingEventRepository struct {
	db *DB
}

// NewBillingEventRepository creates a new billing event repository
func NewBillingEventRepository(db *DB) *BillingEventRepository {
	return &BillingEventRepository{db: db}
}

// Append inserts one ledger row
func (r *BillingEventRepository) Append(ctx context.Context, event *billing.Event) error {
	payload, err := billing.EncodePayload(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode billing payload: %w", err)
	}
	if payload == nil {
		payload = []byte("{}")
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO billing_events (
			id, organization_id, event_type, amount, currency,
			stripe_event_id, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.ID, event.OrganizationID, event.Type, event.Amount, event.Currency,
		event.StripeEventID, payload, event.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return billing.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to insert billing event: %w", err)
	}
	return nil
}

// Latest returns the newest ledger row for an organization
func (r *BillingEventRepository) Latest(ctx context.Context, orgID string) (*billing.Event, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, organization_id, event_type, amount, currency,
			stripe_event_id, payload, created_at
		FROM billing_events
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, orgID)

	event, err := scanBillingEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrNoEvents
		}
		return nil, fmt.Errorf("failed to query latest billing event: %w", err)
	}
	return event, nil
}

// List returns ledger rows for an organization, newest first
func (r *BillingEventRepository) List(ctx context.Context, orgID string, limit, offset int) ([]*billing.Event, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, organization_id, event_type, amount, currency,
			stripe_event_id, payload, created_at
		FROM billing_events
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query billing events: %w", err)
	}
	defer rows.Close()

	var events []*billing.Event
	for rows.Next() {
		event, err := scanBillingEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan billing event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanBillingEvent(row pgx.Row) (*billing.Event, error) {
	var event billing.Event
	var payload []byte
	err := row.Scan(
		&event.ID, &event.OrganizationID, &event.Type, &event.Amount,
		&event.Currency, &event.StripeEventID, &payload, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Payload, err = billing.DecodePayload(event.Type, payload)
	if err != nil {
		return nil, err
	}
	return &event, nil
}
