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

	"github.com/coursekit/coursekit/internal/invitation"
)

// InvitationRepository implements invitation.Repository
type InvitationRepository struct {
	db *DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

const invitationColumns = `
	id, organization_id, email, role, token, invited_by,
	expires_at, accepted_at, created_at`

// Create inserts a new invitation
func (r *InvitationRepository) Create(ctx context.Context, inv *invitation.Invitation) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO invitations (
			id, organization_id, email, role, token, invited_by,
			expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		inv.ID, inv.OrganizationID, inv.Email, inv.Role, inv.Token,
		inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Token collision is astronomically unlikely; treat any unique
			// violation as a duplicate pending invitation.
			return invitation.ErrDuplicatePending
		}
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	return nil
}

// GetByToken retrieves an invitation by its opaque token
func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+invitationColumns+` FROM invitations WHERE token = $1
	`, token)
	return scanInvitationOrNotFound(row)
}

// GetByID retrieves an invitation by ID
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*invitation.Invitation, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+invitationColumns+` FROM invitations WHERE id = $1
	`, id)
	return scanInvitationOrNotFound(row)
}

// GetPendingByEmail retrieves the live invitation for an email within an
// organization
func (r *InvitationRepository) GetPendingByEmail(ctx context.Context, orgID, email string, now time.Time) (*invitation.Invitation, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE organization_id = $1 AND email = $2
		  AND accepted_at IS NULL AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`, orgID, email, now)
	return scanInvitationOrNotFound(row)
}

// ListPending retrieves all live invitations for an organization
func (r *InvitationRepository) ListPending(ctx context.Context, orgID string, now time.Time) ([]*invitation.Invitation, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE organization_id = $1 AND accepted_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`, orgID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	defer rows.Close()

	var invs []*invitation.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// Delete removes an invitation
func (r *InvitationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM invitations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return invitation.ErrInvitationNotFound
	}
	return nil
}

// DeleteExpired removes expired unaccepted invitations
func (r *InvitationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM invitations WHERE accepted_at IS NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanInvitationOrNotFound(row pgx.Row) (*invitation.Invitation, error) {
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invitation.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to query invitation: %w", err)
	}
	return inv, nil
}

func scanInvitation(row pgx.Row) (*invitation.Invitation, error) {
	var inv invitation.Invitation
	err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.Token,
		&inv.InvitedBy, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
