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
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coursekit/coursekit/internal/invitation"
	"github.com/coursekit/coursekit/internal/member"
	"github.com/coursekit/coursekit/internal/organization"
)

// MembershipTx runs the seat-gated membership writes. Every path that adds
// an active member goes through one transaction that locks the organization
// row, recounts occupied seats, and inserts only if the batch fits under
// max_seats. This is the binding seat check; callers' pre-checks are
// advisory only.
//
// It implements member.BulkImporter, member.Creator, and
// invitation.Acceptor.
type MembershipTx struct {
	db *DB
}

// NewMembershipTx creates the transactional membership writer
func NewMembershipTx(db *DB) *MembershipTx {
	return &MembershipTx{db: db}
}

// ImportMembers inserts a batch of members, all-or-nothing. Returns
// member.ErrSeatLimitExceeded when the batch does not fit.
func (t *MembershipTx) ImportMembers(ctx context.Context, orgID string, members []*member.Member) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}

	err := t.withSeatLock(ctx, orgID, len(members), func(tx pgx.Tx) error {
		for _, m := range members {
			if err := insertMember(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// CreateMember inserts one member through the seat gate
func (t *MembershipTx) CreateMember(ctx context.Context, m *member.Member) error {
	return t.withSeatLock(ctx, m.OrganizationID, 1, func(tx pgx.Tx) error {
		return insertMember(ctx, tx, m)
	})
}

// AcceptInvitation consumes the invitation and creates the member in one
// transaction. The accepted_at update is guarded so a token can be redeemed
// exactly once even under concurrent accepts.
func (t *MembershipTx) AcceptInvitation(ctx context.Context, invitationID string, m *member.Member) error {
	return t.withSeatLock(ctx, m.OrganizationID, 1, func(tx pgx.Tx) error {
		now := time.Now()
		tag, err := tx.Exec(ctx, `
			UPDATE invitations
			SET accepted_at = $2
			WHERE id = $1 AND accepted_at IS NULL AND expires_at > $2
		`, invitationID, now)
		if err != nil {
			return fmt.Errorf("failed to consume invitation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Raced another accept, or the token expired between validation
			// and commit.
			var acceptedAt *time.Time
			err := tx.QueryRow(ctx, `
				SELECT accepted_at FROM invitations WHERE id = $1
			`, invitationID).Scan(&acceptedAt)
			if errors.Is(err, pgx.ErrNoRows) {
				return invitation.ErrInvitationNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to inspect invitation: %w", err)
			}
			if acceptedAt != nil {
				return invitation.ErrAlreadyAccepted
			}
			return invitation.ErrInvitationExpired
		}

		return insertMember(ctx, tx, m)
	})
}

// withSeatLock locks the organization row, verifies the batch fits under
// the seat ceiling, runs fn, and commits.
func (t *MembershipTx) withSeatLock(ctx context.Context, orgID string, adding int, fn func(tx pgx.Tx) error) error {
	tx, err := t.db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var maxSeats int
	err = tx.QueryRow(ctx, `
		SELECT max_seats FROM organizations WHERE id = $1 FOR UPDATE
	`, orgID).Scan(&maxSeats)
	if errors.Is(err, pgx.ErrNoRows) {
		return organization.ErrOrganizationNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock organization: %w", err)
	}

	var occupied int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM members WHERE organization_id = $1 AND is_active
	`, orgID).Scan(&occupied)
	if err != nil {
		return fmt.Errorf("failed to count active members: %w", err)
	}

	if occupied+adding > maxSeats {
		return member.ErrSeatLimitExceeded
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit membership transaction: %w", err)
	}
	return nil
}

func insertMember(ctx context.Context, tx pgx.Tx, m *member.Member) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO members (
			id, organization_id, email, username, first_name, last_name,
			password_hash, role, is_active, invited_by, joined_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		m.ID, m.OrganizationID, m.Email, m.Username, m.FirstName, m.LastName,
		m.PasswordHash, m.Role, m.IsActive, m.InvitedBy, m.JoinedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return member.ErrEmailTaken
			}
			return member.ErrUsernameTaken
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}
