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

	"github.com/coursekit/coursekit/internal/member"
)

// MemberRepository implements member.Repository
type MemberRepository struct {
	db *DB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *DB) *MemberRepository {
	return &MemberRepository{db: db}
}

const memberColumns = `
	id, organization_id, email, username, first_name, last_name,
	password_hash, role, is_active, invited_by, joined_at, deactivated_at`

// GetByID retrieves a member by ID
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*member.Member, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	return scanMemberOrNotFound(row)
}

// GetByEmail retrieves a member by email across all organizations. Emails
// are globally unique, so at most one row matches.
func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (*member.Member, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE email = $1`, email)
	return scanMemberOrNotFound(row)
}

// List retrieves all members of an organization
func (r *MemberRepository) List(ctx context.Context, orgID string) ([]*member.Member, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE organization_id = $1
		ORDER BY joined_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()
	return collectMembers(rows)
}

// ListByRole retrieves active members with the given role
func (r *MemberRepository) ListByRole(ctx context.Context, orgID, role string) ([]*member.Member, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE organization_id = $1 AND role = $2 AND is_active
		ORDER BY joined_at
	`, orgID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query members by role: %w", err)
	}
	defer rows.Close()
	return collectMembers(rows)
}

// CountActive returns the number of occupied seats
func (r *MemberRepository) CountActive(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM members WHERE organization_id = $1 AND is_active
	`, orgID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active members: %w", err)
	}
	return count, nil
}

// ListUsernames returns all usernames in an organization
func (r *MemberRepository) ListUsernames(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT username FROM members WHERE organization_id = $1
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usernames: %w", err)
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		usernames = append(usernames, u)
	}
	return usernames, rows.Err()
}

// Deactivate marks a member inactive, freeing its seat
func (r *MemberRepository) Deactivate(ctx context.Context, orgID, memberID string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE members
		SET is_active = FALSE, deactivated_at = now()
		WHERE id = $1 AND organization_id = $2 AND is_active
	`, memberID, orgID)
	if err != nil {
		return fmt.Errorf("failed to deactivate member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return member.ErrMemberNotFound
	}
	return nil
}

func scanMemberOrNotFound(row pgx.Row) (*member.Member, error) {
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, member.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to query member: %w", err)
	}
	return m, nil
}

func scanMember(row pgx.Row) (*member.Member, error) {
	var m member.Member
	err := row.Scan(
		&m.ID, &m.OrganizationID, &m.Email, &m.Username, &m.FirstName, &m.LastName,
		&m.PasswordHash, &m.Role, &m.IsActive, &m.InvitedBy, &m.JoinedAt, &m.DeactivatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMembers(rows pgx.Rows) ([]*member.Member, error) {
	var members []*member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
