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

package invitation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/coursekit/internal/audit"
	"github.com/coursekit/coursekit/internal/member"
	"github.com/coursekit/coursekit/internal/organization"
)

// MockInvitationRepository is a simple in-memory implementation of Repository
type MockInvitationRepository struct {
	invitations map[string]*Invitation
}

func NewMockInvitationRepository() *MockInvitationRepository {
	return &MockInvitationRepository{invitations: make(map[string]*Invitation)}
}

func (m *MockInvitationRepository) Create(ctx context.Context, inv *Invitation) error {
	for _, existing := range m.invitations {
		if existing.OrganizationID == inv.OrganizationID && existing.Email == inv.Email &&
			existing.AcceptedAt == nil && existing.ExpiresAt.After(time.Now()) {
			return ErrDuplicatePending
		}
	}
	cp := *inv
	m.invitations[inv.ID] = &cp
	return nil
}

func (m *MockInvitationRepository) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	for _, inv := range m.invitations {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrInvitationNotFound
}

func (m *MockInvitationRepository) GetByID(ctx context.Context, id string) (*Invitation, error) {
	inv, ok := m.invitations[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MockInvitationRepository) GetPendingByEmail(ctx context.Context, orgID, email string, now time.Time) (*Invitation, error) {
	for _, inv := range m.invitations {
		if inv.OrganizationID == orgID && inv.Email == email && inv.AcceptedAt == nil && inv.ExpiresAt.After(now) {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrInvitationNotFound
}

func (m *MockInvitationRepository) ListPending(ctx context.Context, orgID string, now time.Time) ([]*Invitation, error) {
	var out []*Invitation
	for _, inv := range m.invitations {
		if inv.OrganizationID == orgID && inv.AcceptedAt == nil && inv.ExpiresAt.After(now) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockInvitationRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.invitations[id]; !ok {
		return ErrInvitationNotFound
	}
	delete(m.invitations, id)
	return nil
}

func (m *MockInvitationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, inv := range m.invitations {
		if inv.AcceptedAt == nil && inv.IsExpired(now) {
			delete(m.invitations, id)
			n++
		}
	}
	return n, nil
}

// MockOrgRepository backs the organization service with a single org.
type MockOrgRepository struct {
	orgs map[string]*organization.Organization
}

func (m *MockOrgRepository) Create(ctx context.Context, org *organization.Organization) error {
	m.orgs[org.ID] = org
	return nil
}

func (m *MockOrgRepository) GetByID(ctx context.Context, id string) (*organization.Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, organization.ErrOrganizationNotFound
	}
	return org, nil
}

func (m *MockOrgRepository) GetBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	return nil, organization.ErrOrganizationNotFound
}

func (m *MockOrgRepository) GetByStripeSubscription(ctx context.Context, subscriptionID string) (*organization.Organization, error) {
	return nil, organization.ErrOrganizationNotFound
}

func (m *MockOrgRepository) UpdateSubscription(ctx context.Context, id string, expectedStatus organization.Status, update organization.TransitionUpdate) (*organization.Organization, error) {
	return m.GetByID(ctx, id)
}

func (m *MockOrgRepository) ListInTrial(ctx context.Context, now time.Time, horizon time.Duration) ([]*organization.Organization, error) {
	return nil, nil
}

// MockMemberRepository is keyed by email, mirroring the global-unique
// constraint on the members table.
type MockMemberRepository struct {
	members map[string]*member.Member
}

func (m *MockMemberRepository) GetByID(ctx context.Context, id string) (*member.Member, error) {
	for _, mem := range m.members {
		if mem.ID == id {
			return mem, nil
		}
	}
	return nil, member.ErrMemberNotFound
}

func (m *MockMemberRepository) GetByEmail(ctx context.Context, email string) (*member.Member, error) {
	mem, ok := m.members[email]
	if !ok {
		return nil, member.ErrMemberNotFound
	}
	return mem, nil
}

func (m *MockMemberRepository) List(ctx context.Context, orgID string) ([]*member.Member, error) {
	var out []*member.Member
	for _, mem := range m.members {
		if mem.OrganizationID == orgID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *MockMemberRepository) ListByRole(ctx context.Context, orgID, role string) ([]*member.Member, error) {
	var out []*member.Member
	for _, mem := range m.members {
		if mem.OrganizationID == orgID && mem.Role == role {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *MockMemberRepository) CountActive(ctx context.Context, orgID string) (int, error) {
	count := 0
	for _, mem := range m.members {
		if mem.OrganizationID == orgID && mem.IsActive {
			count++
		}
	}
	return count, nil
}

func (m *MockMemberRepository) ListUsernames(ctx context.Context, orgID string) ([]string, error) {
	var out []string
	for _, mem := range m.members {
		if mem.OrganizationID == orgID {
			out = append(out, mem.Username)
		}
	}
	return out, nil
}

func (m *MockMemberRepository) Deactivate(ctx context.Context, orgID, memberID string) error {
	for _, mem := range m.members {
		if mem.ID == memberID && mem.OrganizationID == orgID {
			mem.IsActive = false
			return nil
		}
	}
	return member.ErrMemberNotFound
}

// MockAcceptor mimics the transactional accept: seat recount, member
// insert, and single-use token consumption against the backing mocks.
type MockAcceptor struct {
	invitations *MockInvitationRepository
	members     *MockMemberRepository
	orgs        *MockOrgRepository
}

func (a *MockAcceptor) AcceptInvitation(ctx context.Context, invitationID string, m *member.Member) error {
	inv, ok := a.invitations.invitations[invitationID]
	if !ok {
		return ErrInvitationNotFound
	}
	if inv.AcceptedAt != nil {
		return ErrAlreadyAccepted
	}
	if inv.IsExpired(time.Now()) {
		return ErrInvitationExpired
	}

	org := a.orgs.orgs[m.OrganizationID]
	count, _ := a.members.CountActive(ctx, m.OrganizationID)
	if count >= org.MaxSeats {
		return member.ErrSeatLimitExceeded
	}
	if _, exists := a.members.members[m.Email]; exists {
		return member.ErrEmailTaken
	}

	now := time.Now()
	inv.AcceptedAt = &now
	a.members.members[m.Email] = m
	return nil
}

// RecordingMailer captures outbound mail instead of sending it.
type RecordingMailer struct {
	sent []struct {
		To      string
		Subject string
		Body    string
	}
}

func (r *RecordingMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	r.sent = append(r.sent, struct {
		To      string
		Subject string
		Body    string
	}{to, subject, htmlBody})
	return nil
}

type testEnv struct {
	service     *Service
	invitations *MockInvitationRepository
	members     *MockMemberRepository
	orgs        *MockOrgRepository
	mailer      *RecordingMailer
}

func newTestEnv(t *testing.T, maxSeats int) *testEnv {
	t.Helper()

	orgs := &MockOrgRepository{orgs: make(map[string]*organization.Organization)}
	end := time.Now().Add(20 * 24 * time.Hour)
	orgs.orgs["org-1"] = &organization.Organization{
		ID:                 "org-1",
		Name:               "Acme Academy",
		Slug:               "acme-academy",
		SubscriptionStatus: organization.StatusTrial,
		SubscriptionTier:   organization.TierStarter,
		MaxSeats:           maxSeats,
		TrialEndsAt:        &end,
	}

	members := &MockMemberRepository{members: make(map[string]*member.Member)}
	members.members["owner@acme.test"] = &member.Member{
		ID:             "member-owner",
		OrganizationID: "org-1",
		Email:          "owner@acme.test",
		Username:       "owner",
		FirstName:      "Olive",
		LastName:       "Chen",
		Role:           member.RoleOwner,
		IsActive:       true,
	}

	invitations := NewMockInvitationRepository()
	acceptor := &MockAcceptor{invitations: invitations, members: members, orgs: orgs}
	mailer := &RecordingMailer{}
	hasher := member.NewPasswordHasher(8*1024, 1, 1, 16, 32)

	service := NewService(
		invitations,
		acceptor,
		organization.NewService(orgs, audit.NewSlogLogger()),
		members,
		member.NewSeatAccountant(orgs, members),
		hasher,
		mailer,
		audit.NewSlogLogger(),
		"https://app.coursekit.test",
	)

	return &testEnv{
		service:     service,
		invitations: invitations,
		members:     members,
		orgs:        orgs,
		mailer:      mailer,
	}
}

// TestPurpose: Validates the issue path end to end.
// Scope: Unit Test
// Expected: A pending invitation with an opaque token and a 7-day window is created and the invite email is sent.
// Test Case ID: INV-01
func TestService_Issue(t *testing.T) {
	env := newTestEnv(t, 25)

	inv, err := env.service.Issue(context.Background(), "org-1", "member-owner", "New.Learner@Example.com ", member.RoleLearner)
	require.NoError(t, err)

	assert.Equal(t, "new.learner@example.com", inv.Email, "email is normalized")
	assert.NotEmpty(t, inv.Token)
	assert.Nil(t, inv.AcceptedAt)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), inv.ExpiresAt, time.Minute)

	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, "new.learner@example.com", env.mailer.sent[0].To)
	assert.Contains(t, env.mailer.sent[0].Body, inv.Token, "accept link carries the token")
	assert.Contains(t, env.mailer.sent[0].Body, "Olive Chen", "inviter is named")
}

// TestPurpose: Validates issue-time rejections.
// Scope: Unit Test
// Expected: Existing members, cross-tenant emails, duplicate pending invitations, bad roles, and full organizations are all refused.
// Test Case ID: INV-02
func TestService_Issue_Rejections(t *testing.T) {
	env := newTestEnv(t, 25)
	ctx := context.Background()

	_, err := env.service.Issue(ctx, "org-1", "member-owner", "owner@acme.test", member.RoleLearner)
	assert.ErrorIs(t, err, member.ErrEmailTaken, "already a member of this org")

	env.members.members["other@tenant.test"] = &member.Member{
		ID: "member-x", OrganizationID: "org-2", Email: "other@tenant.test", IsActive: true,
	}
	_, err = env.service.Issue(ctx, "org-1", "member-owner", "other@tenant.test", member.RoleLearner)
	assert.ErrorIs(t, err, member.ErrCrossTenantEmail, "member of another org")

	_, err = env.service.Issue(ctx, "org-1", "member-owner", "fresh@example.com", member.RoleLearner)
	require.NoError(t, err)
	_, err = env.service.Issue(ctx, "org-1", "member-owner", "fresh@example.com", member.RoleAdmin)
	assert.ErrorIs(t, err, ErrDuplicatePending, "second pending invitation for the same email")

	_, err = env.service.Issue(ctx, "org-1", "member-owner", "another@example.com", "SUPERUSER")
	assert.Error(t, err, "unknown role")

	_, err = env.service.Issue(ctx, "org-1", "member-owner", "not-an-email", member.RoleLearner)
	assert.Error(t, err, "malformed email")
}

// TestPurpose: Validates the advisory seat check at issue time.
// Scope: Unit Test
// Expected: A full organization cannot issue invitations.
// Test Case ID: INV-03
func TestService_Issue_SeatFull(t *testing.T) {
	env := newTestEnv(t, 1) // owner occupies the only seat

	_, err := env.service.Issue(context.Background(), "org-1", "member-owner", "late@example.com", member.RoleLearner)
	assert.ErrorIs(t, err, member.ErrSeatLimitExceeded)
}

// TestPurpose: Validates non-consuming token validation.
// Scope: Unit Test
// Expected: Validate resolves a live token with its organization, and rejects expired and consumed tokens without side effects.
// Test Case ID: INV-04
func TestService_Validate(t *testing.T) {
	env := newTestEnv(t, 25)
	ctx := context.Background()

	inv, err := env.service.Issue(ctx, "org-1", "member-owner", "learner@example.com", member.RoleLearner)
	require.NoError(t, err)

	got, org, err := env.service.Validate(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, "Acme Academy", org.Name)

	// Still pending after validation.
	stored, _ := env.invitations.GetByID(ctx, inv.ID)
	assert.Nil(t, stored.AcceptedAt)

	_, _, err = env.service.Validate(ctx, "no-such-token")
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	env.invitations.invitations[inv.ID].ExpiresAt = time.Now().Add(-time.Hour)
	_, _, err = env.service.Validate(ctx, inv.Token)
	assert.ErrorIs(t, err, ErrInvitationExpired)
}

// TestPurpose: Validates single-use acceptance.
// Scope: Unit Test
// Expected: Accept creates the member with the invited role, consumes the token, and a second accept fails.
// Test Case ID: INV-05
func TestService_Accept(t *testing.T) {
	env := newTestEnv(t, 25)
	ctx := context.Background()

	inv, err := env.service.Issue(ctx, "org-1", "member-owner", "learner@example.com", member.RoleInstructor)
	require.NoError(t, err)

	m, err := env.service.Accept(ctx, AcceptRequest{
		Token:     inv.Token,
		Username:  "  Learner1 ",
		Password:  "correct-horse",
		FirstName: "Lee",
		LastName:  "Nguyen",
	})
	require.NoError(t, err)

	assert.Equal(t, "org-1", m.OrganizationID)
	assert.Equal(t, "learner@example.com", m.Email)
	assert.Equal(t, "learner1", m.Username, "username is normalized")
	assert.Equal(t, member.RoleInstructor, m.Role, "role comes from the invitation, not the request")
	assert.True(t, m.IsActive)
	require.NotNil(t, m.InvitedBy)
	assert.Equal(t, "member-owner", *m.InvitedBy)
	assert.True(t, strings.HasPrefix(m.PasswordHash, "$argon2id$"))

	stored, _ := env.invitations.GetByID(ctx, inv.ID)
	assert.NotNil(t, stored.AcceptedAt, "token is consumed")

	_, err = env.service.Accept(ctx, AcceptRequest{Token: inv.Token, Username: "again", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrAlreadyAccepted)

	// Welcome mail follows the invite mail.
	require.Len(t, env.mailer.sent, 2)
	assert.Equal(t, "learner@example.com", env.mailer.sent[1].To)
}

// TestPurpose: Validates accept-time input checks.
// Scope: Unit Test
// Expected: Missing username and short passwords are refused before any state changes.
// Test Case ID: INV-06
func TestService_Accept_BadInput(t *testing.T) {
	env := newTestEnv(t, 25)
	ctx := context.Background()

	inv, err := env.service.Issue(ctx, "org-1", "member-owner", "learner@example.com", member.RoleLearner)
	require.NoError(t, err)

	_, err = env.service.Accept(ctx, AcceptRequest{Token: inv.Token, Username: "", Password: "correct-horse"})
	assert.Error(t, err)

	_, err = env.service.Accept(ctx, AcceptRequest{Token: inv.Token, Username: "learner1", Password: "short"})
	assert.Error(t, err)

	stored, _ := env.invitations.GetByID(ctx, inv.ID)
	assert.Nil(t, stored.AcceptedAt, "failed accepts leave the token live")
}

// TestPurpose: Validates that the seat ceiling binds at accept time even when the invitation was issued with a free seat.
// Scope: Unit Test
// Expected: The accept fails with ErrSeatLimitExceeded and the token is not consumed.
// Test Case ID: INV-07
func TestService_Accept_SeatFilledAfterIssue(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	inv, err := env.service.Issue(ctx, "org-1", "member-owner", "learner@example.com", member.RoleLearner)
	require.NoError(t, err)

	// The last free seat is taken between issue and accept.
	env.members.members["walkin@acme.test"] = &member.Member{
		ID: "member-2", OrganizationID: "org-1", Email: "walkin@acme.test", IsActive: true,
	}

	_, err = env.service.Accept(ctx, AcceptRequest{Token: inv.Token, Username: "learner1", Password: "correct-horse"})
	assert.ErrorIs(t, err, member.ErrSeatLimitExceeded)

	stored, _ := env.invitations.GetByID(ctx, inv.ID)
	assert.Nil(t, stored.AcceptedAt)
}

// TestPurpose: Validates revocation scoping.
// Scope: Unit Test
// Expected: Revoke deletes pending invitations from the caller's org only; consumed invitations cannot be revoked.
// Test Case ID: INV-08
func TestService_Revoke(t *testing.T) {
	env := newTestEnv(t, 25)
	ctx := context.Background()

	inv, err := env.service.Issue(ctx, "org-1", "member-owner", "learner@example.com", member.RoleLearner)
	require.NoError(t, err)

	err = env.service.Revoke(ctx, "org-2", inv.ID, "member-x")
	assert.ErrorIs(t, err, ErrInvitationNotFound, "another org cannot see the invitation")

	require.NoError(t, env.service.Revoke(ctx, "org-1", inv.ID, "member-owner"))
	_, err = env.invitations.GetByID(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	_, _, err = env.service.Validate(ctx, inv.Token)
	assert.ErrorIs(t, err, ErrInvitationNotFound, "revoked token is dead")
}

// TestPurpose: Validates timer-driven expiry cleanup.
// Scope: Unit Test
// Expected: Only expired unaccepted invitations are deleted.
// Test Case ID: INV-09
func TestService_CleanupExpired(t *testing.T) {
	env := newTestEnv(t, 25)
	ctx := context.Background()

	live, err := env.service.Issue(ctx, "org-1", "member-owner", "live@example.com", member.RoleLearner)
	require.NoError(t, err)
	stale, err := env.service.Issue(ctx, "org-1", "member-owner", "stale@example.com", member.RoleLearner)
	require.NoError(t, err)
	env.invitations.invitations[stale.ID].ExpiresAt = time.Now().Add(-time.Hour)

	n, err := env.service.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = env.invitations.GetByID(ctx, live.ID)
	assert.NoError(t, err)
	_, err = env.invitations.GetByID(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}
