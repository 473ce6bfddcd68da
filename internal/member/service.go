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

package member

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit/internal/audit"
)

// ImportResult summarizes a bulk import run.
type ImportResult struct {
	Total   int `json:"total"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Service provides member management business logic.
type Service struct {
	repo        Repository
	importer    BulkImporter
	auditLogger audit.Logger
}

// NewService creates a new member service.
func NewService(repo Repository, importer BulkImporter, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		importer:    importer,
		auditLogger: auditLogger,
	}
}

// Get retrieves a member by ID.
func (s *Service) Get(ctx context.Context, id string) (*Member, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByEmail retrieves a member by email. Emails are globally unique across
// organizations.
func (s *Service) GetByEmail(ctx context.Context, email string) (*Member, error) {
	return s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// List returns all members of an organization.
func (s *Service) List(ctx context.Context, orgID string) ([]*Member, error) {
	return s.repo.List(ctx, orgID)
}

// Owners returns the OWNER members of an organization.
func (s *Service) Owners(ctx context.Context, orgID string) ([]*Member, error) {
	return s.repo.ListByRole(ctx, orgID, RoleOwner)
}

// Deactivate soft-deactivates a member, freeing its seat. Members are never
// hard-deleted.
func (s *Service) Deactivate(ctx context.Context, orgID, memberID, actorID string) error {
	if err := s.repo.Deactivate(ctx, orgID, memberID); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeMemberDeactivated,
		OrganizationID: orgID,
		ActorID:        actorID,
		Resource:       memberID,
	})
	return nil
}

// BulkImport creates LEARNER members for the given emails. Duplicates within
// the batch and emails already present in the organization are skipped. The
// insert of the remaining batch happens in one seat-gated transaction; a
// batch that would overshoot the ceiling fails whole with
// ErrSeatLimitExceeded.
func (s *Service) BulkImport(ctx context.Context, orgID, actorID string, emails []string) (*ImportResult, error) {
	seen := make(map[string]bool, len(emails))
	unique := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		unique = append(unique, e)
	}
	if len(unique) == 0 {
		return nil, fmt.Errorf("at least one email is required")
	}

	fresh := make([]string, 0, len(unique))
	for _, e := range unique {
		existing, err := s.repo.GetByEmail(ctx, e)
		if errors.Is(err, ErrMemberNotFound) {
			fresh = append(fresh, e)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check existing member: %w", err)
		}
		if existing.OrganizationID != orgID {
			return nil, ErrCrossTenantEmail
		}
		// Already a member here: skip silently.
	}

	result := &ImportResult{Total: len(unique), Skipped: len(unique) - len(fresh)}
	if len(fresh) == 0 {
		return result, nil
	}

	taken, err := s.repo.ListUsernames(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usernames: %w", err)
	}
	usernames := make(map[string]bool, len(taken))
	for _, u := range taken {
		usernames[u] = true
	}

	now := time.Now()
	batch := make([]*Member, 0, len(fresh))
	for _, e := range fresh {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate member id: %w", err)
		}
		batch = append(batch, &Member{
			ID:             id.String(),
			OrganizationID: orgID,
			Email:          e,
			Username:       uniqueUsername(e, usernames),
			Role:           RoleLearner,
			IsActive:       true,
			InvitedBy:      &actorID,
			JoinedAt:       now,
		})
	}

	added, err := s.importer.ImportMembers(ctx, orgID, batch)
	if err != nil {
		return nil, err
	}
	result.Added = added

	s.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeMembersImported,
		OrganizationID: orgID,
		ActorID:        actorID,
		Metadata:       map[string]any{"added": added, "skipped": result.Skipped},
	})

	return result, nil
}

// uniqueUsername derives a username from the email local part, suffixing a
// counter until it is free within the organization. The chosen name is added
// to taken so the batch stays collision-free.
func uniqueUsername(email string, taken map[string]bool) string {
	base := emailLocalPart(email)
	name := base
	for i := 1; taken[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	taken[name] = true
	return name
}

func emailLocalPart(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
