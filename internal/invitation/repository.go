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
	"time"

	"github.com/coursekit/coursekit/internal/member"
)

// Repository defines invitation storage operations
type Repository interface {
	Create(ctx context.Context, inv *Invitation) error
	GetByToken(ctx context.Context, token string) (*Invitation, error)
	GetByID(ctx context.Context, id string) (*Invitation, error)
	// GetPendingByEmail returns the unaccepted, unexpired invitation for an
	// email within an organization, or ErrInvitationNotFound.
	GetPendingByEmail(ctx context.Context, orgID, email string, now time.Time) (*Invitation, error)
	ListPending(ctx context.Context, orgID string, now time.Time) ([]*Invitation, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes invitations whose token window closed before now
	// and that were never accepted. Returns the number deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Acceptor consumes an invitation and creates the member atomically.
// Implementations must run the org's seat-ceiling check, the member insert,
// and the invitation's accepted_at update in one transaction so that
// concurrent accepts cannot oversubscribe seats or redeem a token twice.
type Acceptor interface {
	AcceptInvitation(ctx context.Context, invitationID string, m *member.Member) error
}
