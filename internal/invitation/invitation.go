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

// Package invitation implements single-use email invitation tokens.
//
// An invitation is issued by an OWNER or ADMIN, carries an opaque random
// token, and expires seven days after issuance. Accepting an invitation
// consumes it permanently and creates the member inside the same database
// transaction that enforces the organization's seat ceiling.
package invitation

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation has expired")
	ErrAlreadyAccepted    = errors.New("invitation has already been accepted")
	ErrDuplicatePending   = errors.New("a pending invitation already exists for this email")
)

// DefaultTTL is how long an invitation token stays redeemable.
const DefaultTTL = 7 * 24 * time.Hour

// TokenBytes is the entropy of an invitation token before encoding.
const TokenBytes = 32

// Invitation represents a pending or consumed invitation to join an
// organization.
type Invitation struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	Email          string     `json:"email"`
	Role           string     `json:"role"`
	Token          string     `json:"-"`
	InvitedBy      string     `json:"invitedBy"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	AcceptedAt     *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// IsExpired reports whether the invitation's token window has closed.
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsAccepted reports whether the invitation has already been consumed.
func (i *Invitation) IsAccepted() bool {
	return i.AcceptedAt != nil
}

// NewToken generates an opaque, URL-safe invitation token.
func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
