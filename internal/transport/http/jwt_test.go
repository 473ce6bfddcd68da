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

package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/coursekit/internal/member"
)

// TestPurpose: Validates token issue/verify roundtrip.
// Scope: Unit Test
// Expected: Claims survive the roundtrip intact.
// Test Case ID: JWT-01
func TestTokenIssuer_Roundtrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret-at-least-32-bytes-long", "coursekit", time.Hour)

	token, err := issuer.Issue("member-1", "org-1", member.RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "member-1", claims.Subject)
	assert.Equal(t, "org-1", claims.OrganizationID)
	assert.Equal(t, member.RoleAdmin, claims.Role)
}

// TestPurpose: Validates token rejection paths.
// Scope: Security Test
// Expected: Expired tokens, wrong secrets, wrong issuers, and garbage all fail verification.
// Test Case ID: JWT-02
func TestTokenIssuer_Verify_Rejections(t *testing.T) {
	secret := "test-secret-at-least-32-bytes-long"
	issuer := NewTokenIssuer(secret, "coursekit", time.Hour)

	expired := NewTokenIssuer(secret, "coursekit", -time.Minute)
	token, err := expired.Issue("member-1", "org-1", member.RoleLearner)
	require.NoError(t, err)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, errInvalidToken, "expired token")

	other := NewTokenIssuer("a-completely-different-signing-key!", "coursekit", time.Hour)
	token, err = other.Issue("member-1", "org-1", member.RoleLearner)
	require.NoError(t, err)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, errInvalidToken, "wrong secret")

	foreign := NewTokenIssuer(secret, "someone-else", time.Hour)
	token, err = foreign.Issue("member-1", "org-1", member.RoleLearner)
	require.NoError(t, err)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, errInvalidToken, "wrong issuer")

	_, err = issuer.Verify("not.a.token")
	assert.ErrorIs(t, err, errInvalidToken)
}

// TestPurpose: Validates Authorization header parsing.
// Scope: Unit Test
// Expected: Only well-formed bearer headers yield a token; the scheme check is case-insensitive.
// Test Case ID: JWT-03
func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		assert.Equal(t, tc.want, bearerToken(r), "header %q", tc.header)
	}
}

// TestPurpose: Validates role gating on protected routes.
// Scope: Security Test
// Expected: Members outside the allowed role set receive 403; allowed roles pass through.
// Test Case ID: JWT-04
func TestRequireRole(t *testing.T) {
	handler := RequireRole(member.RoleOwner, member.RoleAdmin)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	for role, wantStatus := range map[string]int{
		member.RoleOwner:      http.StatusNoContent,
		member.RoleAdmin:      http.StatusNoContent,
		member.RoleInstructor: http.StatusForbidden,
		member.RoleLearner:    http.StatusForbidden,
		"":                    http.StatusForbidden,
	} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := r.Context()
		if role != "" {
			ctx = context.WithValue(ctx, roleKey, role)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r.WithContext(ctx))
		assert.Equal(t, wantStatus, w.Code, "role %q", role)
	}
}
