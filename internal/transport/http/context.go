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

import "context"

type contextKey string

const (
	orgIDKey    contextKey = "organization_id"
	memberIDKey contextKey = "member_id"
	roleKey     contextKey = "role"
)

// GetOrganizationID retrieves the authenticated organization ID from context.
func GetOrganizationID(ctx context.Context) string {
	if val, ok := ctx.Value(orgIDKey).(string); ok {
		return val
	}
	return ""
}

// GetMemberID retrieves the authenticated member ID from context.
func GetMemberID(ctx context.Context) string {
	if val, ok := ctx.Value(memberIDKey).(string); ok {
		return val
	}
	return ""
}

// GetRole retrieves the authenticated member's role from context.
func GetRole(ctx context.Context) string {
	if val, ok := ctx.Value(roleKey).(string); ok {
		return val
	}
	return ""
}
