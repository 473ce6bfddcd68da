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

// Package notify delivers transactional email: invitation links, welcome
// messages, and trial expiry warnings. Delivery failures are logged by
// callers and never fail the triggering operation.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"
)

// Mailer sends a single HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NoopMailer discards all mail. Used in tests and when SMTP is not
// configured.
type NoopMailer struct{}

func (NoopMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	slog.DebugContext(ctx, "mail delivery skipped (no mailer configured)",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}

// InvitationEmail holds the fields rendered into the invitation template.
type InvitationEmail struct {
	OrganizationName string
	InviterName      string
	Role             string
	AcceptURL        string
	ExpiresAt        time.Time
}

// WelcomeEmail holds the fields rendered into the welcome template.
type WelcomeEmail struct {
	OrganizationName string
	Username         string
	LoginURL         string
}

// TrialWarningEmail holds the fields rendered into the trial warning
// template.
type TrialWarningEmail struct {
	OrganizationName string
	DaysRemaining    int
	TrialEndsAt      time.Time
	BillingURL       string
}

var invitationTmpl = template.Must(template.New("invitation").Parse(`<html>
<body>
<p>{{.InviterName}} has invited you to join <strong>{{.OrganizationName}}</strong> on CourseKit as a {{.Role}}.</p>
<p><a href="{{.AcceptURL}}">Accept your invitation</a></p>
<p>This invitation expires on {{.ExpiresAt.Format "January 2, 2006"}}.</p>
</body>
</html>`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<html>
<body>
<p>Welcome to <strong>{{.OrganizationName}}</strong>!</p>
<p>Your username is <code>{{.Username}}</code>. You can sign in at <a href="{{.LoginURL}}">{{.LoginURL}}</a>.</p>
</body>
</html>`))

var trialWarningTmpl = template.Must(template.New("trial_warning").Parse(`<html>
<body>
<p>The free trial for <strong>{{.OrganizationName}}</strong> ends in {{.DaysRemaining}} day{{if ne .DaysRemaining 1}}s{{end}}, on {{.TrialEndsAt.Format "January 2, 2006"}}.</p>
<p><a href="{{.BillingURL}}">Choose a plan</a> to keep your workspace active.</p>
</body>
</html>`))

// RenderInvitation renders the invitation email body.
func RenderInvitation(data InvitationEmail) (string, error) {
	return render(invitationTmpl, data)
}

// RenderWelcome renders the welcome email body.
func RenderWelcome(data WelcomeEmail) (string, error) {
	return render(welcomeTmpl, data)
}

// RenderTrialWarning renders the trial warning email body.
func RenderTrialWarning(data TrialWarningEmail) (string, error) {
	return render(trialWarningTmpl, data)
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
