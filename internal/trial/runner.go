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

package trial

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coursekit/coursekit/internal/audit"
	"github.com/coursekit/coursekit/internal/notify"
	"github.com/coursekit/coursekit/internal/observability/logger"
)

// SentLog records delivered warnings so an hourly scan sends each
// organization/checkpoint pair at most once. MarkSent returns false when
// the pair was already recorded.
type SentLog interface {
	MarkSent(ctx context.Context, orgID string, daysRemaining int) (bool, error)
}

// Runner delivers the warnings a Monitor finds.
type Runner struct {
	monitor     *Monitor
	sent        SentLog
	mailer      notify.Mailer
	auditLogger audit.Logger
	billingURL  string
}

// NewRunner creates a trial warning runner.
func NewRunner(monitor *Monitor, sent SentLog, mailer notify.Mailer, auditLogger audit.Logger, billingURL string) *Runner {
	return &Runner{
		monitor:     monitor,
		sent:        sent,
		mailer:      mailer,
		auditLogger: auditLogger,
		billingURL:  billingURL,
	}
}

// RunOnce performs one scan-and-deliver pass. Returns the number of
// warnings delivered.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) (int, error) {
	warnings, err := r.monitor.Scan(ctx, now)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, w := range warnings {
		fresh, err := r.sent.MarkSent(ctx, w.Organization.ID, w.DaysRemaining)
		if err != nil {
			slog.ErrorContext(ctx, "failed to record trial warning",
				logger.Error(err),
				logger.OrgID(w.Organization.ID),
			)
			continue
		}
		if !fresh {
			continue
		}

		if err := r.deliver(ctx, w); err != nil {
			slog.ErrorContext(ctx, "failed to deliver trial warning",
				logger.Error(err),
				logger.OrgID(w.Organization.ID),
			)
			continue
		}
		delivered++

		r.auditLogger.Log(ctx, audit.Event{
			Type:           audit.TypeTrialWarningSent,
			OrganizationID: w.Organization.ID,
			ActorID:        "system",
			Resource:       "organization:" + w.Organization.ID,
			Metadata: map[string]any{
				"days_remaining": w.DaysRemaining,
				"owner_count":    len(w.Owners),
			},
		})
	}
	return delivered, nil
}

// Run scans on the given interval until the context is canceled. A scan
// runs immediately on startup so a restarted server does not wait a full
// interval.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := r.RunOnce(ctx, time.Now()); err != nil {
			slog.ErrorContext(ctx, "trial warning scan failed", logger.Error(err))
		} else if n > 0 {
			slog.InfoContext(ctx, "trial warnings delivered", slog.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) deliver(ctx context.Context, w Warning) error {
	body, err := notify.RenderTrialWarning(notify.TrialWarningEmail{
		OrganizationName: w.Organization.Name,
		DaysRemaining:    w.DaysRemaining,
		TrialEndsAt:      *w.Organization.TrialEndsAt,
		BillingURL:       r.billingURL,
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Your %s trial ends in %d day(s)", w.Organization.Name, w.DaysRemaining)
	for _, owner := range w.Owners {
		if err := r.mailer.Send(ctx, owner.Email, subject, body); err != nil {
			return fmt.Errorf("failed to mail owner %s: %w", owner.ID, err)
		}
	}
	return nil
}
