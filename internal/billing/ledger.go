package billing

import "context"

// Ledger is the append-only store of billing events. Rows are immutable once
// written; Append never mutates prior rows.
type Ledger interface {
	Append(ctx context.Context, event *Event) error
	Latest(ctx context.Context, orgID string) (*Event, error)

	// List returns events for an organization, newest first.
	List(ctx context.Context, orgID string, limit, offset int) ([]*Event, error)
}
