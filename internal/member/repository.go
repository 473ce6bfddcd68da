package member

import "context"

// Repository defines the interface for member storage.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Member, error)

	// GetByEmail looks the email up across all organizations. Cross-tenant
	// membership is disallowed, so an email resolves to at most one member.
	GetByEmail(ctx context.Context, email string) (*Member, error)

	List(ctx context.Context, orgID string) ([]*Member, error)
	ListByRole(ctx context.Context, orgID, role string) ([]*Member, error)

	// CountActive returns the number of seats currently occupied.
	CountActive(ctx context.Context, orgID string) (int, error)

	ListUsernames(ctx context.Context, orgID string) ([]string, error)
	Deactivate(ctx context.Context, orgID, memberID string) error
}

// BulkImporter creates members inside one seat-gated transaction: the
// organization row is locked, active seats are recounted, and the batch is
// inserted only if it fits under the ceiling. Splitting the count from the
// insert would reopen the seat race.
type BulkImporter interface {
	ImportMembers(ctx context.Context, orgID string, members []*Member) (int, error)
}

// Creator inserts a single member through the same seat-gated path. Used by
// organization bootstrap for the OWNER seat.
type Creator interface {
	CreateMember(ctx context.Context, m *Member) error
}
