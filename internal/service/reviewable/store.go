package reviewable

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openagora/agora/internal/repository"
)

// ListQuery filters and pages a reviewable listing. Pending results are
// ordered by score descending then newest first; resolved results newest
// first.
type ListQuery struct {
	Status     *Status
	TargetType *repository.TargetType
	MinScore   *float64
	// Scope applies the caller's visibility predicate; nil means unrestricted
	// (trusted internal callers only).
	Scope  *Scope
	Limit  int
	Offset int
}

// PerformFunc runs inside the atomic unit of work of a perform call, after
// the version bump succeeded. The item it receives carries the new version,
// and targets is scoped to the same unit of work: mutations made through it
// roll back together with the item when fn returns an error. May be nil when
// the store was built without a registry.
type PerformFunc func(ctx context.Context, item *Reviewable, targets *repository.TargetRegistry) (*PerformResult, error)

// Store is the persistence contract for reviewable items, their score ledger,
// and their history log. All mutations are atomic per call.
type Store interface {
	// Create inserts a new pending item. If a non-deleted item already exists
	// for the same target, it reactivates that row back to pending instead
	// and reports reopened=true. Never creates duplicates.
	Create(ctx context.Context, item *Reviewable) (out *Reviewable, reopened bool, err error)

	Get(ctx context.Context, id uuid.UUID) (*Reviewable, error)
	GetByTarget(ctx context.Context, targetType repository.TargetType, targetID int64) (*Reviewable, error)
	List(ctx context.Context, q ListQuery) ([]*Reviewable, int, error)

	// AddScore inserts a pending contribution and increments the item's
	// aggregate score (and the target container mirror) by its weight.
	// Returns the updated item.
	AddScore(ctx context.Context, c *ScoreContribution) (*Reviewable, error)

	// PerformAtomic runs the version-gated perform protocol: bump the version
	// if suppliedVersion matches (nil bumps unconditionally), run fn with a
	// registry scoped to the unit of work, then apply the returned transition,
	// history entry, score resolution, and recompute. Any failure rolls back
	// everything: version bump and target side effects included.
	PerformAtomic(ctx context.Context, id uuid.UUID, performedBy string, suppliedVersion *int64, fn PerformFunc) (*Reviewable, *PerformResult, error)

	History(ctx context.Context, id uuid.UUID) ([]*HistoryEntry, error)
	Contributions(ctx context.Context, id uuid.UUID) ([]*ScoreContribution, error)

	// Recount re-derives the aggregate score from the ledger and rewrites it.
	// Maintenance only; the live path keeps the invariant transactionally.
	Recount(ctx context.Context, id uuid.UUID) (float64, error)
	// RecentIDs lists items touched since the given time, for maintenance.
	RecentIDs(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error)
	// PendingCount returns the number of pending items.
	PendingCount(ctx context.Context) (int64, error)
}
