package reviewable

import (
	"time"

	"github.com/google/uuid"

	"github.com/openagora/agora/internal/repository"
)

// Status is the lifecycle state of a reviewable item. Pending items await
// moderator judgment; the other four states are terminal for that review
// cycle. A fresh flag on the same target resets the item to pending instead
// of transitioning out of a terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusIgnored  Status = "ignored"
	StatusDeleted  Status = "deleted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusIgnored, StatusDeleted:
		return true
	}
	return false
}

// Terminal reports whether s ends a review cycle.
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// VariantKind selects which variant's action table applies to an item.
type VariantKind string

const (
	// VariantFlaggedPost covers already-published content that was flagged.
	VariantFlaggedPost VariantKind = "flagged_post"
	// VariantQueuedPost covers not-yet-published drafts held for pre-approval.
	VariantQueuedPost VariantKind = "queued_post"
	// VariantReport is a thin pass-through for arbitrary external targets.
	VariantReport VariantKind = "report"
)

// Actor is whoever is flagging or judging: a user, a moderator, or the
// system itself.
type Actor struct {
	ID       string
	Username string
	Staff    bool
	Admin    bool
	// System marks trusted internal callers. Only system actors may perform
	// without a version token (unconditional bump).
	System bool
	// GroupIDs are the reviewer groups the actor belongs to.
	GroupIDs []int64
	// FlagWeightBonus is added to the actor's base score weight, e.g. for
	// users with a strong flagging track record.
	FlagWeightBonus float64
}

// InGroup reports whether the actor belongs to the given reviewer group.
func (a Actor) InGroup(groupID int64) bool {
	for _, g := range a.GroupIDs {
		if g == groupID {
			return true
		}
	}
	return false
}

// Reviewable is one unit of moderation work: a target awaiting judgment, its
// aggregate suspicion score, and the optimistic-concurrency version token
// that serializes concurrent moderator actions.
type Reviewable struct {
	ID         uuid.UUID
	TargetType repository.TargetType
	TargetID   int64
	Variant    VariantKind
	Status     Status
	// Version is bumped on every successful perform; a perform supplying a
	// stale version fails with ErrUpdateConflict.
	Version int64
	// Score is the floating aggregate of unresolved contributions. It always
	// equals the sum of pending contribution weights.
	Score float64
	// ReviewableByGroupID restricts visibility to one reviewer group when
	// set; nil means visible to any staff-equivalent actor.
	ReviewableByGroupID *int64
	// CategoryID is an optional context restriction used for list filtering.
	CategoryID *int64
	// Payload carries type-specific data, e.g. a queued draft's body. Empty
	// for items backed entirely by an external target.
	Payload     map[string]interface{}
	CreatedByID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResolutionStatus tracks what happened to one actor's score contribution
// when the parent item was judged.
type ResolutionStatus string

const (
	ResolutionPending   ResolutionStatus = "pending"
	ResolutionAgreed    ResolutionStatus = "agreed"
	ResolutionDisagreed ResolutionStatus = "disagreed"
	ResolutionIgnored   ResolutionStatus = "ignored"
)

// ScoreContribution is one actor's weighted input toward an item's score.
// Contributions are never deleted; resolving an item only flips their status.
type ScoreContribution struct {
	ID           uuid.UUID
	ReviewableID uuid.UUID
	ActorID      string
	Kind         string
	Weight       float64
	Resolution   ResolutionStatus
	TookAction   bool
	CreatedAt    time.Time
}

// HistoryType classifies a history entry.
type HistoryType string

const (
	HistoryCreated      HistoryType = "created"
	HistoryTransitioned HistoryType = "transitioned"
	HistoryEdited       HistoryType = "edited"
)

// HistoryEntry is one append-only record of a lifecycle event.
type HistoryEntry struct {
	ID            uuid.UUID
	ReviewableID  uuid.UUID
	Type          HistoryType
	Status        Status
	PerformedByID string
	EditDelta     map[string]interface{}
	CreatedAt     time.Time
}

// ActionDescriptor describes one performable action for UI consumption. It is
// transient; the engine never persists it.
type ActionDescriptor struct {
	ID                   string `json:"id"`
	BundleID             string `json:"bundle_id,omitempty"`
	Label                string `json:"label,omitempty"`
	Icon                 string `json:"icon,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
	// ClientSideEffect is a hint for the caller (e.g. "refresh", "remove_row");
	// the engine performs no side effect for it.
	ClientSideEffect string `json:"client_side_effect,omitempty"`
}

// ScoreResolution instructs the store how to settle pending contributions
// after an action. An empty ActorIDs list settles every pending contribution.
type ScoreResolution struct {
	Status   ResolutionStatus
	ActorIDs []string
}

// PerformResult is what a variant handler returns: the transition and score
// effects the store must apply atomically with the version bump.
type PerformResult struct {
	ActionID string
	// NewStatus, when set, transitions the item and appends a history entry.
	NewStatus *Status
	// Resolution, when set, settles pending contributions.
	Resolution *ScoreResolution
	// RecomputeScore re-derives the aggregate from the ledger and mirrors it
	// onto the target's container.
	RecomputeScore bool
	// EditDelta records a payload edit; applied with an "edited" history entry.
	EditDelta map[string]interface{}
	Detail    string
}

// Scope is the visibility predicate for list queries: everything, a set of
// reviewer groups, or nothing.
type Scope struct {
	All         bool
	GroupIDs    []int64
	CategoryIDs []int64
}

// Visible reports whether an item falls inside the scope.
func (s Scope) Visible(item *Reviewable) bool {
	if s.All {
		return s.categoryVisible(item)
	}
	if item.ReviewableByGroupID == nil {
		return false
	}
	for _, g := range s.GroupIDs {
		if g == *item.ReviewableByGroupID {
			return s.categoryVisible(item)
		}
	}
	return false
}

func (s Scope) categoryVisible(item *Reviewable) bool {
	if len(s.CategoryIDs) == 0 {
		return true
	}
	if item.CategoryID == nil {
		return true
	}
	for _, c := range s.CategoryIDs {
		if c == *item.CategoryID {
			return true
		}
	}
	return false
}

// AuthzEvaluator is the permission contract the engine consumes. The broader
// permission model lives elsewhere; the engine only asks these two questions.
type AuthzEvaluator interface {
	CanPerform(actor Actor, item *Reviewable, actionID string) bool
	VisibleScope(actor Actor) Scope
}
