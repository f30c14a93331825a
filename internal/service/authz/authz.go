package authz

import (
	"go.uber.org/zap"

	"github.com/openagora/agora/internal/service/reviewable"
)

// Destructive actions need the stronger role regardless of queue visibility.
var adminOnlyActions = map[string]bool{
	"delete_and_agree":  true,
	"agree_and_suspend": true,
}

// Evaluator is the default permission policy for the review engine:
//
//   - system actors may do anything
//   - admins may do anything a human may
//   - staff may judge any item except group-restricted ones outside their groups
//   - reviewer-group members may judge their group's items without being staff
//   - destructive actions require admin
//   - everyone else sees and touches nothing
type Evaluator struct {
	log *zap.Logger
}

// NewEvaluator creates the default evaluator.
func NewEvaluator(log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{log: log.With(zap.String("component", "review_authz"))}
}

var _ reviewable.AuthzEvaluator = (*Evaluator)(nil)

// CanPerform decides whether the actor may run the action on the item.
func (e *Evaluator) CanPerform(actor reviewable.Actor, item *reviewable.Reviewable, actionID string) bool {
	if actor.System {
		return true
	}
	if adminOnlyActions[actionID] && !actor.Admin {
		return false
	}
	if actor.Admin {
		return true
	}
	if item.ReviewableByGroupID != nil {
		// Group-restricted items belong to that group's reviewers (staff
		// included only when they are members).
		return actor.InGroup(*item.ReviewableByGroupID)
	}
	return actor.Staff
}

// VisibleScope computes what the actor may list.
func (e *Evaluator) VisibleScope(actor reviewable.Actor) reviewable.Scope {
	if actor.System || actor.Admin {
		return reviewable.Scope{All: true}
	}
	if actor.Staff {
		return reviewable.Scope{All: true}
	}
	// Plain reviewer-group members see only their groups' queues.
	return reviewable.Scope{GroupIDs: actor.GroupIDs}
}
