package reviewable

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/openagora/agora/internal/repository"
	"github.com/openagora/agora/pkg/errors"
)

// StepContext is everything a handler may touch while performing an action.
// Handlers mutate external targets through the registry and report the item
// transition via their PerformResult; they never write the item directly.
// Targets is scoped to the perform unit of work: mutations made through it
// roll back together with the item when the handler fails.
type StepContext struct {
	Item    *Reviewable
	Actor   Actor
	Args    map[string]interface{}
	Targets *repository.TargetRegistry
	Log     *zap.Logger
}

// HandlerFunc executes one action's side effects and returns the transition
// the store should apply. It runs inside the perform unit of work.
type HandlerFunc func(ctx context.Context, step *StepContext) (*PerformResult, error)

// Action is one entry in a variant's action table.
type Action struct {
	Descriptor ActionDescriptor
	Handler    HandlerFunc
	// Applicable gates the action on item state (beyond permissions), e.g.
	// most judgments only apply to pending items. Nil means always applicable.
	Applicable func(item *Reviewable) bool
}

// Catalog maps each variant to its action table. Listing is pure: computing
// which actions are available never mutates anything.
type Catalog struct {
	mu      sync.RWMutex
	actions map[VariantKind]map[string]*Action
	order   map[VariantKind][]string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		actions: make(map[VariantKind]map[string]*Action),
		order:   make(map[VariantKind][]string),
	}
}

// Register adds an action to a variant's table. Registering the same action id
// twice for one variant is a wiring bug and panics at startup.
func (c *Catalog) Register(variant VariantKind, action *Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if action.Descriptor.ID == "" {
		panic("reviewable: action registered without an id")
	}
	table, ok := c.actions[variant]
	if !ok {
		table = make(map[string]*Action)
		c.actions[variant] = table
	}
	if _, dup := table[action.Descriptor.ID]; dup {
		panic(fmt.Sprintf("reviewable: duplicate action %q for variant %q", action.Descriptor.ID, variant))
	}
	table[action.Descriptor.ID] = action
	c.order[variant] = append(c.order[variant], action.Descriptor.ID)
}

// Lookup resolves an action for a variant. Unknown action ids map to
// ErrInvalidAction regardless of item state.
func (c *Catalog) Lookup(variant VariantKind, actionID string) (*Action, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	table, ok := c.actions[variant]
	if !ok {
		return nil, errors.Wrap(errors.ErrInvalidAction, fmt.Sprintf("unknown variant %q", variant))
	}
	action, ok := table[actionID]
	if !ok {
		return nil, errors.Wrap(errors.ErrInvalidAction, fmt.Sprintf("unknown action %q for variant %q", actionID, variant))
	}
	return action, nil
}

// ActionsFor lists the actions the given actor may currently perform on the
// item, in registration order. Purely a read.
func (c *Catalog) ActionsFor(item *Reviewable, actor Actor, authz AuthzEvaluator) []ActionDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	table := c.actions[item.Variant]
	descriptors := []ActionDescriptor{}
	for _, id := range c.order[item.Variant] {
		action := table[id]
		if action.Applicable != nil && !action.Applicable(item) {
			continue
		}
		if authz != nil && !authz.CanPerform(actor, item, id) {
			continue
		}
		descriptors = append(descriptors, action.Descriptor)
	}
	return descriptors
}

// Variants lists the variants with at least one registered action.
func (c *Catalog) Variants() []VariantKind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	variants := make([]VariantKind, 0, len(c.actions))
	for v := range c.actions {
		variants = append(variants, v)
	}
	return variants
}

// pendingOnly is the usual applicability gate for judgments.
func pendingOnly(item *Reviewable) bool {
	return item.Status == StatusPending
}
