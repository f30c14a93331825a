package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/openagora/agora/pkg/errors"
)

// TargetType tags the kind of moderated object a reviewable item points at.
type TargetType string

const (
	TargetTypePost  TargetType = "post"
	TargetTypeTopic TargetType = "topic"
	TargetTypeUser  TargetType = "user"
)

// Target is a loaded moderated object. The review engine holds only a weak
// reference to it; the owning subsystem is responsible for its persistence.
type Target struct {
	Type        TargetType
	ID          int64
	ContainerID int64 // parent container (e.g. the topic a post belongs to)
	AuthorID    string
	Hidden      bool
	Deleted     bool
	Data        map[string]interface{}
}

// TargetMutator is the contract the review engine consumes for one target
// type. Implementations must tolerate soft-deleted rows: Load returns the
// target with Deleted set rather than an error.
type TargetMutator interface {
	Load(ctx context.Context, id int64) (*Target, error)
	Hide(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	SuspendAuthor(ctx context.Context, id int64, until time.Time) error
	CreateFromDraft(ctx context.Context, payload map[string]interface{}) (*Target, error)
	// MirrorScore propagates the reviewable's aggregate score onto the
	// target's container for sort and priority purposes.
	MirrorScore(ctx context.Context, id int64, score float64) error
}

// TxBinder is implemented by mutators whose writes can join a database
// transaction, so target side effects commit or roll back with the unit of
// work that triggered them.
type TxBinder interface {
	BindTx(tx *sql.Tx) TargetMutator
}

// Reverter is implemented by in-process mutators that can capture and restore
// their state. Stores without real transactions use it to undo target side
// effects when the surrounding unit of work aborts.
type Reverter interface {
	Snapshot() (restore func())
}

// TargetRegistry resolves a TargetType to its injected mutator. Built at
// startup; reads dominate after that.
type TargetRegistry struct {
	mu       sync.RWMutex
	mutators map[TargetType]TargetMutator
}

// NewTargetRegistry creates an empty registry.
func NewTargetRegistry() *TargetRegistry {
	return &TargetRegistry{mutators: make(map[TargetType]TargetMutator)}
}

// Register installs the mutator for a target type, replacing any previous one.
func (r *TargetRegistry) Register(t TargetType, m TargetMutator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutators[t] = m
}

// For returns the mutator for a target type.
func (r *TargetRegistry) For(t TargetType) (TargetMutator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mutators[t]
	return m, ok
}

// BindTx returns a view of the registry whose tx-capable mutators run their
// statements on the given transaction. Mutators that cannot join one pass
// through unchanged.
func (r *TargetRegistry) BindTx(tx *sql.Tx) *TargetRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bound := &TargetRegistry{mutators: make(map[TargetType]TargetMutator, len(r.mutators))}
	for t, m := range r.mutators {
		if b, ok := m.(TxBinder); ok {
			bound.mutators[t] = b.BindTx(tx)
		} else {
			bound.mutators[t] = m
		}
	}
	return bound
}

// Snapshot captures the state of every revertible mutator and returns one
// restore function covering them all.
func (r *TargetRegistry) Snapshot() func() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	restores := make([]func(), 0, len(r.mutators))
	for _, m := range r.mutators {
		if rev, ok := m.(Reverter); ok {
			restores = append(restores, rev.Snapshot())
		}
	}
	return func() {
		for _, restore := range restores {
			restore()
		}
	}
}

// Load resolves and loads a target. Unregistered types and missing rows both
// surface as ErrTargetNotFound so handlers can degrade gracefully.
func (r *TargetRegistry) Load(ctx context.Context, t TargetType, id int64) (*Target, error) {
	m, ok := r.For(t)
	if !ok {
		return nil, errors.ErrTargetNotFound
	}
	return m.Load(ctx, id)
}
