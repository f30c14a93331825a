package reviewable

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openagora/agora/internal/repository"
	"github.com/openagora/agora/pkg/errors"
	"github.com/openagora/agora/pkg/events"
	"github.com/openagora/agora/pkg/logger"
	"github.com/openagora/agora/pkg/redis"
)

const (
	pendingCountCacheTTL = 30 * time.Second
	bulkConcurrency      = 4
)

// Service is the review engine's public surface: admitting items, scoring
// them, and performing catalog actions under the optimistic perform protocol.
type Service struct {
	store   Store
	catalog *Catalog
	authz   AuthzEvaluator
	targets *repository.TargetRegistry
	emitter events.Emitter
	cache   *redis.Cache
	log     *zap.Logger
}

// NewService wires the engine. emitter and cache may be nil; the engine then
// skips event fan-out and count caching respectively.
func NewService(store Store, catalog *Catalog, authz AuthzEvaluator, targets *repository.TargetRegistry, emitter events.Emitter, cache *redis.Cache, log *zap.Logger) *Service {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		catalog: catalog,
		authz:   authz,
		targets: targets,
		emitter: emitter,
		cache:   cache,
		log:     log,
	}
}

// NeedsReviewRequest admits a target into the review queue.
type NeedsReviewRequest struct {
	TargetType repository.TargetType
	TargetID   int64
	Variant    VariantKind
	Actor      Actor
	// Kind is the flag reason; empty means admission without a score
	// contribution (e.g. a draft entering the approval queue).
	Kind       string
	TookAction bool
	Payload    map[string]interface{}
	GroupID    *int64
	CategoryID *int64
}

// NeedsReview admits a target for review. If an item already exists for the
// target it is reopened to pending instead; either way, at most one item per
// target. A repeat flag by the same actor reuses their pending contribution
// rather than stacking a new one.
func (s *Service) NeedsReview(ctx context.Context, req NeedsReviewRequest) (*Reviewable, error) {
	if req.TargetType == "" || req.TargetID == 0 {
		return nil, errors.Wrap(errors.ErrValidation, "target reference is required")
	}
	if req.Variant == "" {
		return nil, errors.Wrap(errors.ErrValidation, "variant is required")
	}

	item := &Reviewable{
		TargetType:          req.TargetType,
		TargetID:            req.TargetID,
		Variant:             req.Variant,
		ReviewableByGroupID: req.GroupID,
		CategoryID:          req.CategoryID,
		Payload:             req.Payload,
		CreatedByID:         req.Actor.ID,
	}
	out, reopened, err := s.store.Create(ctx, item)
	if err != nil {
		return nil, errors.LogWithError(ctx, s.log, "failed to admit item for review", err,
			zap.String("target_type", string(req.TargetType)),
			zap.Int64("target_id", req.TargetID),
		)
	}

	itemsCreatedTotal.WithLabelValues(string(out.Variant), strconv.FormatBool(reopened)).Inc()
	eventType := EventCreated
	if reopened {
		eventType = EventReopened
	}
	emitItemEvent(ctx, s.emitter, s.log, eventType, out, map[string]interface{}{
		"actor_id": req.Actor.ID,
	})
	s.invalidatePendingCount(ctx)

	if req.Kind != "" {
		scored, err := s.addScore(ctx, out, req.Actor, req.Kind, req.TookAction)
		if err != nil {
			return nil, err
		}
		out = scored
	}
	return out, nil
}

// AddScore records one actor's weighted flag against an existing item.
func (s *Service) AddScore(ctx context.Context, id uuid.UUID, actor Actor, kind string, tookAction bool) (*Reviewable, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.addScore(ctx, item, actor, kind, tookAction)
}

func (s *Service) addScore(ctx context.Context, item *Reviewable, actor Actor, kind string, tookAction bool) (*Reviewable, error) {
	existing, err := s.store.Contributions(ctx, item.ID)
	if err != nil {
		return nil, errors.LogWithError(ctx, s.log, "failed to read score ledger", err,
			zap.String("reviewable_id", item.ID.String()))
	}
	for _, c := range existing {
		if c.ActorID == actor.ID && c.Resolution == ResolutionPending {
			// The actor already has an unresolved say on this item.
			return item, nil
		}
	}

	weight := ContributionWeight(actor, kind, tookAction)
	out, err := s.store.AddScore(ctx, &ScoreContribution{
		ReviewableID: item.ID,
		ActorID:      actor.ID,
		Kind:         kind,
		Weight:       weight,
		TookAction:   tookAction,
	})
	if err != nil {
		return nil, errors.LogWithError(ctx, s.log, "failed to add score contribution", err,
			zap.String("reviewable_id", item.ID.String()),
			zap.String("actor_id", actor.ID),
		)
	}

	scoreContributionsTotal.WithLabelValues(kind).Inc()
	emitItemEvent(ctx, s.emitter, s.log, EventScoreChanged, out, map[string]interface{}{
		"actor_id": actor.ID,
		"kind":     kind,
		"weight":   weight,
	})
	return out, nil
}

// Perform executes one catalog action against an item. version is the
// optimistic token the actor last saw; only system actors may pass nil, which
// bumps unconditionally. Exactly one of two outcomes: the whole unit of work
// applied, or nothing did.
func (s *Service) Perform(ctx context.Context, id uuid.UUID, actionID string, actor Actor, version *int64, args map[string]interface{}) (*Reviewable, *PerformResult, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	action, err := s.catalog.Lookup(item.Variant, actionID)
	if err != nil {
		s.countPerform(item, actionID, "invalid")
		return nil, nil, err
	}
	if action.Applicable != nil && !action.Applicable(item) {
		s.countPerform(item, actionID, "invalid")
		return nil, nil, errors.Wrap(errors.ErrInvalidAction,
			fmt.Sprintf("action %q does not apply to a %s item", actionID, item.Status))
	}
	if s.authz != nil && !s.authz.CanPerform(actor, item, actionID) {
		s.countPerform(item, actionID, "forbidden")
		return nil, nil, errors.Wrap(errors.ErrInvalidAction,
			fmt.Sprintf("actor %q may not perform %q", actor.ID, actionID))
	}
	if version == nil && !actor.System {
		s.countPerform(item, actionID, "invalid")
		return nil, nil, errors.Wrap(errors.ErrValidation, "version token is required")
	}

	out, result, err := s.store.PerformAtomic(ctx, id, actor.ID, version, func(ctx context.Context, fresh *Reviewable, targets *repository.TargetRegistry) (*PerformResult, error) {
		if targets == nil {
			targets = s.targets
		}
		res, err := action.Handler(ctx, &StepContext{
			Item:    fresh,
			Actor:   actor,
			Args:    args,
			Targets: targets,
			Log:     logger.FromContext(ctx, s.log),
		})
		if err != nil {
			if errors.Is(err, errors.ErrInvalidAction) || errors.Is(err, errors.ErrValidation) {
				return nil, err
			}
			return nil, errors.Wrap(errors.ErrHandlerFailure, err.Error())
		}
		if res == nil {
			res = &PerformResult{}
		}
		res.ActionID = actionID
		return res, nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrUpdateConflict) {
			conflictsTotal.Inc()
			s.countPerform(item, actionID, "conflict")
			return nil, nil, err
		}
		s.countPerform(item, actionID, "error")
		return nil, nil, errors.LogWithError(ctx, s.log, "perform failed", err,
			zap.String("reviewable_id", id.String()),
			zap.String("action", actionID),
			zap.String("actor_id", actor.ID),
		)
	}

	s.countPerform(out, actionID, "ok")
	if result.NewStatus != nil {
		emitItemEvent(ctx, s.emitter, s.log, EventTransitioned, out, map[string]interface{}{
			"actor_id": actor.ID,
			"action":   actionID,
		})
		s.invalidatePendingCount(ctx)
	}
	if result.RecomputeScore {
		emitItemEvent(ctx, s.emitter, s.log, EventScoreChanged, out, map[string]interface{}{
			"actor_id": actor.ID,
			"action":   actionID,
		})
	}
	return out, result, nil
}

// PerformWithRetry is Perform for callers that prefer last-writer-wins over
// surfacing conflicts: on ErrUpdateConflict it re-reads the current version
// and tries again with exponential backoff. Any other failure is final.
func (s *Service) PerformWithRetry(ctx context.Context, id uuid.UUID, actionID string, actor Actor, args map[string]interface{}, maxRetries uint64) (*Reviewable, *PerformResult, error) {
	var out *Reviewable
	var result *PerformResult

	operation := func() error {
		item, err := s.store.Get(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		version := item.Version
		out, result, err = s.Perform(ctx, id, actionID, actor, &version, args)
		if err != nil {
			if errors.Is(err, errors.ErrUpdateConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, nil, err
	}
	return out, result, nil
}

// BulkOutcome is the per-item result of a BulkPerform call.
type BulkOutcome struct {
	ID   uuid.UUID
	Item *Reviewable
	Err  error
}

// BulkPerform runs the same action across many items concurrently. Each item
// retries its own conflicts; one item failing never aborts the others.
func (s *Service) BulkPerform(ctx context.Context, ids []uuid.UUID, actionID string, actor Actor, args map[string]interface{}) []BulkOutcome {
	outcomes := make([]BulkOutcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			item, _, err := s.PerformWithRetry(gctx, id, actionID, actor, args, 3)
			outcomes[i] = BulkOutcome{ID: id, Item: item, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Get returns one item, enforcing the actor's visibility scope.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Reviewable, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(actor, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetByTarget returns the item tracking a target, enforcing visibility.
func (s *Service) GetByTarget(ctx context.Context, actor Actor, targetType repository.TargetType, targetID int64) (*Reviewable, error) {
	item, err := s.store.GetByTarget(ctx, targetType, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(actor, item); err != nil {
		return nil, err
	}
	return item, nil
}

// List returns items visible to the actor, with the total match count.
func (s *Service) List(ctx context.Context, actor Actor, q ListQuery) ([]*Reviewable, int, error) {
	if !actor.System {
		scope := s.visibleScope(actor)
		q.Scope = &scope
	}
	return s.store.List(ctx, q)
}

// Actions lists the catalog actions the actor may currently perform on an item.
func (s *Service) Actions(ctx context.Context, actor Actor, id uuid.UUID) ([]ActionDescriptor, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(actor, item); err != nil {
		return nil, err
	}
	return s.catalog.ActionsFor(item, actor, s.authz), nil
}

// Edit applies a payload delta under the same version protocol as Perform and
// records it in the history log.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, actor Actor, version *int64, delta map[string]interface{}) (*Reviewable, error) {
	if len(delta) == 0 {
		return nil, errors.Wrap(errors.ErrValidation, "edit delta is empty")
	}
	if !actor.Staff && !actor.System {
		return nil, errors.Wrap(errors.ErrUnauthorized, "only staff may edit review items")
	}
	if version == nil && !actor.System {
		return nil, errors.Wrap(errors.ErrValidation, "version token is required")
	}
	out, _, err := s.store.PerformAtomic(ctx, id, actor.ID, version, func(ctx context.Context, fresh *Reviewable, _ *repository.TargetRegistry) (*PerformResult, error) {
		return &PerformResult{EditDelta: delta}, nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrUpdateConflict) {
			conflictsTotal.Inc()
		}
		return nil, err
	}
	return out, nil
}

// History returns the item's lifecycle log.
func (s *Service) History(ctx context.Context, actor Actor, id uuid.UUID) ([]*HistoryEntry, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(actor, item); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// Contributions returns the item's score ledger.
func (s *Service) Contributions(ctx context.Context, actor Actor, id uuid.UUID) ([]*ScoreContribution, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(actor, item); err != nil {
		return nil, err
	}
	return s.store.Contributions(ctx, id)
}

// PendingCount reports the queue depth, cached briefly since every moderator
// page load asks for it.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	if s.cache != nil {
		cached := int64(-1)
		if err := s.cache.Get(ctx, "reviewable", "pending_count", &cached); err == nil && cached >= 0 {
			return cached, nil
		}
	}
	count, err := s.store.PendingCount(ctx)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, "reviewable", "pending_count", count, pendingCountCacheTTL); err != nil {
			s.log.Warn("failed to cache pending count", zap.Error(err))
		}
	}
	return count, nil
}

func (s *Service) invalidatePendingCount(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, "reviewable", "pending_count"); err != nil {
		s.log.Warn("failed to invalidate pending count cache", zap.Error(err))
	}
}

func (s *Service) visibleScope(actor Actor) Scope {
	if s.authz == nil {
		return Scope{All: true}
	}
	return s.authz.VisibleScope(actor)
}

func (s *Service) checkVisible(actor Actor, item *Reviewable) error {
	if actor.System {
		return nil
	}
	if !s.visibleScope(actor).Visible(item) {
		return errors.Wrap(errors.ErrUnauthorized,
			fmt.Sprintf("item %s is outside the actor's scope", item.ID))
	}
	return nil
}

func (s *Service) countPerform(item *Reviewable, actionID, outcome string) {
	performsTotal.WithLabelValues(string(item.Variant), actionID, outcome).Inc()
}
