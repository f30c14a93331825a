package reviewable

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openagora/agora/internal/repository"
	"github.com/openagora/agora/pkg/errors"
)

// MemoryStore is an in-process Store with the same concurrency semantics as
// PostgresStore: version-gated performs, one non-deleted item per target,
// ledger-derived scores. It backs tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*Reviewable
	byKey   map[targetKey]uuid.UUID
	scores  map[uuid.UUID][]*ScoreContribution
	history map[uuid.UUID][]*HistoryEntry
	targets *repository.TargetRegistry
}

type targetKey struct {
	t  repository.TargetType
	id int64
}

// NewMemoryStore creates an empty store. The registry may be nil when score
// mirroring is irrelevant to the caller.
func NewMemoryStore(targets *repository.TargetRegistry) *MemoryStore {
	return &MemoryStore{
		items:   make(map[uuid.UUID]*Reviewable),
		byKey:   make(map[targetKey]uuid.UUID),
		scores:  make(map[uuid.UUID][]*ScoreContribution),
		history: make(map[uuid.UUID][]*HistoryEntry),
		targets: targets,
	}
}

var _ Store = (*MemoryStore)(nil)

func copyItem(item *Reviewable) *Reviewable {
	out := *item
	if item.ReviewableByGroupID != nil {
		v := *item.ReviewableByGroupID
		out.ReviewableByGroupID = &v
	}
	if item.CategoryID != nil {
		v := *item.CategoryID
		out.CategoryID = &v
	}
	if item.Payload != nil {
		out.Payload = make(map[string]interface{}, len(item.Payload))
		for k, v := range item.Payload {
			out.Payload[k] = v
		}
	}
	return &out
}

func (s *MemoryStore) appendHistoryLocked(id uuid.UUID, historyType HistoryType, status Status, performedBy string, delta map[string]interface{}) {
	s.history[id] = append(s.history[id], &HistoryEntry{
		ID:            uuid.New(),
		ReviewableID:  id,
		Type:          historyType,
		Status:        status,
		PerformedByID: performedBy,
		EditDelta:     delta,
		CreatedAt:     time.Now().UTC(),
	})
}

func (s *MemoryStore) Create(ctx context.Context, item *Reviewable) (*Reviewable, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := targetKey{t: item.TargetType, id: item.TargetID}
	if id, ok := s.byKey[key]; ok {
		existing := s.items[id]
		existing.Status = StatusPending
		existing.Version++
		existing.UpdatedAt = time.Now().UTC()
		s.appendHistoryLocked(id, HistoryTransitioned, StatusPending, item.CreatedByID, nil)
		return copyItem(existing), true, nil
	}

	stored := copyItem(item)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Status = StatusPending
	stored.Version = 0
	stored.Score = 0
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.items[stored.ID] = stored
	s.byKey[key] = stored.ID
	s.appendHistoryLocked(stored.ID, HistoryCreated, StatusPending, item.CreatedByID, nil)
	return copyItem(stored), false, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Reviewable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return copyItem(item), nil
}

func (s *MemoryStore) GetByTarget(ctx context.Context, targetType repository.TargetType, targetID int64) (*Reviewable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[targetKey{t: targetType, id: targetID}]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return copyItem(s.items[id]), nil
}

func (s *MemoryStore) List(ctx context.Context, q ListQuery) ([]*Reviewable, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Reviewable
	for _, item := range s.items {
		if q.Status != nil && item.Status != *q.Status {
			continue
		}
		if q.TargetType != nil && item.TargetType != *q.TargetType {
			continue
		}
		if q.MinScore != nil && item.Score < *q.MinScore {
			continue
		}
		if q.Scope != nil && !q.Scope.Visible(item) {
			continue
		}
		matched = append(matched, copyItem(item))
	}

	pendingOrder := q.Status != nil && *q.Status == StatusPending
	sort.Slice(matched, func(i, j int) bool {
		if pendingOrder && matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[q.Offset:]
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *MemoryStore) AddScore(ctx context.Context, c *ScoreContribution) (*Reviewable, error) {
	s.mu.Lock()
	item, ok := s.items[c.ReviewableID]
	if !ok {
		s.mu.Unlock()
		return nil, errors.ErrNotFound
	}
	for _, existing := range s.scores[c.ReviewableID] {
		if existing.ActorID == c.ActorID && existing.Resolution == ResolutionPending {
			// One unresolved say per actor; a repeat insert is a no-op.
			out := copyItem(item)
			s.mu.Unlock()
			return out, nil
		}
	}
	stored := *c
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Resolution = ResolutionPending
	stored.CreatedAt = time.Now().UTC()
	s.scores[c.ReviewableID] = append(s.scores[c.ReviewableID], &stored)
	item.Score += c.Weight
	item.UpdatedAt = time.Now().UTC()
	out := copyItem(item)
	s.mu.Unlock()

	s.mirror(ctx, out)
	return out, nil
}

func (s *MemoryStore) PerformAtomic(ctx context.Context, id uuid.UUID, performedBy string, suppliedVersion *int64, fn PerformFunc) (*Reviewable, *PerformResult, error) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil, errors.ErrNotFound
	}
	if suppliedVersion != nil && *suppliedVersion != item.Version {
		s.mu.Unlock()
		return nil, nil, errors.ErrUpdateConflict
	}

	// Work on a copy so a failing handler leaves the stored item untouched,
	// matching the transactional rollback of the SQL store. Revertible target
	// mutators are snapshotted for the same reason: a failed perform must not
	// leave a half-applied side effect behind.
	working := copyItem(item)
	working.Version++
	working.UpdatedAt = time.Now().UTC()

	restoreTargets := func() {}
	if s.targets != nil {
		restoreTargets = s.targets.Snapshot()
	}

	result, err := fn(ctx, working, s.targets)
	if err != nil {
		restoreTargets()
		s.mu.Unlock()
		return nil, nil, err
	}
	if result == nil {
		result = &PerformResult{}
	}

	var pendingHistory []*HistoryEntry
	if result.NewStatus != nil {
		if !result.NewStatus.Valid() {
			restoreTargets()
			s.mu.Unlock()
			return nil, nil, errors.ErrValidation
		}
		working.Status = *result.NewStatus
		pendingHistory = append(pendingHistory, &HistoryEntry{
			ID: uuid.New(), ReviewableID: id, Type: HistoryTransitioned,
			Status: working.Status, PerformedByID: performedBy, CreatedAt: time.Now().UTC(),
		})
	}
	if result.EditDelta != nil {
		if working.Payload == nil {
			working.Payload = map[string]interface{}{}
		}
		for k, v := range result.EditDelta {
			working.Payload[k] = v
		}
		pendingHistory = append(pendingHistory, &HistoryEntry{
			ID: uuid.New(), ReviewableID: id, Type: HistoryEdited,
			Status: working.Status, PerformedByID: performedBy,
			EditDelta: result.EditDelta, CreatedAt: time.Now().UTC(),
		})
	}
	if result.Resolution != nil {
		only := map[string]bool{}
		for _, a := range result.Resolution.ActorIDs {
			only[a] = true
		}
		for _, c := range s.scores[id] {
			if c.Resolution != ResolutionPending {
				continue
			}
			if len(only) > 0 && !only[c.ActorID] {
				continue
			}
			c.Resolution = result.Resolution.Status
		}
	}
	if result.RecomputeScore {
		var sum float64
		for _, c := range s.scores[id] {
			if c.Resolution == ResolutionPending {
				sum += c.Weight
			}
		}
		working.Score = sum
	}

	s.items[id] = working
	s.history[id] = append(s.history[id], pendingHistory...)
	out := copyItem(working)
	s.mu.Unlock()

	if result.RecomputeScore {
		s.mirror(ctx, out)
	}
	return out, result, nil
}

func (s *MemoryStore) History(ctx context.Context, id uuid.UUID) ([]*HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history[id]
	out := make([]*HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemoryStore) Contributions(ctx context.Context, id uuid.UUID) ([]*ScoreContribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contributions := s.scores[id]
	out := make([]*ScoreContribution, 0, len(contributions))
	for _, c := range contributions {
		cc := *c
		out = append(out, &cc)
	}
	return out, nil
}

func (s *MemoryStore) Recount(ctx context.Context, id uuid.UUID) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return 0, errors.ErrNotFound
	}
	var sum float64
	for _, c := range s.scores[id] {
		if c.Resolution == ResolutionPending {
			sum += c.Weight
		}
	}
	item.Score = sum
	return sum, nil
}

func (s *MemoryStore) RecentIDs(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 500
	}
	var recent []*Reviewable
	for _, item := range s.items {
		if !item.UpdatedAt.Before(since) {
			recent = append(recent, item)
		}
	}
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].UpdatedAt.After(recent[j].UpdatedAt)
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}
	ids := make([]uuid.UUID, 0, len(recent))
	for _, item := range recent {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func (s *MemoryStore) PendingCount(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, item := range s.items {
		if item.Status == StatusPending {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) mirror(ctx context.Context, item *Reviewable) {
	if s.targets == nil {
		return
	}
	if m, ok := s.targets.For(item.TargetType); ok {
		_ = m.MirrorScore(ctx, item.TargetID, item.Score)
	}
}
