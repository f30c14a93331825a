package automod

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openagora/agora/internal/repository"
	"github.com/openagora/agora/internal/service/reviewable"
)

type allowAll struct{}

func (allowAll) CanPerform(reviewable.Actor, *reviewable.Reviewable, string) bool {
	return true
}

func (allowAll) VisibleScope(reviewable.Actor) reviewable.Scope {
	return reviewable.Scope{All: true}
}

func newTestService() (*reviewable.Service, *reviewable.MemoryStore) {
	registry := repository.NewTargetRegistry()
	store := reviewable.NewMemoryStore(registry)
	catalog := reviewable.NewCatalog()
	reviewable.RegisterDefaults(catalog)
	return reviewable.NewService(store, catalog, allowAll{}, registry, nil, nil, zap.NewNop()), store
}

func TestEngineRejectsBadRules(t *testing.T) {
	svc, _ := newTestService()

	_, err := NewEngine([]*Rule{{Name: "broken", When: "link_count >", Kind: "spam"}}, svc, nil)
	assert.Error(t, err)

	_, err = NewEngine([]*Rule{{Name: "", When: "true", Kind: "spam"}}, svc, nil)
	assert.Error(t, err)

	// Non-boolean expressions are configuration errors too.
	_, err = NewEngine([]*Rule{{Name: "typed", When: "link_count + 1", Kind: "spam"}}, svc, nil)
	assert.Error(t, err)
}

func TestCheckAdmitsMatchingContent(t *testing.T) {
	svc, _ := newTestService()
	engine, err := NewEngine([]*Rule{
		{Name: "link spray", When: "link_count > 3 and author_age_days < 2", Kind: "spam"},
	}, svc, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	// Established author, few links: no match.
	item, err := engine.Check(ctx, Content{
		TargetType: "post", TargetID: 1, LinkCount: 1, AuthorAge: 100,
	})
	require.NoError(t, err)
	assert.Nil(t, item)

	// Fresh account spraying links gets queued with a spam contribution.
	item, err = engine.Check(ctx, Content{
		TargetType: "post", TargetID: 2, LinkCount: 5, AuthorAge: 0,
	})
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, reviewable.StatusPending, item.Status)
	assert.Equal(t, int64(2), item.TargetID)
	assert.InDelta(t, 6.0, item.Score, 0.001)
}

func TestCheckMultipleRulesSingleItem(t *testing.T) {
	svc, store := newTestService()
	engine, err := NewEngine([]*Rule{
		{Name: "wall of links", When: "link_count > 3", Kind: "spam"},
		{Name: "newcomer", When: "author_age_days < 1", Kind: "needs_approval"},
	}, svc, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	item, err := engine.Check(ctx, Content{TargetType: "post", TargetID: 9, LinkCount: 4, AuthorAge: 0})
	require.NoError(t, err)
	require.NotNil(t, item)

	// Both rules matched but they share the system actor, so the ledger holds
	// one pending contribution.
	contributions, err := store.Contributions(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, contributions, 1)
}
