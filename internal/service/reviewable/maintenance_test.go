package reviewable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openagora/agora/internal/repository"
)

func TestSweepRepairsRecentItems(t *testing.T) {
	registry := repository.NewTargetRegistry()
	store := NewMemoryStore(registry)
	catalog := NewCatalog()
	RegisterDefaults(catalog)
	svc := NewService(store, catalog, staffOnly{}, registry, nil, nil, zap.NewNop())
	ctx := context.Background()

	item, err := svc.NeedsReview(ctx, NeedsReviewRequest{
		TargetType: repository.TargetTypePost, TargetID: 1,
		Variant: VariantFlaggedPost, Actor: userA, Kind: ScoreKindSpam,
	})
	require.NoError(t, err)

	store.mu.Lock()
	store.items[item.ID].Score = -50
	store.mu.Unlock()

	NewReconciler(store, zap.NewNop()).Sweep(ctx)

	fixed, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, fixed.Score, 0.001)
}

func TestReconcilerStartStop(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReconciler(store, nil)
	require.NoError(t, r.Start("*/10 * * * *"))
	r.Stop()

	assert.Error(t, NewReconciler(store, nil).Start("not a schedule"))
}
