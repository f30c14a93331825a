package reviewable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContributionWeight(t *testing.T) {
	tests := []struct {
		name       string
		actor      Actor
		kind       string
		tookAction bool
		want       float64
	}{
		{"plain needs_approval", Actor{}, ScoreKindNeedsApproval, false, 5},
		{"spam with direct action", Actor{}, ScoreKindSpam, true, 8},
		{"off_topic carries no bonus", Actor{}, ScoreKindOffTopic, false, 4},
		{"illegal is heaviest", Actor{}, ScoreKindIllegal, false, 7},
		{"unknown kind falls back to base", Actor{}, "weird", false, 4},
		{"trusted flagger bonus stacks", Actor{FlagWeightBonus: 1.5}, ScoreKindSpam, false, 7.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ContributionWeight(tt.actor, tt.kind, tt.tookAction), 0.001)
		})
	}
}

func TestScopeVisibility(t *testing.T) {
	groupID := int64(9)
	categoryID := int64(3)
	grouped := &Reviewable{ReviewableByGroupID: &groupID}
	open := &Reviewable{}
	categorized := &Reviewable{CategoryID: &categoryID}

	assert.True(t, Scope{All: true}.Visible(open))
	assert.True(t, Scope{All: true}.Visible(grouped))
	assert.True(t, Scope{GroupIDs: []int64{9}}.Visible(grouped))
	assert.False(t, Scope{GroupIDs: []int64{8}}.Visible(grouped))
	assert.False(t, Scope{GroupIDs: []int64{9}}.Visible(open))
	assert.False(t, Scope{}.Visible(open))

	assert.True(t, Scope{All: true, CategoryIDs: []int64{3}}.Visible(categorized))
	assert.False(t, Scope{All: true, CategoryIDs: []int64{4}}.Visible(categorized))
	// Uncategorized items pass every category filter.
	assert.True(t, Scope{All: true, CategoryIDs: []int64{4}}.Visible(open))
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusDeleted.Terminal())
	assert.False(t, Status("limbo").Valid())
	assert.False(t, Status("limbo").Terminal())
}
