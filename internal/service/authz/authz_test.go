package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/openagora/agora/internal/service/reviewable"
)

func TestCanPerform(t *testing.T) {
	e := NewEvaluator(zap.NewNop())
	groupID := int64(12)
	open := &reviewable.Reviewable{}
	grouped := &reviewable.Reviewable{ReviewableByGroupID: &groupID}

	system := reviewable.Actor{ID: "sys", System: true}
	admin := reviewable.Actor{ID: "adm", Staff: true, Admin: true}
	staff := reviewable.Actor{ID: "stf", Staff: true}
	member := reviewable.Actor{ID: "mem", GroupIDs: []int64{12}}
	nobody := reviewable.Actor{ID: "nob"}

	tests := []struct {
		name   string
		actor  reviewable.Actor
		item   *reviewable.Reviewable
		action string
		want   bool
	}{
		{"system does anything", system, grouped, "delete_and_agree", true},
		{"admin deletes", admin, open, "delete_and_agree", true},
		{"staff cannot delete", staff, open, "delete_and_agree", false},
		{"staff cannot suspend", staff, open, "agree_and_suspend", false},
		{"staff judges open items", staff, open, "agree_and_keep", true},
		{"staff outside group blocked", staff, grouped, "agree_and_keep", false},
		{"group member judges own queue", member, grouped, "agree_and_keep", true},
		{"group member blocked elsewhere", member, open, "agree_and_keep", false},
		{"regular user blocked", nobody, open, "agree_and_keep", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.CanPerform(tt.actor, tt.item, tt.action))
		})
	}
}

func TestVisibleScope(t *testing.T) {
	e := NewEvaluator(nil)

	assert.True(t, e.VisibleScope(reviewable.Actor{System: true}).All)
	assert.True(t, e.VisibleScope(reviewable.Actor{Staff: true}).All)

	scope := e.VisibleScope(reviewable.Actor{GroupIDs: []int64{3, 4}})
	assert.False(t, scope.All)
	assert.Equal(t, []int64{3, 4}, scope.GroupIDs)

	empty := e.VisibleScope(reviewable.Actor{})
	assert.False(t, empty.All)
	assert.Empty(t, empty.GroupIDs)
}
