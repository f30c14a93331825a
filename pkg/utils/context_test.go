package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStaff(t *testing.T) {
	assert.True(t, IsStaff([]string{"moderator"}))
	assert.True(t, IsStaff([]string{"user", "admin"}))
	assert.False(t, IsStaff([]string{"user"}))
	assert.False(t, IsStaff(nil))
}

func TestGetContextFields(t *testing.T) {
	assert.Empty(t, GetContextFields(context.Background()))

	ctx := context.WithValue(context.Background(), ContextActorIDKey, "user-1")
	ctx = context.WithValue(ctx, ContextRolesKey, []string{"moderator"})
	ctx = context.WithValue(ctx, "request_id", "req-9")

	fields := GetContextFields(ctx)
	assert.Equal(t, "user-1", fields["actor_id"])
	assert.Equal(t, []string{"moderator"}, fields["roles"])
	assert.Equal(t, "req-9", fields["request_id"])

	id, ok := GetAuthenticatedActorID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)
}
