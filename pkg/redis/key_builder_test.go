package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyBuilder(t *testing.T) {
	kb := NewKeyBuilder(NamespaceAgora, ContextReview)

	assert.Equal(t, "agora:review:reviewable:pending_count", kb.Build("reviewable", "pending_count"))
	assert.Equal(t, "agora:review:reviewable", kb.Build("Reviewable", ""))
	assert.Equal(t, "agora:review:reviewable:*", kb.BuildPattern("reviewable", ""))
	assert.Equal(t, "agora:review:reviewable:item:*", kb.BuildPattern("reviewable", "item:*"))
	assert.Equal(t, "agora:review:reviewable:count:42", kb.BuildCounter("reviewable", "42"))
}
