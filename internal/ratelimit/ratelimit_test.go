package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter(t *testing.T) {
	t.Run("denies after the burst is spent", func(t *testing.T) {
		l := New(0.0001, 2)

		assert.True(t, l.Allow("project-a"))
		assert.True(t, l.Allow("project-a"))
		assert.False(t, l.Allow("project-a"))
	})

	t.Run("keys have independent buckets", func(t *testing.T) {
		l := New(0.0001, 1)

		assert.True(t, l.Allow("project-a"))
		assert.False(t, l.Allow("project-a"))
		assert.True(t, l.Allow("project-b"))
	})
}
