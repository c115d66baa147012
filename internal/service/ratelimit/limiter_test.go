package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New().WithClock(func() time.Time { return now })

	assert.True(t, l.Allow("a", 2, 1))
	assert.True(t, l.Allow("a", 2, 1))
	assert.False(t, l.Allow("a", 2, 1))

	now = now.Add(500 * time.Millisecond)
	assert.False(t, l.Allow("a", 2, 1))

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("a", 2, 1))

	// capped at capacity after a long idle
	now = now.Add(time.Hour)
	assert.True(t, l.Allow("a", 2, 1))
	assert.True(t, l.Allow("a", 2, 1))
	assert.False(t, l.Allow("a", 2, 1))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	now := time.Unix(0, 0)
	l := New().WithClock(func() time.Time { return now })

	assert.True(t, l.Allow("10.0.0.1", 1, 0.1))
	assert.False(t, l.Allow("10.0.0.1", 1, 0.1))
	assert.True(t, l.Allow("10.0.0.2", 1, 0.1))
	assert.Equal(t, 2, l.Len())
}
