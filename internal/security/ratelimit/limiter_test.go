package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLimiter(2, time.Minute)
	defer l.Stop()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("manager-1"))

	now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("1.2.3.4"))
}

func TestStrictBucketsAreSeparate(t *testing.T) {
	l := NewLimiter(100, time.Minute)
	defer l.Stop()

	assert.True(t, l.AllowStrict("1.2.3.4", 1, time.Minute))
	assert.False(t, l.AllowStrict("1.2.3.4", 1, time.Minute))
	assert.True(t, l.Allow("1.2.3.4"))
}

func TestEvictIdle(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLimiter(1, time.Minute)
	l.Stop()
	l.Stop()
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(20 * time.Minute)
	l.Allow("b")
	l.evictIdle(15 * time.Minute)

	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "b")
}
