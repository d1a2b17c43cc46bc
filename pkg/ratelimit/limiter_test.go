package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fakeClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestAllowConsumesBurst(t *testing.T) {
	l := New(1, 3)
	now, _ := fakeClock(time.Unix(1000, 0))
	l.now = now

	assert.True(t, l.Allow("biz_1"))
	assert.True(t, l.Allow("biz_1"))
	assert.True(t, l.Allow("biz_1"))
	assert.False(t, l.Allow("biz_1"))
}

func TestBucketsRefillOverTime(t *testing.T) {
	l := New(2, 2)
	now, advance := fakeClock(time.Unix(1000, 0))
	l.now = now

	assert.True(t, l.Allow("biz_1"))
	assert.True(t, l.Allow("biz_1"))
	assert.False(t, l.Allow("biz_1"))

	advance(500 * time.Millisecond)
	assert.True(t, l.Allow("biz_1"))
	assert.False(t, l.Allow("biz_1"))
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1, 1)
	now, _ := fakeClock(time.Unix(1000, 0))
	l.now = now

	assert.True(t, l.Allow("biz_1"))
	assert.False(t, l.Allow("biz_1"))
	assert.True(t, l.Allow("biz_2"))
}

func TestRefillCapsAtBurst(t *testing.T) {
	l := New(10, 2)
	now, advance := fakeClock(time.Unix(1000, 0))
	l.now = now

	assert.True(t, l.Allow("biz_1"))
	advance(time.Hour)

	assert.True(t, l.Allow("biz_1"))
	assert.True(t, l.Allow("biz_1"))
	assert.False(t, l.Allow("biz_1"))
}

func TestPrune(t *testing.T) {
	l := New(1, 1)
	now, advance := fakeClock(time.Unix(1000, 0))
	l.now = now

	l.Allow("biz_1")
	advance(10 * time.Minute)
	l.Allow("biz_2")

	l.Prune(5 * time.Minute)

	assert.Len(t, l.buckets, 1)
	_, kept := l.buckets["biz_2"]
	assert.True(t, kept)
}
