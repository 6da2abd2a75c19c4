package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDependencyLimiterDeniesWhenDependencyLimited(t *testing.T) {
	now := time.Now()
	lower := New(1000, 1000, time.Minute)  // effectively unlimited
	dep := New(1, 1, time.Minute)          // burst of 1

	d := &DependencyLimiter{Lower: lower, Dependencies: []Named{dep}}
	require.True(t, d.Allow("k", now))

	// Exhaust the dependency directly.
	require.True(t, dep.Allow("k", now))
	require.False(t, d.Allow("k", now))
}

func TestLimitedDoesNotConsumeDependencyBudget(t *testing.T) {
	now := time.Now()
	dep := New(1, 1, time.Minute)
	require.True(t, dep.Allow("k", now))

	// A pure Limited() query on an already-exhausted bucket must not push
	// it further into debt — calling it repeatedly should be idempotent.
	require.True(t, dep.Limited("k", now))
	require.True(t, dep.Limited("k", now))
}

func TestBurstPlusOneRejected(t *testing.T) {
	now := time.Now()
	l := New(1.0/60, 3, time.Minute) // 3 burst, slow refill
	require.True(t, l.Allow("k", now))
	require.True(t, l.Allow("k", now))
	require.True(t, l.Allow("k", now))
	require.False(t, l.Allow("k", now))
}

func TestSetLimitDoesNotResetExistingBucket(t *testing.T) {
	now := time.Now()
	l := New(1, 1, time.Minute)
	require.True(t, l.Allow("k", now))
	require.False(t, l.Allow("k", now))

	// Raise the limit; the bucket should not be wiped back to full burst
	// beyond what the new configuration allows from this instant.
	l.SetLimit(1, 5, now)
	// The exhausted bucket stays exhausted at this instant.
	require.False(t, l.Allow("k", now))
	// Immediately after raising burst, a fresh key still gets its burst.
	require.True(t, l.Allow("k2", now))
}

func TestDhKeysComposesOverGroupCreation(t *testing.T) {
	r := NewDefault()
	dh := r.DhKeysLimiter()
	require.NotNil(t, dh.Lower)
	require.Len(t, dh.Dependencies, 1)
}
