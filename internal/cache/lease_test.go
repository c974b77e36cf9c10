package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLease(t *testing.T) {
	ctx := context.Background()
	lease := NewLocalLease()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lease.now = func() time.Time { return now }

	token, ok, err := lease.Acquire(ctx, "freight:sync:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lease.Acquire(ctx, "freight:sync:a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held lease is not granted twice")

	_, ok, _ = lease.Acquire(ctx, "freight:sync:b", time.Minute)
	assert.True(t, ok, "leases are per key")

	require.NoError(t, lease.Release(ctx, "freight:sync:a", "someone-else"))
	_, ok, _ = lease.Acquire(ctx, "freight:sync:a", time.Minute)
	assert.False(t, ok, "release with a foreign token is ignored")

	require.NoError(t, lease.Release(ctx, "freight:sync:a", token))
	_, ok, _ = lease.Acquire(ctx, "freight:sync:a", time.Minute)
	assert.True(t, ok)
}

func TestLocalLease_Expires(t *testing.T) {
	ctx := context.Background()
	lease := NewLocalLease()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lease.now = func() time.Time { return now }

	_, ok, _ := lease.Acquire(ctx, "freight:sync:a", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = lease.Acquire(ctx, "freight:sync:a", time.Minute)
	assert.True(t, ok, "expired lease can be taken over")
}
