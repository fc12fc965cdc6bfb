package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoLockSettings(t *testing.T) {
	ctx := t.Context()
	c := newTestCore(t)

	m, err := c.AutoLockMinutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultAutoLockMinutes, m)

	require.NoError(t, c.SetAutoLockMinutes(ctx, 5))
	m, err = c.AutoLockMinutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, m)

	assert.True(t, IsValidation(c.SetAutoLockMinutes(ctx, -1)))
	assert.True(t, IsValidation(c.SetAutoLockMinutes(ctx, MaxAutoLockMinutes+1)))
}

func TestAutoLockOnGatedAccess(t *testing.T) {
	ctx := t.Context()
	clock := newFakeClock()
	ap := &fakeApprover{}
	c := newUnlockedCore(t, WithClock(clock.Now), WithApprover(ap))
	require.NoError(t, c.SetAutoLockMinutes(ctx, 5))

	clock.Advance(4 * time.Minute)
	_, err := c.CreateAccount(ctx, "")
	require.NoError(t, err, "activity resets the idle timer")

	clock.Advance(4 * time.Minute)
	assert.False(t, c.expireIdle(ctx))

	clock.Advance(time.Minute)
	_, err = c.CreateAccount(ctx, "")
	assert.ErrorIs(t, err, ErrLocked)
	assert.True(t, c.IsLocked())
	assert.Equal(t, 1, ap.rejected)
}

func TestAutoLockDisabled(t *testing.T) {
	ctx := t.Context()
	clock := newFakeClock()
	c := newUnlockedCore(t, WithClock(clock.Now))
	require.NoError(t, c.SetAutoLockMinutes(ctx, 0))

	clock.Advance(48 * time.Hour)
	assert.False(t, c.expireIdle(ctx))
	assert.False(t, c.IsLocked())
}

func TestRunAutoLock(t *testing.T) {
	clock := newFakeClock()
	c := newUnlockedCore(t, WithClock(clock.Now))
	require.NoError(t, c.SetAutoLockMinutes(t.Context(), 1))
	unlockedAt := c.Session().LastActivity()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- c.RunAutoLock(ctx, 5*time.Millisecond) }()

	clock.Advance(2 * time.Minute)
	require.Eventually(t, c.IsLocked, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	s, err := c.loadSettings(t.Context())
	require.NoError(t, err)
	assert.True(t, s.LastActivity.Equal(unlockedAt), "last activity is persisted")
}
