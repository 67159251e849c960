package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathLocksExclusive(t *testing.T) {
	locks := newPathLocks()
	release, err := locks.acquire(context.Background(), []string{"/b", "/a", "/b"})
	require.NoError(t, err)
	assert.Equal(t, 2, locks.len())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, []string{"/c", "/a"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, locks.len(), "failed acquire must not leak entries")

	release()
	assert.Equal(t, 0, locks.len())

	release, err = locks.acquire(context.Background(), []string{"/a", "/c"})
	require.NoError(t, err)
	release()
	assert.Equal(t, 0, locks.len())
}

func TestPathLocksWaitForRelease(t *testing.T) {
	locks := newPathLocks()
	release, err := locks.acquire(context.Background(), []string{"/x"})
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := locks.acquire(context.Background(), []string{"/x"})
		assert.NoError(t, err)
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire did not wait")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never proceeded")
	}
}
