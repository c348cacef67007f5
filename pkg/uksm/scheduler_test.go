package uksm

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Idle() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("scheduler did not go idle in time")
}

func TestSchedulerAddRejectsDoubleRegistration(t *testing.T) {
	s := NewScheduler(newFakeGateway())
	pid := os.Getpid()

	require.NoError(t, s.Add(pid, nil))
	waitIdle(t, s)

	err := s.Add(pid, nil)
	require.Error(t, err)
	assert.True(t, s.Registered(pid))
}

func TestSchedulerAddRejectsMisalignedWindow(t *testing.T) {
	s := NewScheduler(newFakeGateway())
	err := s.Add(os.Getpid(), &Window{Start: 1, End: uint64(PageSize)})
	require.Error(t, err)
	assert.False(t, s.Registered(os.Getpid()))
}

func TestSchedulerAddRejectsUnknownPid(t *testing.T) {
	s := NewScheduler(newFakeGateway())
	err := s.Add(-1, nil)
	require.Error(t, err)
}

func TestSchedulerDelRejectsUnregistered(t *testing.T) {
	s := NewScheduler(newFakeGateway())
	err := s.Del(12345)
	require.Error(t, err)
}

// After Del and drain, the pid is gone from the registry and no tracker
// persists for it.
func TestSchedulerDelCleansUpRegistryAndQueues(t *testing.T) {
	s := NewScheduler(newFakeGateway())
	pid := os.Getpid()

	require.NoError(t, s.Add(pid, nil))
	waitIdle(t, s)
	assert.True(t, s.Registered(pid))

	require.NoError(t, s.Del(pid))
	waitIdle(t, s)

	assert.False(t, s.Registered(pid))
	_, _, _, ok := s.TrackerStatus(pid)
	assert.False(t, ok)
}

func TestSchedulerRefreshAllIsDedupedAndDrains(t *testing.T) {
	s := NewScheduler(newFakeGateway())
	pid := os.Getpid()
	require.NoError(t, s.Add(pid, nil))
	waitIdle(t, s)

	s.RefreshAll()
	s.RefreshAll()
	waitIdle(t, s)

	s.mu.Lock()
	assert.Empty(t, s.refreshQ)
	s.mu.Unlock()
}

// A pid queued for merge but deleted before the worker reaches it has no
// tracker anymore; the merge must be a silent no-op.
func TestSchedulerMergeOfDeletedPidIsNoop(t *testing.T) {
	s := NewScheduler(newFakeGateway())
	pid := os.Getpid()
	require.NoError(t, s.Add(pid, nil))
	waitIdle(t, s)

	s.mu.Lock()
	s.enqueueMergeLocked(pid)
	s.mu.Unlock()
	require.NoError(t, s.Del(pid))
	s.mu.Lock()
	assert.Empty(t, s.mergeQ)
	s.mu.Unlock()
	waitIdle(t, s)

	// Re-queue a merge for the now-deleted pid, as a MergeAll racing the
	// Del would have; the worker must skip it without error.
	s.mu.Lock()
	s.enqueueMergeLocked(pid)
	s.kickLocked()
	s.mu.Unlock()
	waitIdle(t, s)

	_, _, _, ok := s.TrackerStatus(pid)
	assert.False(t, ok)
}

func TestSchedulerMergeAllDrainsLRUOnce(t *testing.T) {
	gw := newFakeGateway()
	s := NewScheduler(gw)
	pid := os.Getpid()
	require.NoError(t, s.Add(pid, nil))
	waitIdle(t, s)

	s.MergeAll()
	waitIdle(t, s)

	assert.Equal(t, 1, gw.drainCalls)
}
