package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dukerupert/huddle/internal/logging"
	"github.com/dukerupert/huddle/internal/points"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeReconciler struct {
	mu         sync.Mutex
	mismatches []points.Mismatch
	err        error
	repaired   []int64
	calls      int
}

func (f *fakeReconciler) ReconcileAll(ctx context.Context) (int, []points.Mismatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 3, f.mismatches, f.err
}

func (f *fakeReconciler) Repair(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repaired = append(f.repaired, userID)
	return nil
}

type fakeCleaner struct {
	mu    sync.Mutex
	calls int
	idle  time.Duration
}

func (f *fakeCleaner) Cleanup(idle time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.idle = idle
	return 1
}

func (f *fakeCleaner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunReconcileRepairsWhenEnabled(t *testing.T) {
	rec := &fakeReconciler{mismatches: []points.Mismatch{{UserID: 4}, {UserID: 9}}}
	s := NewScheduler(Config{RepairMismatches: true}, rec, nil, logging.Discard())

	n := s.RunReconcile(context.Background())
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{4, 9}, rec.repaired)
}

func TestRunReconcileReportOnly(t *testing.T) {
	rec := &fakeReconciler{mismatches: []points.Mismatch{{UserID: 4}}}
	s := NewScheduler(Config{}, rec, nil, logging.Discard())

	assert.Equal(t, 1, s.RunReconcile(context.Background()))
	assert.Empty(t, rec.repaired)
}

func TestRunReconcileStorageError(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("disk gone")}
	s := NewScheduler(Config{RepairMismatches: true}, rec, nil, logging.Discard())

	assert.Equal(t, 0, s.RunReconcile(context.Background()))
	assert.Empty(t, rec.repaired)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(Config{ReconcileSchedule: "not a schedule"}, &fakeReconciler{}, nil, logging.Discard())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule reconcile")
}

func TestSchedulerRunsCleanupAndStops(t *testing.T) {
	cleaner := &fakeCleaner{}
	s := NewScheduler(Config{
		LimiterCleanupSchedule: "@every 1s",
		LimiterIdle:            time.Minute,
	}, nil, cleaner, logging.Discard())

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return cleaner.count() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()

	cleaner.mu.Lock()
	assert.Equal(t, time.Minute, cleaner.idle)
	cleaner.mu.Unlock()
}
