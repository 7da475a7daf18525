package points

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/store"
)

func TestReconcileDetectsDrift(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	user := mustUser(t, db, "alice")
	other := mustUser(t, db, "bob")

	_, err := svc.Award(ctx, Change{UserID: user, Points: 120, Reason: "bonus"})
	require.NoError(t, err)
	_, err = svc.Award(ctx, Change{UserID: other, Points: 30, Reason: "bonus"})
	require.NoError(t, err)

	// Corrupt the cache behind the service's back.
	require.NoError(t, store.NewPointsStore(db).SetBalance(ctx, user, 500, 500, time.Now()))

	m, err := svc.Reconcile(ctx, user)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConsistency))
	require.NotNil(t, m)
	assert.Equal(t, int64(500), m.CachedPoints)
	assert.Equal(t, int64(120), m.ReplayedPoints)

	checked, mismatches, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	require.Len(t, mismatches, 1)
	assert.Equal(t, user, mismatches[0].UserID)

	require.NoError(t, svc.Repair(ctx, user))
	m, err = svc.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, m)

	b, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(120), b.Points)
}

func TestReconcileMatchesClampedReplay(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	user := mustUser(t, db, "carol")

	steps := []struct {
		award bool
		n     int64
	}{
		{false, 100}, {true, 80}, {false, 100}, {true, 30}, {true, 450},
	}
	for _, s := range steps {
		c := Change{UserID: user, Points: s.n, Reason: "step"}
		var err error
		if s.award {
			_, err = svc.Award(ctx, c)
		} else {
			_, err = svc.Deduct(ctx, c)
		}
		require.NoError(t, err)
	}

	m, err := svc.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, m)

	b, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	// 0 -> 0 -> 80 -> 0 -> 30 -> 480
	assert.Equal(t, int64(480), b.Points)
	assert.Equal(t, int64(360), b.LedgerTotal)
	assert.Equal(t, 4, b.Level)
}
