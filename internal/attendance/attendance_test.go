package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/database"
	"github.com/dukerupert/huddle/internal/logging"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/points"
	"github.com/dukerupert/huddle/internal/sideeffect"
	"github.com/dukerupert/huddle/internal/store"
)

type roles map[int64]bool

func (r roles) IsModerator(_ context.Context, userID int64) bool { return r[userID] }

type fixture struct {
	db       *database.DB
	svc      *Service
	points   *points.Service
	host     int64
	activity *model.ActivityRecord
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logging.Discard()
	pts := points.NewService(db, sideeffect.New(logger, nil), nil, logger)
	f := &fixture{db: db, points: pts, svc: NewService(db, pts, roles{}, logger)}

	f.host = f.user(t, "host")
	f.activity, err = store.NewCommunityStore(db).CreateActivity(context.Background(), "Hike", f.host, time.Now().UTC())
	require.NoError(t, err)
	f.join(t, f.host, model.RoleOrganizer)
	return f
}

func (f *fixture) user(t *testing.T, name string) int64 {
	t.Helper()
	u, err := store.NewUserStore(f.db).Create(context.Background(), name, time.Now().UTC())
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) join(t *testing.T, userID int64, role string) {
	t.Helper()
	_, err := store.NewMembershipStore(f.db).Join(context.Background(), userID, model.Activity(f.activity.ID), role, time.Now().UTC())
	require.NoError(t, err)
}

func (f *fixture) member(t *testing.T, name string, start int64) int64 {
	t.Helper()
	id := f.user(t, name)
	f.join(t, id, model.RoleMember)
	if start > 0 {
		_, err := f.points.Award(context.Background(), points.Change{UserID: id, Points: start, Reason: "seed"})
		require.NoError(t, err)
	}
	return id
}

func (f *fixture) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := f.points.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b.Points
}

func TestMarkAttendanceDeductsForNoShows(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ann := f.member(t, "ann", 150)
	ben := f.member(t, "ben", 150)

	res, err := f.svc.MarkAttendance(ctx, f.host, f.activity.ID, []Mark{
		{UserID: ann, Present: true},
		{UserID: ben, Present: false},
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.False(t, res[0].Penalized)
	assert.True(t, res[1].Penalized)
	assert.Equal(t, f.host, res[1].MarkedBy)

	assert.Equal(t, int64(150), f.balance(t, ann))
	assert.Equal(t, int64(50), f.balance(t, ben))

	hist, err := f.points.History(ctx, ben, 10, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(-NoShowPenalty), hist[0].Points)
	assert.Equal(t, "missed activity: Hike", hist[0].Reason)
	assert.Equal(t, model.Activity(f.activity.ID), hist[0].Context)
	require.NotNil(t, hist[0].CreatedBy)
	assert.Equal(t, f.host, *hist[0].CreatedBy)
}

func TestMarkAbsentTwiceChargesOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cy := f.member(t, "cy", 300)

	for i := 0; i < 2; i++ {
		_, err := f.svc.MarkAttendance(ctx, f.host, f.activity.ID, []Mark{{UserID: cy}})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(200), f.balance(t, cy))

	res, err := f.svc.MarkAttendance(ctx, f.host, f.activity.ID, []Mark{{UserID: cy, Present: true}})
	require.NoError(t, err)
	assert.False(t, res[0].Penalized)
	assert.True(t, res[0].Present)
	assert.Equal(t, int64(200), f.balance(t, cy))

	list, err := f.svc.List(ctx, cy, f.activity.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Present)
}

func TestMarkAttendanceRollsBackOnBadTarget(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dee := f.member(t, "dee", 150)
	outsider := f.user(t, "outsider")

	_, err := f.svc.MarkAttendance(ctx, f.host, f.activity.ID, []Mark{
		{UserID: dee, Present: false},
		{UserID: outsider, Present: false},
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, int64(150), f.balance(t, dee))
	list, err := f.svc.List(ctx, f.host, f.activity.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMarkAttendanceAuthorization(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	eve := f.member(t, "eve", 0)
	fox := f.member(t, "fox", 0)
	outsider := f.user(t, "outsider")

	_, err := f.svc.MarkAttendance(ctx, eve, f.activity.ID, []Mark{{UserID: fox}})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	mod := f.user(t, "mod")
	f.svc.authz = roles{mod: true}
	_, err = f.svc.MarkAttendance(ctx, mod, f.activity.ID, []Mark{{UserID: fox, Present: true}})
	assert.NoError(t, err)

	_, err = f.svc.List(ctx, outsider, f.activity.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestMarkAttendanceValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	gil := f.member(t, "gil", 0)

	_, err := f.svc.MarkAttendance(ctx, f.host, f.activity.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.MarkAttendance(ctx, f.host, f.activity.ID, []Mark{{UserID: gil}, {UserID: gil, Present: true}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.MarkAttendance(ctx, f.host, f.activity.ID+50, []Mark{{UserID: gil}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
