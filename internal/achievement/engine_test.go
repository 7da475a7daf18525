package achievement

import (
	"context"
	"sync"
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

type fixture struct {
	db     *database.DB
	points *points.Service
	engine *Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logging.Discard()
	runner := sideeffect.New(logger, nil)
	pts := points.NewService(db, runner, nil, logger)
	engine := NewEngine(db, pts, runner, nil, logger)
	_, err = engine.Seed(context.Background())
	require.NoError(t, err)
	return &fixture{db: db, points: pts, engine: engine}
}

func (f *fixture) user(t *testing.T, name string) int64 {
	t.Helper()
	u, err := store.NewUserStore(f.db).Create(context.Background(), name, time.Now().UTC())
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := f.points.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b.Points
}

func TestDefaultCatalog(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	require.Len(t, catalog, 7)

	rewards := map[string]int64{}
	for _, a := range catalog {
		rewards[a.Title] = a.PointsReward
	}
	assert.Equal(t, int64(50), rewards[TitleFirstMessage])
	assert.Equal(t, int64(75), rewards[TitleFirstActivity])
	assert.Equal(t, int64(200), rewards[TitleFrequentParticipant])
	assert.Equal(t, int64(300), rewards[TitleExpert])

	// Every rule must point at a catalog entry.
	for _, r := range rules {
		_, ok := rewards[r.title]
		assert.True(t, ok, "rule title %q missing from catalog", r.title)
	}
}

func TestParseCatalogRejectsDuplicates(t *testing.T) {
	_, err := parseCatalog([]byte(`
achievements:
  - title: A
  - title: A
`))
	assert.Error(t, err)

	_, err = parseCatalog([]byte(`
achievements:
  - title: B
    points_reward: -5
`))
	assert.Error(t, err)
}

func TestSeedIsIdempotent(t *testing.T) {
	f := setup(t)
	n, err := f.engine.Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	list, err := f.engine.Catalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 7)
}

func TestAwardIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.user(t, "alice")

	ok, err := f.engine.Award(ctx, user, TitleOrganizer)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.engine.Award(ctx, user, TitleOrganizer)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int64(150), f.balance(t, user))

	entries, err := f.points.History(ctx, user, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "achievement unlocked: "+TitleOrganizer, entries[0].Reason)
	assert.Equal(t, int64(150), entries[0].Points)
}

func TestAwardUnknownTitleIsNoop(t *testing.T) {
	f := setup(t)
	user := f.user(t, "bob")

	ok, err := f.engine.Award(context.Background(), user, "Moon Landing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), f.balance(t, user))
}

func TestConcurrentAwardGrantsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.user(t, "carol")

	const n = 8
	var wg sync.WaitGroup
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.engine.Award(ctx, user, TitleFirstGroup)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for ok := range results {
		if ok {
			granted++
		}
	}
	assert.Equal(t, 1, granted)
	assert.Equal(t, int64(75), f.balance(t, user))

	state, err := f.engine.State(ctx, user)
	require.NoError(t, err)
	assert.Len(t, state.Achievements, 1)
}

func TestActivityJoinTriggers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.user(t, "dave")
	ms := store.NewMembershipStore(f.db)

	for i := int64(1); i <= 4; i++ {
		_, err := ms.Join(ctx, user, model.Activity(i), model.RoleMember, time.Now())
		require.NoError(t, err)
	}
	awarded, err := f.engine.Evaluate(ctx, EventActivityJoined, user)
	require.NoError(t, err)
	assert.Equal(t, []string{TitleFirstActivity}, awarded)

	_, err = ms.Join(ctx, user, model.Activity(5), model.RoleMember, time.Now())
	require.NoError(t, err)
	awarded, err = f.engine.Evaluate(ctx, EventActivityJoined, user)
	require.NoError(t, err)
	assert.Equal(t, []string{TitleFrequentParticipant}, awarded)

	assert.Equal(t, int64(275), f.balance(t, user))
}

func TestLevelFiveUnlocksExpert(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.user(t, "erin")

	_, err := f.points.Award(ctx, points.Change{UserID: user, Points: 450, Reason: "seed"})
	require.NoError(t, err)
	assert.Equal(t, int64(450), f.balance(t, user))

	res, err := f.points.Award(ctx, points.Change{UserID: user, Points: 60, Reason: "bonus"})
	require.NoError(t, err)
	assert.Equal(t, int64(510), res.Balance.Points)
	assert.Equal(t, 5, res.Balance.Level)

	state, err := f.engine.State(ctx, user)
	require.NoError(t, err)
	require.Len(t, state.Achievements, 1)
	assert.Equal(t, TitleExpert, state.Achievements[0].Achievement.Title)
	assert.Equal(t, int64(810), state.Points)
	assert.Equal(t, 8, state.Level)

	// Further awards do not unlock it again.
	_, err = f.points.Award(ctx, points.Change{UserID: user, Points: 100, Reason: "bonus"})
	require.NoError(t, err)
	assert.Equal(t, int64(910), f.balance(t, user))
}

func TestManualAward(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.user(t, "fay")

	a, err := f.engine.achievements.GetByTitle(ctx, TitleProfileComplete)
	require.NoError(t, err)

	got, err := f.engine.ManualAward(ctx, user, a.ID)
	require.NoError(t, err)
	assert.Equal(t, TitleProfileComplete, got.Title)

	_, err = f.engine.ManualAward(ctx, user, a.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.engine.ManualAward(ctx, user, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, int64(50), f.balance(t, user))
}

func TestCheckAllCatchesUpMissedTriggers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := f.user(t, "gus")
	now := time.Now()

	_, err := store.NewCommunityStore(f.db).CreateGroup(ctx, "Climbers", user, now)
	require.NoError(t, err)
	_, err = store.NewMembershipStore(f.db).Join(ctx, user, model.Group(1), model.RoleOrganizer, now)
	require.NoError(t, err)
	_, err = store.NewMessageStore(f.db).Create(ctx, model.Group(1), &user, model.MessageUser, "hi", now)
	require.NoError(t, err)

	awarded, err := f.engine.CheckAll(ctx, user)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{TitleFirstMessage, TitleFirstGroup, TitleOrganizer}, awarded)
	assert.Equal(t, int64(50+75+150), f.balance(t, user))

	again, err := f.engine.CheckAll(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFireSwallowsFailures(t *testing.T) {
	f := setup(t)
	user := f.user(t, "hal")
	require.NoError(t, f.db.Close())

	assert.NotPanics(t, func() {
		f.engine.Fire(context.Background(), EventMessageSent, user)
	})
}
