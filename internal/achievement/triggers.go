package achievement

import (
	"context"

	"github.com/dukerupert/huddle/internal/model"
)

// Event is a user action that may unlock achievements.
type Event string

const (
	EventMessageSent    Event = "message_sent"
	EventProfileUpdated Event = "profile_updated"
	EventActivityJoined Event = "activity_joined"
	EventGroupJoined    Event = "group_joined"
	EventCreated        Event = "created"
	EventPointsChanged  Event = "points_changed"
)

// ExpertLevel is the level that unlocks TitleExpert.
const ExpertLevel = 5

type rule struct {
	event Event
	title string
	met   func(ctx context.Context, e *Engine, userID int64) (bool, error)
}

func atLeast(n int, count func(ctx context.Context, e *Engine, userID int64) (int, error)) func(context.Context, *Engine, int64) (bool, error) {
	return func(ctx context.Context, e *Engine, userID int64) (bool, error) {
		c, err := count(ctx, e, userID)
		if err != nil {
			return false, err
		}
		return c >= n, nil
	}
}

func messagesSent(ctx context.Context, e *Engine, userID int64) (int, error) {
	return e.messages.CountSentBy(ctx, userID)
}

func activitiesJoined(ctx context.Context, e *Engine, userID int64) (int, error) {
	return e.memberships.CountActive(ctx, userID, model.ContextActivity)
}

func groupsJoined(ctx context.Context, e *Engine, userID int64) (int, error) {
	return e.memberships.CountActive(ctx, userID, model.ContextGroup)
}

func created(ctx context.Context, e *Engine, userID int64) (int, error) {
	return e.community.CountCreatedBy(ctx, userID)
}

func level(ctx context.Context, e *Engine, userID int64) (int, error) {
	return e.points.Level(ctx, userID)
}

func hasProfileImage(ctx context.Context, e *Engine, userID int64) (bool, error) {
	return e.users.HasProfileImage(ctx, userID)
}

// rules is the fixed trigger table. Conditions use >= so a missed event is
// picked up by the next one, or by CheckAll.
var rules = []rule{
	{EventMessageSent, TitleFirstMessage, atLeast(1, messagesSent)},
	{EventProfileUpdated, TitleProfileComplete, hasProfileImage},
	{EventActivityJoined, TitleFirstActivity, atLeast(1, activitiesJoined)},
	{EventActivityJoined, TitleFrequentParticipant, atLeast(5, activitiesJoined)},
	{EventGroupJoined, TitleFirstGroup, atLeast(1, groupsJoined)},
	{EventCreated, TitleOrganizer, atLeast(1, created)},
	{EventPointsChanged, TitleExpert, atLeast(ExpertLevel, level)},
}
