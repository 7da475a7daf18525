package model

import "time"

type Achievement struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	PointsReward int64  `json:"points_reward"`
	Icon         string `json:"icon"`
}

type UserAchievement struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id"`
	Achievement Achievement `json:"achievement"`
	DateEarned  time.Time   `json:"date_earned"`
}

type GamificationState struct {
	UserID              int64             `json:"user_id"`
	Points              int64             `json:"points"`
	Level               int               `json:"level"`
	ProgressToNextLevel float64           `json:"progress_to_next_level"`
	Achievements        []UserAchievement `json:"achievements"`
}
