package model

import "time"

// PointsPerLevel is the number of points between levels.
const PointsPerLevel = 100

type PointsEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Points    int64     `json:"points"`
	Reason    string    `json:"reason"`
	Context   Context   `json:"context"`
	CreatedBy *int64    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// PointsBalance is the cached fold of a user's ledger. Points is clamped at
// zero on every mutation; LedgerTotal is the unclamped sum.
type PointsBalance struct {
	UserID      int64     `json:"user_id"`
	Points      int64     `json:"points"`
	LedgerTotal int64     `json:"ledger_total"`
	Level       int       `json:"level"`
	Progress    float64   `json:"progress_to_next_level"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LevelFor returns the level reached with the given balance.
func LevelFor(points int64) int {
	if points <= 0 {
		return 0
	}
	return int(points / PointsPerLevel)
}

// ProgressFor returns the fraction of the way to the next level, in [0, 1).
func ProgressFor(points int64) float64 {
	if points <= 0 {
		return 0
	}
	return float64(points%PointsPerLevel) / PointsPerLevel
}

// ClampedAdd applies delta to balance without letting it go below zero.
func ClampedAdd(balance, delta int64) int64 {
	if balance+delta < 0 {
		return 0
	}
	return balance + delta
}
