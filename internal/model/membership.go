package model

import "time"

type MembershipStatus string

const (
	StatusActive MembershipStatus = "ACTIVE"
	StatusBanned MembershipStatus = "BANNED"
)

const (
	RoleMember    = "member"
	RoleOrganizer = "organizer"
)

// BanThreshold is the warning count at which a membership is banned.
const BanThreshold = 3

type Membership struct {
	ID           int64            `json:"id"`
	UserID       int64            `json:"user_id"`
	Context      Context          `json:"context"`
	Role         string           `json:"role"`
	WarningCount int              `json:"warning_count"`
	Status       MembershipStatus `json:"status"`
	IsActive     bool             `json:"is_active"`
	JoinedAt     time.Time        `json:"joined_at"`
	LastChatAt   *time.Time       `json:"last_chat_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type Warning struct {
	ID           int64     `json:"id"`
	Context      Context   `json:"context"`
	TargetUserID int64     `json:"target_user_id"`
	IssuedBy     int64     `json:"issued_by"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}
