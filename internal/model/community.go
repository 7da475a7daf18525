package model

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	ProfileImage *string   `json:"profile_image"`
	CreatedAt    time.Time `json:"created_at"`
}

// GroupRecord is a stored group. Use Group(id) for its chat context.
type GroupRecord struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityRecord is a stored activity. Use Activity(id) for its chat context.
type ActivityRecord struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageKind string

const (
	MessageUser    MessageKind = "USER"
	MessageSystem  MessageKind = "SYSTEM"
	MessageWarning MessageKind = "WARNING"
	MessageBan     MessageKind = "BAN"
)

type Message struct {
	ID        int64       `json:"id"`
	Context   Context     `json:"context"`
	SenderID  *int64      `json:"sender_id"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Attendance records whether a member showed up to an activity.
type Attendance struct {
	ID         int64     `json:"id"`
	ActivityID int64     `json:"activity_id"`
	UserID     int64     `json:"user_id"`
	Present    bool      `json:"present"`
	MarkedBy   int64     `json:"marked_by"`
	MarkedAt   time.Time `json:"marked_at"`
}
