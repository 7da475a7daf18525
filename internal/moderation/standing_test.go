package moderation

import (
	"testing"
	"time"

	"github.com/dukerupert/huddle/internal/model"
)

func TestCanChat(t *testing.T) {
	tests := []struct {
		name     string
		active   bool
		status   model.MembershipStatus
		expected bool
	}{
		{"active member", true, model.StatusActive, true},
		{"banned member", true, model.StatusBanned, false},
		{"left member", false, model.StatusActive, false},
		{"left and banned", false, model.StatusBanned, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &model.Membership{IsActive: tt.active, Status: tt.status}
			if got := CanChat(m); got != tt.expected {
				t.Errorf("CanChat = %v, want %v", got, tt.expected)
			}
		})
	}
	if CanChat(nil) {
		t.Error("nil membership must not chat")
	}
}

func TestSemaphorePriority(t *testing.T) {
	chatted := time.Now()
	tests := []struct {
		name string
		m    *model.Membership
		want Color
	}{
		{"nil", nil, ColorGrey},
		{"inactive beats banned", &model.Membership{IsActive: false, Status: model.StatusBanned, WarningCount: 3}, ColorGrey},
		{"banned beats warnings", &model.Membership{IsActive: true, Status: model.StatusBanned, WarningCount: 3, LastChatAt: &chatted}, ColorRed},
		{"warned beats chatted", &model.Membership{IsActive: true, Status: model.StatusActive, WarningCount: 1, LastChatAt: &chatted}, ColorYellow},
		{"unbanned keeps warnings", &model.Membership{IsActive: true, Status: model.StatusActive, WarningCount: 3}, ColorYellow},
		{"chatted", &model.Membership{IsActive: true, Status: model.StatusActive, LastChatAt: &chatted}, ColorDarkGreen},
		{"fresh", &model.Membership{IsActive: true, Status: model.StatusActive}, ColorLightGreen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Semaphore(tt.m); got != tt.want {
				t.Errorf("Semaphore = %q, want %q", got, tt.want)
			}
		})
	}
}
