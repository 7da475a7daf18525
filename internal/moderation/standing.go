package moderation

import "github.com/dukerupert/huddle/internal/model"

// CanChat reports whether the membership may post in its context.
func CanChat(m *model.Membership) bool {
	return m != nil && m.IsActive && m.Status == model.StatusActive
}

type Color string

const (
	ColorGrey       Color = "grey"
	ColorRed        Color = "red"
	ColorYellow     Color = "yellow"
	ColorDarkGreen  Color = "dark_green"
	ColorLightGreen Color = "light_green"
)

// Semaphore summarizes a membership's standing as a traffic-light color.
// Rules are checked in priority order; the first match wins.
func Semaphore(m *model.Membership) Color {
	switch {
	case m == nil || !m.IsActive:
		return ColorGrey
	case m.Status == model.StatusBanned:
		return ColorRed
	case m.WarningCount >= 1:
		return ColorYellow
	case m.LastChatAt != nil:
		return ColorDarkGreen
	default:
		return ColorLightGreen
	}
}
