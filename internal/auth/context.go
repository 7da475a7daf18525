// Package auth carries the authenticated caller through request contexts
// and issues and verifies the bearer tokens that identify them.
package auth

import "context"

// Global roles. They are assigned by the identity provider, not stored here.
const (
	RoleUser       = "USER"
	RoleOrganizer  = "ORGANIZER"
	RoleSuperAdmin = "SUPERADMIN"
)

type contextKey struct{}

type AuthContext struct {
	UserID   int64
	Username string
	Role     string
	TokenID  string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// IsModerator reports an organizer or administrator role.
func IsModerator(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == RoleOrganizer || ac.Role == RoleSuperAdmin
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == RoleSuperAdmin
}

// ValidRole reports whether role is one of the known global roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleOrganizer, RoleSuperAdmin:
		return true
	}
	return false
}

// ContextAuthorizer answers role questions from the request's AuthContext.
// It only knows the caller, so questions about any other user are false.
type ContextAuthorizer struct{}

func (ContextAuthorizer) IsModerator(ctx context.Context, userID int64) bool {
	return userID != 0 && UserID(ctx) == userID && IsModerator(ctx)
}

func (ContextAuthorizer) IsAdmin(ctx context.Context, userID int64) bool {
	return userID != 0 && UserID(ctx) == userID && IsAdmin(ctx)
}
