package shared

import "context"

// Role classifies API callers.
type Role string

const (
	RoleClient   Role = "client"
	RoleDesigner Role = "designer"
	RoleAdmin    Role = "admin"
)

// User is the resolved identity of the current caller.
type User struct {
	ID   int64
	Name string
	Role Role
}

type userContextKey struct{}

// ContextWithUser stores the caller identity in context.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext extracts the caller identity from context. A nil result
// means the request carried no resolvable identity; callers that tolerate
// anonymous access treat this as a soft failure.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}
