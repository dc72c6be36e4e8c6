package auth

import (
	"context"
	"strconv"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// LocalsUserKey is the request store key holding the authorized *User
const LocalsUserKey = "auth.user"

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// UserFromLocals returns the user attached by the authorization gate
func UserFromLocals(c router.Context) (*User, bool) {
	raw, ok := c.Get(LocalsUserKey, nil).(*User)
	if ok && raw != nil {
		return raw, true
	}
	return FromContext(c.Context())
}

// ActorFromUser describes who performed an operation. Users holding the
// admin role are reported as admins.
func ActorFromUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: ActorTypeSystem}
	}
	actor := ActorRef{ID: strconv.FormatInt(user.ID, 10), Type: ActorTypeUser}
	if user.HasRole(RoleAdmin) {
		actor.Type = ActorTypeAdmin
	}
	return actor
}
