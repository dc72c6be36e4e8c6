package auth

import (
	"context"
	"strconv"
	"time"
)

// UserStats is the admin dashboard summary
type UserStats struct {
	TotalUsers   int            `json:"total_users"`
	ActiveUsers  int            `json:"active_users"`
	DeletedUsers int            `json:"deleted_users"`
	UsersByRole  map[string]int `json:"users_by_role"`
}

// UserAdmin implements the administrative lifecycle operations. Callers
// are expected to have passed the admin authorization gate.
type UserAdmin struct {
	svc *Services
}

func NewUserAdmin(svc Services) *UserAdmin {
	return &UserAdmin{svc: svc.withDefaults()}
}

// Get returns a non deleted user
func (a *UserAdmin) Get(ctx context.Context, id int64) (*User, error) {
	return a.svc.Users.FindByID(ctx, id, false)
}

// Capabilities returns the user with its derived capabilities
func (a *UserAdmin) Capabilities(ctx context.Context, id int64) (*User, []Capability, error) {
	user, err := a.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return user, a.svc.Authorizer.CapabilitiesOf(user), nil
}

// AssignRoles replaces the user's roles. The whole set is validated
// before anything is written, and only the roles column is updated.
func (a *UserAdmin) AssignRoles(ctx context.Context, actor ActorRef, id int64, roles *[]string) (*User, error) {
	user, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if roles == nil {
		return nil, withMessage(ErrValidation, rolesArrayRequired)
	}

	names, err := a.svc.Authorizer.Registry().ParseRoles(*roles)
	if err != nil {
		return nil, err
	}

	previous := user.Roles
	user.Roles = make([]string, 0, len(names))
	for _, n := range names {
		user.Roles = append(user.Roles, string(n))
	}

	if err := a.svc.Users.Save(ctx, user, ColumnRoles); err != nil {
		user.Roles = previous
		return nil, err
	}

	a.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventUserRolesUpdated,
		Actor:     actor,
		UserID:    strconv.FormatInt(user.ID, 10),
		Metadata:  map[string]any{"from_roles": previous, "to_roles": user.Roles},
	})

	return user, nil
}

// SetStatus moves the account along the status graph
func (a *UserAdmin) SetStatus(ctx context.Context, actor ActorRef, id int64, target AccountStatus) (*User, error) {
	user, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from, err := a.svc.Machine.Transition(user, target)
	if err != nil {
		return nil, err
	}
	if from == target {
		return user, nil
	}

	if err := a.svc.Users.Save(ctx, user, ColumnAccountStatus); err != nil {
		return nil, err
	}

	a.svc.record(ctx, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     strconv.FormatInt(user.ID, 10),
		FromStatus: from,
		ToStatus:   target,
	})

	return user, nil
}

// SoftDelete hides the user from default reads
func (a *UserAdmin) SoftDelete(ctx context.Context, actor ActorRef, id int64) (*User, error) {
	if _, err := a.Get(ctx, id); err != nil {
		return nil, err
	}

	if err := a.svc.Users.SoftDelete(ctx, id); err != nil {
		return nil, err
	}

	user, err := a.svc.Users.FindByID(ctx, id, true)
	if err != nil {
		return nil, err
	}

	a.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     actor,
		UserID:    strconv.FormatInt(id, 10),
	})

	return user, nil
}

// Restore undoes a soft delete. Restoring a user that is not deleted
// fails with ErrNotDeleted.
func (a *UserAdmin) Restore(ctx context.Context, actor ActorRef, id int64) (*User, error) {
	user, err := a.svc.Users.FindByID(ctx, id, true)
	if err != nil {
		return nil, err
	}

	if err := a.svc.Machine.Restore(user); err != nil {
		return nil, err
	}

	if err := a.svc.Users.Restore(ctx, id); err != nil {
		// lost a race with another restore
		if IsErrorCode(err, TextCodeUserNotFound) {
			return nil, ErrNotDeleted
		}
		return nil, err
	}

	a.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventUserRestored,
		Actor:     actor,
		UserID:    strconv.FormatInt(id, 10),
	})

	return a.svc.Users.FindByID(ctx, id, false)
}

// HardDelete removes the row permanently. A second call fails with
// ErrUserNotFound. The returned user is the last known snapshot.
func (a *UserAdmin) HardDelete(ctx context.Context, actor ActorRef, id int64) (*User, error) {
	user, err := a.svc.Users.FindByID(ctx, id, true)
	if err != nil {
		return nil, err
	}

	if err := a.svc.Users.HardDelete(ctx, id); err != nil {
		return nil, err
	}

	a.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventUserPurged,
		Actor:     actor,
		UserID:    strconv.FormatInt(id, 10),
		Metadata:  map[string]any{"email": user.Email},
	})

	return user, nil
}

func (a *UserAdmin) List(ctx context.Context, includeDeleted bool) ([]*User, error) {
	return a.svc.Users.ListAll(ctx, includeDeleted)
}

func (a *UserAdmin) ListDeleted(ctx context.Context) ([]*User, error) {
	return a.svc.Users.ListDeleted(ctx)
}

// Stats counts non deleted users, active ones, deleted ones and users
// per role. Every registered role is present in UsersByRole.
func (a *UserAdmin) Stats(ctx context.Context) (*UserStats, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	total, err := a.svc.Users.Count(ctx, UserCountFilter{})
	if err != nil {
		return nil, err
	}

	active, err := a.svc.Users.Count(ctx, UserCountFilter{Status: AccountStatusActive})
	if err != nil {
		return nil, err
	}

	deleted, err := a.svc.Users.Count(ctx, UserCountFilter{OnlyDeleted: true})
	if err != nil {
		return nil, err
	}

	counts, err := a.svc.Users.CountByRole(ctx)
	if err != nil {
		return nil, err
	}

	byRole := map[string]int{}
	for _, name := range a.svc.Authorizer.Registry().RoleNames() {
		byRole[string(name)] = counts[string(name)]
	}

	return &UserStats{
		TotalUsers:   total,
		ActiveUsers:  active,
		DeletedUsers: deleted,
		UsersByRole:  byRole,
	}, nil
}
