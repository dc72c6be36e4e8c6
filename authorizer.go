package auth

// Requirement declares what a route demands beyond authentication. The
// zero value only requires an authenticated, existing user.
//
// RequireAll switches both axes from "any of" to "all of". When both
// axes are set and RequireAll is false, satisfying either axis on its
// own is enough.
type Requirement struct {
	Roles        []RoleName
	Capabilities []Capability
	RequireAll   bool
}

// RequireAuthenticated is the empty requirement
func RequireAuthenticated() Requirement {
	return Requirement{}
}

func RequireRoles(roles ...RoleName) Requirement {
	return Requirement{Roles: roles}
}

func RequireAllRoles(roles ...RoleName) Requirement {
	return Requirement{Roles: roles, RequireAll: true}
}

func RequireCapabilities(caps ...Capability) Requirement {
	return Requirement{Capabilities: caps}
}

func RequireAllCapabilities(caps ...Capability) Requirement {
	return Requirement{Capabilities: caps, RequireAll: true}
}

// IsEmpty reports whether the requirement only asks for authentication
func (r Requirement) IsEmpty() bool {
	return len(r.Roles) == 0 && len(r.Capabilities) == 0
}

// Authorizer evaluates role and capability checks against users. The
// capability set is always derived from the user's current roles.
type Authorizer struct {
	registry *RoleRegistry
}

func NewAuthorizer(registry *RoleRegistry) *Authorizer {
	if registry == nil {
		registry = DefaultRoleRegistry()
	}
	return &Authorizer{registry: registry}
}

// Registry returns the registry backing the authorizer
func (a *Authorizer) Registry() *RoleRegistry {
	return a.registry
}

// RolesOf returns the user's roles that exist in the registry
func (a *Authorizer) RolesOf(user *User) []RoleName {
	if user == nil {
		return nil
	}
	return a.registry.KnownRoles(user.Roles)
}

// CapabilitiesOf is the deduplicated union of the user's role capabilities
func (a *Authorizer) CapabilitiesOf(user *User) []Capability {
	return a.registry.CapabilitiesOf(a.RolesOf(user))
}

// HasAnyRole is false for an empty requirement
func (a *Authorizer) HasAnyRole(user *User, required []RoleName) bool {
	if user == nil {
		return false
	}
	for _, r := range required {
		if user.HasRole(r) {
			return true
		}
	}
	return false
}

// HasAllRoles is true for an empty requirement
func (a *Authorizer) HasAllRoles(user *User, required []RoleName) bool {
	for _, r := range required {
		if user == nil || !user.HasRole(r) {
			return false
		}
	}
	return true
}

func (a *Authorizer) HasAnyCapability(user *User, required []Capability) bool {
	set := a.capabilitySet(user)
	for _, c := range required {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

func (a *Authorizer) HasAllCapabilities(user *User, required []Capability) bool {
	set := a.capabilitySet(user)
	for _, c := range required {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

func (a *Authorizer) capabilitySet(user *User) map[Capability]struct{} {
	caps := a.CapabilitiesOf(user)
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Authorize checks req against an already resolved user. It returns
// ErrUnauthorized for a nil user and ErrForbidden when the requirement
// is not met.
func (a *Authorizer) Authorize(user *User, req Requirement) error {
	if user == nil {
		return ErrUnauthorized
	}

	hasRoles := len(req.Roles) > 0
	hasCaps := len(req.Capabilities) > 0

	if hasRoles && hasCaps && !req.RequireAll {
		if a.HasAnyRole(user, req.Roles) || a.HasAnyCapability(user, req.Capabilities) {
			return nil
		}
		return withMessage(ErrForbidden, "Privilegios insuficientes")
	}

	if hasRoles {
		ok := a.HasAnyRole(user, req.Roles)
		if req.RequireAll {
			ok = a.HasAllRoles(user, req.Roles)
		}
		if !ok {
			return withMessage(ErrForbidden, "Privilegios de rol insuficientes")
		}
	}

	if hasCaps {
		ok := a.HasAnyCapability(user, req.Capabilities)
		if req.RequireAll {
			ok = a.HasAllCapabilities(user, req.Capabilities)
		}
		if !ok {
			return withMessage(ErrForbidden, "Capacidades insuficientes")
		}
	}

	return nil
}
