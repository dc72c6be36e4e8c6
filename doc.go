// Package auth implements the FEL accounts API: email verified
// registration, JWT authentication and role/capability authorization.
//
// Account lifecycle:
//   - A User carries two independent axes. Status is one of pending,
//     active, suspended or inactive, and soft deletion is tracked by
//     DeletedAt. AccountStateMachine owns the status graph and the
//     verification code rules. Callers persist only the columns an
//     operation touched.
//   - Registration issues a 128 bit hex code valid for 24 hours. A
//     correct code activates the account and a repeated verification is
//     acknowledged without error.
//
// Authorization:
//   - RoleRegistry is the frozen catalog loaded from YAML. Capabilities
//     are always derived from the user's current roles, never stored.
//   - RouteAuthenticator chains the jwtware token check with an
//     Authorizer gate that reloads the user on every request, so soft
//     deleted users are rejected even while their token is valid.
//
// Activity sinks:
//   - ActivitySink receives audit events for registrations, logins,
//     verification, role and status changes. Sinks run best-effort (errors
//     are logged). ActivityFeed keeps recent events in memory for the
//     admin panel.
package auth
