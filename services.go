package auth

import "context"

// Services bundles the collaborators shared by the account flows and
// the HTTP controllers.
type Services struct {
	Users      Users
	Machine    *AccountStateMachine
	Tokens     TokenService
	Mailer     Mailer
	Passwords  PasswordAuthenticator
	Authorizer *Authorizer
	Activity   ActivitySink
	Logger     Logger
}

// withDefaults fills optional collaborators. Users and Tokens are
// required and left alone.
func (s Services) withDefaults() *Services {
	if s.Machine == nil {
		s.Machine = NewAccountStateMachine()
	}
	if s.Mailer == nil {
		s.Mailer = noopMailer{}
	}
	if s.Passwords == nil {
		s.Passwords = BcryptHasher{}
	}
	if s.Authorizer == nil {
		s.Authorizer = NewAuthorizer(nil)
	}
	s.Activity = normalizeActivitySink(s.Activity)
	if s.Logger == nil {
		s.Logger = defLogger{}
	}
	return &s
}

func (s *Services) record(ctx context.Context, event ActivityEvent) {
	recordActivity(ctx, s.Activity, s.Logger, event)
}
