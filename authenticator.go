package auth

import (
	"context"
	"strconv"
	"time"
)

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, payload LoginPayload) (*User, string, error)
	UserFromToken(ctx context.Context, token string) (*User, error)
}

type Auther struct {
	svc *Services
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(svc Services) *Auther {
	return &Auther{svc: svc.withDefaults()}
}

// Login checks credentials and the account state, returning the user
// and a fresh token.
//
// An account without a password can only be one that never completed
// its profile, so it is gated on its state before credentials: a
// pending account reports PendingVerification rather than a credential
// error.
func (s *Auther) Login(ctx context.Context, payload LoginPayload) (*User, string, error) {
	payload.Email = NormalizeEmail(payload.Email)
	if err := payload.Validate(); err != nil {
		return nil, "", ValidationError(ValidationErrors(err))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := s.svc.Users.FindByEmail(ctx, payload.Email)
	if err != nil {
		if IsErrorCode(err, TextCodeUserNotFound) {
			s.loginFailed(ctx, nil, payload.Email, "unknown_email")
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if user.PasswordHash == nil || *user.PasswordHash == "" {
		if err := s.svc.Machine.CheckLogin(user); err != nil {
			s.loginFailed(ctx, user, payload.Email, "not_active")
			return nil, "", err
		}
		s.loginFailed(ctx, user, payload.Email, "no_password")
		return nil, "", ErrInvalidCredentials
	}

	if err := s.svc.Passwords.ComparePasswordAndHash(payload.Password, *user.PasswordHash); err != nil {
		s.loginFailed(ctx, user, payload.Email, "bad_password")
		return nil, "", ErrInvalidCredentials
	}

	if err := s.svc.Machine.CheckLogin(user); err != nil {
		s.loginFailed(ctx, user, payload.Email, "not_active")
		return nil, "", err
	}

	token, err := s.svc.Tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}

	id := strconv.FormatInt(user.ID, 10)
	s.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: id, Type: ActorTypeUser},
		UserID:    id,
	})

	return user, token, nil
}

// UserFromToken validates token and loads its non deleted user
func (s *Auther) UserFromToken(ctx context.Context, token string) (*User, error) {
	id, err := s.svc.Tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	user, err := s.svc.Users.FindByID(ctx, id, false)
	if err != nil {
		if IsErrorCode(err, TextCodeUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

func (s *Auther) loginFailed(ctx context.Context, user *User, email, reason string) {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{Type: ActorTypeUser},
		Metadata:  map[string]any{"email": email, "reason": reason},
	}
	if user != nil {
		event.UserID = strconv.FormatInt(user.ID, 10)
		event.Actor.ID = event.UserID
	}
	s.svc.record(ctx, event)
}
