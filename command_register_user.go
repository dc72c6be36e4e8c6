package auth

import (
	"context"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

type RegisterUserMessage struct {
	Email string `json:"email" form:"email"`
	// OnResponse receives the outcome once the command succeeds
	OnResponse func(*RegisterUserResult) `json:"-" form:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate will validate the payload
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, validation.Length(3, 255), is.Email),
	)
}

// RegisterUserResult reports the account and whether an existing
// pending account only got a new code.
type RegisterUserResult struct {
	User   *User
	Resent bool
}

type RegisterUserHandler struct {
	svc *Services
}

var _ command.Commander[RegisterUserMessage] = (*RegisterUserHandler)(nil)

func NewRegisterUserHandler(svc Services) *RegisterUserHandler {
	return &RegisterUserHandler{svc: svc.withDefaults()}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
	}

	res, err := h.execute(ctx, event)
	if err != nil {
		return err
	}
	notify(event.OnResponse, res)
	return nil
}

// Handle executes the command and returns its result
func (h *RegisterUserHandler) Handle(ctx context.Context, event RegisterUserMessage) (res *RegisterUserResult, err error) {
	event.OnResponse = capture(&res, event.OnResponse)
	err = h.Execute(ctx, event)
	return res, err
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*RegisterUserResult, error) {
	event.Email = NormalizeEmail(event.Email)
	if err := event.Validate(); err != nil {
		return nil, ValidationError(ValidationErrors(err))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := event.Email

	existing, err := h.svc.Users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return h.resend(ctx, existing)
	case !IsErrorCode(err, TextCodeUserNotFound):
		return nil, err
	}

	user, code, err := h.svc.Machine.Register(email)
	if err != nil {
		return nil, err
	}

	if err := h.svc.Users.Save(ctx, user); err != nil {
		return nil, err
	}

	h.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		Actor:     ActorRef{ID: strconv.FormatInt(user.ID, 10), Type: ActorTypeUser},
		UserID:    strconv.FormatInt(user.ID, 10),
		ToStatus:  user.Status,
	})

	if err := h.svc.Mailer.SendVerificationEmail(ctx, user.Email, code); err != nil {
		h.svc.Logger.Error("verification email failed", "email", user.Email, "error", err)
	}

	return &RegisterUserResult{User: user}, nil
}

// resend treats a duplicate registration of an unverified account as a
// request for a new code.
func (h *RegisterUserHandler) resend(ctx context.Context, user *User) (*RegisterUserResult, error) {
	if user.EmailVerified {
		return nil, withMeta(ErrEmailAlreadyRegistered, map[string]any{"email": user.Email})
	}

	code, err := h.svc.Machine.RegenerateCode(user)
	if err != nil {
		return nil, err
	}

	if err := h.svc.Users.Save(ctx, user, verificationColumns...); err != nil {
		return nil, err
	}

	h.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventVerificationSent,
		Actor:     ActorRef{ID: strconv.FormatInt(user.ID, 10), Type: ActorTypeUser},
		UserID:    strconv.FormatInt(user.ID, 10),
		Metadata:  map[string]any{"source": "register"},
	})

	if err := h.svc.Mailer.SendVerificationEmail(ctx, user.Email, code); err != nil {
		h.svc.Logger.Error("verification email failed", "email", user.Email, "error", err)
	}

	return &RegisterUserResult{User: user, Resent: true}, nil
}
