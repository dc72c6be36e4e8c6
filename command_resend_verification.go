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

type ResendVerificationMessage struct {
	Email string `json:"email" form:"email"`
	// OnResponse receives the account the code was sent for
	OnResponse func(*User) `json:"-" form:"-"`
}

func (e ResendVerificationMessage) Type() string { return "user.verification.resend" }

func (e ResendVerificationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

// ResendVerificationHandler issues a new code. Unlike registration, a
// failed delivery is reported to the caller.
type ResendVerificationHandler struct {
	svc *Services
}

var _ command.Commander[ResendVerificationMessage] = (*ResendVerificationHandler)(nil)

func NewResendVerificationHandler(svc Services) *ResendVerificationHandler {
	return &ResendVerificationHandler{svc: svc.withDefaults()}
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification resend",
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

// Handle executes the command and returns the account
func (h *ResendVerificationHandler) Handle(ctx context.Context, event ResendVerificationMessage) (res *User, err error) {
	event.OnResponse = capture(&res, event.OnResponse)
	err = h.Execute(ctx, event)
	return res, err
}

func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) (*User, error) {
	event.Email = NormalizeEmail(event.Email)
	if err := event.Validate(); err != nil {
		return nil, ValidationError(ValidationErrors(err))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.svc.Users.FindByEmail(ctx, event.Email)
	if err != nil {
		return nil, err
	}

	code, err := h.svc.Machine.RegenerateCode(user)
	if err != nil {
		if IsErrorCode(err, TextCodeAlreadyVerified) {
			return nil, withMessage(ErrAlreadyVerified, "Esta cuenta ya ha sido verificada")
		}
		return nil, err
	}

	if err := h.svc.Users.Save(ctx, user, verificationColumns...); err != nil {
		return nil, err
	}

	if err := h.svc.Mailer.SendVerificationEmail(ctx, user.Email, code); err != nil {
		h.svc.Logger.Error("verification email failed", "email", user.Email, "error", err)
		return nil, withMeta(ErrEmailDelivery, map[string]any{"email": user.Email})
	}

	id := strconv.FormatInt(user.ID, 10)
	h.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventVerificationSent,
		Actor:     ActorRef{ID: id, Type: ActorTypeUser},
		UserID:    id,
		Metadata:  map[string]any{"source": "resend"},
	})

	return user, nil
}
