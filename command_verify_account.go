package auth

import (
	"context"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

// VerifyAccountMessage accepts the code from the query string or body
type VerifyAccountMessage struct {
	Email string `json:"email" form:"email" query:"email"`
	Code  string `json:"code" form:"code" query:"code"`
	// OnResponse receives the outcome once the command succeeds
	OnResponse func(*VerifyAccountResult) `json:"-" form:"-" query:"-"`
}

func (e VerifyAccountMessage) Type() string { return "user.verify" }

func (e VerifyAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Code, validation.Required, validation.Length(1, 128)),
	)
}

type VerifyAccountResult struct {
	User            *User
	Token           string
	AlreadyVerified bool
}

type VerifyAccountHandler struct {
	svc *Services
}

var _ command.Commander[VerifyAccountMessage] = (*VerifyAccountHandler)(nil)

func NewVerifyAccountHandler(svc Services) *VerifyAccountHandler {
	return &VerifyAccountHandler{svc: svc.withDefaults()}
}

func (h *VerifyAccountHandler) Execute(ctx context.Context, event VerifyAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account verification",
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
func (h *VerifyAccountHandler) Handle(ctx context.Context, event VerifyAccountMessage) (res *VerifyAccountResult, err error) {
	event.OnResponse = capture(&res, event.OnResponse)
	err = h.Execute(ctx, event)
	return res, err
}

func (h *VerifyAccountHandler) execute(ctx context.Context, event VerifyAccountMessage) (*VerifyAccountResult, error) {
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

	result, err := h.svc.Machine.VerifyCode(user, strings.TrimSpace(event.Code))
	if err != nil {
		return nil, err
	}

	if result == VerifyResultAlreadyVerified {
		return &VerifyAccountResult{User: user, AlreadyVerified: true}, nil
	}

	if err := h.svc.Users.Save(ctx, user, verifiedColumns...); err != nil {
		return nil, err
	}

	id := strconv.FormatInt(user.ID, 10)
	h.svc.record(ctx, ActivityEvent{
		EventType:  ActivityEventAccountVerified,
		Actor:      ActorRef{ID: id, Type: ActorTypeUser},
		UserID:     id,
		FromStatus: AccountStatusPending,
		ToStatus:   user.Status,
	})

	if err := h.svc.Mailer.SendWelcomeEmail(ctx, user.Email, user.FullName()); err != nil {
		h.svc.Logger.Error("welcome email failed", "email", user.Email, "error", err)
	}

	token, err := h.svc.Tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	return &VerifyAccountResult{User: user, Token: token}, nil
}
