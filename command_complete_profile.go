package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

type CompleteProfileMessage struct {
	UserID int64 `json:"-"`
	CompleteProfilePayload
	// OnResponse receives the updated account
	OnResponse func(*User) `json:"-"`
}

func (e CompleteProfileMessage) Type() string { return "user.profile.complete" }

type CompleteProfileHandler struct {
	svc *Services
}

var _ command.Commander[CompleteProfileMessage] = (*CompleteProfileHandler)(nil)

func NewCompleteProfileHandler(svc Services) *CompleteProfileHandler {
	return &CompleteProfileHandler{svc: svc.withDefaults()}
}

func (h *CompleteProfileHandler) Execute(ctx context.Context, event CompleteProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile completion",
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

// Handle executes the command and returns the updated account
func (h *CompleteProfileHandler) Handle(ctx context.Context, event CompleteProfileMessage) (res *User, err error) {
	event.OnResponse = capture(&res, event.OnResponse)
	err = h.Execute(ctx, event)
	return res, err
}

func (h *CompleteProfileHandler) execute(ctx context.Context, event CompleteProfileMessage) (*User, error) {
	if err := event.Validate(); err != nil {
		return nil, ValidationError(ValidationErrors(err))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.svc.Users.FindByID(ctx, event.UserID, false)
	if err != nil {
		return nil, err
	}

	if !user.EmailVerified {
		return nil, withMessage(ErrNotVerified, "Debes verificar tu cuenta antes de completar el perfil")
	}

	hash, err := h.svc.Passwords.HashPassword(event.Password)
	if err != nil {
		return nil, err
	}

	if err := h.svc.Machine.CompleteProfile(user, ProfileInput{
		FirstName:    event.FirstName,
		LastName:     event.LastName,
		PasswordHash: hash,
		PhoneNumber:  NormalizePhone(event.PhoneNumber, DefaultPhoneRegion),
	}); err != nil {
		return nil, err
	}

	if err := h.svc.Users.Save(ctx, user, profileColumns...); err != nil {
		return nil, err
	}

	id := strconv.FormatInt(user.ID, 10)
	h.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventProfileCompleted,
		Actor:     ActorRef{ID: id, Type: ActorTypeUser},
		UserID:    id,
	})

	return user, nil
}
