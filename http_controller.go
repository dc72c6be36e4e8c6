package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// TimestampLayout is used for human readable timestamps in responses
const TimestampLayout = "2006-01-02 15:04:05"

// UserView is the public representation of a user
type UserView struct {
	*User
	FullName string `json:"full_name"`
}

func NewUserView(user *User) *UserView {
	if user == nil {
		return nil
	}
	return &UserView{User: user, FullName: user.FullName()}
}

type AuthController struct {
	Debug    bool
	Logger   Logger
	Now      func() time.Time
	Registry *RoleRegistry

	runner   *runner.Handler
	register *RegisterUserHandler
	verify   *VerifyAccountHandler
	resend   *ResendVerificationHandler
	profile  *CompleteProfileHandler
	auther   Authenticator
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// WithCommandTimeout bounds each account command run by the controller
func WithCommandTimeout(timeout time.Duration) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.runner = newCommandRunner(c.Logger, timeout)
		return c
	}
}

func WithControllerClock(now func() time.Time) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if now != nil {
			c.Now = now
		}
		return c
	}
}

func NewAuthController(svc Services, opts ...AuthControllerOption) *AuthController {
	s := svc.withDefaults()
	if s.Users == nil {
		panic("Missing Users repository in auth controller...")
	}
	if s.Tokens == nil {
		panic("Missing TokenService in auth controller...")
	}

	c := &AuthController{
		Logger:   s.Logger,
		Now:      time.Now,
		Registry: s.Authorizer.Registry(),
		runner:   newCommandRunner(s.Logger, defaultCommandTimeout),
		register: NewRegisterUserHandler(*s),
		verify:   NewVerifyAccountHandler(*s),
		resend:   NewResendVerificationHandler(*s),
		profile:  NewCompleteProfileHandler(*s),
		auther:   NewAuthenticator(*s),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

func (a *AuthController) Health(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, fiber.Map{
		"status":    "healthy",
		"message":   "API is online",
		"timestamp": a.Now().Format(TimestampLayout),
		"service":   "FEL API",
		"version":   "1.0.0",
	})
}

func (a *AuthController) Public(ctx router.Context) error {
	return Success(ctx, http.StatusOK, "Ruta pública accesible", fiber.Map{
		"api_version": "1.0",
		"status":      "active",
		"timestamp":   a.Now().Format(TimestampLayout),
	})
}

func (a *AuthController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterUserMessage)
	if err := ctx.Bind(payload); err != nil {
		return badBody(err)
	}
	a.debugPayload("REGISTER", payload)

	var result *RegisterUserResult
	payload.OnResponse = capture(&result, nil)
	if err := runner.RunCommand[RegisterUserMessage](ctx.Context(), a.runner, a.register, *payload); err != nil {
		return err
	}

	if result.Resent {
		return Success(ctx, http.StatusOK,
			"Se ha reenviado el código de verificación a tu correo electrónico",
			fiber.Map{"email": result.User.Email},
		)
	}

	return Success(ctx, http.StatusCreated,
		"Registro exitoso. Por favor verifica tu correo electrónico.",
		fiber.Map{
			"email":          result.User.Email,
			"message_detail": "Te hemos enviado un correo con el código de verificación. Por favor revisa tu bandeja de entrada.",
		},
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)
	if err := ctx.Bind(payload); err != nil {
		return badBody(err)
	}

	user, token, err := a.auther.Login(ctx.Context(), *payload)
	if err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Inicio de sesión exitoso", fiber.Map{
		"user":  NewUserView(user),
		"token": token,
	})
}

// VerifyGet reads email and code from the query string, the link sent
// by email points here.
func (a *AuthController) VerifyGet(ctx router.Context) error {
	return a.verifyAccount(ctx, VerifyAccountMessage{
		Email: ctx.Query("email", ""),
		Code:  ctx.Query("code", ""),
	})
}

func (a *AuthController) VerifyPost(ctx router.Context) error {
	payload := new(VerifyAccountMessage)
	if err := ctx.Bind(payload); err != nil {
		return badBody(err)
	}
	return a.verifyAccount(ctx, *payload)
}

func (a *AuthController) verifyAccount(ctx router.Context, payload VerifyAccountMessage) error {
	var result *VerifyAccountResult
	payload.OnResponse = capture(&result, nil)
	if err := runner.RunCommand[VerifyAccountMessage](ctx.Context(), a.runner, a.verify, payload); err != nil {
		return err
	}

	if result.AlreadyVerified {
		return Success(ctx, http.StatusOK, "Tu cuenta ya ha sido verificada anteriormente", fiber.Map{
			"email": result.User.Email,
		})
	}

	return Success(ctx, http.StatusOK, "Cuenta verificada exitosamente", fiber.Map{
		"user":      NewUserView(result.User),
		"token":     result.Token,
		"next_step": "complete_profile",
	})
}

func (a *AuthController) ResendPost(ctx router.Context) error {
	payload := new(ResendVerificationMessage)
	if err := ctx.Bind(payload); err != nil {
		return badBody(err)
	}

	var user *User
	payload.OnResponse = capture(&user, nil)
	if err := runner.RunCommand[ResendVerificationMessage](ctx.Context(), a.runner, a.resend, *payload); err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Código de verificación reenviado exitosamente", fiber.Map{
		"email": user.Email,
	})
}

func (a *AuthController) CompleteProfilePost(ctx router.Context) error {
	current, ok := UserFromLocals(ctx)
	if !ok {
		return ErrUnauthorized
	}

	payload := new(CompleteProfilePayload)
	if err := ctx.Bind(payload); err != nil {
		return badBody(err)
	}

	var user *User
	err := runner.RunCommand[CompleteProfileMessage](ctx.Context(), a.runner, a.profile, CompleteProfileMessage{
		UserID:                 current.ID,
		CompleteProfilePayload: *payload,
		OnResponse:             capture(&user, nil),
	})
	if err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Perfil completado exitosamente", fiber.Map{
		"user": NewUserView(user),
	})
}

func (a *AuthController) ProfileGet(ctx router.Context) error {
	user, ok := UserFromLocals(ctx)
	if !ok {
		return ErrUnauthorized
	}

	return Success(ctx, http.StatusOK, "Ruta privada accesible", fiber.Map{
		"user":      NewUserView(user),
		"timestamp": a.Now().Format(TimestampLayout),
	})
}

func (a *AuthController) RolesGet(ctx router.Context) error {
	roles := a.Registry.AllRoles()
	return Success(ctx, http.StatusOK, "Roles disponibles obtenidos exitosamente", fiber.Map{
		"roles":       roles,
		"total_count": len(roles),
	})
}

func (a *AuthController) debugPayload(name string, payload any) {
	if !a.Debug {
		return
	}
	a.Logger.Debug("payload "+name, "body", print.MaybePrettyJSON(payload))
}

// badBody hides the decoder error from the client
func badBody(error) error {
	return errBadBody
}
