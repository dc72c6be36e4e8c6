package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/felapi/fel-auth/middleware/jwtware"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const genericServerError = "Error interno del servidor"

// Success writes {success:true, message?, data?}
func Success(c router.Context, status int, message string, data any) error {
	return c.JSON(status, successBody(message, data))
}

// Failure writes {success:false, error, errors?}
func Failure(c router.Context, status int, message string, fields map[string][]string) error {
	return c.JSON(status, failureBody(message, fields))
}

func successBody(message string, data any) fiber.Map {
	body := fiber.Map{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	return body
}

func failureBody(message string, fields map[string][]string) fiber.Map {
	body := fiber.Map{"success": false, "error": message}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	return body
}

// HTTPErrorHandler renders any error returned by a handler as the
// failure envelope. Internal failures never expose their cause.
func HTTPErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(failureBody(fiberErr.Message, nil))
		}

		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) || richErr.TextCode == TextCodeInternal || richErr.Code < 400 {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"error", err,
			)
			return c.Status(http.StatusInternalServerError).JSON(failureBody(genericServerError, nil))
		}

		status := StatusCode(richErr)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"path", c.Path(),
				"text_code", richErr.TextCode,
				"error", err,
			)
		} else {
			logger.Debug("request rejected",
				"path", c.Path(),
				"text_code", richErr.TextCode,
				"details", print.MaybePrettyJSON(richErr.Metadata),
			)
		}

		return c.Status(status).JSON(failureBody(richErr.Message, fieldErrors(richErr)))
	}
}

func fieldErrors(richErr *goerrors.Error) map[string][]string {
	if richErr.Metadata == nil {
		return nil
	}
	fields, _ := richErr.Metadata["errors"].(map[string][]string)
	return fields
}

// RouteAuthenticator wires token authentication and the authorization
// gate for router routes.
type RouteAuthenticator struct {
	cfg    Config
	svc    *Services
	Logger Logger
}

func NewHTTPAuthenticator(cfg Config, svc Services) *RouteAuthenticator {
	s := svc.withDefaults()
	return &RouteAuthenticator{
		cfg:    cfg,
		svc:    s,
		Logger: s.Logger,
	}
}

// ProtectedRoute authenticates the bearer token, leaving the user id
// in the request store.
func (a *RouteAuthenticator) ProtectedRoute() router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		TokenValidator: a.svc.Tokens,
		ContextKey:     a.contextKey(),
		AuthScheme:     a.cfg.GetAuthScheme(),
		ErrorHandler: func(c router.Context, err error) error {
			a.Logger.Debug("authentication failed", "path", c.Path(), "error", err)
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				return Failure(c, http.StatusUnauthorized, ErrUnauthorized.Message, nil)
			}
			return Failure(c, http.StatusUnauthorized, ErrInvalidToken.Message, nil)
		},
	})
}

// Authorize resolves the authenticated user from storage and evaluates
// req. Soft deleted users are treated as absent. On success the user is
// stored on the router context and on the request context.
func (a *RouteAuthenticator) Authorize(req Requirement) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			id, ok := jwtware.UserID(c, a.contextKey())
			if !ok {
				return ErrUnauthorized
			}

			user, err := a.svc.Users.FindByID(c.Context(), id, false)
			if err != nil {
				if IsErrorCode(err, TextCodeUserNotFound) {
					return ErrUnauthorized
				}
				return err
			}

			if err := a.svc.Authorizer.Authorize(user, req); err != nil {
				a.svc.record(c.Context(), ActivityEvent{
					EventType: ActivityEventAuthorizationDenied,
					Actor:     ActorFromUser(user),
					UserID:    ActorFromUser(user).ID,
					Metadata: map[string]any{
						"path":         c.Path(),
						"roles":        req.Roles,
						"capabilities": req.Capabilities,
					},
				})
				return err
			}

			c.Set(LocalsUserKey, user)
			c.SetContext(WithContext(c.Context(), user))
			return c.Next()
		}
	}
}

// Protect chains authentication and authorization
func (a *RouteAuthenticator) Protect(req Requirement) []router.MiddlewareFunc {
	return []router.MiddlewareFunc{a.ProtectedRoute(), a.Authorize(req)}
}

func (a *RouteAuthenticator) contextKey() string {
	if key := a.cfg.GetContextKey(); key != "" {
		return key
	}
	return jwtware.DefaultContextKey
}

// RequestLogger writes one line per request. The request id is read from
// the X-Request-ID response header set by the requestid middleware.
func RequestLogger(logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = StatusCode(err)
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
			}
		}

		args := []any{
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start).String(),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request", args...)
		} else {
			logger.Info("request", args...)
		}
		return err
	}
}
