package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

// APIPrefix is the versioned prefix of every API route
const APIPrefix = "/api/v1"

// RouteConfig groups what RegisterRoutes mounts
type RouteConfig struct {
	Auth  *RouteAuthenticator
	Users *AuthController
	Admin *AdminController
	// Limiter guards the unauthenticated account endpoints, optional.
	// It runs on the fiber app because it keys on the client IP.
	Limiter fiber.Handler
}

// ServerConfig configures the fiber app behind the router
type ServerConfig struct {
	AppName               string
	DisableStartupMessage bool
	Logger                Logger
	// Middleware runs on the fiber app before any route
	Middleware []fiber.Handler
}

// NewServer builds the go-router fiber adapter with the error envelope
// installed as the app error handler.
func NewServer(cfg ServerConfig) router.Server[*fiber.App] {
	return router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app := fiber.New(fiber.Config{
			AppName:               cfg.AppName,
			ErrorHandler:          HTTPErrorHandler(cfg.Logger),
			DisableStartupMessage: cfg.DisableStartupMessage,
			UnescapePath:          true,
		})
		for _, mw := range cfg.Middleware {
			app.Use(mw)
		}
		return app
	})
}

func RegisterRoutes(srv router.Server[*fiber.App], cfg RouteConfig) {
	if cfg.Limiter != nil {
		app := srv.WrappedRouter()
		for _, path := range []string{"/register", "/login", "/verify-account", "/resend-verification"} {
			app.Use(APIPrefix+path, cfg.Limiter)
		}
	}

	r := srv.Router()
	r.Get("/health", cfg.Users.Health).SetName("health")

	api := r.Group(APIPrefix)

	api.Post("/register", cfg.Users.RegisterPost).SetName("register")
	api.Post("/login", cfg.Users.LoginPost).SetName("login")
	api.Get("/verify-account", cfg.Users.VerifyGet).SetName("verify-account.get")
	api.Post("/verify-account", cfg.Users.VerifyPost).SetName("verify-account.post")
	api.Post("/resend-verification", cfg.Users.ResendPost).SetName("resend-verification")
	api.Get("/public", cfg.Users.Public).SetName("public")

	authenticated := cfg.Auth.Protect(RequireAuthenticated())

	api.Post("/complete-profile", cfg.Users.CompleteProfilePost, authenticated...).SetName("complete-profile")
	api.Get("/private/profile", cfg.Users.ProfileGet, authenticated...).SetName("private.profile")
	api.Get("/roles", cfg.Users.RolesGet, authenticated...).SetName("roles")

	// group middleware is copied when a route is added, Use goes first
	users := api.Group("/users")
	users.Use(cfg.Auth.Protect(RequireRoles(RoleAdmin))...)
	users.Get("/deleted", cfg.Admin.ListDeleted).SetName("users.deleted")
	users.Put("/:id/roles", cfg.Admin.AssignRoles).SetName("users.roles.put")
	users.Get("/:id/roles", cfg.Admin.GetRoles).SetName("users.roles.get")
	users.Get("/:id/capabilities", cfg.Admin.GetCapabilities).SetName("users.capabilities")
	users.Put("/:id/status", cfg.Admin.SetStatus).SetName("users.status")
	users.Put("/:id/restore", cfg.Admin.Restore).SetName("users.restore")
	users.Delete("/:id/force", cfg.Admin.ForceDelete).SetName("users.force-delete")
	users.Delete("/:id", cfg.Admin.SoftDelete).SetName("users.delete")

	panel := api.Group("/admin")
	panel.Use(cfg.Auth.Protect(RequireRoles(RoleAdmin))...)
	panel.Get("/", cfg.Admin.Dashboard).SetName("admin.dashboard")
	panel.Get("/stats", cfg.Admin.Stats).SetName("admin.stats")
	panel.Get("/users", cfg.Admin.Users).SetName("admin.users")
	panel.Get("/activity", cfg.Admin.ActivityFeed).SetName("admin.activity")
}
