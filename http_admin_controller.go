package auth

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

const (
	APIVersion             = "1.0.0"
	defaultActivityLimit   = 50
	maxActivityLimit       = DefaultActivityFeedSize
	recordStatusActive     = "active"
	recordStatusSoftDelete = "deleted"
)

// AdminUserView adds the soft delete state to the public user view
type AdminUserView struct {
	*UserView
	RecordStatus string `json:"status"`
}

func NewAdminUserView(user *User) *AdminUserView {
	status := recordStatusActive
	if user.IsDeleted() {
		status = recordStatusSoftDelete
	}
	return &AdminUserView{UserView: NewUserView(user), RecordStatus: status}
}

// ActivityFormatter shapes activity events for the admin feed
type ActivityFormatter func(ActivityEvent) any

type AdminController struct {
	Logger   Logger
	Now      func() time.Time
	Activity ActivityReader
	Format   ActivityFormatter

	admin *UserAdmin
}

type AdminControllerOption func(*AdminController)

func WithActivityReader(reader ActivityReader) AdminControllerOption {
	return func(c *AdminController) {
		c.Activity = reader
	}
}

func WithActivityFormatter(format ActivityFormatter) AdminControllerOption {
	return func(c *AdminController) {
		if format != nil {
			c.Format = format
		}
	}
}

func WithAdminClock(now func() time.Time) AdminControllerOption {
	return func(c *AdminController) {
		if now != nil {
			c.Now = now
		}
	}
}

func NewAdminController(svc Services, opts ...AdminControllerOption) *AdminController {
	s := svc.withDefaults()
	c := &AdminController{
		Logger: s.Logger,
		Now:    time.Now,
		Format: func(e ActivityEvent) any { return e },
		admin:  NewUserAdmin(*s),
	}
	if reader, ok := s.Activity.(ActivityReader); ok {
		c.Activity = reader
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (a *AdminController) AssignRoles(ctx router.Context) error {
	id, err := userIDParam(ctx)
	if err != nil {
		return err
	}

	payload, err := ParseAssignRoles(ctx.Body())
	if err != nil {
		return err
	}

	user, err := a.admin.AssignRoles(ctx.Context(), a.actor(ctx), id, payload.Roles)
	if err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Roles de usuario actualizados exitosamente", fiber.Map{
		"user": NewUserView(user),
	})
}

func (a *AdminController) GetRoles(ctx router.Context) error {
	id, err := userIDParam(ctx)
	if err != nil {
		return err
	}

	user, err := a.admin.Get(ctx.Context(), id)
	if err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Roles del usuario obtenidos exitosamente", fiber.Map{
		"user":  NewUserView(user),
		"roles": user.Roles,
	})
}

func (a *AdminController) GetCapabilities(ctx router.Context) error {
	id, err := userIDParam(ctx)
	if err != nil {
		return err
	}

	user, caps, err := a.admin.Capabilities(ctx.Context(), id)
	if err != nil {
		return err
	}

	registry := a.admin.svc.Authorizer.Registry()
	descriptions := make(map[Capability]string, len(caps))
	for _, c := range caps {
		descriptions[c] = registry.DescriptionOf(c)
	}

	return Success(ctx, http.StatusOK, "", fiber.Map{
		"user":                    NewUserView(user),
		"capabilities":            caps,
		"capability_descriptions": descriptions,
	})
}

func (a *AdminController) SetStatus(ctx router.Context) error {
	id, err := userIDParam(ctx)
	if err != nil {
		return err
	}

	payload := new(StatusPayload)
	if err := ctx.Bind(payload); err != nil {
		return badBody(err)
	}
	if err := payload.Validate(); err != nil {
		return ValidationError(ValidationErrors(err))
	}

	user, err := a.admin.SetStatus(ctx.Context(), a.actor(ctx), id, AccountStatus(payload.Status))
	if err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Estado de usuario actualizado exitosamente", fiber.Map{
		"user": NewUserView(user),
	})
}

func (a *AdminController) SoftDelete(ctx router.Context) error {
	id, err := userIDParam(ctx)
	if err != nil {
		return err
	}

	user, err := a.admin.SoftDelete(ctx.Context(), a.actor(ctx), id)
	if err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Usuario eliminado exitosamente", fiber.Map{
		"user": NewAdminUserView(user),
	})
}

func (a *AdminController) Restore(ctx router.Context) error {
	id, err := userIDParam(ctx)
	if err != nil {
		return err
	}

	user, err := a.admin.Restore(ctx.Context(), a.actor(ctx), id)
	if err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Usuario restaurado exitosamente", fiber.Map{
		"user": NewAdminUserView(user),
	})
}

func (a *AdminController) ForceDelete(ctx router.Context) error {
	id, err := userIDParam(ctx)
	if err != nil {
		return err
	}

	user, err := a.admin.HardDelete(ctx.Context(), a.actor(ctx), id)
	if err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Usuario eliminado permanentemente", fiber.Map{
		"id":    user.ID,
		"email": user.Email,
	})
}

func (a *AdminController) ListDeleted(ctx router.Context) error {
	records, err := a.admin.ListDeleted(ctx.Context())
	if err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Usuarios eliminados obtenidos exitosamente", fiber.Map{
		"users":       adminViews(records),
		"total_count": len(records),
	})
}

func (a *AdminController) Dashboard(ctx router.Context) error {
	admin, ok := UserFromLocals(ctx)
	if !ok {
		return ErrUnauthorized
	}

	return Success(ctx, http.StatusOK, "Bienvenido al Panel de Administración", fiber.Map{
		"admin":     NewUserView(admin),
		"timestamp": a.Now().Format(TimestampLayout),
	})
}

func (a *AdminController) Stats(ctx router.Context) error {
	stats, err := a.admin.Stats(ctx.Context())
	if err != nil {
		return err
	}

	now := a.Now()
	zone, _ := now.Zone()

	return Success(ctx, http.StatusOK, "Estadísticas del sistema obtenidas exitosamente", fiber.Map{
		"stats": fiber.Map{
			"total_users":   stats.TotalUsers,
			"active_users":  stats.ActiveUsers,
			"deleted_users": stats.DeletedUsers,
			"users_by_role": stats.UsersByRole,
			"system_info": fiber.Map{
				"api_version": APIVersion,
				"go_version":  runtime.Version(),
				"server_time": now.Format(TimestampLayout),
				"timezone":    zone,
			},
		},
	})
}

func (a *AdminController) Users(ctx router.Context) error {
	includeDeleted, _ := strconv.ParseBool(ctx.Query("include_deleted", "false"))

	records, err := a.admin.List(ctx.Context(), includeDeleted)
	if err != nil {
		return err
	}

	return Success(ctx, http.StatusOK, "Usuarios obtenidos exitosamente", fiber.Map{
		"users":       adminViews(records),
		"total_count": len(records),
		"filters":     fiber.Map{"include_deleted": includeDeleted},
	})
}

func (a *AdminController) ActivityFeed(ctx router.Context) error {
	limit := ctx.QueryInt("limit", defaultActivityLimit)
	if limit <= 0 || limit > maxActivityLimit {
		limit = defaultActivityLimit
	}

	entries := []any{}
	if a.Activity != nil {
		for _, e := range a.Activity.Recent(limit) {
			entries = append(entries, a.Format(e))
		}
	}

	return Success(ctx, http.StatusOK, "Registro de actividad obtenido exitosamente", fiber.Map{
		"activities":  entries,
		"total_count": len(entries),
	})
}

func (a *AdminController) actor(ctx router.Context) ActorRef {
	user, _ := UserFromLocals(ctx)
	return ActorFromUser(user)
}

func adminViews(records []*User) []*AdminUserView {
	out := make([]*AdminUserView, 0, len(records))
	for _, u := range records {
		out = append(out, NewAdminUserView(u))
	}
	return out
}

func userIDParam(ctx router.Context) (int64, error) {
	id := ctx.ParamsInt("id", 0)
	if id <= 0 {
		return 0, withMeta(ErrUserNotFound, map[string]any{"id": ctx.Param("id", "")})
	}
	return int64(id), nil
}
