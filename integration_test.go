package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	auth "github.com/felapi/fel-auth"
	"github.com/felapi/fel-auth/activitymap"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	*testEnv
	app *fiber.App
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	env := newTestEnv(t)

	srv := auth.NewServer(auth.ServerConfig{
		Logger:                env.logger,
		DisableStartupMessage: true,
	})

	auth.RegisterRoutes(srv, auth.RouteConfig{
		Auth:  auth.NewHTTPAuthenticator(testConfig{expiry: 3600}, env.svc),
		Users: auth.NewAuthController(env.svc, auth.WithControllerClock(env.clock.Now)),
		Admin: auth.NewAdminController(env.svc,
			auth.WithAdminClock(env.clock.Now),
			auth.WithActivityFormatter(activitymap.Formatter(activitymap.WithClock(env.clock.Now))),
		),
	})

	return &testApp{testEnv: env, app: srv.WrappedRouter()}
}

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
	Data    map[string]any      `json:"data"`
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		// sent verbatim
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (a *testApp) login(t *testing.T, email, password string) string {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/api/v1/login", "", fiber.Map{"email": email, "password": password})
	require.Equal(t, http.StatusOK, status, body.Error)
	return body.Data["token"].(string)
}

func (a *testApp) adminToken(t *testing.T) string {
	t.Helper()
	a.activeUser(t, "root@x.com", "secret1", "admin")
	return a.login(t, "root@x.com", "secret1")
}

func userPath(id int64, suffix string) string {
	return fmt.Sprintf("/api/v1/users/%d%s", id, suffix)
}

func TestHTTP_RegisterAndVerify(t *testing.T) {
	a := newTestApp(t)

	status, body := a.do(t, http.MethodPost, "/api/v1/register", "", fiber.Map{"email": "a@x.com"})
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, body.Success)
	assert.Equal(t, "a@x.com", body.Data["email"])

	code := a.mail.code("a@x.com")
	require.Len(t, code, 32)

	status, body = a.do(t, http.MethodPost, "/api/v1/verify-account", "", fiber.Map{"email": "a@x.com", "code": "wrong"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, body.Success)
	assert.Equal(t, "Código de verificación inválido o expirado", body.Error)

	status, body = a.do(t, http.MethodPost, "/api/v1/verify-account", "", fiber.Map{"email": "a@x.com", "code": code})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "complete_profile", body.Data["next_step"])
	assert.NotEmpty(t, body.Data["token"])

	user := body.Data["user"].(map[string]any)
	assert.Equal(t, true, user["email_verified"])
	assert.Equal(t, "active", user["account_status"])
	assert.NotContains(t, user, "verification_code")

	// the link from the email is idempotent
	q := url.Values{"email": {"a@x.com"}, "code": {code}}
	status, body = a.do(t, http.MethodGet, "/api/v1/verify-account?"+q.Encode(), "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Tu cuenta ya ha sido verificada anteriormente", body.Message)
}

func TestHTTP_RegisterValidation(t *testing.T) {
	a := newTestApp(t)

	status, body := a.do(t, http.MethodPost, "/api/v1/register", "", fiber.Map{"email": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body.Errors, "email")
}

func TestHTTP_LoginBeforeVerification(t *testing.T) {
	a := newTestApp(t)

	status, _ := a.do(t, http.MethodPost, "/api/v1/register", "", fiber.Map{"email": "a@x.com"})
	require.Equal(t, http.StatusCreated, status)

	status, body := a.do(t, http.MethodPost, "/api/v1/login", "", fiber.Map{"email": "a@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, auth.ErrPendingVerification.Message, body.Error)

	// even with a stored password the pending state wins
	user, err := a.users.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	user.PasswordHash = mustHash(t, "secret1")
	require.NoError(t, a.users.Save(context.Background(), user, auth.ColumnPasswordHash))

	status, body = a.do(t, http.MethodPost, "/api/v1/login", "", fiber.Map{"email": "a@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, auth.ErrPendingVerification.Message, body.Error)
}

func TestHTTP_AssignRolesIsAtomic(t *testing.T) {
	a := newTestApp(t)
	token := a.adminToken(t)
	target := a.activeUser(t, "b@x.com", "secret1", "expositor")

	status, body := a.do(t, http.MethodPut, userPath(target.ID, "/roles"), token, fiber.Map{"roles": []string{"admin", "invalid_role"}})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.False(t, body.Success)

	stored, err := a.users.FindByID(context.Background(), target.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"expositor"}, stored.Roles)

	status, _ = a.do(t, http.MethodPut, userPath(target.ID, "/roles"), token, fiber.Map{})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = a.do(t, http.MethodPut, userPath(target.ID, "/roles"), token, fiber.Map{"roles": []string{"prensa"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"prensa"}, body.Data["user"].(map[string]any)["roles"])

	status, body = a.do(t, http.MethodGet, userPath(target.ID, "/roles"), token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Roles del usuario obtenidos exitosamente", body.Message)
	assert.Equal(t, []any{"prensa"}, body.Data["roles"])
}

func TestHTTP_AssignRolesRequiresStringArray(t *testing.T) {
	a := newTestApp(t)
	token := a.adminToken(t)
	target := a.activeUser(t, "b@x.com", "secret1", "expositor")

	status, body := a.do(t, http.MethodPut, userPath(target.ID, "/roles"), token, fiber.Map{"roles": "admin"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "Se requiere un array de roles", body.Error)

	status, body = a.do(t, http.MethodPut, userPath(target.ID, "/roles"), token, fiber.Map{"roles": []any{"admin", 5}})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "Rol inválido: 5", body.Error)

	status, body = a.do(t, http.MethodPut, userPath(target.ID, "/roles"), token, "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Cuerpo de la solicitud inválido", body.Error)

	stored, err := a.users.FindByID(context.Background(), target.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"expositor"}, stored.Roles)
}

func TestHTTP_MalformedBodyHidesDecoderError(t *testing.T) {
	a := newTestApp(t)

	status, body := a.do(t, http.MethodPost, "/api/v1/register", "", "{\"email\":")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Cuerpo de la solicitud inválido", body.Error)
}

func TestHTTP_EmailIsCaseInsensitive(t *testing.T) {
	a := newTestApp(t)

	status, body := a.do(t, http.MethodPost, "/api/v1/register", "", fiber.Map{"email": "Case@x.com"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "case@x.com", body.Data["email"])

	status, body = a.do(t, http.MethodPost, "/api/v1/register", "", fiber.Map{"email": "case@x.com"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "case@x.com", body.Data["email"])

	total, err := a.users.Count(context.Background(), auth.UserCountFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	status, body = a.do(t, http.MethodPost, "/api/v1/verify-account", "", fiber.Map{"email": "CASE@X.COM", "code": a.mail.code("case@x.com")})
	require.Equal(t, http.StatusOK, status)
	token := body.Data["token"].(string)

	status, _ = a.do(t, http.MethodPost, "/api/v1/complete-profile", token, fiber.Map{
		"first_name": "Ana",
		"last_name":  "Pérez",
		"password":   "secret1",
	})
	require.Equal(t, http.StatusOK, status)

	a.login(t, "Case@X.com", "secret1")
}

func TestHTTP_NonAdminIsForbidden(t *testing.T) {
	a := newTestApp(t)
	existing := a.activeUser(t, "b@x.com", "secret1")
	a.activeUser(t, "c@x.com", "secret1")
	token := a.login(t, "c@x.com", "secret1")

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/admin/"},
		{http.MethodGet, "/api/v1/admin/stats"},
		{http.MethodGet, "/api/v1/admin/users"},
		{http.MethodGet, "/api/v1/admin/activity"},
		{http.MethodGet, "/api/v1/users/deleted"},
		{http.MethodPut, userPath(existing.ID, "/roles")},
		{http.MethodPut, userPath(9999, "/roles")},
		{http.MethodGet, userPath(9999, "/capabilities")},
		{http.MethodDelete, userPath(existing.ID, "")},
		{http.MethodDelete, userPath(9999, "/force")},
	}

	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			status, body := a.do(t, r.method, r.path, token, fiber.Map{"roles": []string{"admin"}})
			assert.Equal(t, http.StatusForbidden, status)
			assert.False(t, body.Success)
		})
	}

	stored, err := a.users.FindByID(context.Background(), existing.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"visitante"}, stored.Roles)
}

func TestHTTP_Authentication(t *testing.T) {
	a := newTestApp(t)
	user := a.activeUser(t, "a@x.com", "secret1")
	token := a.login(t, "a@x.com", "secret1")

	status, body := a.do(t, http.MethodGet, "/api/v1/private/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, auth.ErrUnauthorized.Message, body.Error)

	status, body = a.do(t, http.MethodGet, "/api/v1/private/profile", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, auth.ErrInvalidToken.Message, body.Error)

	status, body = a.do(t, http.MethodGet, "/api/v1/private/profile", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ana Pérez", body.Data["user"].(map[string]any)["full_name"])

	status, body = a.do(t, http.MethodGet, "/api/v1/roles", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 5, body.Data["total_count"])

	// a soft deleted user holding a valid token is treated as absent
	require.NoError(t, a.users.SoftDelete(context.Background(), user.ID))
	status, _ = a.do(t, http.MethodGet, "/api/v1/private/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHTTP_CompleteProfile(t *testing.T) {
	a := newTestApp(t)

	_, err := auth.NewRegisterUserHandler(a.svc).Handle(context.Background(), auth.RegisterUserMessage{Email: "a@x.com"})
	require.NoError(t, err)

	status, body := a.do(t, http.MethodPost, "/api/v1/verify-account", "", fiber.Map{"email": "a@x.com", "code": a.mail.code("a@x.com")})
	require.Equal(t, http.StatusOK, status)
	token := body.Data["token"].(string)

	status, body = a.do(t, http.MethodPost, "/api/v1/complete-profile", token, fiber.Map{"first_name": "A"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body.Errors, "first_name")
	assert.Contains(t, body.Errors, "password")

	status, _ = a.do(t, http.MethodPost, "/api/v1/complete-profile", token, fiber.Map{
		"first_name": "Ana",
		"last_name":  "Pérez",
		"password":   "secret1",
	})
	require.Equal(t, http.StatusOK, status)

	a.login(t, "a@x.com", "secret1")
}

func TestHTTP_AdminLifecycle(t *testing.T) {
	a := newTestApp(t)
	token := a.adminToken(t)
	target := a.activeUser(t, "b@x.com", "secret1")

	status, body := a.do(t, http.MethodPut, userPath(target.ID, "/status"), token, fiber.Map{"status": "suspended"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "suspended", body.Data["user"].(map[string]any)["account_status"])

	status, _ = a.do(t, http.MethodPut, userPath(target.ID, "/status"), token, fiber.Map{"status": "archived"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = a.do(t, http.MethodPut, userPath(target.ID, "/restore"), token, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = a.do(t, http.MethodDelete, userPath(target.ID, ""), token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "deleted", body.Data["user"].(map[string]any)["status"])

	status, body = a.do(t, http.MethodGet, "/api/v1/users/deleted", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body.Data["total_count"])

	status, body = a.do(t, http.MethodGet, "/api/v1/admin/users?include_deleted=true", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body.Data["total_count"])

	status, body = a.do(t, http.MethodGet, "/api/v1/admin/stats", token, nil)
	require.Equal(t, http.StatusOK, status)
	stats := body.Data["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["total_users"])
	assert.EqualValues(t, 1, stats["deleted_users"])

	status, body = a.do(t, http.MethodPut, userPath(target.ID, "/restore"), token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "active", body.Data["user"].(map[string]any)["status"])
	assert.Equal(t, "suspended", body.Data["user"].(map[string]any)["account_status"])

	status, _ = a.do(t, http.MethodDelete, userPath(target.ID, "/force"), token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = a.do(t, http.MethodDelete, userPath(target.ID, "/force"), token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = a.do(t, http.MethodGet, "/api/v1/users/abc/roles", token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = a.do(t, http.MethodGet, "/api/v1/admin/activity?limit=3", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body.Data["total_count"])
	first := body.Data["activities"].([]any)[0].(map[string]any)
	assert.Equal(t, string(auth.ActivityEventUserPurged), first["type"])
}

func TestHTTP_RestoreKeepsRecord(t *testing.T) {
	a := newTestApp(t)
	token := a.adminToken(t)
	target := a.activeUser(t, "b@x.com", "secret1", "expositor")

	before, err := a.users.FindByID(context.Background(), target.ID, false)
	require.NoError(t, err)

	a.clock.Advance(time.Minute)

	status, _ := a.do(t, http.MethodDelete, userPath(target.ID, ""), token, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := a.do(t, http.MethodPut, userPath(target.ID, "/restore"), token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "active", body.Data["user"].(map[string]any)["status"])

	after, err := a.users.FindByID(context.Background(), target.ID, false)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHTTP_Health(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, "2025-03-01 12:00:00", out["timestamp"])
}
