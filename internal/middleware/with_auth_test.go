package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-kg/internal/middleware"
)

func withIdentity(userID, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals("user_id", userID)
		}
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	}
}

func TestWithAuthStudentRole(t *testing.T) {
	app := fiber.New()
	app.Use(withIdentity("students/10", "Student"))
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}, middleware.AuthOptions{Role: middleware.AuthRoleStudent}))

	resp := perform(t, app, "/")
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestWithAuthStudentRoleDenied(t *testing.T) {
	app := fiber.New()
	app.Use(withIdentity("students/10", "guest"))
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}, middleware.AuthOptions{Role: middleware.AuthRoleStudent}))

	resp := perform(t, app, "/")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestWithAuthInstructorAllowsAdmin(t *testing.T) {
	app := fiber.New()
	app.Use(withIdentity("instructors/1", "admin"))
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}, middleware.AuthOptions{Role: middleware.AuthRoleInstructor}))

	resp := perform(t, app, "/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWithAuthAnyAllowsAnonymous(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}, middleware.AuthOptions{Role: middleware.AuthRoleAny}))

	resp := perform(t, app, "/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWithAuthAnyRequiresUserWhenAsked(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}, middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}))

	resp := perform(t, app, "/")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWithAuthOwnerParam(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	studentRoute := middleware.WithAuth(ok, middleware.AuthOptions{
		OwnerParam:       "key",
		OwnerBypassRoles: []string{middleware.AuthRoleInstructor},
	})
	instructorRoute := middleware.WithAuth(ok, middleware.AuthOptions{
		Role:       middleware.AuthRoleInstructor,
		OwnerParam: "key",
	})

	cases := []struct {
		name    string
		handler fiber.Handler
		userID  string
		role    string
		path    string
		status  int
	}{
		{name: "own key", handler: studentRoute, userID: "students/abc", role: "student", path: "/people/abc", status: fiber.StatusOK},
		{name: "bare subject", handler: studentRoute, userID: "abc", role: "student", path: "/people/abc", status: fiber.StatusOK},
		{name: "other student", handler: studentRoute, userID: "students/abc", role: "student", path: "/people/xyz", status: fiber.StatusForbidden},
		{name: "bypass role", handler: studentRoute, userID: "instructors/1", role: "instructor", path: "/people/xyz", status: fiber.StatusOK},
		{name: "anonymous", handler: studentRoute, path: "/people/abc", status: fiber.StatusUnauthorized},
		{name: "own instructor key", handler: instructorRoute, userID: "instructors/1", role: "instructor", path: "/people/1", status: fiber.StatusOK},
		{name: "other instructor", handler: instructorRoute, userID: "instructors/1", role: "instructor", path: "/people/2", status: fiber.StatusForbidden},
		{name: "admin", handler: instructorRoute, userID: "admins/root", role: "admin", path: "/people/2", status: fiber.StatusOK},
		{name: "student on instructor route", handler: instructorRoute, userID: "students/2", role: "student", path: "/people/2", status: fiber.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(withIdentity(tc.userID, tc.role))
			app.Get("/people/:key", tc.handler)

			resp := perform(t, app, tc.path)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func perform(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}
