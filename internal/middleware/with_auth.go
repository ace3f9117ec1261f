package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-kg/internal/utils"
)

// Auth role constants used by WithAuth helper.
const (
	AuthRoleAny        = "any"
	AuthRoleAdmin      = "admin"
	AuthRoleInstructor = "instructor"
	AuthRoleStudent    = "student"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
	// OwnerParam names a route parameter holding a vertex key. Callers may only access routes
	// whose key matches their own subject unless they are admins or hold a role listed in
	// OwnerBypassRoles.
	OwnerParam       string
	OwnerBypassRoles []string
}

// WithAuth wraps a handler with basic authentication/authorization guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	bypass := map[string]struct{}{AuthRoleAdmin: {}}
	for _, r := range opts.OwnerBypassRoles {
		bypass[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}

	requireUser := opts.RequireUser
	if !requireUser && (role != AuthRoleAny || opts.OwnerParam != "") {
		requireUser = true
	}

	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id")
		if requireUser && userID == nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		currentRole := normalizeRoleValue(c.Locals("user_role"))
		switch role {
		case AuthRoleAny:
		case AuthRoleAdmin:
			if currentRole != AuthRoleAdmin {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		case AuthRoleInstructor:
			if currentRole != AuthRoleInstructor && currentRole != AuthRoleAdmin {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		default:
			if currentRole != role {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		}

		if opts.OwnerParam != "" {
			if _, ok := bypass[currentRole]; !ok {
				subject, _ := userID.(string)
				if !ownsKey(subject, c.Params(opts.OwnerParam)) {
					return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
				}
			}
		}

		return handler(c)
	}
}

// ownsKey accepts a subject given either as a bare key or as a full collection/key id.
func ownsKey(subject, key string) bool {
	subject = strings.TrimSpace(subject)
	if subject == "" || key == "" {
		return false
	}
	if idx := strings.LastIndex(subject, "/"); idx >= 0 {
		subject = subject[idx+1:]
	}
	return subject == key
}
