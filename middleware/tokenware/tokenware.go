// Package tokenware is the fiber middleware that turns a bearer token into
// a directory user: verify the token, sync the profile into the directory,
// and stash both the identity and the record on the request.
package tokenware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vanilla-kitchen/go-identity"
)

const (
	// DefaultContextKey is the Locals key holding the directory *identity.User.
	DefaultContextKey = "user"
	// DefaultIdentityKey is the Locals key holding the *identity.ExternalIdentity.
	DefaultIdentityKey = "identity"
)

type Config struct {
	// Verifier validates the bearer token. Required.
	Verifier identity.TokenVerifier

	// Directory syncs the verified identity into the local user store.
	// Required.
	Directory identity.Users

	// Filter skips the middleware when it returns true.
	Filter func(*fiber.Ctx) bool

	// ContextKey overrides the Locals key for the user record.
	ContextKey string

	// IdentityKey overrides the Locals key for the verified identity.
	IdentityKey string

	Logger identity.Logger
}

func (c *Config) setDefaults() {
	if c.ContextKey == "" {
		c.ContextKey = DefaultContextKey
	}
	if c.IdentityKey == "" {
		c.IdentityKey = DefaultIdentityKey
	}
	if c.Logger == nil {
		c.Logger = identity.DefaultLogger()
	}
}

// New creates the authentication middleware. Requests without a bearer token
// or with a token that fails verification are rejected with 401 before any
// handler runs.
func New(config Config) fiber.Handler {
	cfg := config
	cfg.setDefaults()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		token := ExtractBearer(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization token not provided",
			})
		}

		ident, err := cfg.Verifier.Verify(c.UserContext(), token)
		if err != nil {
			if identity.IsTokenExpiredError(err) {
				cfg.Logger.Debug("tokenware: expired token")
			} else {
				cfg.Logger.Info("tokenware: token rejected: %v", err)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		user, err := cfg.Directory.Upsert(c.UserContext(), ident.SubjectUID, identity.AttrsFromIdentity(ident))
		if err != nil {
			cfg.Logger.Error("tokenware: directory sync failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Could not resolve user",
			})
		}

		c.Locals(cfg.IdentityKey, ident)
		c.Locals(cfg.ContextKey, user)
		c.SetUserContext(identity.WithUser(
			identity.WithIdentity(c.UserContext(), ident),
			user,
		))

		return c.Next()
	}
}

// RequireAdmin guards a route group behind the admin role. It assumes New
// already ran; a request that reaches it without a user record is treated as
// unauthenticated rather than panicking.
func RequireAdmin(contextKey ...string) fiber.Handler {
	key := DefaultContextKey
	if len(contextKey) > 0 && contextKey[0] != "" {
		key = contextKey[0]
	}

	return func(c *fiber.Ctx) error {
		user, ok := c.Locals(key).(*identity.User)
		if !ok || user == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization token not provided",
			})
		}

		if !user.IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		return c.Next()
	}
}

// UserFromCtx returns the directory record stashed by New.
func UserFromCtx(c *fiber.Ctx, contextKey ...string) (*identity.User, bool) {
	key := DefaultContextKey
	if len(contextKey) > 0 && contextKey[0] != "" {
		key = contextKey[0]
	}
	user, ok := c.Locals(key).(*identity.User)
	return user, ok && user != nil
}

// IdentityFromCtx returns the verified identity stashed by New.
func IdentityFromCtx(c *fiber.Ctx, identityKey ...string) (*identity.ExternalIdentity, bool) {
	key := DefaultIdentityKey
	if len(identityKey) > 0 && identityKey[0] != "" {
		key = identityKey[0]
	}
	ident, ok := c.Locals(key).(*identity.ExternalIdentity)
	return ident, ok && ident != nil
}

// ExtractBearer pulls the token out of the Authorization header. An empty
// string means the header is missing or not a bearer scheme.
func ExtractBearer(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
