// Package server exposes the HTTP surface of the identity backend: the
// registration endpoints, the role probe endpoints the client resolver
// calls, and the logout endpoints.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"

	"github.com/vanilla-kitchen/go-identity"
	"github.com/vanilla-kitchen/go-identity/middleware/tokenware"
)

// Controller wires the identity core to fiber handlers.
type Controller struct {
	directory identity.Users
	gate      *identity.AdminGate
	verifier  identity.TokenVerifier
	logger    identity.Logger
}

type ControllerOption func(*Controller)

func WithControllerLogger(logger identity.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController builds the HTTP controller over the directory, the admin
// gate, and the token verifier the middleware will use.
func NewController(directory identity.Users, gate *identity.AdminGate, verifier identity.TokenVerifier, opts ...ControllerOption) *Controller {
	c := &Controller{
		directory: directory,
		gate:      gate,
		verifier:  verifier,
		logger:    identity.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// RegisterRoutes mounts the identity endpoints:
//
//	POST /auth/register    create a regular account        (public)
//	POST /admin/register   create an elevated account      (public, gated)
//	GET  /auth/check       probe: any authenticated user   (bearer)
//	GET  /admin/check      probe: admins only              (bearer)
//	POST /auth/logout      end the user session            (bearer)
//	POST /admin/logout     end the admin session           (bearer + admin)
func (ctrl *Controller) RegisterRoutes(app fiber.Router) {
	app.Post("/auth/register", ctrl.RegisterUser)
	app.Post("/admin/register", ctrl.RegisterAdmin)

	authware := tokenware.New(tokenware.Config{
		Verifier:  ctrl.verifier,
		Directory: ctrl.directory,
		Logger:    ctrl.logger,
	})

	auth := app.Group("/auth", authware)
	auth.Get("/check", ctrl.CheckUser)
	auth.Post("/logout", ctrl.Logout)

	admin := app.Group("/admin", authware, tokenware.RequireAdmin())
	admin.Get("/check", ctrl.CheckAdmin)
	admin.Post("/logout", ctrl.Logout)
}

// RegisterUser handles POST /auth/register.
func (ctrl *Controller) RegisterUser(c *fiber.Ctx) error {
	return ctrl.register(c, identity.RoleUser, "user")
}

// RegisterAdmin handles POST /admin/register. The admin code is validated
// before any row is written; a wrong code never produces a downgraded
// account, it produces no account.
func (ctrl *Controller) RegisterAdmin(c *fiber.Ctx) error {
	return ctrl.register(c, identity.RoleAdmin, "admin")
}

func (ctrl *Controller) register(c *fiber.Ctx, role identity.UserRole, key string) error {
	payload := RegisterRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return respondValidation(c, "Invalid request body", map[string][]string{
			"base": {"could not parse request body"},
		})
	}

	if err := payload.Validate(); err != nil {
		return respondValidation(c, "The given data was invalid.", fieldErrors(err))
	}

	if role == identity.RoleAdmin {
		if err := ctrl.gate.Validate(payload.AdminCode); err != nil {
			return respondValidation(c, "The given data was invalid.", map[string][]string{
				"admin_code": {"The admin code is incorrect."},
			})
		}
	}

	uid := payload.FirebaseUID
	user := &identity.User{
		ExternalUID: &uid,
		Name:        payload.Name,
		Email:       payload.Email,
		Role:        role,
	}

	record, err := ctrl.directory.Register(c.UserContext(), user)
	if err != nil {
		var rich *errors.Error
		if errors.As(err, &rich) && rich.Category == errors.CategoryConflict {
			return respondValidation(c, "The given data was invalid.", map[string][]string{
				"email": {"The email has already been taken."},
			})
		}
		ctrl.logger.Error("server: registration failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Registration failed",
		})
	}

	return respondData(c, fiber.StatusCreated, key, record)
}

// CheckUser handles GET /auth/check: the middleware already resolved the
// record, so reaching the handler is the confirmation.
func (ctrl *Controller) CheckUser(c *fiber.Ctx) error {
	user, ok := tokenware.UserFromCtx(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authorization token not provided",
		})
	}
	return respondData(c, fiber.StatusOK, "user", user)
}

// CheckAdmin handles GET /admin/check behind RequireAdmin.
func (ctrl *Controller) CheckAdmin(c *fiber.Ctx) error {
	user, ok := tokenware.UserFromCtx(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authorization token not provided",
		})
	}
	return respondData(c, fiber.StatusOK, "admin", user)
}

// Logout handles the logout endpoints. Sessions are bearer tokens minted by
// the external provider, so there is no server-side session to destroy; the
// endpoint exists so clients have a single place to report sign-out and so
// future revocation has a home.
func (ctrl *Controller) Logout(c *fiber.Ctx) error {
	return respondMessage(c, "Logged out successfully")
}
