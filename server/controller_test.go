package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/vanilla-kitchen/go-identity"
	"github.com/vanilla-kitchen/go-identity/server"
)

// memoryDirectory implements identity.Users with duplicate-email checks.
type memoryDirectory struct {
	byUID   map[string]*identity.User
	byEmail map[string]*identity.User
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		byUID:   map[string]*identity.User{},
		byEmail: map[string]*identity.User{},
	}
}

func (d *memoryDirectory) FindByExternalUID(_ context.Context, uid string) (*identity.User, error) {
	if user, ok := d.byUID[uid]; ok {
		return user, nil
	}
	return nil, identity.ErrUserNotFound
}

func (d *memoryDirectory) FindByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	for _, user := range d.byUID {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (d *memoryDirectory) Register(_ context.Context, user *identity.User) (*identity.User, error) {
	if _, exists := d.byEmail[user.Email]; exists {
		return nil, errors.New("user already registered", errors.CategoryConflict)
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	d.byUID[*user.ExternalUID] = user
	d.byEmail[user.Email] = user
	return user, nil
}

func (d *memoryDirectory) Upsert(_ context.Context, uid string, attrs identity.ProfileAttrs) (*identity.User, error) {
	if user, ok := d.byUID[uid]; ok {
		return user, nil
	}
	external := uid
	user := &identity.User{
		ID:          uuid.New(),
		ExternalUID: &external,
		Name:        attrs.Name,
		Email:       attrs.Email,
		Role:        identity.RoleUser,
	}
	d.byUID[uid] = user
	d.byEmail[attrs.Email] = user
	return user, nil
}

func (d *memoryDirectory) AnonymizeAndClose(_ context.Context, user *identity.User) error {
	if user.ExternalUID != nil {
		delete(d.byUID, *user.ExternalUID)
	}
	delete(d.byEmail, user.Email)
	user.Anonymize()
	return nil
}

// tokenVerifier maps bearer tokens to uids, anything else is invalid.
func tokenVerifier(tokens map[string]string) identity.TokenVerifier {
	return identity.TokenVerifierFunc(func(_ context.Context, token string) (*identity.ExternalIdentity, error) {
		uid, ok := tokens[token]
		if !ok {
			return nil, identity.ErrInvalidToken
		}
		return &identity.ExternalIdentity{
			SubjectUID:  uid,
			Email:       uid + "@example.com",
			DisplayName: "Someone",
		}, nil
	})
}

func setupServer(t *testing.T, directory identity.Users, tokens map[string]string) *fiber.App {
	t.Helper()

	app := fiber.New()
	ctrl := server.NewController(
		directory,
		identity.NewAdminGate("super-secret"),
		tokenVerifier(tokens),
	)
	ctrl.RegisterRoutes(app)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) (int, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	res, err := app.Test(req)
	require.NoError(t, err)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	decoded := map[string]any{}
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &decoded))
	}
	return res.StatusCode, decoded
}

func TestRegisterUserEndpoint(t *testing.T) {
	app := setupServer(t, newMemoryDirectory(), nil)

	status, body := postJSON(t, app, "/auth/register", map[string]any{
		"firebase_uid": "fb-123",
		"name":         "Julia Child",
		"email":        "julia@example.com",
	})

	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]any)
	user := data["user"].(map[string]any)
	assert.Equal(t, "fb-123", user["firebase_uid"])
	assert.Equal(t, "user", user["role"])
}

func TestRegisterUserValidation(t *testing.T) {
	app := setupServer(t, newMemoryDirectory(), nil)

	status, body := postJSON(t, app, "/auth/register", map[string]any{
		"firebase_uid": "fb-123",
		"name":         "J",
		"email":        "not-an-email",
	})

	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, false, body["success"])

	fields := body["errors"].(map[string]any)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	directory := newMemoryDirectory()
	app := setupServer(t, directory, nil)

	status, _ := postJSON(t, app, "/auth/register", map[string]any{
		"firebase_uid": "fb-1",
		"name":         "Julia Child",
		"email":        "julia@example.com",
	})
	require.Equal(t, fiber.StatusCreated, status)

	status, body := postJSON(t, app, "/auth/register", map[string]any{
		"firebase_uid": "fb-2",
		"name":         "Impostor",
		"email":        "julia@example.com",
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, status)

	fields := body["errors"].(map[string]any)
	assert.Contains(t, fields, "email")
}

func TestRegisterAdminWithValidCode(t *testing.T) {
	app := setupServer(t, newMemoryDirectory(), nil)

	status, body := postJSON(t, app, "/admin/register", map[string]any{
		"firebase_uid": "fb-admin",
		"name":         "Head Chef",
		"email":        "chef@example.com",
		"admin_code":   "super-secret",
	})

	require.Equal(t, fiber.StatusCreated, status)
	data := body["data"].(map[string]any)
	admin := data["admin"].(map[string]any)
	assert.Equal(t, "admin", admin["role"])
}

func TestRegisterAdminWithWrongCode(t *testing.T) {
	directory := newMemoryDirectory()
	app := setupServer(t, directory, nil)

	status, body := postJSON(t, app, "/admin/register", map[string]any{
		"firebase_uid": "fb-admin",
		"name":         "Head Chef",
		"email":        "chef@example.com",
		"admin_code":   "guessing",
	})

	// No account is created at all, let alone a downgraded one.
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	fields := body["errors"].(map[string]any)
	assert.Contains(t, fields, "admin_code")

	_, err := directory.FindByExternalUID(context.Background(), "fb-admin")
	assert.Error(t, err)
}

func TestCheckEndpoints(t *testing.T) {
	directory := newMemoryDirectory()
	adminUID := "fb-admin"
	_, err := directory.Register(context.Background(), &identity.User{
		ExternalUID: &adminUID,
		Name:        "Head Chef",
		Email:       "chef@example.com",
		Role:        identity.RoleAdmin,
	})
	require.NoError(t, err)

	userUID := "fb-user"
	_, err = directory.Register(context.Background(), &identity.User{
		ExternalUID: &userUID,
		Name:        "Julia Child",
		Email:       "julia@example.com",
		Role:        identity.RoleUser,
	})
	require.NoError(t, err)

	app := setupServer(t, directory, map[string]string{
		"admin-token": adminUID,
		"user-token":  userUID,
	})

	get := func(path, token string) int {
		req := httptest.NewRequest("GET", path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res, err := app.Test(req)
		require.NoError(t, err)
		return res.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, get("/auth/check", "user-token"))
	assert.Equal(t, fiber.StatusOK, get("/auth/check", "admin-token"))
	assert.Equal(t, fiber.StatusUnauthorized, get("/auth/check", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get("/auth/check", "bogus"))

	assert.Equal(t, fiber.StatusOK, get("/admin/check", "admin-token"))
	assert.Equal(t, fiber.StatusForbidden, get("/admin/check", "user-token"))
	assert.Equal(t, fiber.StatusUnauthorized, get("/admin/check", ""))
}

func TestLogoutEndpoints(t *testing.T) {
	directory := newMemoryDirectory()
	userUID := "fb-user"
	_, err := directory.Register(context.Background(), &identity.User{
		ExternalUID: &userUID,
		Name:        "Julia Child",
		Email:       "julia@example.com",
		Role:        identity.RoleUser,
	})
	require.NoError(t, err)

	app := setupServer(t, directory, map[string]string{"user-token": userUID})

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	req = httptest.NewRequest("POST", "/auth/logout", nil)
	res, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
}
