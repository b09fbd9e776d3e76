package identity_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	identity "github.com/vanilla-kitchen/go-identity"
)

const usersSchema = `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	external_uid TEXT UNIQUE,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL,
	avatar_url TEXT,
	email_verified_at TIMESTAMP,
	created_at TIMESTAMP,
	updated_at TIMESTAMP
)`

func setupDirectoryDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = db.Exec(usersSchema)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestUpsertCreatesWithUserRole(t *testing.T) {
	directory := identity.NewUserDirectory(setupDirectoryDB(t))
	ctx := context.Background()

	user, err := directory.Upsert(ctx, "fb-123", identity.ProfileAttrs{
		Name:  "Julia Child",
		Email: "julia@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, identity.RoleUser, user.Role)
	require.NotNil(t, user.ExternalUID)
	assert.Equal(t, "fb-123", *user.ExternalUID)
	assert.Equal(t, "Julia Child", user.Name)
}

func TestUpsertIsIdempotent(t *testing.T) {
	directory := identity.NewUserDirectory(setupDirectoryDB(t))
	ctx := context.Background()

	attrs := identity.ProfileAttrs{Name: "Julia Child", Email: "julia@example.com"}

	first, err := directory.Upsert(ctx, "fb-123", attrs)
	require.NoError(t, err)

	second, err := directory.Upsert(ctx, "fb-123", attrs)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Email, second.Email)
	assert.Equal(t, first.Role, second.Role)

	found, err := directory.FindByExternalUID(ctx, "fb-123")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestUpsertNeverChangesRole(t *testing.T) {
	db := setupDirectoryDB(t)
	directory := identity.NewUserDirectory(db)
	ctx := context.Background()

	uid := "fb-admin"
	_, err := directory.Register(ctx, &identity.User{
		ExternalUID: &uid,
		Name:        "Head Chef",
		Email:       "chef@example.com",
		Role:        identity.RoleAdmin,
	})
	require.NoError(t, err)

	// A later login sync must not demote the admin.
	user, err := directory.Upsert(ctx, uid, identity.ProfileAttrs{
		Name:  "Head Chef",
		Email: "chef@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, identity.RoleAdmin, user.Role)
}

func TestUpsertKeepsNameWhenTokenHasNone(t *testing.T) {
	directory := identity.NewUserDirectory(setupDirectoryDB(t))
	ctx := context.Background()

	_, err := directory.Upsert(ctx, "fb-123", identity.ProfileAttrs{
		Name:  "Julia Child",
		Email: "julia@example.com",
	})
	require.NoError(t, err)

	// A token without profile claims falls back to the placeholder name,
	// which must not clobber the stored one.
	user, err := directory.Upsert(ctx, "fb-123", identity.AttrsFromIdentity(&identity.ExternalIdentity{
		SubjectUID: "fb-123",
		Email:      "julia@example.com",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Julia Child", user.Name)
}

func TestUpsertUpdatesProfileFields(t *testing.T) {
	directory := identity.NewUserDirectory(setupDirectoryDB(t))
	ctx := context.Background()

	_, err := directory.Upsert(ctx, "fb-123", identity.ProfileAttrs{
		Name:  "Julia Child",
		Email: "julia@example.com",
	})
	require.NoError(t, err)

	user, err := directory.Upsert(ctx, "fb-123", identity.ProfileAttrs{
		Name:      "Julia C.",
		Email:     "julia.c@example.com",
		AvatarURL: "https://cdn.example.com/julia.png",
	})
	require.NoError(t, err)

	assert.Equal(t, "Julia C.", user.Name)
	assert.Equal(t, "julia.c@example.com", user.Email)
	assert.Equal(t, "https://cdn.example.com/julia.png", user.AvatarURL)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	directory := identity.NewUserDirectory(setupDirectoryDB(t))
	ctx := context.Background()

	uid := "fb-123"
	_, err := directory.Register(ctx, &identity.User{
		ExternalUID: &uid,
		Name:        "Julia Child",
		Email:       "julia@example.com",
		Role:        identity.RoleUser,
	})
	require.NoError(t, err)

	uid2 := "fb-456"
	_, err = directory.Register(ctx, &identity.User{
		ExternalUID: &uid2,
		Name:        "Impostor",
		Email:       "julia@example.com",
		Role:        identity.RoleUser,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestFindByExternalUIDNotFound(t *testing.T) {
	directory := identity.NewUserDirectory(setupDirectoryDB(t))

	_, err := directory.FindByExternalUID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, identity.IsUserNotFoundError(err))
}

func TestAnonymizeAndClose(t *testing.T) {
	sink := &recordingSink{}
	directory := identity.NewUserDirectory(
		setupDirectoryDB(t),
		identity.WithDirectoryActivitySink(sink),
	)
	ctx := context.Background()

	user, err := directory.Upsert(ctx, "fb-123", identity.ProfileAttrs{
		Name:  "Julia Child",
		Email: "julia@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, directory.AnonymizeAndClose(ctx, user))

	// The external link is gone.
	_, err = directory.FindByExternalUID(ctx, "fb-123")
	require.Error(t, err)

	// The row survives, without PII.
	closed, err := directory.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, closed.IsClosed())
	assert.Equal(t, "Deleted User", closed.Name)
	assert.NotEqual(t, "julia@example.com", closed.Email)
	assert.Empty(t, closed.AvatarURL)

	// Same identity can sign up again afterwards.
	fresh, err := directory.Upsert(ctx, "fb-123", identity.ProfileAttrs{
		Name:  "Julia Child",
		Email: "julia@example.com",
	})
	require.NoError(t, err)
	assert.NotEqual(t, user.ID, fresh.ID)

	require.Len(t, sink.byType(identity.ActivityEventAccountClosed), 1)
}
