package identity

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the local user directory. It is the sole source of truth for
// role and profile data; the external provider is consulted only for
// credential verification.
type Users interface {
	FindByExternalUID(ctx context.Context, externalUID string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)

	// Register inserts a new row at provisioning time. Role must be decided
	// by the caller (registration path + admin gate), never by later writes.
	Register(ctx context.Context, user *User) (*User, error)

	// Upsert is the login-path profile sync: create-if-missing with role
	// "user", otherwise update mutable profile fields only. Idempotent.
	Upsert(ctx context.Context, externalUID string, attrs ProfileAttrs) (*User, error)

	// AnonymizeAndClose replaces PII and severs the external link while
	// keeping the row for referential integrity with owned content.
	AnonymizeAndClose(ctx context.Context, user *User) error
}

type userDirectory struct {
	db     *bun.DB
	logger Logger
	sink   ActivitySink
	now    func() time.Time
}

var _ Users = (*userDirectory)(nil)

type DirectoryOption func(*userDirectory)

func WithDirectoryLogger(logger Logger) DirectoryOption {
	return func(d *userDirectory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithDirectoryActivitySink(sink ActivitySink) DirectoryOption {
	return func(d *userDirectory) {
		d.sink = normalizeActivitySink(sink)
	}
}

// WithDirectoryClock injects a custom clock (useful for tests).
func WithDirectoryClock(clock func() time.Time) DirectoryOption {
	return func(d *userDirectory) {
		if clock != nil {
			d.now = clock
		}
	}
}

// NewUserDirectory creates the bun-backed Users implementation.
func NewUserDirectory(db *bun.DB, opts ...DirectoryOption) Users {
	d := &userDirectory{
		db:     db,
		logger: defLogger{},
		sink:   noopActivitySink{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *userDirectory) FindByExternalUID(ctx context.Context, externalUID string) (*User, error) {
	record := &User{}
	err := d.db.NewSelect().
		Model(record).
		Where("?TableAlias.external_uid = ?", externalUID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound.WithMetadata(map[string]any{
				"external_uid": externalUID,
			})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "directory lookup failed")
	}

	return record, nil
}

func (d *userDirectory) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	record := &User{}
	err := d.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound.WithMetadata(map[string]any{
				"id": id.String(),
			})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "directory lookup failed")
	}

	return record, nil
}

func (d *userDirectory) Register(ctx context.Context, user *User) (*User, error) {
	prepareUserDefaults(user, d.now)

	if _, err := d.db.NewInsert().Model(user).Exec(ctx); err != nil {
		if IsUniqueViolation(err) {
			return nil, errors.Wrap(err, errors.CategoryConflict, "user already registered").
				WithTextCode(TextCodeDuplicateAccount).
				WithCode(errors.CodeConflict).
				WithMetadata(map[string]any{
					"email": user.Email,
				})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "could not create user")
	}

	return user, nil
}

// Upsert relies on the unique index on external_uid as the serialization
// point: a single INSERT ... ON CONFLICT statement, no read-then-write, so
// two concurrent logins for the same identity cannot create two rows.
//
// The conflict clause touches profile fields only; role is set at insert
// time and never listed in the update set. A token without a display name
// keeps the stored name, an empty picture keeps the stored avatar, and
// email_verified_at is recorded once and left alone after that, which keeps
// repeated calls with identical attrs observably idempotent.
func (d *userDirectory) Upsert(ctx context.Context, externalUID string, attrs ProfileAttrs) (*User, error) {
	now := d.now()
	record := &User{
		ID:          uuid.New(),
		ExternalUID: &externalUID,
		Name:        attrs.Name,
		Email:       attrs.Email,
		Role:        RoleUser,
		AvatarURL:   attrs.AvatarURL,
		CreatedAt:   &now,
		UpdatedAt:   &now,
	}
	if record.Name == "" {
		record.Name = "Unknown User"
	}
	if attrs.EmailVerified {
		record.EmailVerifiedAt = &now
	}

	_, err := d.db.NewInsert().
		Model(record).
		On("CONFLICT (external_uid) DO UPDATE").
		Set("name = CASE WHEN EXCLUDED.name = 'Unknown User' THEN name ELSE EXCLUDED.name END").
		Set("email = EXCLUDED.email").
		Set("avatar_url = CASE WHEN EXCLUDED.avatar_url = '' THEN avatar_url ELSE EXCLUDED.avatar_url END").
		Set("email_verified_at = COALESCE(email_verified_at, EXCLUDED.email_verified_at)").
		Returning("*").
		Exec(ctx)

	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "directory upsert failed")
	}

	return record, nil
}

func (d *userDirectory) AnonymizeAndClose(ctx context.Context, user *User) error {
	if user == nil || user.ID == uuid.Nil {
		return ErrUserNotFound
	}

	user.Anonymize()
	now := d.now()
	user.UpdatedAt = &now

	res, err := d.db.NewUpdate().
		Model(user).
		Column("external_uid", "name", "email", "avatar_url", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "could not close account")
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrUserNotFound.WithMetadata(map[string]any{
			"id": user.ID.String(),
		})
	}

	if err := d.sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventAccountClosed,
		UserID:     user.ID.String(),
		OccurredAt: now,
	}); err != nil {
		d.logger.Warn("directory activity sink error: %v", err)
	}

	return nil
}

func prepareUserDefaults(record *User, now func() time.Time) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		ts := now()
		record.CreatedAt = &ts
		record.UpdatedAt = &ts
	}
}
