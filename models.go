package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the durable directory record for a federated identity. ExternalUID
// is unique while the account is open and nulled on closure; the row itself
// is never removed so owned content keeps a valid owner reference.
type User struct {
	bun.BaseModel   `bun:"table:users,alias:usr"`
	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ExternalUID     *string    `bun:"external_uid,nullzero,unique" json:"firebase_uid,omitempty"`
	Name            string     `bun:"name,notnull" json:"name,omitempty"`
	Email           string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Role            UserRole   `bun:"role,notnull" json:"role,omitempty"`
	AvatarURL       string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	EmailVerifiedAt *time.Time `bun:"email_verified_at,nullzero" json:"email_verified_at,omitempty"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsAdmin reports whether the record carries the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// IsClosed reports whether the account has been anonymized.
func (u *User) IsClosed() bool {
	return u != nil && u.ExternalUID == nil
}

// Anonymize replaces PII in place and severs the external identity link.
// The email placeholder is derived from the row id so the unique constraint
// keeps holding.
func (u *User) Anonymize() {
	if u == nil {
		return
	}
	u.ExternalUID = nil
	u.Name = "Deleted User"
	u.Email = fmt.Sprintf("closed-%s@users.invalid", u.ID)
	u.AvatarURL = ""
}

// ProfileAttrs are the mutable profile fields synced from a verified token
// on every login. Role is deliberately absent.
type ProfileAttrs struct {
	Name          string
	Email         string
	AvatarURL     string
	EmailVerified bool
}

// AttrsFromIdentity maps a verified identity into upsertable profile fields,
// with the same display-name fallback the registration form applies.
func AttrsFromIdentity(ident *ExternalIdentity) ProfileAttrs {
	name := ident.DisplayName
	if name == "" {
		name = "Unknown User"
	}
	return ProfileAttrs{
		Name:          name,
		Email:         ident.Email,
		AvatarURL:     ident.PictureURL,
		EmailVerified: ident.EmailVerified,
	}
}
