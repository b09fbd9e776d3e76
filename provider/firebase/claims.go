package firebase

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"

	"github.com/vanilla-kitchen/go-identity"
)

// IDTokenClaims are the claims carried by a Firebase ID token. The subject
// is the stable account uid; profile claims are best effort and may be
// absent for accounts created without a display name or photo.
type IDTokenClaims struct {
	jwt.RegisteredClaims

	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// UID returns the account uid, preferring the registered subject.
func (c *IDTokenClaims) UID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

// ClaimsMapper transforms verified token claims into an ExternalIdentity.
type ClaimsMapper interface {
	Map(ctx context.Context, claims *IDTokenClaims) (*identity.ExternalIdentity, error)
}

// DefaultClaimsMapper maps the standard Firebase profile claims.
type DefaultClaimsMapper struct{}

// Map implements ClaimsMapper.
func (DefaultClaimsMapper) Map(_ context.Context, claims *IDTokenClaims) (*identity.ExternalIdentity, error) {
	if claims == nil || claims.UID() == "" {
		return nil, errors.New(
			"token claims missing subject",
			errors.CategoryAuth,
		)
	}

	return &identity.ExternalIdentity{
		SubjectUID:    claims.UID(),
		Email:         claims.Email,
		DisplayName:   claims.Name,
		PictureURL:    claims.Picture,
		EmailVerified: claims.EmailVerified,
	}, nil
}
