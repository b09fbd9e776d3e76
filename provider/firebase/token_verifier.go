package firebase

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vanilla-kitchen/go-identity"
)

// TokenVerifier validates Firebase-issued ID tokens against the securetoken
// signing keys.
type TokenVerifier struct {
	config       Config
	jwks         *keyfunc.JWKS
	parser       *jwt.Parser
	claimsMapper ClaimsMapper
	logger       identity.Logger
}

var _ identity.TokenVerifier = (*TokenVerifier)(nil)

type VerifierOption func(*TokenVerifier)

func WithVerifierLogger(logger identity.Logger) VerifierOption {
	return func(v *TokenVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewTokenVerifier creates a verifier with a background-refreshed key set.
//
// RefreshUnknownKID handles signing key rotation: a token signed with a kid
// that is not in the cached set triggers one rate-limited refetch before the
// token is rejected, so a freshly rotated key does not bounce valid logins.
func NewTokenVerifier(cfg Config, opts ...VerifierOption) (*TokenVerifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mapper := cfg.ClaimsMapper
	if mapper == nil {
		mapper = DefaultClaimsMapper{}
	}

	v := &TokenVerifier{
		config: cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithIssuer(cfg.issuer()),
			jwt.WithAudience(cfg.ProjectID),
			jwt.WithExpirationRequired(),
		),
		claimsMapper: mapper,
		logger:       identity.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	options := keyfunc.Options{
		RefreshInterval:   cfg.refreshInterval(),
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			v.logger.Warn("firebase: signing key refresh error: %v", err)
		},
	}
	if cfg.HTTPClient != nil {
		options.Client = cfg.HTTPClient
	}

	jwks, err := keyfunc.Get(cfg.jwksEndpoint(), options)
	if err != nil {
		return nil, fmt.Errorf("firebase: failed to load signing keys: %w", err)
	}
	v.jwks = jwks

	return v, nil
}

// Verify implements identity.TokenVerifier.
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (*identity.ExternalIdentity, error) {
	if tokenString == "" {
		return nil, identity.ErrInvalidToken
	}

	claims := &IDTokenClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc)
	if err != nil {
		return nil, normalizeVerifyError(err)
	}
	if !token.Valid {
		return nil, identity.ErrInvalidToken
	}

	return v.claimsMapper.Map(ctx, claims)
}

// Close stops the background key refresh.
func (v *TokenVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func normalizeVerifyError(err error) error {
	if err == nil {
		return nil
	}

	clone := identity.ErrInvalidToken.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		clone = identity.ErrTokenExpired.Clone()
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"provider": "firebase",
		"cause":    err.Error(),
	})
}
