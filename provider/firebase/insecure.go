package firebase

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vanilla-kitchen/go-identity"
)

// InsecureDecoder reads token claims WITHOUT verifying the signature. It
// exists for local development against emulators that mint unsigned tokens.
//
// It can only be obtained through NewInsecureDecoder; there is no
// environment flag or config field that swaps it in for the real verifier,
// so running without verification is always an explicit decision in code.
type InsecureDecoder struct {
	claimsMapper ClaimsMapper
	logger       identity.Logger
}

var _ identity.TokenVerifier = (*InsecureDecoder)(nil)

// NewInsecureDecoder creates the unverified decoder. It logs loudly at
// construction so the mode never ships silently.
func NewInsecureDecoder(mapper ClaimsMapper, logger identity.Logger) *InsecureDecoder {
	if mapper == nil {
		mapper = DefaultClaimsMapper{}
	}
	if logger == nil {
		logger = identity.DefaultLogger()
	}

	logger.Warn("firebase: INSECURE token decoder in use, signatures are NOT verified; never use outside local development")

	return &InsecureDecoder{
		claimsMapper: mapper,
		logger:       logger,
	}
}

// Verify implements identity.TokenVerifier by decoding without signature
// verification.
func (d *InsecureDecoder) Verify(ctx context.Context, tokenString string) (*identity.ExternalIdentity, error) {
	if tokenString == "" {
		return nil, identity.ErrInvalidToken
	}

	claims := &IDTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, normalizeVerifyError(err)
	}

	return d.claimsMapper.Map(ctx, claims)
}
