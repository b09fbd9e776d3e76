package identity

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// ExternalIdentity is the ephemeral result of verifying a provider token.
// It is derived per call and never persisted directly.
type ExternalIdentity struct {
	SubjectUID    string
	Email         string
	DisplayName   string
	PictureURL    string
	EmailVerified bool
}

// TokenVerifier validates a provider-issued bearer token. Implementations
// must be side-effect free and safe for concurrent use.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*ExternalIdentity, error)
}

// TokenVerifierFunc adapts a function into a TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) (*ExternalIdentity, error)

// Verify satisfies the TokenVerifier interface.
func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (*ExternalIdentity, error) {
	if f == nil {
		return nil, ErrInvalidToken
	}
	return f(ctx, token)
}

// ProviderSession is a live credential minted by the external provider.
type ProviderSession struct {
	UID          string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// AuthStateListener receives provider auth-state notifications. A nil
// session means signed out.
type AuthStateListener func(session *ProviderSession)

// AccountProvider is the client-side surface of the external identity
// provider: credential lifecycle plus the auth-state notification stream.
//
// Subscribe must notify the listener once with the last-known state before
// returning, and again on every subsequent sign-in or sign-out. The returned
// function removes the subscription.
type AccountProvider interface {
	CreateAccount(ctx context.Context, email, password string) (*ProviderSession, error)
	SignIn(ctx context.Context, email, password string) (*ProviderSession, error)
	DeleteAccount(ctx context.Context, session *ProviderSession) error
	SendEmailVerification(ctx context.Context, session *ProviderSession) error
	SignOut(ctx context.Context) error
	Subscribe(listener AuthStateListener) (unsubscribe func())
}

// Config holds the options shared by the client-side coordinators.
type Config interface {
	GetAPIBaseURL() string
	GetAdminCode() string
	GetRequestTimeout() time.Duration
}

// DefaultLogger returns the stdout printf fallback used when no logger is
// configured. Subpackages use it for the same purpose.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
