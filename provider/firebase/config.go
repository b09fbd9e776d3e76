package firebase

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// defaultJWKSEndpoint serves the signing keys for securetoken ID tokens.
	defaultJWKSEndpoint = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	// defaultIdentityToolkitEndpoint is the Identity Platform REST root.
	defaultIdentityToolkitEndpoint = "https://identitytoolkit.googleapis.com/v1"
)

// Config holds Firebase project configuration shared by the token verifier
// and the account client.
type Config struct {
	// ProjectID is the Firebase project id. It doubles as the expected token
	// audience; the expected issuer is derived from it.
	ProjectID string

	// APIKey is the web API key used by the Identity Toolkit REST endpoints.
	APIKey string

	// JWKSEndpoint overrides the signing-key URL (optional; used in tests).
	JWKSEndpoint string

	// IdentityToolkitEndpoint overrides the REST root (optional).
	IdentityToolkitEndpoint string

	// ClaimsMapper customizes identity mapping (optional).
	ClaimsMapper ClaimsMapper

	// HTTPClient overrides the client used for REST and JWKS calls.
	HTTPClient *http.Client

	// RefreshInterval is how often the key set is refreshed in the
	// background. Default: 1 hour.
	RefreshInterval time.Duration

	// RequestTimeout bounds each Identity Toolkit call. Default: 10s.
	RequestTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(projectID, apiKey string) Config {
	return Config{
		ProjectID:       projectID,
		APIKey:          apiKey,
		RefreshInterval: time.Hour,
		RequestTimeout:  10 * time.Second,
	}
}

func (c Config) issuer() string {
	return fmt.Sprintf("https://securetoken.google.com/%s", c.ProjectID)
}

func (c Config) jwksEndpoint() string {
	if c.JWKSEndpoint != "" {
		return c.JWKSEndpoint
	}
	return defaultJWKSEndpoint
}

func (c Config) toolkitEndpoint() string {
	if c.IdentityToolkitEndpoint != "" {
		return strings.TrimRight(c.IdentityToolkitEndpoint, "/")
	}
	return defaultIdentityToolkitEndpoint
}

func (c Config) refreshInterval() time.Duration {
	if c.RefreshInterval > 0 {
		return c.RefreshInterval
	}
	return time.Hour
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return 10 * time.Second
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return fmt.Errorf("firebase: project id is required")
	}
	return nil
}
