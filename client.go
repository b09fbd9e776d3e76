package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// BackendRegistrar is the backend-side half of provisioning: it records a
// verified external identity in the user directory with the role the
// registration path decided.
type BackendRegistrar interface {
	RegisterUser(ctx context.Context, payload RegisterPayload) (*User, error)
	RegisterAdmin(ctx context.Context, payload RegisterPayload) (*User, error)
}

// RegisterPayload is the wire payload for the registration endpoints.
type RegisterPayload struct {
	FirebaseUID string `json:"firebase_uid"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	AdminCode   string `json:"admin_code,omitempty"`
}

// HTTPClient is the minimal surface we need from net/http, broken out so
// tests can swap in a recording transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIClient talks to the identity backend over HTTP. It implements
// BackendRegistrar and builds the role probes the resolver runs.
type APIClient struct {
	baseURL string
	http    HTTPClient
	logger  Logger
	timeout time.Duration
}

var _ BackendRegistrar = (*APIClient)(nil)

type APIClientOption func(*APIClient)

func WithAPIClientLogger(logger Logger) APIClientOption {
	return func(c *APIClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithAPIClientHTTP(client HTTPClient) APIClientOption {
	return func(c *APIClient) {
		if client != nil {
			c.http = client
		}
	}
}

func WithAPIClientTimeout(timeout time.Duration) APIClientOption {
	return func(c *APIClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewAPIClientFromConfig creates a client from the shared client-side Config.
func NewAPIClientFromConfig(cfg Config, opts ...APIClientOption) *APIClient {
	merged := append([]APIClientOption{
		WithAPIClientTimeout(cfg.GetRequestTimeout()),
	}, opts...)
	return NewAPIClient(cfg.GetAPIBaseURL(), merged...)
}

// NewAPIClient creates a client rooted at baseURL, e.g. "https://api.example.com/api".
func NewAPIClient(baseURL string, opts ...APIClientOption) *APIClient {
	c := &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  defLogger{},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c
}

// envelope is the backend's response shape: {success, data|error, errors}.
type envelope struct {
	Success bool                `json:"success"`
	Data    envelopeData        `json:"data"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}

type envelopeData struct {
	User  *User `json:"user"`
	Admin *User `json:"admin"`
}

func (e envelopeData) record() *User {
	if e.Admin != nil {
		return e.Admin
	}
	return e.User
}

func (c *APIClient) RegisterUser(ctx context.Context, payload RegisterPayload) (*User, error) {
	payload.AdminCode = ""
	return c.register(ctx, "/auth/register", payload)
}

func (c *APIClient) RegisterAdmin(ctx context.Context, payload RegisterPayload) (*User, error) {
	return c.register(ctx, "/admin/register", payload)
}

func (c *APIClient) register(ctx context.Context, path string, payload RegisterPayload) (*User, error) {
	status, body, err := c.post(ctx, path, "", payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "registration request failed").
			WithTextCode(TextCodeRegistrationFailed)
	}

	var env envelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr != nil && status < http.StatusInternalServerError {
		return nil, errors.Wrap(jsonErr, errors.CategoryInternal, "malformed registration response").
			WithTextCode(TextCodeRegistrationFailed)
	}

	switch {
	case status == http.StatusCreated || (status == http.StatusOK && env.Success):
		record := env.Data.record()
		if record == nil {
			return nil, ErrRegistrationFailed
		}
		return record, nil

	case status == http.StatusUnprocessableEntity:
		return nil, c.validationError(env)

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, ErrAdminCodeRejected

	default:
		c.logger.Error("registration failed: status=%d error=%s", status, env.Error)
		return nil, ErrRegistrationFailed.WithMetadata(map[string]any{
			"status": status,
		})
	}
}

// validationError maps a 422 envelope to a user-actionable error. An
// admin_code entry means the gate rejected the elevation attempt; anything
// else is surfaced with the field errors attached.
func (c *APIClient) validationError(env envelope) error {
	if _, ok := env.Errors["admin_code"]; ok {
		return ErrAdminCodeRejected
	}

	msg := env.Error
	if msg == "" {
		msg = "registration rejected"
	}
	return errors.New(msg, errors.CategoryValidation).
		WithTextCode(TextCodeRegistrationFailed).
		WithCode(errors.CodeBadRequest).
		WithMetadata(map[string]any{
			"errors": env.Errors,
		})
}

// UserProbe builds the least-privileged probe, backed by GET /auth/check.
func (c *APIClient) UserProbe() Probe {
	return ProbeFunc{
		ProbeRole: RoleUser,
		CheckFunc: func(ctx context.Context, token string) ProbeResult {
			return c.check(ctx, "/auth/check", RoleUser, token)
		},
	}
}

// AdminProbe builds the most-privileged probe, backed by GET /admin/check.
func (c *APIClient) AdminProbe() Probe {
	return ProbeFunc{
		ProbeRole: RoleAdmin,
		CheckFunc: func(ctx context.Context, token string) ProbeResult {
			return c.check(ctx, "/admin/check", RoleAdmin, token)
		},
	}
}

// check performs a role probe. 401/403 are authoritative denials and become
// ProbeDenied; everything unexpected becomes ProbeFailed so the resolver
// aborts instead of silently downgrading the session.
func (c *APIClient) check(ctx context.Context, path string, role UserRole, token string) ProbeResult {
	status, body, err := c.get(ctx, path, token)
	if err != nil {
		return ProbeResult{Status: ProbeFailed, Err: errors.Wrap(
			err,
			errors.CategoryInternal,
			fmt.Sprintf("%s probe request failed", role),
		)}
	}

	switch status {
	case http.StatusOK:
		var env envelope
		if jsonErr := json.Unmarshal(body, &env); jsonErr != nil {
			return ProbeResult{Status: ProbeFailed, Err: errors.Wrap(
				jsonErr,
				errors.CategoryInternal,
				"malformed probe response",
			)}
		}
		record := env.Data.record()
		if record == nil {
			return ProbeResult{Status: ProbeFailed, Err: errors.New(
				"probe response missing user record",
				errors.CategoryInternal,
			)}
		}
		return ProbeResult{Status: ProbeConfirmed, User: record}

	case http.StatusUnauthorized, http.StatusForbidden:
		return ProbeResult{Status: ProbeDenied}

	default:
		return ProbeResult{Status: ProbeFailed, Err: errors.New(
			fmt.Sprintf("%s probe returned unexpected status %d", role, status),
			errors.CategoryInternal,
		)}
	}
}

// LogoutUser tells the backend to end the user-scoped session.
func (c *APIClient) LogoutUser(ctx context.Context, token string) error {
	return c.logout(ctx, "/auth/logout", token)
}

// LogoutAdmin tells the backend to end the admin-scoped session.
func (c *APIClient) LogoutAdmin(ctx context.Context, token string) error {
	return c.logout(ctx, "/admin/logout", token)
}

func (c *APIClient) logout(ctx context.Context, path, token string) error {
	status, _, err := c.post(ctx, path, token, nil)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "logout request failed")
	}
	// 401 on logout means the session is already gone; treat as success.
	if status != http.StatusOK && status != http.StatusNoContent && status != http.StatusUnauthorized {
		return errors.New(
			fmt.Sprintf("logout returned unexpected status %d", status),
			errors.CategoryInternal,
		)
	}
	return nil
}

func (c *APIClient) get(ctx context.Context, path, token string) (int, []byte, error) {
	return c.do(ctx, http.MethodGet, path, token, nil)
}

func (c *APIClient) post(ctx context.Context, path, token string, payload any) (int, []byte, error) {
	return c.do(ctx, http.MethodPost, path, token, payload)
}

func (c *APIClient) do(ctx context.Context, method, path, token string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, nil, err
	}

	return res.StatusCode, raw, nil
}
