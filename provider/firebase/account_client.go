package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"

	"github.com/vanilla-kitchen/go-identity"
)

// Client manages credential accounts through the Identity Toolkit REST API
// and publishes auth state changes to subscribers. It implements
// identity.AccountProvider.
type Client struct {
	config Config
	http   *http.Client
	logger identity.Logger

	mu        sync.Mutex
	current   *identity.ProviderSession
	listeners map[int]identity.AuthStateListener
	nextID    int
}

var _ identity.AccountProvider = (*Client)(nil)

type ClientOption func(*Client)

func WithClientLogger(logger identity.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates an account client for the configured project.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("firebase: api key is required")
	}

	c := &Client{
		config:    cfg,
		logger:    identity.DefaultLogger(),
		listeners: map[int]identity.AuthStateListener{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = cfg.HTTPClient
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.requestTimeout()}
	}
	return c, nil
}

// toolkit response/request shapes.

type signUpRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signUpResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type toolkitError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateAccount implements identity.AccountProvider. An existing address
// yields identity.ErrDuplicateExternalAccount unchanged so callers can make
// the no-compensation decision on it.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (*identity.ProviderSession, error) {
	var res signUpResponse
	if err := c.post(ctx, "accounts:signUp", signUpRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &res); err != nil {
		return nil, err
	}

	session := sessionFromResponse(res)
	c.publish(session)
	return session, nil
}

// SignIn implements identity.AccountProvider.
func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.ProviderSession, error) {
	var res signUpResponse
	if err := c.post(ctx, "accounts:signInWithPassword", signUpRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &res); err != nil {
		return nil, err
	}

	session := sessionFromResponse(res)
	c.publish(session)
	return session, nil
}

// DeleteAccount implements identity.AccountProvider. The toolkit deletes the
// account owning the presented ID token.
func (c *Client) DeleteAccount(ctx context.Context, session *identity.ProviderSession) error {
	if session == nil || session.IDToken == "" {
		return errors.New(
			"delete requires a session with an id token",
			errors.CategoryBadInput,
		)
	}

	payload := map[string]string{"idToken": session.IDToken}
	if err := c.post(ctx, "accounts:delete", payload, nil); err != nil {
		return err
	}

	c.mu.Lock()
	signedIn := c.current != nil && c.current.UID == session.UID
	c.mu.Unlock()
	if signedIn {
		c.publish(nil)
	}
	return nil
}

// SendEmailVerification implements identity.AccountProvider.
func (c *Client) SendEmailVerification(ctx context.Context, session *identity.ProviderSession) error {
	if session == nil || session.IDToken == "" {
		return errors.New(
			"verification requires a session with an id token",
			errors.CategoryBadInput,
		)
	}

	payload := map[string]string{
		"requestType": "VERIFY_EMAIL",
		"idToken":     session.IDToken,
	}
	return c.post(ctx, "accounts:sendOobCode", payload, nil)
}

// SignOut implements identity.AccountProvider. The toolkit has no session
// server side; signing out is dropping the local session and telling
// subscribers.
func (c *Client) SignOut(context.Context) error {
	c.publish(nil)
	return nil
}

// Subscribe implements identity.AccountProvider. The listener fires once
// with the last known state before Subscribe returns, then again on every
// state change until the returned function is called.
func (c *Client) Subscribe(listener identity.AuthStateListener) func() {
	if listener == nil {
		return func() {}
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	current := c.current
	c.mu.Unlock()

	listener(current)

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) publish(session *identity.ProviderSession) {
	c.mu.Lock()
	c.current = session
	listeners := make([]identity.AuthStateListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(session)
	}
}

func sessionFromResponse(res signUpResponse) *identity.ProviderSession {
	session := &identity.ProviderSession{
		UID:          res.LocalID,
		Email:        res.Email,
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
	}
	// expiresIn comes back as a string of seconds, e.g. "3600".
	if secs, err := strconv.Atoi(res.ExpiresIn); err == nil {
		session.ExpiresIn = time.Duration(secs) * time.Second
	}
	return session
}

func (c *Client) post(ctx context.Context, action string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "could not encode request")
	}

	url := fmt.Sprintf("%s/%s?key=%s", c.config.toolkitEndpoint(), action, c.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "could not build request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, fmt.Sprintf("%s request failed", action))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "could not read response")
	}

	if res.StatusCode >= http.StatusBadRequest {
		return c.toolkitErr(action, res.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "malformed response")
		}
	}
	return nil
}

// toolkitErr maps Identity Toolkit error codes onto the shared error
// vocabulary. The message is a bare code like EMAIL_EXISTS, sometimes with a
// trailing explanation.
func (c *Client) toolkitErr(action string, status int, body []byte) error {
	var te toolkitError
	_ = json.Unmarshal(body, &te)

	code := te.Error.Message
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}

	switch code {
	case "EMAIL_EXISTS":
		return identity.ErrDuplicateExternalAccount
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED":
		return identity.ErrAuthenticationFailed.WithMetadata(map[string]any{
			"code": code,
		})
	case "INVALID_ID_TOKEN", "TOKEN_EXPIRED", "USER_NOT_FOUND":
		return identity.ErrInvalidToken.WithMetadata(map[string]any{
			"code": code,
		})
	default:
		c.logger.Error("firebase: %s failed: status=%d message=%s", action, status, te.Error.Message)
		return errors.New(
			fmt.Sprintf("%s failed with status %d", action, status),
			errors.CategoryInternal,
		).WithMetadata(map[string]any{
			"code":   code,
			"status": status,
		})
	}
}
