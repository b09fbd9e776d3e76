package identity

import (
	"crypto/subtle"
)

// AdminGate validates the out-of-band admin code presented at registration.
// It is the only path through which a new account can obtain the admin role.
type AdminGate struct {
	code   string
	logger Logger
}

// NewAdminGate creates a gate around the configured shared secret. An empty
// secret disables elevation entirely: every code is rejected.
func NewAdminGate(code string, opts ...AdminGateOption) *AdminGate {
	g := &AdminGate{
		code:   code,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

type AdminGateOption func(*AdminGate)

func WithAdminGateLogger(logger Logger) AdminGateOption {
	return func(g *AdminGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Enabled reports whether elevation is possible at all.
func (g *AdminGate) Enabled() bool {
	return g.code != ""
}

// Validate compares the presented code against the configured secret in
// constant time. A mismatch yields ErrAdminCodeRejected.
func (g *AdminGate) Validate(presented string) error {
	if !g.Enabled() {
		g.logger.Warn("admin gate: elevation attempted but no admin code is configured")
		return ErrAdminCodeRejected
	}

	if subtle.ConstantTimeCompare([]byte(g.code), []byte(presented)) != 1 {
		g.logger.Warn("admin gate: rejected elevation attempt")
		return ErrAdminCodeRejected
	}

	return nil
}
