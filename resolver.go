package identity

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// ProbeStatus is the outcome tag of a single role probe. A probe asks the
// backend "does this token belong to a <role>?" and the answer is data, not
// an exception: denial is a normal, expected outcome.
type ProbeStatus int

const (
	// ProbeConfirmed: the backend confirmed the role and returned the record.
	ProbeConfirmed ProbeStatus = iota
	// ProbeDenied: the backend answered authoritatively that the identity
	// does not hold this role. The resolver moves on to the next probe.
	ProbeDenied
	// ProbeFailed: the probe could not produce an authoritative answer
	// (transport failure, 5xx, malformed response). The resolver aborts.
	ProbeFailed
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbeConfirmed:
		return "confirmed"
	case ProbeDenied:
		return "denied"
	case ProbeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProbeResult carries the tagged outcome of a probe. User is set only when
// Status is ProbeConfirmed; Err is set only when Status is ProbeFailed.
type ProbeResult struct {
	Status ProbeStatus
	User   *User
	Err    error
}

// Probe checks a single role for a verified bearer token.
type Probe interface {
	// Role this probe confirms.
	Role() UserRole
	// Check runs the probe. It must map authoritative denials to
	// ProbeDenied rather than returning an error.
	Check(ctx context.Context, token string) ProbeResult
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc struct {
	ProbeRole UserRole
	CheckFunc func(ctx context.Context, token string) ProbeResult
}

func (p ProbeFunc) Role() UserRole { return p.ProbeRole }

func (p ProbeFunc) Check(ctx context.Context, token string) ProbeResult {
	if p.CheckFunc == nil {
		return ProbeResult{Status: ProbeFailed, Err: errors.New(
			"probe has no check function",
			errors.CategoryInternal,
		)}
	}
	return p.CheckFunc(ctx, token)
}

// ResolvedUser is the outcome of a successful resolution: the directory
// record plus the role the winning probe confirmed.
type ResolvedUser struct {
	User *User
	Role UserRole
}

// RoleResolver determines the effective role for a verified token by running
// its probes one at a time, most privileged first, and stopping at the first
// confirmation. Probes are never raced: a denial must be observed before the
// next, less privileged probe is consulted.
type RoleResolver struct {
	probes []Probe
	logger Logger
	sink   ActivitySink
	now    func() time.Time
}

type ResolverOption func(*RoleResolver)

func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *RoleResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithResolverActivitySink(sink ActivitySink) ResolverOption {
	return func(r *RoleResolver) {
		r.sink = normalizeActivitySink(sink)
	}
}

// NewRoleResolver builds a resolver over the given probes. The probes are
// ordered by descending privilege regardless of the order they are passed
// in; callers cannot accidentally configure a least-privileged-first chain.
func NewRoleResolver(probes []Probe, opts ...ResolverOption) *RoleResolver {
	ordered := make([]Probe, len(probes))
	copy(ordered, probes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return RolePrivilege(ordered[i].Role()) > RolePrivilege(ordered[j].Role())
	})

	r := &RoleResolver{
		probes: ordered,
		logger: defLogger{},
		sink:   noopActivitySink{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve runs the probe chain for the given bearer token.
//
// Outcomes:
//   - a probe confirms: resolution succeeds with that role, later probes
//     are never contacted
//   - a probe is denied: continue with the next probe
//   - a probe fails: abort immediately with the probe's error; remaining
//     probes are skipped so a transport blip cannot demote an admin to a
//     lower role
//   - every probe denies: ErrAuthenticationFailed
func (r *RoleResolver) Resolve(ctx context.Context, token string) (*ResolvedUser, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	if len(r.probes) == 0 {
		return nil, errors.New(
			"role resolver has no probes configured",
			errors.CategoryInternal,
		)
	}

	for _, probe := range r.probes {
		result := probe.Check(ctx, token)

		switch result.Status {
		case ProbeConfirmed:
			if result.User == nil {
				return nil, errors.New(
					"probe confirmed without a user record",
					errors.CategoryInternal,
				).WithMetadata(map[string]any{
					"role": string(probe.Role()),
				})
			}
			r.recordResolved(ctx, result.User, probe.Role())
			return &ResolvedUser{User: result.User, Role: probe.Role()}, nil

		case ProbeDenied:
			r.logger.Debug("role probe denied: role=%s", probe.Role())
			continue

		case ProbeFailed:
			err := result.Err
			if err == nil {
				err = errors.New("role probe failed", errors.CategoryInternal)
			}
			r.recordResolveFailure(ctx, probe.Role(), err)
			return nil, errors.Wrap(err, errors.CategoryInternal, "role resolution aborted").
				WithMetadata(map[string]any{
					"role": string(probe.Role()),
				})
		}
	}

	r.logger.Info("role resolution exhausted: no probe confirmed")
	return nil, ErrAuthenticationFailed
}

func (r *RoleResolver) recordResolved(ctx context.Context, user *User, role UserRole) {
	event := ActivityEvent{
		EventType:  ActivityEventSessionResolved,
		Role:       role,
		OccurredAt: r.now(),
	}
	if user != nil {
		event.UserID = user.ID.String()
		if user.ExternalUID != nil {
			event.ExternalUID = *user.ExternalUID
		}
	}
	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn("resolver activity sink error: %v", err)
	}
}

func (r *RoleResolver) recordResolveFailure(ctx context.Context, role UserRole, cause error) {
	event := ActivityEvent{
		EventType:  ActivityEventSessionResolveFail,
		Role:       role,
		OccurredAt: r.now(),
		Metadata: map[string]any{
			"error": cause.Error(),
		},
	}
	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn("resolver activity sink error: %v", err)
	}
}

// LooksLikeAdminEmail is a presentation hint only: it lets a client show the
// admin-code field up front for addresses that match a convention. It plays
// no part in resolution or authorization; the resolver probes the same chain
// for every identity.
func LooksLikeAdminEmail(email string) bool {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return false
	}
	local = strings.ToLower(local)
	return local == "admin" || strings.HasPrefix(local, "admin+") ||
		strings.HasSuffix(local, "+admin")
}
