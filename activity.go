package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSessionResolved     ActivityEventType = "auth.session.resolved"
	ActivityEventSessionResolveFail  ActivityEventType = "auth.session.resolve_failure"
	ActivityEventRegisterSuccess     ActivityEventType = "provisioning.register.success"
	ActivityEventRegisterFailure     ActivityEventType = "provisioning.register.failure"
	ActivityEventCompensationApplied ActivityEventType = "provisioning.compensation.applied"
	// ActivityEventCompensationFailure is an operational alert: an external
	// account survived a failed registration and needs manual cleanup.
	ActivityEventCompensationFailure ActivityEventType = "provisioning.compensation.failure"
	ActivityEventAccountClosed       ActivityEventType = "directory.account.closed"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType   ActivityEventType
	Actor       ActorRef
	UserID      string
	ExternalUID string
	Role        UserRole
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/alerting purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
