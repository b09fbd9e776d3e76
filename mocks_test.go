package identity_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	identity "github.com/vanilla-kitchen/go-identity"
)

// MockAccountProvider implements identity.AccountProvider
type MockAccountProvider struct {
	mock.Mock
}

func (m *MockAccountProvider) CreateAccount(ctx context.Context, email, password string) (*identity.ProviderSession, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*identity.ProviderSession)
	return session, args.Error(1)
}

func (m *MockAccountProvider) SignIn(ctx context.Context, email, password string) (*identity.ProviderSession, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*identity.ProviderSession)
	return session, args.Error(1)
}

func (m *MockAccountProvider) DeleteAccount(ctx context.Context, session *identity.ProviderSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockAccountProvider) SendEmailVerification(ctx context.Context, session *identity.ProviderSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockAccountProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAccountProvider) Subscribe(listener identity.AuthStateListener) func() {
	args := m.Called(listener)
	unsubscribe, _ := args.Get(0).(func())
	if unsubscribe == nil {
		unsubscribe = func() {}
	}
	return unsubscribe
}

// MockBackendRegistrar implements identity.BackendRegistrar
type MockBackendRegistrar struct {
	mock.Mock
}

func (m *MockBackendRegistrar) RegisterUser(ctx context.Context, payload identity.RegisterPayload) (*identity.User, error) {
	args := m.Called(ctx, payload)
	user, _ := args.Get(0).(*identity.User)
	return user, args.Error(1)
}

func (m *MockBackendRegistrar) RegisterAdmin(ctx context.Context, payload identity.RegisterPayload) (*identity.User, error) {
	args := m.Called(ctx, payload)
	user, _ := args.Get(0).(*identity.User)
	return user, args.Error(1)
}

// recordingSink collects activity events for assertions.
type recordingSink struct {
	events []identity.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) byType(t identity.ActivityEventType) []identity.ActivityEvent {
	var out []identity.ActivityEvent
	for _, e := range s.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeProvider is a hand-rolled AccountProvider with a working auth state
// stream, for the state machine tests where mock.Mock is too stiff.
type fakeProvider struct {
	listeners []identity.AuthStateListener
	current   *identity.ProviderSession

	signInErr error
}

func (p *fakeProvider) CreateAccount(_ context.Context, email, _ string) (*identity.ProviderSession, error) {
	session := &identity.ProviderSession{UID: "uid-" + email, Email: email, IDToken: "token-" + email}
	p.publish(session)
	return session, nil
}

func (p *fakeProvider) SignIn(_ context.Context, email, _ string) (*identity.ProviderSession, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	session := &identity.ProviderSession{UID: "uid-" + email, Email: email, IDToken: "token-" + email}
	p.publish(session)
	return session, nil
}

func (p *fakeProvider) DeleteAccount(context.Context, *identity.ProviderSession) error { return nil }

func (p *fakeProvider) SendEmailVerification(context.Context, *identity.ProviderSession) error {
	return nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.publish(nil)
	return nil
}

func (p *fakeProvider) Subscribe(listener identity.AuthStateListener) func() {
	p.listeners = append(p.listeners, listener)
	listener(p.current)
	return func() {}
}

func (p *fakeProvider) publish(session *identity.ProviderSession) {
	p.current = session
	for _, l := range p.listeners {
		l(session)
	}
}
