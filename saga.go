package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
)

// Registration is the input to the provisioning saga.
type Registration struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	AdminCode string `json:"admin_code,omitempty"`
}

// Validate implements the validation.Validatable interface
func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name,
			validation.Required,
			validation.Length(2, 20),
		),
		validation.Field(&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(&r.Password,
			validation.Required,
			validation.Length(6, 0),
		),
	)
}

// RegistrationResult is what a successful provisioning run hands back.
type RegistrationResult struct {
	User    *User
	Session *ProviderSession
	Role    UserRole
}

// Registrar runs the two-step provisioning saga:
//
//  1. create the credential account at the external provider
//  2. register the verified identity with the backend directory
//
// If step 2 fails, the step 1 account is orphaned credential state with no
// directory row behind it, so the registrar compensates by deleting it. The
// one exception: a duplicate-account failure in step 1 means the account
// belongs to someone else's earlier registration and must never be deleted.
type Registrar struct {
	provider AccountProvider
	backend  BackendRegistrar
	logger   Logger
	sink     ActivitySink
	now      func() time.Time
}

type RegistrarOption func(*Registrar)

func WithRegistrarLogger(logger Logger) RegistrarOption {
	return func(r *Registrar) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRegistrarActivitySink(sink ActivitySink) RegistrarOption {
	return func(r *Registrar) {
		r.sink = normalizeActivitySink(sink)
	}
}

// NewRegistrar wires the saga over a credential provider and the backend
// registrar (usually an APIClient).
func NewRegistrar(provider AccountProvider, backend BackendRegistrar, opts ...RegistrarOption) *Registrar {
	r := &Registrar{
		provider: provider,
		backend:  backend,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RegisterUser provisions a regular account.
func (r *Registrar) RegisterUser(ctx context.Context, reg Registration) (*RegistrationResult, error) {
	reg.AdminCode = ""
	return r.run(ctx, reg, RoleUser)
}

// RegisterAdmin provisions an elevated account. The admin code travels with
// the backend registration call, where the gate decides; the registrar makes
// no elevation decision of its own.
func (r *Registrar) RegisterAdmin(ctx context.Context, reg Registration) (*RegistrationResult, error) {
	return r.run(ctx, reg, RoleAdmin)
}

func (r *Registrar) run(ctx context.Context, reg Registration, want UserRole) (*RegistrationResult, error) {
	if err := reg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid registration").
			WithCode(errors.CodeBadRequest)
	}

	// Step 1: credential account at the external provider.
	session, err := r.provider.CreateAccount(ctx, reg.Email, reg.Password)
	if err != nil {
		if errors.Is(err, ErrDuplicateExternalAccount) {
			// The account predates this run; it is not ours to clean up.
			return nil, err
		}
		r.logger.Error("provisioning: account creation failed: %v", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "could not create account").
			WithTextCode(TextCodeRegistrationFailed)
	}

	// Step 2: directory registration. Any failure past this point leaves a
	// credential account with no directory row, so we compensate.
	payload := RegisterPayload{
		FirebaseUID: session.UID,
		Name:        reg.Name,
		Email:       reg.Email,
	}

	var record *User
	if want == RoleAdmin {
		payload.AdminCode = reg.AdminCode
		record, err = r.backend.RegisterAdmin(ctx, payload)
	} else {
		record, err = r.backend.RegisterUser(ctx, payload)
	}

	if err != nil {
		r.recordRegisterFailure(ctx, session.UID, want, err)
		r.compensate(ctx, session)
		return nil, err
	}

	r.recordRegisterSuccess(ctx, record, want)

	// Post-registration steps are best effort; the account is already
	// provisioned. The fresh session is dropped so the user signs in
	// explicitly.
	if mailErr := r.provider.SendEmailVerification(ctx, session); mailErr != nil {
		r.logger.Warn("provisioning: verification email not sent: %v", mailErr)
	}
	if outErr := r.provider.SignOut(ctx); outErr != nil {
		r.logger.Warn("provisioning: post-registration sign out: %v", outErr)
	}

	role := want
	if record != nil && record.Role != "" {
		role = record.Role
	}

	return &RegistrationResult{
		User:    record,
		Session: session,
		Role:    role,
	}, nil
}

// compensate deletes the step 1 account after a step 2 failure. Compensation
// failure does not change the caller's outcome; it is logged and alerted so
// the orphaned account gets cleaned up by hand.
func (r *Registrar) compensate(ctx context.Context, session *ProviderSession) {
	if err := r.provider.DeleteAccount(ctx, session); err != nil {
		r.logger.Error("provisioning: compensation failed, orphaned account %s: %v", session.UID, err)
		r.record(ctx, ActivityEvent{
			EventType:   ActivityEventCompensationFailure,
			ExternalUID: session.UID,
			Metadata: map[string]any{
				"error": err.Error(),
			},
			OccurredAt: r.now(),
		})
		return
	}

	r.logger.Info("provisioning: compensation applied, account %s deleted", session.UID)
	r.record(ctx, ActivityEvent{
		EventType:   ActivityEventCompensationApplied,
		ExternalUID: session.UID,
		OccurredAt:  r.now(),
	})
}

func (r *Registrar) recordRegisterSuccess(ctx context.Context, user *User, role UserRole) {
	event := ActivityEvent{
		EventType:  ActivityEventRegisterSuccess,
		Role:       role,
		OccurredAt: r.now(),
	}
	if user != nil {
		event.UserID = user.ID.String()
		if user.ExternalUID != nil {
			event.ExternalUID = *user.ExternalUID
		}
	}
	r.record(ctx, event)
}

func (r *Registrar) recordRegisterFailure(ctx context.Context, uid string, role UserRole, cause error) {
	r.record(ctx, ActivityEvent{
		EventType:   ActivityEventRegisterFailure,
		ExternalUID: uid,
		Role:        role,
		Metadata: map[string]any{
			"error": cause.Error(),
		},
		OccurredAt: r.now(),
	})
}

func (r *Registrar) record(ctx context.Context, event ActivityEvent) {
	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn("registrar activity sink error: %v", err)
	}
}
