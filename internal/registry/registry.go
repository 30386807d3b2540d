// Package registry owns creation of users and the email uniqueness rule.
//
// The store's unique constraint is the source of truth. The lookup before
// insert only saves a write and gives a clean duplicate signal on the common path.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store is the persistence port. FindByEmail returns user.ErrNotFound when no
// row matches; Insert returns user.ErrDuplicateEmail when the unique constraint
// on email rejects the row.
type Store interface {
	FindByEmail(ctx context.Context, email string) (user.User, error)
	Insert(ctx context.Context, u user.User) (user.User, error)
}

type Registry struct {
	store    Store
	validate *validator.Validate
	log      *slog.Logger
	prom     *observability.Prom
	now      func() time.Time
}

type Option func(*Registry)

func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

func WithProm(prom *observability.Prom) Option {
	return func(r *Registry) { r.prom = prom }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func New(store Store, opts ...Option) *Registry {
	v := validator.New(validator.WithRequiredStructEnabled())
	// same rule set gin's binder reads
	v.SetTagName("binding")

	r := &Registry{
		store:    store,
		validate: v,
		log:      slog.Default(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// CreateUser validates, rejects an email that is already taken and persists a new user.
// Failures match user.ErrInvalidInput, user.ErrDuplicateEmail or user.ErrStoreUnavailable.
func (r *Registry) CreateUser(ctx context.Context, email, name string) (user.User, error) {
	ctx, span := observability.Tracer().Start(ctx, "registry.CreateUser")
	defer span.End()

	req := user.CreateUserRequest{Email: email, Name: name}

	err := r.validate.StructCtx(ctx, req)

	if err != nil {
		r.observe(observability.ResultInvalid)
		span.SetStatus(codes.Error, "invalid input")
		// keep the validator errors reachable for field level details
		return user.User{}, fmt.Errorf("%w: %w", user.ErrInvalidInput, err)
	}

	_, err = r.store.FindByEmail(ctx, email)

	switch {
	case err == nil:
		return user.User{}, r.duplicate(ctx, span)
	case !errors.Is(err, user.ErrNotFound):
		return user.User{}, r.storeFailure(ctx, span, "find user by email", err)
	}

	u := user.New(req, r.now())

	created, err := r.store.Insert(ctx, u)

	if err != nil {
		// lost a race with a concurrent create; the constraint caught it
		if errors.Is(err, user.ErrDuplicateEmail) {
			return user.User{}, r.duplicate(ctx, span)
		}

		return user.User{}, r.storeFailure(ctx, span, "insert user", err)
	}

	r.observe(observability.ResultCreated)
	span.SetAttributes(attribute.String("user.id", created.ID))
	r.log.InfoContext(ctx, "user created", "user_id", created.ID)

	return created, nil
}

func (r *Registry) duplicate(ctx context.Context, span trace.Span) error {
	r.observe(observability.ResultDuplicate)
	span.SetStatus(codes.Error, "duplicate email")
	r.log.InfoContext(ctx, "user create rejected", "reason", "duplicate_email")

	return user.ErrDuplicateEmail
}

func (r *Registry) storeFailure(ctx context.Context, span trace.Span, op string, err error) error {
	r.observe(observability.ResultStoreError)
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	r.log.ErrorContext(ctx, "user store failure", "op", op, "err", err)

	return fmt.Errorf("%w: %s: %w", user.ErrStoreUnavailable, op, err)
}

func (r *Registry) observe(result string) {
	if r.prom != nil {
		r.prom.ObserveCreate(result)
	}
}
