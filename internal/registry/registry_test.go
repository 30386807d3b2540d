package registry_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/registry"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore lets a test script each store call.
type fakeStore struct {
	findFn   func(ctx context.Context, email string) (user.User, error)
	insertFn func(ctx context.Context, u user.User) (user.User, error)

	inserts int
}

func (f *fakeStore) FindByEmail(ctx context.Context, email string) (user.User, error) {
	if f.findFn != nil {
		return f.findFn(ctx, email)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeStore) Insert(ctx context.Context, u user.User) (user.User, error) {
	f.inserts++
	if f.insertFn != nil {
		return f.insertFn(ctx, u)
	}
	return u, nil
}

func TestCreateUser_Success(t *testing.T) {
	repo := memory.NewUsersRepo()
	reg := registry.New(repo, registry.WithLogger(quietLogger()))
	ctx := context.Background()

	start := time.Now()
	u, err := reg.CreateUser(ctx, "user@example.com", "example")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if u.ID == "" {
		t.Fatalf("expected non-empty id")
	}
	if u.CreatedAt.Before(start) {
		t.Fatalf("createdAt %v is before call start %v", u.CreatedAt, start)
	}
	if u.Email != "user@example.com" || u.Name != "example" {
		t.Fatalf("unexpected user: %+v", u)
	}

	stored, err := repo.FindByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("expected stored user: %v", err)
	}
	if stored.ID != u.ID {
		t.Fatalf("stored id %q != returned id %q", stored.ID, u.ID)
	}
}

func TestCreateUser_DuplicateEmailIsRejectedEveryTime(t *testing.T) {
	repo := memory.NewUsersRepo()
	reg := registry.New(repo, registry.WithLogger(quietLogger()))
	ctx := context.Background()

	if _, err := reg.CreateUser(ctx, "user@example.com", "example"); err != nil {
		t.Fatalf("first create: %v", err)
	}

	for i := 0; i < 5; i++ {
		_, err := reg.CreateUser(ctx, "user@example.com", "example")
		if !errors.Is(err, user.ErrDuplicateEmail) {
			t.Fatalf("attempt %d: expected ErrDuplicateEmail, got %v", i, err)
		}
	}

	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Fatalf("expected 1 user after duplicates, got %d", count)
	}
}

func TestCreateUser_DifferentCaseIsADifferentEmail(t *testing.T) {
	reg := registry.New(memory.NewUsersRepo(), registry.WithLogger(quietLogger()))
	ctx := context.Background()

	if _, err := reg.CreateUser(ctx, "user@example.com", "example"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := reg.CreateUser(ctx, "USER@example.com", "example"); err != nil {
		t.Fatalf("expected case-different email to be accepted, got %v", err)
	}
}

func TestCreateUser_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		userName  string
		wantField string
	}{
		{name: "empty_email", email: "", userName: "example", wantField: "Email"},
		{name: "malformed_email", email: "not-an-email", userName: "example", wantField: "Email"},
		{name: "empty_name", email: "user@example.com", userName: "", wantField: "Name"},
		{name: "email_too_long", email: strings.Repeat("a", 250) + "@example.com", userName: "example", wantField: "Email"},
		{name: "name_too_long", email: "user@example.com", userName: strings.Repeat("n", 201), wantField: "Name"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{
				findFn: func(ctx context.Context, email string) (user.User, error) {
					t.Fatalf("store must not be queried for invalid input")
					return user.User{}, nil
				},
			}
			reg := registry.New(store, registry.WithLogger(quietLogger()))

			_, err := reg.CreateUser(context.Background(), tt.email, tt.userName)
			if !errors.Is(err, user.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}

			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected validator errors to be reachable, got %T", err)
			}
			if verrs[0].Field() != tt.wantField {
				t.Fatalf("got field %q want %q", verrs[0].Field(), tt.wantField)
			}

			if store.inserts != 0 {
				t.Fatalf("expected no writes, got %d", store.inserts)
			}
		})
	}
}

func TestCreateUser_InsertConstraintViolationBecomesDuplicate(t *testing.T) {
	// the lookup misses, as it would when a concurrent create wins between check and insert
	store := &fakeStore{
		insertFn: func(ctx context.Context, u user.User) (user.User, error) {
			return user.User{}, user.ErrDuplicateEmail
		},
	}
	reg := registry.New(store, registry.WithLogger(quietLogger()))

	_, err := reg.CreateUser(context.Background(), "user@example.com", "example")
	if !errors.Is(err, user.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if errors.Is(err, user.ErrStoreUnavailable) {
		t.Fatalf("duplicate must not be reported as a store failure")
	}
}

func TestCreateUser_StoreFailures(t *testing.T) {
	dbErr := errors.New("dial tcp 127.0.0.1:5432: connection refused")

	tests := []struct {
		name        string
		store       *fakeStore
		wantInserts int
	}{
		{
			name: "find_fails",
			store: &fakeStore{
				findFn: func(ctx context.Context, email string) (user.User, error) {
					return user.User{}, dbErr
				},
			},
			wantInserts: 0,
		},
		{
			name: "insert_fails",
			store: &fakeStore{
				insertFn: func(ctx context.Context, u user.User) (user.User, error) {
					return user.User{}, dbErr
				},
			},
			wantInserts: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New(tt.store, registry.WithLogger(quietLogger()))

			_, err := reg.CreateUser(context.Background(), "user@example.com", "example")
			if !errors.Is(err, user.ErrStoreUnavailable) {
				t.Fatalf("expected ErrStoreUnavailable, got %v", err)
			}
			if !errors.Is(err, dbErr) {
				t.Fatalf("expected the store cause to be wrapped, got %v", err)
			}
			if errors.Is(err, user.ErrDuplicateEmail) || errors.Is(err, user.ErrInvalidInput) {
				t.Fatalf("store failure conflated with a business error: %v", err)
			}
			if tt.store.inserts != tt.wantInserts {
				t.Fatalf("got %d inserts want %d", tt.store.inserts, tt.wantInserts)
			}
		})
	}
}

func TestCreateUser_UsesClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reg := registry.New(memory.NewUsersRepo(),
		registry.WithLogger(quietLogger()),
		registry.WithClock(func() time.Time { return fixed }),
	)

	u, err := reg.CreateUser(context.Background(), "user@example.com", "example")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if !u.CreatedAt.Equal(fixed) {
		t.Fatalf("createdAt %v want %v", u.CreatedAt, fixed)
	}
}

func TestCreateUser_ConcurrentSameEmail(t *testing.T) {
	repo := memory.NewUsersRepo()
	reg := registry.New(repo, registry.WithLogger(quietLogger()))
	ctx := context.Background()

	const n = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
		others     []error
	)

	startGate := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-startGate
			_, err := reg.CreateUser(ctx, "race@example.com", "example")

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, user.ErrDuplicateEmail):
				duplicates++
			default:
				others = append(others, err)
			}
		}()
	}
	close(startGate)
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if created != 1 || duplicates != n-1 {
		t.Fatalf("got %d created and %d duplicates, want 1 and %d", created, duplicates, n-1)
	}

	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Fatalf("expected exactly one stored user, got %d", count)
	}
}

func TestCreateUser_RecordsResults(t *testing.T) {
	prom := observability.NewProm(prometheus.NewRegistry())
	reg := registry.New(memory.NewUsersRepo(),
		registry.WithLogger(quietLogger()),
		registry.WithProm(prom),
	)
	ctx := context.Background()

	_, _ = reg.CreateUser(ctx, "user@example.com", "example")
	_, _ = reg.CreateUser(ctx, "user@example.com", "example")
	_, _ = reg.CreateUser(ctx, "", "example")

	checks := map[string]float64{
		observability.ResultCreated:    1,
		observability.ResultDuplicate:  1,
		observability.ResultInvalid:    1,
		observability.ResultStoreError: 0,
	}

	for result, want := range checks {
		if got := testutil.ToFloat64(prom.CreateResults.WithLabelValues(result)); got != want {
			t.Fatalf("result %q: got %v want %v", result, got, want)
		}
	}
}
