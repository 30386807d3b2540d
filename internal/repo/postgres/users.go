package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.find_by_email", func() error {
		return r.pool.QueryRow(
			ctx,
			`SELECT id, email, name, created_at
			 FROM users
			 WHERE email = $1`,
			email,
		).Scan(
			&u.ID,
			&u.Email,
			&u.Name,
			&u.CreatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// Insert writes a single row and returns it as stored, so CreatedAt carries the
// column's microsecond precision. The users_email_key constraint is what actually
// keeps emails unique, so a violation here is a duplicate even if FindByEmail missed it.
func (r *UsersRepo) Insert(ctx context.Context, u user.User) (user.User, error) {
	var stored user.User

	err := r.observe("users.insert", func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO users (id, email, name, created_at)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, email, name, created_at`,
			u.ID, u.Email, u.Name, u.CreatedAt,
		).Scan(
			&stored.ID,
			&stored.Email,
			&stored.Name,
			&stored.CreatedAt,
		)
	})

	if err != nil {
		if isConstraintViolation(err, usersEmailConstraint) {
			return user.User{}, user.ErrDuplicateEmail
		}
		return user.User{}, err
	}

	stored.CreatedAt = stored.CreatedAt.UTC()
	return stored, nil
}

func (r *UsersRepo) Count(ctx context.Context) (int, error) {
	var total int
	err := r.observe("users.count", func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	})
	return total, err
}
