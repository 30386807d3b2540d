package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation = "23505"

	usersEmailConstraint = "users_email_key"
)

// isConstraintViolation reports a unique violation on the named constraint only.
// A clash on the primary key is not a duplicate email.
func isConstraintViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}
