package observability

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error classes for userhub_db_errors_total. The users store only runs single
// row lookups and inserts, so these are the failures it can actually hit.
const (
	DBErrUniqueViolation = "unique_violation"
	DBErrTimeout         = "timeout"
	DBErrCanceled        = "canceled"
	DBErrConnection      = "connection"
	DBErrOther           = "other"
)

// ObserveDB times fn under op. A lookup that finds no row is a normal outcome
// for FindByEmail and is recorded as status "no_rows", not as an error.
func (p *Prom) ObserveDB(op string, fn func() error) error {
	start := time.Now()
	err := fn()

	status := "ok"

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		status = "no_rows"
	default:
		status = "error"
		p.DbErrorsTotal.WithLabelValues(op, classifyDBErr(err)).Inc()
	}
	p.DbQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

func classifyDBErr(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return DBErrUniqueViolation
		case "57014": // statement_timeout or a server-side cancel
			return DBErrTimeout
		}
		return DBErrOther
	}

	var connErr *pgconn.ConnectError

	switch {
	case pgconn.Timeout(err):
		return DBErrTimeout
	case errors.Is(err, context.Canceled):
		return DBErrCanceled
	case errors.As(err, &connErr):
		return DBErrConnection
	default:
		return DBErrOther
	}
}
