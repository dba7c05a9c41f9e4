package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// sqlStateUniqueViolation is the Postgres SQLSTATE for a unique constraint
// violation (23505), used to translate a racing insert into a Conflict
// error instead of an opaque storage failure.
const sqlStateUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateUniqueViolation
	}
	return false
}
