package postgresengine

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/hydromelvictor/gogoose/odm"
)

// sqlState extracts the SQLSTATE code from pgx and lib/pq errors.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	return sqlStateCodeUnknownStatus
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == pgUniqueViolation
}

func isUndefinedTable(err error) bool {
	return sqlState(err) == pgUndefinedTable
}

// translateError maps unique violations onto odm.ErrDuplicateKey and wraps everything else
// with the given sentinel.
func translateError(err error, sentinel error) error {
	if isUniqueViolation(err) {
		return errors.Join(odm.ErrDuplicateKey, err)
	}

	return errors.Join(sentinel, err)
}
