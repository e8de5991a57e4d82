package service

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pgUniqueViolation pq.ErrorCode = "23505"
	pgCheckViolation  pq.ErrorCode = "23514"
)

// hasPgCode reports whether err wraps a PostgreSQL error with code.
func hasPgCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
