package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
)

// IsDuplicateKeyErr reports whether err is a unique-constraint violation on
// any supported dialect.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	if hasPGCode(err, pgUniqueViolation) {
		return true
	}

	// MySQL 1062 and SQLite 2067 surface as plain strings through gorm.
	msg := err.Error()
	if strings.Contains(msg, "duplicate key value violates unique constraint") {
		return true
	}
	if strings.Contains(msg, "Error 1062") {
		return true
	}
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsLockTimeoutErr reports whether err is a postgres lock wait timeout.
func IsLockTimeoutErr(err error) bool {
	return hasPGCode(err, pgLockNotAvailable)
}

// IsSerializationErr reports whether err is a postgres serialization failure.
func IsSerializationErr(err error) bool {
	return hasPGCode(err, pgSerializationFailure)
}

// IsRetryableErr reports whether a statement is safe to retry after err.
func IsRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	return IsLockTimeoutErr(err) || IsSerializationErr(err)
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
