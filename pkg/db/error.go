package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsTransientConnErr reports whether err looks like a torn-down or stale
// connection (pooled connections killed by idle timeouts or SSL
// renegotiation). Callers retry exactly once with a fresh connection.
func IsTransientConnErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range []string{
		"ssl",
		"connection reset",
		"connection refused",
		"broken pipe",
		"bad connection",
		"closed",
	} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
