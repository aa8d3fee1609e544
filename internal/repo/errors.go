package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist, or when a
// conditional update matched no row. It aliases gorm.ErrRecordNotFound so
// callers can test with either sentinel.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that an insert hit a unique constraint.
var ErrDuplicate = errors.New("duplicate")

// IsDuplicate detects unique-constraint violations across drivers that do
// not map to gorm.ErrDuplicatedKey.
//
//   - SQLite:   "UNIQUE constraint failed" / "constraint failed: UNIQUE"
//   - MySQL:    "Error 1062 (23000): Duplicate entry ..."
//   - Postgres: "duplicate key value violates unique constraint"
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate entry") ||
		strings.Contains(low, "duplicate key")
}

// translate maps driver uniqueness errors onto ErrDuplicate and passes
// everything else through unchanged.
func translate(err error) error {
	if err != nil && IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}
