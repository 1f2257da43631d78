package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"program-events/models"
)

// IsUniqueViolation reports whether err is a unique or primary key violation.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return sqliteConstraint(se, sqlite3.SQLITE_CONSTRAINT_UNIQUE, "UNIQUE") ||
			sqliteConstraint(se, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, "PRIMARY KEY")
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code.Name() == "unique_violation"
	}
	return false
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return sqliteConstraint(se, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY")
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code.Name() == "foreign_key_violation"
	}
	return false
}

func isCheckViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return sqliteConstraint(se, sqlite3.SQLITE_CONSTRAINT_CHECK, "CHECK")
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code.Name() == "check_violation"
	}
	return false
}

// sqliteConstraint matches the extended result code, or the primary
// SQLITE_CONSTRAINT code plus the constraint kind in the message.
func sqliteConstraint(se *sqlite.Error, extended int, kind string) bool {
	if se.Code() == extended {
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), kind+" constraint failed")
}

// Classify maps a driver error onto the models error taxonomy. sql.ErrNoRows
// and context errors are returned unchanged so callers can branch on them.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrInvalid),
		errors.Is(err, models.ErrStoreUnavailable):
		return err
	case IsUniqueViolation(err), IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", models.ErrConflict, err)
	case isCheckViolation(err):
		return fmt.Errorf("%w: %v", models.ErrInvalid, err)
	}
	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}
