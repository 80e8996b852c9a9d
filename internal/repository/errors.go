// Package repository defines the MySQL data access layer and the error
// values shared by every repository.  Handlers translate these sentinels
// into HTTP responses: ErrNotFound to 404, ErrForbidden to 403 and
// ErrConflict to 409.  Any other error is a persistence failure.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row does not exist, or exists but the
// caller is not allowed to see it.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be performed because of the
// row's current state, such as deleting a request that is no longer
// pending.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when registering an address that is taken.
var ErrEmailExists = errors.New("email already exists")

// isDuplicateKey reports whether err is MySQL error 1062 (duplicate entry).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
