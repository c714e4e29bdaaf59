package baas

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes the application branches on. They are the managed backend's
// codes; the local backend reports the same ones.
const (
	CodeNoRows              = "PGRST116"
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
)

// Service names which half of the backend produced an error.
type Service string

const (
	ServiceAuth Service = "auth"
	ServiceData Service = "data"
)

// Error is a failure reported by the backend itself, as opposed to a
// transport failure (which implementations return wrapped but untyped).
type Error struct {
	Service Service
	Status  int
	Code    string
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Service, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// NoRows builds the error returned by a Single query that matched nothing.
func NoRows(table string) *Error {
	return &Error{
		Service: ServiceData,
		Status:  http.StatusNotAcceptable,
		Code:    CodeNoRows,
		Message: "JSON object requested, multiple (or no) rows returned",
		Details: "The result contains 0 rows from " + table,
	}
}

func code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNoRows reports a Single query that matched no row.
func IsNoRows(err error) bool { return code(err) == CodeNoRows }

// IsUniqueViolation reports an insert that collided with an existing key.
func IsUniqueViolation(err error) bool { return code(err) == CodeUniqueViolation }

// IsForeignKeyViolation reports a write that referenced a missing row.
func IsForeignKeyViolation(err error) bool { return code(err) == CodeForeignKeyViolation }

// IsAuth reports a failure from the auth service or a rejected access token.
func IsAuth(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Service == ServiceAuth || e.Status == http.StatusUnauthorized
}
