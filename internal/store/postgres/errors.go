package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"

	constraintAppointmentsNoOverlap = "appointments_no_overlap"
	constraintServicesOwnerName     = "services_owner_lower_name_idx"
)

// violates reports whether err is a Postgres error with the given SQLSTATE.
// An empty constraint matches any constraint name.
func violates(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
