package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/agrotrack/plotmanager/internal/domain"
)

const pqUniqueViolation = "23505"

// uniqueViolation maps a Postgres unique violation on users to a
// DuplicateError. It returns nil for every other error.
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case "users_username_key":
		return &domain.DuplicateError{Field: "username"}
	case "users_email_key":
		return &domain.DuplicateError{Field: "email"}
	default:
		return &domain.DuplicateError{Field: pqErr.Constraint}
	}
}

// validID reports whether id can be sent to a UUID column
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var (
	_ domain.UserRepository    = (*PostgresUserRepository)(nil)
	_ domain.ProfileRepository = (*PostgresProfileRepository)(nil)
	_ domain.PlotRepository    = (*PostgresPlotRepository)(nil)
)
