package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"newsletter/internal/models"
)

const (
	opCreate     = "subscriber.create"
	opGetByEmail = "subscriber.get_by_email"
	opDelete     = "subscriber.delete"
)

// EmailIndexName is the unique index created by the schema migration.
const EmailIndexName = "subscribers_email_index"

// SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

var errNoRowReturned = errors.New("insert returned no row")

// classifyCreateError is the only place that looks inside a driver error:
// a unique violation on the email index is a duplicate subscription, every
// other failure is a database error.
func classifyCreateError(err error) error {
	if isEmailUniqueViolation(err) {
		return models.NewError(models.KindEmailAlreadyExists, opCreate, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewError(models.KindDatabase, opCreate, errNoRowReturned)
	}
	return models.NewError(models.KindDatabase, opCreate, err)
}

func classifyLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewError(models.KindUserNotFound, opGetByEmail, nil)
	}
	return models.NewError(models.KindDatabase, opGetByEmail, err)
}

func classifyDeleteError(err error) error {
	return models.NewError(models.KindDatabase, opDelete, err)
}

func isEmailUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == EmailIndexName
}
