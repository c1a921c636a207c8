package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"motoledger/internal/core/apperror"
)

// QueryError converts driver errors into AppErrors for the given entity.
// Serialization failures become CONCURRENT_MODIFICATION, unique violations
// DUPLICATE_ENTRY, and an empty result NOT_FOUND.
func QueryError(err error, entity string, key any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound(entity, key)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation {
		return apperror.NewConflict(entity + " already exists").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	}
	if translated := translateError(err); translated != err {
		return translated
	}
	return apperror.NewInternal(err).WithDetail("entity", entity)
}
