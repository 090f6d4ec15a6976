package errors

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps database errors to AppError instances:
//   - pgx.ErrNoRows → NotFound
//   - unique violations → Conflict
//   - check / not-null violations → Validation
//   - context deadline / cancellation → Timeout / Canceled
//
// Unrecognized errors are wrapped as Internal so callers never surface raw
// driver detail to clients.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrCodeTimeout, "request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(err, ErrCodeCanceled, "request was canceled")
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(err, ErrCodeNotFound, "resource not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return Wrap(pgErr, ErrCodeConflict, "value already exists")
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return Wrap(pgErr, ErrCodeValidation, "invalid data")
		default:
			return Wrap(pgErr, ErrCodeInternal, "database error")
		}
	}

	return Wrap(err, ErrCodeInternal, "database error")
}
