// Package dberr classifies driver-level PostgreSQL errors into [apperr.Error]
// values, surfacing the SQLSTATE verbatim per spec.md §7.
package dberr

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgrest/pgrest/internal/apperr"
)

// Wrap inspects a database error returned by the pgx driver and classifies
// it into the taxonomy of spec.md §7. The only raw driver error it returns
// is pgx.ErrNoRows, which is passed through unchanged.
func Wrap(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.TimeoutErr(err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.TimeoutErr(err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		// Not an error the core reports: callers decide whether zero rows
		// is a valid, empty result or should be surfaced some other way.
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 57014: query_canceled, raised when a server-side
		// statement_timeout fires. SPEC_FULL §7 classifies this as
		// Timeout, not a generic database error.
		if pgErr.Code == "57014" {
			return apperr.TimeoutErr(err)
		}
		return apperr.Database(pgErr.Code, pgErr.Message, err)
	}

	return apperr.Database("", err.Error(), err)
}

// IsAcquireTimeout reports whether err is a pgxpool connection-acquire
// timeout, which the adapter should render as ServiceUnavailable rather
// than a generic DatabaseError (spec.md §5 "ServiceUnavailable").
func IsAcquireTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
