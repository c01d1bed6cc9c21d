package aggregate

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDataUnavailable reports that both computation paths failed. No partial
// result is ever returned in its place.
var ErrDataUnavailable = errors.New("usage data unavailable")

// errWindowedTimeRange marks a request the remote procedure cannot serve.
var errWindowedTimeRange = errors.New("windowed time range requires local aggregation")

// Procedure-incompatibility SQLSTATE codes: undefined function, ambiguous
// column, undefined table, invalid function definition.
var incompatibleSQLStates = map[string]struct{}{
	"42883": {},
	"42702": {},
	"42P01": {},
	"42P13": {},
}

// IsProcIncompatible reports whether a remote-procedure error means the
// procedure is missing or has an incompatible signature, as opposed to an
// unrelated failure such as a lost connection. Incompatibility selects the
// fallback path and is never surfaced to the caller.
func IsProcIncompatible(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := incompatibleSQLStates[pgErr.Code]
		return ok
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"does not exist",
		"no such function",
		"no such table",
		"ambiguous",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
