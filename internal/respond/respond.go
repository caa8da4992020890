/*
Package respond writes the HTTP response envelopes of spec.md §6: a JSON
array of row objects for reads/RETURNING, `{"num_rows": N}` for a mutation
without RETURNING, an introspection object when a table's columns are
requested without a projection, and `{"error", "message"}` for failures.

Grounded on taibuivan-yomira/internal/platform/respond's JSON helper and
its apperr-to-envelope Error function — ported from that package's
slog/ctxkey-based request logger to this project's zap.Logger (threaded
explicitly rather than through a context key, matching the teacher's own
middleware.go, which also passes its logger by value rather than stashing
it in the request context).
*/
package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pgrest/pgrest/internal/apperr"
)

// JSON writes payload as the body with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Rows writes a SELECT or RETURNING result: a JSON array of row objects,
// each keyed by the dotted path or alias the user supplied (spec.md §8
// "label preservation" — synthetic aliases never leak).
func Rows(w http.ResponseWriter, rows []map[string]any) {
	if rows == nil {
		rows = []map[string]any{}
	}
	JSON(w, http.StatusOK, rows)
}

// numRowsEnvelope is `{"num_rows": N}`, returned by a mutation that did
// not request RETURNING (spec.md §6).
type numRowsEnvelope struct {
	NumRows int64 `json:"num_rows"`
}

// NumRows writes the affected-row-count envelope.
func NumRows(w http.ResponseWriter, n int64) {
	JSON(w, http.StatusOK, numRowsEnvelope{NumRows: n})
}

// Introspection writes a table's Table Stats as the GET response body when
// no columns were requested (spec.md §4.5 "introspection response").
func Introspection(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

// errorEnvelope is `{"error": "<kind>", "message": "<detail>"}` (spec.md
// §6). Unlike the teacher's ErrorEnvelope, the machine-readable field is
// the taxonomy Kind itself (spec.md §7's InvalidIdentifier/SyntaxError/…
// strings), not a separate service-specific error code.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error converts err into the structured envelope and writes it with the
// status the error taxonomy assigns (spec.md §7). Errors not already an
// [*apperr.Error] are logged at error level and rendered as an opaque
// DatabaseError, since the adapter must never leak an unclassified Go
// error message to the client.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	ae := apperr.As(err)
	if ae == nil {
		logger.Error("unclassified error reached the response boundary", zap.Error(err))
		ae = apperr.Database("", "internal error", err)
	}

	if ae.HTTPStatus >= 500 {
		logger.Error("request failed",
			zap.String("kind", string(ae.Kind)),
			zap.String("sqlstate", ae.SQLSTATE),
			zap.Error(ae),
		)
	}

	JSON(w, ae.HTTPStatus, errorEnvelope{
		Error:   string(ae.Kind),
		Message: ae.Message,
	})
}
