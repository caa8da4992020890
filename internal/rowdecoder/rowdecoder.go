/*
Package rowdecoder maps driver-returned values to the JSON-compatible forms
of spec.md §4.6.

Grounded on rickchristie-postgres-mcp/query.go's collectRows/convertValue
pair: decode via pgx.Rows.Values() (which already applies pgx/v5's default
binary-to-Go-native conversion per column OID) and then re-shape each Go
value into the JSON representation the response envelope should carry,
rather than hand-rolling a parallel OID switch on raw bytes. Unlike that
file — which converts every exotic type permissively (base64 bytea,
geometric types, ranges) — this package follows spec.md §4.6's narrower
table exactly: bytea is `\x`-hex (matching psql's default output format,
not base64), and bit/varbit/unknown are refused outright rather than
best-effort stringified.
*/
package rowdecoder

import (
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pgrest/pgrest/internal/apperr"
)

// unsupportedOIDs are rejected before any value conversion is attempted —
// "unknown" in particular would otherwise decode silently as a Go string,
// indistinguishable from text (spec.md §4.6: "must cause a decode error
// rather than silent misrepresentation").
var unsupportedOIDs = map[uint32]string{
	pgtype.BitOID:     "bit",
	pgtype.VarbitOID:  "varbit",
	pgtype.UnknownOID: "unknown",
}

// DecodeRows consumes rows to completion and returns one map per row, keyed
// by labels (positionally, in column order) when non-nil, or by the
// driver's own column name otherwise — the latter only happens for the raw
// SQL escape hatch, whose projection list isn't known ahead of execution.
// DecodeRows always closes rows, on success and on every error path.
func DecodeRows(rows pgx.Rows, labels []string) ([]map[string]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, fd := range fields {
		if labels != nil && i < len(labels) {
			names[i] = labels[i]
			continue
		}
		names[i] = fd.Name
	}

	if err := checkSupportedTypes(fields); err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperr.Database("", "failed to scan row", err)
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			v, err := decodeValue(values[i], fields[i].DataTypeOID)
			if err != nil {
				return nil, err
			}
			row[name] = v
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("", "failed reading result set", err)
	}
	return results, nil
}

// checkSupportedTypes rejects the whole result set up front if any column
// has a type spec.md §4.6 lists as unsupported, rather than failing midway
// through row conversion.
func checkSupportedTypes(fields []pgconn.FieldDescription) error {
	for _, fd := range fields {
		if typeName, ok := unsupportedOIDs[fd.DataTypeOID]; ok {
			return apperr.UnsupportedFeaturef("column %q has unsupported type %s", fd.Name, typeName)
		}
	}
	return nil
}

// decodeValue converts one pgx-decoded Go value into the JSON form spec.md
// §4.6's table specifies. oid is the originating column's Postgres type,
// needed because date/timestamp/timestamptz all decode to the same Go
// time.Time and only the column's OID tells them apart.
func decodeValue(v any, oid uint32) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil

	case bool, int16, int32, int64, uint32:
		// bool, int2/4/8, oid: pgx already hands back JSON-native scalars.
		return val, nil

	case float32:
		return decodeFloat(float64(val)), nil
	case float64:
		return decodeFloat(val), nil

	case pgtype.Numeric:
		return decodeNumeric(val)

	case string:
		// text, varchar, bpchar, name, citext: pgx decodes all of these to
		// Go string already.
		return val, nil

	case []byte:
		// bytea: `\x`-hex, matching Postgres's own default text output
		// format (spec.md §4.6), not base64.
		return `\x` + hex.EncodeToString(val), nil

	case pgtype.Date:
		if !val.Valid {
			return nil, nil
		}
		if s, ok := infinityString(val.InfinityModifier); ok {
			return s, nil
		}
		return val.Time.Format("2006-01-02"), nil

	case pgtype.Timestamp:
		if !val.Valid {
			return nil, nil
		}
		if s, ok := infinityString(val.InfinityModifier); ok {
			return s, nil
		}
		return val.Time.Format("2006-01-02 15:04:05.999999"), nil

	case pgtype.Timestamptz:
		if !val.Valid {
			return nil, nil
		}
		if s, ok := infinityString(val.InfinityModifier); ok {
			return s, nil
		}
		return val.Time.Format(time.RFC3339Nano), nil

	case pgtype.Time:
		// `time`/`timetz` decode to microseconds-since-midnight, not a
		// date-bearing type.
		return decodeClock(val), nil

	case time.Time:
		// Defensive fallback: a scan path that bypassed pgtype's Date/
		// Timestamp/Timestamptz wrappers and handed back a bare time.Time.
		return decodeTimestamp(val, oid), nil

	case [16]byte:
		// uuid: canonical 8-4-4-4-12.
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16]), nil

	case net.HardwareAddr:
		// macaddr/macaddr8.
		return val.String(), nil

	case pgtype.Hstore:
		// hstore allows a NULL value for any key; decoded here as JSON
		// null rather than an empty string, since collapsing the two
		// would lose information the column actually stores.
		out := make(map[string]any, len(val))
		for k, s := range val {
			if s == nil {
				out[k] = nil
				continue
			}
			out[k] = *s
		}
		return out, nil

	case map[string]any:
		// jsonb/json decoded as an object; recurse so nested values go
		// through the same conversion (e.g. a numeric buried in jsonb text
		// stays a plain JSON number here, since Postgres already encoded
		// it that way inside the jsonb payload itself).
		out := make(map[string]any, len(val))
		for k, e := range val {
			dv, err := decodeValue(e, 0)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil

	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			dv, err := decodeValue(e, 0)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil

	default:
		return val, nil
	}
}

// decodeTimestamp formats a decoded date/timestamp/timestamptz value per
// spec.md §4.6: date alone as "YYYY-MM-DD", timestamp without a zone as
// "YYYY-MM-DD HH:MM:SS[.fff]", and timestamptz (the default for any other
// OID reaching here, since it's the only remaining case pgx decodes to
// time.Time) as full ISO-8601 with zone.
func decodeTimestamp(t time.Time, oid uint32) string {
	switch oid {
	case pgtype.DateOID:
		return t.Format("2006-01-02")
	case pgtype.TimestampOID:
		return t.Format("2006-01-02 15:04:05.999999")
	default:
		return t.Format(time.RFC3339Nano)
	}
}

// infinityString reports the string form of a non-finite date/timestamp
// value, mirroring how Postgres itself prints +/-infinity in text output.
func infinityString(m pgtype.InfinityModifier) (string, bool) {
	switch m {
	case pgtype.Infinity:
		return "Infinity", true
	case pgtype.NegativeInfinity:
		return "-Infinity", true
	default:
		return "", false
	}
}

// decodeClock formats a `time`/`timetz` value from its microseconds-since-
// midnight representation as "HH:MM:SS[.fff]" (spec.md §4.6).
func decodeClock(t pgtype.Time) string {
	if !t.Valid {
		return ""
	}
	us := t.Microseconds
	hours := us / 3_600_000_000
	us -= hours * 3_600_000_000
	minutes := us / 60_000_000
	us -= minutes * 60_000_000
	seconds := us / 1_000_000
	us -= seconds * 1_000_000
	if us > 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%06d", hours, minutes, seconds, us)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

func decodeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}

// decodeNumeric renders a numeric value as a JSON string, preserving the
// exact precision the driver delivered (spec.md §4.6: "numeric precision is
// preserved exactly as delivered by the driver"). pgtype.Numeric's own
// MarshalJSON emits a bare decimal literal ("123.450"); wrapping it as a Go
// string rather than raw JSON bytes lets the response envelope's own
// json.Marshal quote it normally.
func decodeNumeric(n pgtype.Numeric) (any, error) {
	if !n.Valid {
		return nil, nil
	}
	if n.NaN {
		return "NaN", nil
	}
	if n.InfinityModifier == pgtype.Infinity {
		return "Infinity", nil
	}
	if n.InfinityModifier == pgtype.NegativeInfinity {
		return "-Infinity", nil
	}
	b, err := n.MarshalJSON()
	if err != nil {
		return nil, apperr.Database("", "failed to decode numeric value", err)
	}
	return string(b), nil
}
