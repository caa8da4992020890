package rowdecoder

import (
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestDecodeValuePassesThroughScalars(t *testing.T) {
	cases := []any{true, int16(1), int32(2), int64(3), uint32(4), "hello"}
	for _, c := range cases {
		got, err := decodeValue(c, 0)
		if err != nil {
			t.Fatalf("decodeValue(%v): %v", c, err)
		}
		if got != c {
			t.Fatalf("decodeValue(%v) = %v, want unchanged", c, got)
		}
	}
}

func TestDecodeValueFloatSpecials(t *testing.T) {
	if got, _ := decodeValue(1.5, 0); got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}
	if got, _ := decodeValue(math.NaN(), 0); got != "NaN" {
		t.Fatalf("expected NaN, got %v", got)
	}
	if got, _ := decodeValue(math.Inf(1), 0); got != "Infinity" {
		t.Fatalf("expected Infinity, got %v", got)
	}
}

func TestDecodeValueBytea(t *testing.T) {
	got, err := decodeValue([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 0)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	if got != `\xdeadbeef` {
		t.Fatalf("unexpected bytea encoding: %v", got)
	}
}

func TestDecodeValueUUID(t *testing.T) {
	var raw [16]byte
	copy(raw[:], []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x00})
	got, err := decodeValue(raw, 0)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	if got != "11223344-5566-7788-99aa-bbccddeeff00" {
		t.Fatalf("unexpected uuid encoding: %v", got)
	}
}

func TestDecodeValueDate(t *testing.T) {
	d := pgtype.Date{Time: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Valid: true}
	got, err := decodeValue(d, pgtype.DateOID)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	if got != "2024-03-05" {
		t.Fatalf("unexpected date encoding: %v", got)
	}
}

func TestDecodeValueTimestampWithoutZone(t *testing.T) {
	ts := pgtype.Timestamp{Time: time.Date(2024, 3, 5, 13, 45, 2, 0, time.UTC), Valid: true}
	got, err := decodeValue(ts, pgtype.TimestampOID)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	if got != "2024-03-05 13:45:02" {
		t.Fatalf("unexpected timestamp encoding: %v", got)
	}
}

func TestDecodeValueTimestamptzIncludesZone(t *testing.T) {
	ts := pgtype.Timestamptz{Time: time.Date(2024, 3, 5, 13, 45, 2, 0, time.UTC), Valid: true}
	got, err := decodeValue(ts, pgtype.TimestamptzOID)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	s, ok := got.(string)
	if !ok || s == "" {
		t.Fatalf("expected non-empty formatted string, got %v", got)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err != nil || !parsed.Equal(ts.Time) {
		t.Fatalf("expected RFC3339 round-trip, got %v (%v)", s, err)
	}
}

func TestDecodeValueClock(t *testing.T) {
	clock := pgtype.Time{Microseconds: (13*3600 + 45*60 + 2) * 1_000_000, Valid: true}
	got, err := decodeValue(clock, 0)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	if got != "13:45:02" {
		t.Fatalf("unexpected time encoding: %v", got)
	}
}

func TestDecodeNumericPreservesPrecision(t *testing.T) {
	var n pgtype.Numeric
	if err := n.Scan("123.45000"); err != nil {
		t.Fatalf("Numeric.Scan: %v", err)
	}
	got, err := decodeNumeric(n)
	if err != nil {
		t.Fatalf("decodeNumeric: %v", err)
	}
	if _, ok := got.(string); !ok {
		t.Fatalf("expected numeric to decode as a string, got %T", got)
	}
}

func TestDecodeValueHstore(t *testing.T) {
	v := "bar"
	in := pgtype.Hstore{"foo": &v, "baz": nil}
	got, err := decodeValue(in, 0)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", got)
	}
	if m["foo"] != "bar" {
		t.Fatalf("expected foo=bar, got %v", m["foo"])
	}
	if m["baz"] != nil {
		t.Fatalf("expected baz=nil, got %v", m["baz"])
	}
}

func TestDecodeValueJSONRecursesIntoNested(t *testing.T) {
	in := map[string]any{"a": []any{int64(1), "two", nil}}
	got, err := decodeValue(in, 0)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", got)
	}
	arr, ok := m["a"].([]any)
	if !ok || len(arr) != 3 {
		t.Fatalf("expected nested array of length 3, got %v", m["a"])
	}
}

func TestCheckSupportedTypesRejectsBit(t *testing.T) {
	fields := []pgconn.FieldDescription{{Name: "flags", DataTypeOID: pgtype.BitOID}}
	if err := checkSupportedTypes(fields); err == nil {
		t.Fatal("expected an error for a bit column")
	}
}

func TestCheckSupportedTypesRejectsVarbit(t *testing.T) {
	fields := []pgconn.FieldDescription{{Name: "flags", DataTypeOID: pgtype.VarbitOID}}
	if err := checkSupportedTypes(fields); err == nil {
		t.Fatal("expected an error for a varbit column")
	}
}

func TestCheckSupportedTypesRejectsUnknown(t *testing.T) {
	fields := []pgconn.FieldDescription{{Name: "mystery", DataTypeOID: pgtype.UnknownOID}}
	if err := checkSupportedTypes(fields); err == nil {
		t.Fatal("expected an error for an unknown-typed column")
	}
}

func TestCheckSupportedTypesAllowsOrdinaryColumns(t *testing.T) {
	fields := []pgconn.FieldDescription{
		{Name: "id", DataTypeOID: pgtype.Int4OID},
		{Name: "name", DataTypeOID: pgtype.TextOID},
	}
	if err := checkSupportedTypes(fields); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
