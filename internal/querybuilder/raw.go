package querybuilder

// RawResult is the pass-through result of the raw SQL escape hatch
// (spec.md §4.5 "Build raw SQL"): no parsing, no rewriting, no FK
// resolution. IsReturningColumns mirrors the /sql endpoint's
// is_returning_columns flag, telling the Request Adapter whether to decode
// and return rows or only report the affected-row count.
type RawResult struct {
	SQL                string
	IsReturningColumns bool
}

// BuildRaw wraps sql verbatim; it exists so the Request Adapter dispatches
// through the same Build* family for all five operations spec.md §4.5
// names, even though this one does no compilation work.
func BuildRaw(sql string, isReturningColumns bool) *RawResult {
	return &RawResult{SQL: sql, IsReturningColumns: isReturningColumns}
}
