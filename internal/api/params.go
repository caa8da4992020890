package api

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pgrest/pgrest/internal/apperr"
)

// identifierRE and dottedIdentifierRE are the boundary check of spec.md
// §4.3/§7: any name reaching the fragment parser must already satisfy one
// of these before a single byte of SQL is emitted.
var (
	identifierRE       = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	dottedIdentifierRE = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)+$`)
)

// validateIdentifier accepts a bare name or a dotted path, rejecting
// anything else as InvalidIdentifier.
func validateIdentifier(id string) error {
	if identifierRE.MatchString(id) || dottedIdentifierRE.MatchString(id) {
		return nil
	}
	return apperr.InvalidIdentifierf("identifier %q contains characters outside [A-Za-z0-9_.]", id)
}

// validateTable accepts only a bare table name; a table path can never be
// dotted, since dotted paths name FK traversals from the table, not the
// table itself.
func validateTable(table string) error {
	if identifierRE.MatchString(table) {
		return nil
	}
	return apperr.InvalidIdentifierf("table name %q contains characters outside [A-Za-z0-9_]", table)
}

// splitCSV splits a comma-separated query parameter into its trimmed parts,
// or nil if raw is empty.
func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validateIdentifierList validates every entry of a CSV query parameter
// (spec.md §7 "any identifier not matching ... rejected before SQL is
// emitted"), ignoring any "AS alias"/"DESC" suffix a caller has already
// stripped before calling this.
func validateIdentifierList(raw string) ([]string, error) {
	items := splitCSV(raw)
	for _, item := range items {
		if err := validateIdentifier(item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// selectParams is the parsed, not-yet-compiled query string of a GET
// request (spec.md §6 "GET: columns, distinct, where, group_by, order_by,
// limit, offset").
type selectParams struct {
	Columns  string
	Distinct string
	Where    string
	GroupBy  string
	OrderBy  string
	Limit    int
	Offset   int
}

func parseSelectParams(q url.Values, defaultLimit int) (selectParams, error) {
	p := selectParams{
		Columns:  q.Get("columns"),
		Distinct: q.Get("distinct"),
		Where:    q.Get("where"),
		GroupBy:  q.Get("group_by"),
		OrderBy:  q.Get("order_by"),
		Limit:    defaultLimit,
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, apperr.InvalidIdentifierf("limit must be a non-negative integer, got %q", raw)
		}
		p.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, apperr.InvalidIdentifierf("offset must be a non-negative integer, got %q", raw)
		}
		p.Offset = n
	}

	return p, nil
}

// insertParams is the parsed query string of a POST request (spec.md §6
// "POST: conflict_action, conflict_target, returning_columns").
type insertParams struct {
	ConflictAction   string
	ConflictTarget   []string
	ReturningColumns []string
}

func parseInsertParams(q url.Values) (insertParams, error) {
	p := insertParams{ConflictAction: q.Get("conflict_action")}
	switch p.ConflictAction {
	case "", "nothing", "update":
	default:
		return p, apperr.InvalidIdentifierf("conflict_action must be %q or %q, got %q", "nothing", "update", p.ConflictAction)
	}

	target, err := validateIdentifierList(q.Get("conflict_target"))
	if err != nil {
		return p, err
	}
	p.ConflictTarget = target

	returning, err := validateIdentifierList(q.Get("returning_columns"))
	if err != nil {
		return p, err
	}
	p.ReturningColumns = returning

	return p, nil
}

// updateParams is the parsed query string of a PUT request (spec.md §6
// "PUT: where, returning_columns").
type updateParams struct {
	Where            string
	ReturningColumns []string
}

func parseUpdateParams(q url.Values) (updateParams, error) {
	returning, err := validateIdentifierList(q.Get("returning_columns"))
	if err != nil {
		return updateParams{}, err
	}
	return updateParams{Where: q.Get("where"), ReturningColumns: returning}, nil
}

// deleteParams is the parsed query string of a DELETE request (spec.md §6
// "DELETE: confirm_delete (required), where, returning_columns").
type deleteParams struct {
	ConfirmDelete    bool
	Where            string
	ReturningColumns []string
}

func parseDeleteParams(q url.Values) (deleteParams, error) {
	confirm, err := parseBool(q.Get("confirm_delete"))
	if err != nil {
		return deleteParams{}, err
	}
	returning, err := validateIdentifierList(q.Get("returning_columns"))
	if err != nil {
		return deleteParams{}, err
	}
	return deleteParams{ConfirmDelete: confirm, Where: q.Get("where"), ReturningColumns: returning}, nil
}

// parseBool treats an absent or empty value as false, matching
// "confirm_delete (required)" being satisfied only by an explicit truthy
// value.
func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.InvalidIdentifierf("expected a boolean value, got %q", raw)
	}
	return b, nil
}

// rawSQLParams is the parsed query string of POST /sql (spec.md §6
// "/sql: is_returning_columns").
type rawSQLParams struct {
	IsReturningColumns bool
}

func parseRawSQLParams(q url.Values) (rawSQLParams, error) {
	b, err := parseBool(q.Get("is_returning_columns"))
	if err != nil {
		return rawSQLParams{}, err
	}
	return rawSQLParams{IsReturningColumns: b}, nil
}

// requireContentType enforces the Content-Type spec.md §6 names for the
// raw-SQL escape hatch.
func requireContentType(contentType, want string) error {
	got := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if !strings.EqualFold(got, want) {
		return apperr.InvalidIdentifierf("expected Content-Type: %s, got %q", want, fmt.Sprint(contentType))
	}
	return nil
}
