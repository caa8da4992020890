/*
Package api implements the Request Adapter of spec.md §4.7: it validates
and parses the HTTP surface of spec.md §6, drives the compiler pipeline
(sqlfrag -> fkresolver -> querybuilder), executes the compiled statement
against the pool, and renders the result through internal/respond.

Grounded on the teacher's internal/api/handlers.go (the dispatch-by-method
shape) and routes.go/middleware.go (mux layout, request logging), with the
single `database/sql` + `lib/pq` prototype handler replaced entirely by the
five-operation pipeline spec.md §4.5 names.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pgrest/pgrest/internal/apperr"
	"github.com/pgrest/pgrest/internal/catalog"
	"github.com/pgrest/pgrest/internal/config"
	"github.com/pgrest/pgrest/internal/dberr"
	"github.com/pgrest/pgrest/internal/fkresolver"
	"github.com/pgrest/pgrest/internal/querybuilder"
	"github.com/pgrest/pgrest/internal/respond"
	"github.com/pgrest/pgrest/internal/rowdecoder"
	"github.com/pgrest/pgrest/internal/sqlfrag"
)

// StatsGetter is the subset of statscache.Cache the adapter needs; it is
// also the interface fkresolver.Resolve consumes, so a *statscache.Cache
// satisfies both without adaptation.
type StatsGetter interface {
	fkresolver.StatsGetter
	Reset()
}

// Handler wires the compiler pipeline to HTTP. All fields are read-only
// after construction; the only process-wide mutable state it touches is
// the Stats Cache, which already synchronizes itself.
type Handler struct {
	pool   *pgxpool.Pool
	cache  StatsGetter
	cfg    *config.Config
	logger *zap.Logger
}

// NewHandler builds a Handler. pool and cache are shared across requests;
// cfg supplies DefaultLimit and MaxFKDepth.
func NewHandler(pool *pgxpool.Pool, cache StatsGetter, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{pool: pool, cache: cache, cfg: cfg, logger: logger}
}

// wrapStatsErr classifies a Stats Cache / Catalog Client error: a missing
// table becomes UnknownTable (spec.md §7); anything else is a database
// error carrying its SQLSTATE, if any.
func wrapStatsErr(err error) error {
	var nf *catalog.ErrNotFound
	if errors.As(err, &nf) {
		return apperr.UnknownTablef("table %q not found", nf.Table)
	}
	return dberr.Wrap(err)
}

// resolveAndRewrite gathers the dotted identifiers referenced across frags
// (in frags' own order, spec.md §4.4 "ordered as in the user's request"),
// resolves them against table's FK tree, and rewrites every fragment's
// AST in place against the resulting alias map. A nil fragment is skipped.
func (h *Handler) resolveAndRewrite(ctx context.Context, table string, frags ...*sqlfrag.Fragment) (*fkresolver.Result, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, f := range frags {
		if f == nil {
			continue
		}
		for _, id := range sqlfrag.CollectIdentifiers(f) {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	res, err := fkresolver.Resolve(ctx, h.cache, table, ids, h.cfg.MaxFKDepth)
	if err != nil {
		return nil, err
	}
	for _, f := range frags {
		if f != nil {
			sqlfrag.Rewrite(f, res.Rewrite)
		}
	}
	return res, nil
}

// parseOptionalFragment parses raw as shape, or returns a nil fragment when
// raw is empty — callers treat a nil fragment as "clause absent".
func parseOptionalFragment(raw string, shape sqlfrag.Shape) (*sqlfrag.Fragment, error) {
	if raw == "" {
		return nil, nil
	}
	return sqlfrag.Parse(raw, shape)
}

// csvColumnListFragment parses a CSV query-string value (e.g.
// returning_columns) as a ColumnList fragment, or returns nil if raw is
// empty.
func csvColumnListFragment(raw string) (*sqlfrag.Fragment, error) {
	return parseOptionalFragment(raw, sqlfrag.ColumnList)
}

// validateFragmentIdentifiers re-checks every dotted/bare identifier a
// parsed fragment references against the [A-Za-z0-9_]+ boundary
// (spec.md §7/§8 invariant 4 "Identifier hygiene"). Without this, an
// identifier outside that charset that still happens to parse as valid
// SQL surfaces only once the FK Resolver fails to find it on the
// catalog, as an UnknownColumn rather than InvalidIdentifier.
func validateFragmentIdentifiers(f *sqlfrag.Fragment) error {
	if f == nil {
		return nil
	}
	for _, id := range sqlfrag.CollectIdentifiers(f) {
		if err := validateIdentifier(id); err != nil {
			return err
		}
	}
	return nil
}

// acquireConn checks out a pooled connection on a sub-context bounded by
// cfg.PoolAcquireTimeout, distinct from ctx's own (statement) deadline, so
// a timeout here means the pool was exhausted rather than a slow query
// (SPEC_FULL §5 "pool exhaustion past the configured acquire timeout
// surfaces as apperr.ServiceUnavailable").
func (h *Handler) acquireConn(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, h.cfg.PoolAcquireTimeout())
	defer cancel()

	conn, err := h.pool.Acquire(acquireCtx)
	if err != nil {
		if dberr.IsAcquireTimeout(err) {
			return nil, apperr.Unavailable(err)
		}
		return nil, dberr.Wrap(err)
	}
	return conn, nil
}

func (h *Handler) queryRows(ctx context.Context, sqlText string, labels []string, params ...any) ([]map[string]any, error) {
	conn, err := h.acquireConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sqlText, params...)
	if err != nil {
		return nil, dberr.Wrap(err)
	}
	return rowdecoder.DecodeRows(rows, labels)
}

func (h *Handler) execNumRows(ctx context.Context, sqlText string, params ...any) (int64, error) {
	conn, err := h.acquireConn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, sqlText, params...)
	if err != nil {
		return 0, dberr.Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// GetTable serves SELECT or, when columns= is absent, a table's
// introspection summary (spec.md §4.5/§4.7).
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := chi.URLParam(r, "table")
	if err := validateTable(table); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	sp, err := parseSelectParams(r.URL.Query(), h.cfg.DefaultLimit)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	stats, err := h.cache.Get(ctx, table)
	if err != nil {
		respond.Error(w, h.logger, wrapStatsErr(err))
		return
	}

	if sp.Columns == "" {
		res, err := querybuilder.BuildSelect(querybuilder.SelectInput{Table: table, Stats: stats})
		if err != nil {
			respond.Error(w, h.logger, err)
			return
		}
		respond.Introspection(w, res.Introspection)
		return
	}

	columns, err := sqlfrag.Parse(sp.Columns, sqlfrag.ColumnList)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	distinct, err := parseOptionalFragment(sp.Distinct, sqlfrag.ColumnList)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	where, err := parseOptionalFragment(sp.Where, sqlfrag.Expression)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	groupBy, err := parseOptionalFragment(sp.GroupBy, sqlfrag.ColumnList)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	orderBy, err := parseOptionalFragment(sp.OrderBy, sqlfrag.OrderList)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	for _, f := range []*sqlfrag.Fragment{columns, distinct, where, groupBy, orderBy} {
		if err := validateFragmentIdentifiers(f); err != nil {
			respond.Error(w, h.logger, err)
			return
		}
	}

	resolved, err := h.resolveAndRewrite(ctx, table, columns, distinct, where, groupBy, orderBy)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	built, err := querybuilder.BuildSelect(querybuilder.SelectInput{
		Table:    table,
		Stats:    stats,
		Joins:    resolved.Joins,
		Columns:  columns,
		Distinct: distinct,
		Where:    where,
		GroupBy:  groupBy,
		OrderBy:  orderBy,
		Limit:    sp.Limit,
		Offset:   sp.Offset,
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	rows, err := h.queryRows(ctx, built.SQL, built.Labels)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.Rows(w, rows)
}

// decodeRows reads the POST body as either a single JSON object or an
// array of objects, normalizing to the latter (spec.md §4.5 "Body is an
// array of objects").
func decodeRows(r *http.Request) ([]map[string]any, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperr.InvalidIdentifierf("failed to read request body: %v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err == nil {
		return rows, nil
	}

	var one map[string]any
	if err := json.Unmarshal(body, &one); err != nil {
		return nil, apperr.InvalidIdentifierf("request body must be a JSON object or array of objects: %v", err)
	}
	return []map[string]any{one}, nil
}

// PostTable serves INSERT, optionally with ON CONFLICT (spec.md §4.5).
func (h *Handler) PostTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := chi.URLParam(r, "table")
	if err := validateTable(table); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	ip, err := parseInsertParams(r.URL.Query())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	rows, err := decodeRows(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	stats, err := h.cache.Get(ctx, table)
	if err != nil {
		respond.Error(w, h.logger, wrapStatsErr(err))
		return
	}

	built, err := querybuilder.BuildInsert(querybuilder.InsertInput{
		Table:            table,
		Stats:            stats,
		Rows:             rows,
		ConflictAction:   ip.ConflictAction,
		ConflictTarget:   ip.ConflictTarget,
		ReturningColumns: ip.ReturningColumns,
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.writeMutationResult(w, r, built.SQL, built.Labels, built.Params...)
}

// assignmentRaw builds the textual "col = val[, col = val]" the PUT
// handler feeds to sqlfrag.Parse(..., AssignmentList); val is carried
// verbatim from the request body, so a bare word becomes an expression
// (e.g. a dotted FK path) and a single-quoted value becomes a string
// literal, matching spec.md §4.5's "Each value is itself parsed as an
// expression".
func assignmentRaw(body map[string]string) (string, error) {
	if len(body) == 0 {
		return "", apperr.InvalidIdentifierf("update body must set at least one column")
	}
	cols := make([]string, 0, len(body))
	for col := range body {
		if err := validateIdentifier(col); err != nil {
			return "", err
		}
		cols = append(cols, col)
	}

	var sb []byte
	for i, col := range cols {
		if i > 0 {
			sb = append(sb, ", "...)
		}
		sb = append(sb, col...)
		sb = append(sb, " = "...)
		sb = append(sb, body[col]...)
	}
	return string(sb), nil
}

// PutTable serves UPDATE (spec.md §4.5).
func (h *Handler) PutTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := chi.URLParam(r, "table")
	if err := validateTable(table); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	up, err := parseUpdateParams(r.URL.Query())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.Error(w, h.logger, apperr.InvalidIdentifierf("request body must be a flat JSON object of column assignments: %v", err))
		return
	}

	raw, err := assignmentRaw(body)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	set, err := sqlfrag.Parse(raw, sqlfrag.AssignmentList)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	stats, err := h.cache.Get(ctx, table)
	if err != nil {
		respond.Error(w, h.logger, wrapStatsErr(err))
		return
	}

	where, err := parseOptionalFragment(up.Where, sqlfrag.Expression)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	returning, err := csvColumnListFragment(joinCSV(up.ReturningColumns))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	for _, f := range []*sqlfrag.Fragment{where, returning, set} {
		if err := validateFragmentIdentifiers(f); err != nil {
			respond.Error(w, h.logger, err)
			return
		}
	}

	resolved, err := h.resolveAndRewrite(ctx, table, where, returning, set)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	built, err := querybuilder.BuildUpdate(querybuilder.UpdateInput{
		Table:     table,
		Stats:     stats,
		JoinNodes: resolved.OrderedNodes,
		Set:       set,
		Where:     where,
		Returning: returning,
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.writeMutationResult(w, r, built.SQL, built.Labels, built.Params...)
}

// DeleteTable serves DELETE, requiring confirm_delete (spec.md §4.5).
func (h *Handler) DeleteTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := chi.URLParam(r, "table")
	if err := validateTable(table); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	dp, err := parseDeleteParams(r.URL.Query())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if !dp.ConfirmDelete {
		respond.Error(w, h.logger, apperr.ConfirmationRequiredf("DELETE requires confirm_delete=true"))
		return
	}

	if _, err := h.cache.Get(ctx, table); err != nil {
		respond.Error(w, h.logger, wrapStatsErr(err))
		return
	}

	where, err := parseOptionalFragment(dp.Where, sqlfrag.Expression)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	returning, err := csvColumnListFragment(joinCSV(dp.ReturningColumns))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	for _, f := range []*sqlfrag.Fragment{where, returning} {
		if err := validateFragmentIdentifiers(f); err != nil {
			respond.Error(w, h.logger, err)
			return
		}
	}

	resolved, err := h.resolveAndRewrite(ctx, table, where, returning)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	built, err := querybuilder.BuildDelete(querybuilder.DeleteInput{
		Table:         table,
		ConfirmDelete: dp.ConfirmDelete,
		JoinNodes:     resolved.OrderedNodes,
		Where:         where,
		Returning:     returning,
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.writeMutationResult(w, r, built.SQL, built.Labels)
}

// writeMutationResult executes sqlText and renders either the returned
// rows (labels non-empty, i.e. RETURNING was requested) or the affected
// row count (spec.md §6 "mutating endpoints return num_rows ... when
// returning_columns is absent").
func (h *Handler) writeMutationResult(w http.ResponseWriter, r *http.Request, sqlText string, labels []string, params ...any) {
	ctx := r.Context()
	if len(labels) > 0 {
		rows, err := h.queryRows(ctx, sqlText, labels, params...)
		if err != nil {
			respond.Error(w, h.logger, err)
			return
		}
		respond.Rows(w, rows)
		return
	}
	n, err := h.execNumRows(ctx, sqlText, params...)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.NumRows(w, n)
}

// PostSQL serves the raw SQL escape hatch (spec.md §4.5 "Build raw SQL").
// No parsing, rewriting, or FK resolution runs over this text: the caller
// is trusted with full SQL, same as a direct psql session against the
// service role.
func (h *Handler) PostSQL(w http.ResponseWriter, r *http.Request) {
	if err := requireContentType(r.Header.Get("Content-Type"), "text/plain"); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	rp, err := parseRawSQLParams(r.URL.Query())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respond.Error(w, h.logger, apperr.InvalidIdentifierf("failed to read request body: %v", err))
		return
	}

	built := querybuilder.BuildRaw(string(body), rp.IsReturningColumns)

	ctx := r.Context()
	if built.IsReturningColumns {
		rows, err := h.queryRows(ctx, built.SQL, nil)
		if err != nil {
			respond.Error(w, h.logger, err)
			return
		}
		respond.Rows(w, rows)
		return
	}
	n, err := h.execNumRows(ctx, built.SQL)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.NumRows(w, n)
}

// PostResetCache serves POST /reset_table_stats_cache (spec.md §4.2/§6),
// when enabled via config.
func (h *Handler) PostResetCache(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.IsCacheResetEndpointEnabled {
		respond.Error(w, h.logger, apperr.UnsupportedFeaturef("the stats cache reset endpoint is disabled"))
		return
	}
	h.cache.Reset()
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// endpoint is one row of the GET / index (spec.md §6 "GET /: list of
// endpoints").
type endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// ListEndpoints serves GET / (spec.md §6).
func (h *Handler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	scope := h.cfg.ScopeName
	endpoints := []endpoint{
		{"GET", scope + "/"},
		{"GET", scope + "/{table}"},
		{"POST", scope + "/{table}"},
		{"PUT", scope + "/{table}"},
		{"DELETE", scope + "/{table}"},
		{"POST", scope + "/sql"},
	}
	if h.cfg.IsCacheResetEndpointEnabled {
		endpoints = append(endpoints, endpoint{"POST", scope + "/reset_table_stats_cache"})
	}
	respond.JSON(w, http.StatusOK, endpoints)
}

// joinCSV re-serializes a validated identifier list back to a CSV string
// so it can be parsed as a ColumnList fragment alongside the rest of the
// request's fragments (returning_columns/conflict_target arrive as plain
// CSV query values, never SQL text, so there is nothing lossy about
// rejoining them).
func joinCSV(items []string) string {
	if len(items) == 0 {
		return ""
	}
	out := items[0]
	for _, s := range items[1:] {
		out += "," + s
	}
	return out
}
