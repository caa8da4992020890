package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Client issues fixed introspection queries (spec.md §4.1) against
// information_schema/pg_catalog: a table-existence check, then columns and
// types, primary key, and outgoing and incoming foreign keys. It holds no state beyond a pool
// handle and performs no caching of its own (that is [statscache]'s job).
type Client struct {
	pool *pgxpool.Pool
}

// NewClient wraps a connection pool borrowed from the shared pgpool.
func NewClient(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// FetchTableStats loads column/type, primary-key, and foreign-key metadata
// for table (unqualified; resolved against the "public" schema, matching
// the single-schema scope the catalog queries below assume).
func (c *Client) FetchTableStats(ctx context.Context, table string) (*TableStats, error) {
	exists, err := c.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &ErrNotFound{Table: table}
	}

	cols, err := c.fetchColumns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch columns for %q: %w", table, err)
	}
	pk, err := c.fetchPrimaryKey(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch primary key for %q: %w", table, err)
	}
	refs, err := c.fetchOutgoingFKs(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch outgoing foreign keys for %q: %w", table, err)
	}
	incoming, err := c.fetchIncomingFKs(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch incoming foreign keys for %q: %w", table, err)
	}

	return &TableStats{
		Table:        table,
		Columns:      cols,
		PrimaryKey:   pk,
		References:   refs,
		ReferencedBy: incoming,
	}, nil
}

func (c *Client) tableExists(ctx context.Context, table string) (bool, error) {
	const q = `
		SELECT 1
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
		LIMIT 1`
	var one int
	err := c.pool.QueryRow(ctx, q, table).Scan(&one)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return false, nil
		}
		// pgx returns pgx.ErrNoRows which formats to the above; compare by
		// type where possible for clarity and resilience to message drift.
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// fetchColumns loads ordered column names, SQL types, and nullability
// (spec.md §4.1: "columns + types").
func (c *Client) fetchColumns(ctx context.Context, table string) ([]Column, error) {
	const q = `
		SELECT column_name, data_type, udt_name, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`

	rows, err := c.pool.Query(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Column
	for rows.Next() {
		var name, dataType, udtName string
		var nullable bool
		if err := rows.Scan(&name, &dataType, &udtName, &nullable); err != nil {
			return nil, err
		}
		out = append(out, Column{
			Name:       name,
			SQLType:    classifyType(dataType, udtName),
			PGTypeName: udtName,
			IsNullable: nullable,
		})
	}
	return out, rows.Err()
}

// fetchPrimaryKey loads the primary-key column set, in key order
// (spec.md §4.1: "primary key").
func (c *Client) fetchPrimaryKey(ctx context.Context, table string) ([]string, error) {
	const q = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public'
		  AND tc.table_name = $1
		ORDER BY kcu.ordinal_position`

	rows, err := c.pool.Query(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

// fetchOutgoingFKs loads every foreign key whose source side is table,
// grouping multi-column constraints into one [ForeignKey] per constraint
// (spec.md §4.1/§4.4 point 6: composite FKs record all columns, but the
// resolver only ever walks the first referring column of a constraint).
func (c *Client) fetchOutgoingFKs(ctx context.Context, table string) ([]ForeignKey, error) {
	const q = `
		SELECT
		  con.conname,
		  src.attname  AS referring_column,
		  dst_tbl.relname AS referred_table,
		  dst.attname  AS referred_column,
		  k.ord
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class src_tbl ON src_tbl.oid = con.conrelid
		JOIN pg_catalog.pg_namespace src_ns ON src_ns.oid = src_tbl.relnamespace
		JOIN pg_catalog.pg_class dst_tbl ON dst_tbl.oid = con.confrelid
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(srcattnum, dstattnum, ord)
		JOIN pg_catalog.pg_attribute src ON src.attrelid = con.conrelid AND src.attnum = k.srcattnum
		JOIN pg_catalog.pg_attribute dst ON dst.attrelid = con.confrelid AND dst.attnum = k.dstattnum
		WHERE con.contype = 'f'
		  AND src_ns.nspname = 'public'
		  AND src_tbl.relname = $1
		ORDER BY con.conname, k.ord`

	rows, err := c.pool.Query(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byConstraint := map[string]*ForeignKey{}
	var order []string
	for rows.Next() {
		var conname, referringCol, referredTable, referredCol string
		var ord int
		if err := rows.Scan(&conname, &referringCol, &referredTable, &referredCol, &ord); err != nil {
			return nil, err
		}
		fk, ok := byConstraint[conname]
		if !ok {
			fk = &ForeignKey{ReferringColumn: referringCol, ReferredTable: referredTable, ReferredColumn: referredCol}
			byConstraint[conname] = fk
			order = append(order, conname)
		}
		fk.ConstraintColumns = append(fk.ConstraintColumns, referringCol)
		fk.ReferredColumns = append(fk.ReferredColumns, referredCol)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ForeignKey, 0, len(order))
	for _, name := range order {
		out = append(out, *byConstraint[name])
	}
	return out, nil
}

// fetchIncomingFKs loads every foreign key whose target side is table
// (spec.md §3 "referenced_by").
func (c *Client) fetchIncomingFKs(ctx context.Context, table string) ([]IncomingReference, error) {
	const q = `
		SELECT
		  src_tbl.relname AS referring_table,
		  src.attname     AS referring_column,
		  dst.attname     AS referred_column
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class src_tbl ON src_tbl.oid = con.conrelid
		JOIN pg_catalog.pg_class dst_tbl ON dst_tbl.oid = con.confrelid
		JOIN pg_catalog.pg_namespace dst_ns ON dst_ns.oid = dst_tbl.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(srcattnum, dstattnum, ord)
		JOIN pg_catalog.pg_attribute src ON src.attrelid = con.conrelid AND src.attnum = k.srcattnum
		JOIN pg_catalog.pg_attribute dst ON dst.attrelid = con.confrelid AND dst.attnum = k.dstattnum
		WHERE con.contype = 'f'
		  AND dst_ns.nspname = 'public'
		  AND dst_tbl.relname = $1
		ORDER BY src_tbl.relname, k.ord`

	rows, err := c.pool.Query(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IncomingReference
	for rows.Next() {
		var r IncomingReference
		if err := rows.Scan(&r.ReferringTable, &r.ReferringColumn, &r.ReferredColumn); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// classifyType collapses a Postgres data_type/udt_name pair into the
// [SQLType] buckets the Row Decoder understands (spec.md §4.6).
func classifyType(dataType, udtName string) SQLType {
	switch udtName {
	case "bool":
		return TypeBool
	case "int2", "int4", "int8", "oid":
		return TypeInt
	case "float4", "float8":
		return TypeFloat
	case "numeric":
		return TypeNumeric
	case "text", "varchar", "bpchar", "name", "citext":
		return TypeText
	case "bytea":
		return TypeBytea
	case "date":
		return TypeDate
	case "time", "timetz":
		return TypeTime
	case "timestamp":
		return TypeTimestamp
	case "timestamptz":
		return TypeTimestamptz
	case "uuid":
		return TypeUUID
	case "macaddr", "macaddr8":
		return TypeMacaddr
	case "json", "jsonb":
		return TypeJSON
	case "hstore":
		return TypeHstore
	case "bit", "varbit", "unknown":
		return TypeUnsupported
	default:
		return TypeUnsupported
	}
}
