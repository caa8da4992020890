// Package catalog loads the live PostgreSQL catalog that drives the whole
// compiler: every table's columns, primary key, and foreign keys, in both
// directions.
package catalog

import (
	"context"
	"fmt"
)

// Fetcher loads a single table's stats from the live catalog. [*Client]
// implements it; tests substitute an in-memory stub.
type Fetcher interface {
	FetchTableStats(ctx context.Context, table string) (*TableStats, error)
}

// SQLType is one of the Postgres types the Row Decoder understands
// (spec.md §4.6's decode table), collapsed to a stable set of names.
type SQLType string

const (
	TypeBool          SQLType = "bool"
	TypeInt           SQLType = "int"
	TypeFloat         SQLType = "float"
	TypeNumeric       SQLType = "numeric"
	TypeText          SQLType = "text"
	TypeBytea         SQLType = "bytea"
	TypeDate          SQLType = "date"
	TypeTime          SQLType = "time"
	TypeTimestamp     SQLType = "timestamp"
	TypeTimestamptz   SQLType = "timestamptz"
	TypeUUID          SQLType = "uuid"
	TypeMacaddr       SQLType = "macaddr"
	TypeJSON          SQLType = "json"
	TypeHstore        SQLType = "hstore"
	TypeUnsupported   SQLType = "unsupported"
)

// Column describes one column of a table (spec.md §3).
type Column struct {
	Name       string
	SQLType    SQLType
	PGTypeName string // raw information_schema udt_name, for error messages
	IsNullable bool
}

// ForeignKey is one outgoing reference: ReferringColumn on this table
// points at ReferredColumn (always a PK column) of ReferredTable.
type ForeignKey struct {
	ReferringColumn string
	ReferredTable   string
	ReferredColumn  string
	// ConstraintColumns/ReferredColumns hold every column of a composite
	// FK constraint, in constraint order. A dotted path only ever walks
	// ReferringColumn/ReferredColumn (spec.md §4.4 point 6): the other
	// columns of the same constraint are recorded for introspection
	// responses but play no role in path resolution.
	ConstraintColumns []string
	ReferredColumns   []string
}

// IncomingReference is one inbound foreign key: some other table's
// ReferringColumn points back at this table's ReferredColumn.
type IncomingReference struct {
	ReferringTable  string
	ReferringColumn string
	ReferredColumn  string
}

// TableStats is the subset of the catalog needed to compile against one
// table (spec.md §3).
type TableStats struct {
	Table        string
	Columns      []Column
	PrimaryKey   []string
	References   []ForeignKey        // outgoing: this table -> referred table
	ReferencedBy []IncomingReference // incoming: other tables -> this table
}

// HasColumn reports whether name is a column of the table.
func (t *TableStats) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Column looks up a column by name.
func (t *TableStats) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ForeignKeyFor returns the outgoing foreign key whose ReferringColumn is
// col, if any.
func (t *TableStats) ForeignKeyFor(col string) (ForeignKey, bool) {
	for _, fk := range t.References {
		if fk.ReferringColumn == col {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// ErrNotFound is returned by fetchers when a table is absent from the
// catalog (spec.md §4.1).
type ErrNotFound struct{ Table string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("table %q not found", e.Table) }
