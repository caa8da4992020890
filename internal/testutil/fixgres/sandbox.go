package fixgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sandbox is a database-isolated pool handed to a single test, cloned
// from the migrated fixture template.
type Sandbox struct {
	Pool *pgxpool.Pool
	Name string
}

// NewSandbox clones the fixture template into a fresh database and
// returns a pool connected to it. The database is dropped when the
// test completes.
func NewSandbox(t *testing.T) *Sandbox {
	t.Helper()

	admin, err := sql.Open("pgx", dsnForDB(maintenanceDB))
	if err != nil {
		t.Fatalf("fixgres: open maintenance connection: %v", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := fmt.Sprintf("t_%x", time.Now().UnixNano())
	stmt := fmt.Sprintf(`CREATE DATABASE "%s" TEMPLATE "%s"`, name, templateDBName)
	if _, err := admin.ExecContext(ctx, stmt); err != nil {
		t.Fatalf("fixgres: clone fixture database: %v", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsnForDB(name))
	if err != nil {
		t.Fatalf("fixgres: parse sandbox DSN: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		t.Fatalf("fixgres: open sandbox pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		dropAdmin, err := sql.Open("pgx", dsnForDB(maintenanceDB))
		if err != nil {
			return
		}
		defer dropAdmin.Close()
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_, _ = dropAdmin.ExecContext(dropCtx, fmt.Sprintf(`DROP DATABASE IF EXISTS "%s" WITH (FORCE)`, name))
	})
	return &Sandbox{Pool: pool, Name: name}
}
