/*
Package fixgres boots a disposable PostgreSQL container and hands
integration tests a database-scoped pool loaded with the canonical
company/school/adult/child/team/coach/player fixture tables.

Adapted from the teacher's pkg/fixgres: the same sync.Once container
boot pattern, moved under internal/testutil and switched from
database/sql+lib/pq to pgxpool.Pool so tests exercise the same driver
the server runs in production. Isolation is per-database rather than
the teacher's per-schema search_path trick: internal/catalog's
introspection queries are hardcoded to table_schema = 'public', so a
sandbox must get its own database (cloned from the migrated template
via CREATE DATABASE ... TEMPLATE) rather than a second schema in the
shared one.
*/
package fixgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	image          = "docker.io/postgres:16-alpine"
	templateDBName = "pgrest_fixtures"
	maintenanceDB  = "postgres"
	user           = "postgres"
	password       = "pass"
)

var (
	bootOnce  sync.Once
	bootErr   error
	container *postgres.PostgresContainer
	hostPort  string
)

// dsnForDB builds a connection string to a specific database on the
// shared container, so tests can each get their own database cloned
// from the migrated template rather than sharing one.
func dsnForDB(name string) string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, hostPort, name)
}

// BootOnce starts the shared fixture container and applies migrations
// the first time it is called in a test binary; later calls are no-ops
// that replay the original boot error, if any.
func BootOnce(t *testing.T) {
	t.Helper()
	bootOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		bootErr = boot(ctx)
	})
	if bootErr != nil {
		t.Fatalf("fixgres: boot failed: %v", bootErr)
	}
}

func boot(ctx context.Context) error {
	c, err := postgres.Run(ctx,
		image,
		postgres.WithDatabase(templateDBName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return fmt.Errorf("fixgres: start container: %w", err)
	}
	container = c

	host, err := c.Host(ctx)
	if err != nil {
		return fmt.Errorf("fixgres: container host: %w", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("fixgres: container port: %w", err)
	}
	hostPort = fmt.Sprintf("%s:%s", host, port.Port())

	db, err := sql.Open("pgx", dsnForDB(templateDBName))
	if err != nil {
		return fmt.Errorf("fixgres: open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("fixgres: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("fixgres: apply migrations: %w", err)
	}
	return nil
}

// ShutdownNow terminates the shared container. Most test binaries don't
// need to call this: the container is torn down with the process, but
// explicit TestMain callers may want a clean stop.
func ShutdownNow() error {
	if container == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return container.Terminate(ctx)
}

