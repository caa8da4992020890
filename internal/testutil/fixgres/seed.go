package fixgres

import (
	"context"
	"math/rand"
	"testing"

	"github.com/go-faker/faker/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SeedNames deterministically seeds a faker crypto source from seed so
// that bulk round-trip and pagination fixtures are reproducible across
// runs, then returns n generated person names for the caller to insert.
//
// Adapted from cmd/faker_test's zeroReader/math-rand crypto source
// swap, which showed that faker.SetCryptoSource must run after any
// other init that touches the package-level source for determinism to
// hold; calling it here, immediately before generation, avoids that
// ordering hazard entirely.
func SeedNames(t *testing.T, seed int64, n int) []string {
	t.Helper()
	faker.SetCryptoSource(rand.New(rand.NewSource(seed)))

	names := make([]string, n)
	for i := range names {
		names[i] = faker.Name()
	}
	return names
}

// InsertCompanies bulk-inserts n companies with faker-generated names
// starting at id base, returning the ids inserted.
func InsertCompanies(t *testing.T, ctx context.Context, pool *pgxpool.Pool, seed, base int64, n int) []int64 {
	t.Helper()
	names := SeedNames(t, seed, n)
	ids := make([]int64, n)
	for i, name := range names {
		id := base + int64(i)
		if _, err := pool.Exec(ctx, `INSERT INTO company (id, name) VALUES ($1, $2)`, id, name); err != nil {
			t.Fatalf("fixgres: insert company: %v", err)
		}
		ids[i] = id
	}
	return ids
}
