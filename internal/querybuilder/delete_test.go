package querybuilder

import (
	"strings"
	"testing"

	"github.com/pgrest/pgrest/internal/apperr"
	"github.com/pgrest/pgrest/internal/fkresolver"
	"github.com/pgrest/pgrest/internal/sqlfrag"
)

func TestBuildDeleteRequiresConfirmDelete(t *testing.T) {
	_, err := BuildDelete(DeleteInput{Table: "child"})
	if apperr.As(err) == nil || apperr.As(err).Kind != apperr.ConfirmationRequired {
		t.Fatalf("expected ConfirmationRequired, got %v", err)
	}
}

func TestBuildDeletePlain(t *testing.T) {
	where := mustParse(t, "id = 1", sqlfrag.Expression)

	res, err := BuildDelete(DeleteInput{Table: "child", ConfirmDelete: true, Where: where})
	if err != nil {
		t.Fatalf("BuildDelete: %v", err)
	}
	if res.SQL != `DELETE FROM "child" AS t0 WHERE id = 1` {
		t.Fatalf("unexpected SQL: %q", res.SQL)
	}
}

func TestBuildDeleteWithUsingJoin(t *testing.T) {
	where := mustParse(t, "t1.name = 'acme'", sqlfrag.Expression)
	joinNode := fkresolver.Node{
		Table:           "company",
		ReferringColumn: "company_id",
		ReferredColumn:  "id",
		Alias:           "t1",
		ParentAlias:     "t0",
	}

	res, err := BuildDelete(DeleteInput{
		Table:         "child",
		ConfirmDelete: true,
		JoinNodes:     []fkresolver.Node{joinNode},
		Where:         where,
	})
	if err != nil {
		t.Fatalf("BuildDelete: %v", err)
	}
	if !strings.Contains(res.SQL, `USING "company" AS t1`) {
		t.Fatalf("expected USING clause, got %q", res.SQL)
	}
	if !strings.Contains(res.SQL, `WHERE t0."company_id" = t1."id" AND t1.name = 'acme'`) {
		t.Fatalf("expected join condition ANDed with user predicate, got %q", res.SQL)
	}
}

func TestBuildDeleteNoUsingWhenJoinNodesButNoWhereOrReturning(t *testing.T) {
	joinNode := fkresolver.Node{Table: "company", Alias: "t1", ParentAlias: "t0"}
	res, err := BuildDelete(DeleteInput{
		Table:         "child",
		ConfirmDelete: true,
		JoinNodes:     []fkresolver.Node{joinNode},
	})
	if err != nil {
		t.Fatalf("BuildDelete: %v", err)
	}
	if res.SQL != `DELETE FROM "child" AS t0` {
		t.Fatalf("expected no USING clause without a where/returning, got %q", res.SQL)
	}
}

func TestBuildDeleteReturning(t *testing.T) {
	returning := mustParse(t, "id, name", sqlfrag.ColumnList)
	res, err := BuildDelete(DeleteInput{Table: "child", ConfirmDelete: true, Returning: returning})
	if err != nil {
		t.Fatalf("BuildDelete: %v", err)
	}
	if !strings.Contains(res.SQL, `RETURNING id AS "id", name AS "name"`) {
		t.Fatalf("unexpected SQL: %q", res.SQL)
	}
	if len(res.Labels) != 2 {
		t.Fatalf("unexpected labels: %v", res.Labels)
	}
}
