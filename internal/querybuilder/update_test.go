package querybuilder

import (
	"strings"
	"testing"

	"github.com/pgrest/pgrest/internal/apperr"
	"github.com/pgrest/pgrest/internal/fkresolver"
	"github.com/pgrest/pgrest/internal/sqlfrag"
)

func TestBuildUpdatePlainStringLiteralBindsParam(t *testing.T) {
	set := mustParse(t, `name = 'ada'`, sqlfrag.AssignmentList)

	res, err := BuildUpdate(UpdateInput{Table: "child", Stats: childStats(), Set: set})
	if err != nil {
		t.Fatalf("BuildUpdate: %v", err)
	}
	if !strings.Contains(res.SQL, `UPDATE "child" AS t0 SET "name" = $1`) {
		t.Fatalf("unexpected SQL: %q", res.SQL)
	}
	if len(res.Params) != 1 || res.Params[0] != "ada" {
		t.Fatalf("unexpected params: %v", res.Params)
	}
}

func TestBuildUpdateExpressionValueIsDeparsedNotBound(t *testing.T) {
	set := mustParse(t, `id = id + 1`, sqlfrag.AssignmentList)

	res, err := BuildUpdate(UpdateInput{Table: "child", Stats: childStats(), Set: set})
	if err != nil {
		t.Fatalf("BuildUpdate: %v", err)
	}
	if !strings.Contains(res.SQL, `"id" = id + 1`) {
		t.Fatalf("unexpected SQL: %q", res.SQL)
	}
	if len(res.Params) != 0 {
		t.Fatalf("expected no bound params for an expression value, got %v", res.Params)
	}
}

func TestBuildUpdateWithWhere(t *testing.T) {
	set := mustParse(t, `name = 'ada'`, sqlfrag.AssignmentList)
	where := mustParse(t, `id = 1`, sqlfrag.Expression)

	res, err := BuildUpdate(UpdateInput{Table: "child", Stats: childStats(), Set: set, Where: where})
	if err != nil {
		t.Fatalf("BuildUpdate: %v", err)
	}
	if !strings.Contains(res.SQL, "WHERE id = 1") {
		t.Fatalf("unexpected SQL: %q", res.SQL)
	}
}

func TestBuildUpdateWithJoinProduct(t *testing.T) {
	set := mustParse(t, `name = 'ada'`, sqlfrag.AssignmentList)
	where := mustParse(t, `t1.name = 'acme'`, sqlfrag.Expression)

	joinNode := fkresolver.Node{
		Table:           "company",
		ReferringColumn: "company_id",
		ReferredColumn:  "id",
		Alias:           "t1",
		ParentAlias:     "t0",
	}

	res, err := BuildUpdate(UpdateInput{
		Table:     "child",
		Stats:     childStats(),
		Set:       set,
		Where:     where,
		JoinNodes: []fkresolver.Node{joinNode},
	})
	if err != nil {
		t.Fatalf("BuildUpdate: %v", err)
	}
	if !strings.Contains(res.SQL, `FROM "company" AS t1`) {
		t.Fatalf("expected FROM join-product clause, got %q", res.SQL)
	}
	if !strings.Contains(res.SQL, `WHERE t0."company_id" = t1."id" AND t1.name = 'acme'`) {
		t.Fatalf("expected join condition ANDed with user predicate, got %q", res.SQL)
	}
}

func TestBuildUpdateReturning(t *testing.T) {
	set := mustParse(t, `name = 'ada'`, sqlfrag.AssignmentList)
	returning := mustParse(t, "id, name", sqlfrag.ColumnList)

	res, err := BuildUpdate(UpdateInput{Table: "child", Stats: childStats(), Set: set, Returning: returning})
	if err != nil {
		t.Fatalf("BuildUpdate: %v", err)
	}
	if !strings.Contains(res.SQL, `RETURNING id AS "id", name AS "name"`) {
		t.Fatalf("unexpected SQL: %q", res.SQL)
	}
	if len(res.Labels) != 2 {
		t.Fatalf("unexpected labels: %v", res.Labels)
	}
}

func TestBuildUpdateRejectsEmptySet(t *testing.T) {
	_, err := BuildUpdate(UpdateInput{Table: "child", Stats: childStats(), Set: &sqlfrag.Fragment{Shape: sqlfrag.AssignmentList}})
	if apperr.As(err) == nil || apperr.As(err).Kind != apperr.InvalidIdentifier {
		t.Fatalf("expected InvalidIdentifier, got %v", err)
	}
}

func TestBuildUpdateRejectsUnknownColumn(t *testing.T) {
	set := mustParse(t, `nope = 'ada'`, sqlfrag.AssignmentList)
	_, err := BuildUpdate(UpdateInput{Table: "child", Stats: childStats(), Set: set})
	if apperr.As(err) == nil || apperr.As(err).Kind != apperr.UnknownColumn {
		t.Fatalf("expected UnknownColumn, got %v", err)
	}
}
