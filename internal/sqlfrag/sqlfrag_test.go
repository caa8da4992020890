package sqlfrag

import (
	"testing"

	"github.com/pgrest/pgrest/internal/apperr"
)

func TestParseExpressionSimple(t *testing.T) {
	f, err := Parse("age > 18 and name = 'bob'", Expression)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Expr == nil {
		t.Fatal("expected non-nil Expr")
	}
	ids := CollectIdentifiers(f)
	if len(ids) != 2 || ids[0] != "age" || ids[1] != "name" {
		t.Fatalf("unexpected identifiers: %v", ids)
	}
}

func TestParseExpressionDottedPath(t *testing.T) {
	f, err := Parse("parent_id.company_id.name = 'acme'", Expression)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ids := CollectIdentifiers(f)
	if len(ids) != 1 || ids[0] != "parent_id.company_id.name" {
		t.Fatalf("unexpected identifiers: %v", ids)
	}
}

func TestParseColumnList(t *testing.T) {
	f, err := Parse("id, name as display_name, parent_id.company_id.name", ColumnList)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(f.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(f.Items))
	}
	if f.Items[1].Alias != "display_name" {
		t.Fatalf("expected alias display_name, got %q", f.Items[1].Alias)
	}
	if f.Items[2].Label != "parent_id.company_id.name" {
		t.Fatalf("unexpected label: %q", f.Items[2].Label)
	}
}

func TestParseOrderList(t *testing.T) {
	f, err := Parse("name asc, parent_id.company_id.founded_at desc", OrderList)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(f.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(f.Items))
	}
	if f.Items[0].Desc {
		t.Fatal("expected first item ascending")
	}
	if !f.Items[1].Desc {
		t.Fatal("expected second item descending")
	}
}

func TestParseAssignmentList(t *testing.T) {
	f, err := Parse("name = 'bob', company_id = parent_id.company_id", AssignmentList)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(f.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(f.Items))
	}
	if f.Items[0].Column != "name" {
		t.Fatalf("expected target column name, got %q", f.Items[0].Column)
	}
	if f.Items[1].Column != "company_id" {
		t.Fatalf("expected target column company_id, got %q", f.Items[1].Column)
	}
	ids := CollectIdentifiers(f)
	if len(ids) != 1 || ids[0] != "parent_id.company_id" {
		t.Fatalf("unexpected identifiers: %v", ids)
	}
}

func TestParseRejectsMultipleStatements(t *testing.T) {
	_, err := Parse("1=1; drop table child", Expression)
	if err == nil {
		t.Fatal("expected error")
	}
	ae := apperr.As(err)
	if ae == nil || ae.Kind != apperr.UnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature, got %#v", err)
	}
}

func TestParseRejectsBetween(t *testing.T) {
	_, err := Parse("age between 1 and 10", Expression)
	if err == nil {
		t.Fatal("expected error")
	}
	ae := apperr.As(err)
	if ae == nil || ae.Kind != apperr.UnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature, got %#v", err)
	}
}

func TestParseRejectsBitLiteral(t *testing.T) {
	_, err := Parse("flags = B'0101'", Expression)
	if err == nil {
		t.Fatal("expected error")
	}
	ae := apperr.As(err)
	if ae == nil || ae.Kind != apperr.UnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature, got %#v", err)
	}
}

func TestParseRejectsSubquery(t *testing.T) {
	_, err := Parse("id in (select id from other)", Expression)
	if err == nil {
		t.Fatal("expected error")
	}
	ae := apperr.As(err)
	if ae == nil || ae.Kind != apperr.UnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature, got %#v", err)
	}
}

func TestParseRejectsSyntaxError(t *testing.T) {
	_, err := Parse("this is not ) valid (", Expression)
	if err == nil {
		t.Fatal("expected error")
	}
	ae := apperr.As(err)
	if ae == nil || ae.Kind != apperr.SyntaxError {
		t.Fatalf("expected SyntaxError, got %#v", err)
	}
}

func TestParseRejectsEmptyFragment(t *testing.T) {
	_, err := Parse("   ", ColumnList)
	if err == nil {
		t.Fatal("expected error")
	}
	ae := apperr.As(err)
	if ae == nil || ae.Kind != apperr.SyntaxError {
		t.Fatalf("expected SyntaxError, got %#v", err)
	}
}

func TestRewriteReplacesMatchingColumnRefs(t *testing.T) {
	f, err := Parse("parent_id.company_id.name = 'acme' and age > 1", Expression)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	Rewrite(f, map[string]string{"parent_id.company_id.name": "t2.name"})

	ids := CollectIdentifiers(f)
	found := false
	for _, id := range ids {
		if id == "t2.name" {
			found = true
		}
		if id == "parent_id.company_id.name" {
			t.Fatal("expected original dotted path to be fully replaced")
		}
	}
	if !found {
		t.Fatalf("expected rewritten identifier t2.name, got %v", ids)
	}
}
