package filter

import (
	"reflect"
	"testing"
)

func TestCompile_Tree(t *testing.T) {
	e := AllOf(
		Equals{Field: FieldSource, Value: "local"},
		Range{Field: FieldSize, Min: Int(10), Max: Int(20)},
		Not{X: OneOf{Field: FieldMimeType, Values: []any{"folder", "image/png"}}},
		Or{Blank{Field: FieldParentID}, Equals{Field: FieldStarred, Value: true}},
	)
	sql, args, err := Compile(e)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := "(source = ? AND (size >= ? AND size <= ?) AND NOT (mimeType IN (?,?)) AND ((parentId IS NULL OR parentId = '') OR starred = ?))"
	if sql != want {
		t.Fatalf("sql=%s", sql)
	}
	wantArgs := []any{"local", int64(10), int64(20), "folder", "image/png", 1}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("args=%#v", args)
	}
}

func TestCompile_EmptyForms(t *testing.T) {
	for _, tc := range []struct {
		e    Expr
		want string
	}{
		{nil, "1=1"},
		{And{}, "1=1"},
		{Or{}, "1=0"},
		{OneOf{Field: FieldID}, "1=0"},
		{HasSuffix{Field: FieldName}, "1=0"},
		{Range{Field: FieldSize}, "1=1"},
	} {
		sql, _, err := Compile(tc.e)
		if err != nil {
			t.Fatalf("compile %#v: %v", tc.e, err)
		}
		if sql != tc.want {
			t.Fatalf("compile %#v = %q, want %q", tc.e, sql, tc.want)
		}
	}
}

func TestCompile_SuffixIsParameterised(t *testing.T) {
	sql, args, err := Compile(HasSuffix{Field: FieldName, Suffixes: []string{".JPG", "'); DROP TABLE files; --"}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\')`
	if sql != want {
		t.Fatalf("sql=%s", sql)
	}
	if args[0] != "%.jpg" || args[1] != "%'); drop table files; --" {
		t.Fatalf("args=%#v", args)
	}
}

func TestCompile_RejectsUnknownField(t *testing.T) {
	if _, _, err := Compile(Equals{Field: "name; DROP", Value: 1}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := EscapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("got %q", got)
	}
}

func TestAllOf_Flattens(t *testing.T) {
	e := AllOf(nil, And{Equals{Field: FieldSource, Value: "local"}}, nil)
	if _, ok := e.(Equals); !ok {
		t.Fatalf("expected single Equals, got %#v", e)
	}
}
