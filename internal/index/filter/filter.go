// Package filter models structural catalog filters as a small expression tree
// that compiles to a parameterised SQL predicate.
package filter

import (
	"fmt"
	"strings"
)

// Field is a whitelisted catalog column. Only fields declared here can reach
// the compiled SQL.
type Field string

const (
	FieldID           Field = "file_id"
	FieldName         Field = "name"
	FieldMimeType     Field = "mimeType"
	FieldSource       Field = "source"
	FieldSize         Field = "size"
	FieldModifiedTime Field = "modifiedTime"
	FieldCreatedTime  Field = "createdTime"
	FieldParentID     Field = "parentId"
	FieldStarred      Field = "starred"
	FieldDescription  Field = "description"
)

func (f Field) valid() bool {
	switch f {
	case FieldID, FieldName, FieldMimeType, FieldSource, FieldSize, FieldModifiedTime,
		FieldCreatedTime, FieldParentID, FieldStarred, FieldDescription:
		return true
	default:
		return false
	}
}

type Expr interface {
	isExpr()
}

type Equals struct {
	Field Field
	Value any
}

// Range is inclusive on both ends; a nil bound is open.
type Range struct {
	Field Field
	Min   *int64
	Max   *int64
}

type OneOf struct {
	Field  Field
	Values []any
}

type Not struct {
	X Expr
}

type And []Expr

type Or []Expr

// Blank matches NULL or empty-string values.
type Blank struct {
	Field Field
}

// HasSuffix matches values ending with any suffix, case-insensitively.
type HasSuffix struct {
	Field    Field
	Suffixes []string
}

// Contains matches values containing Sub, case-insensitively.
type Contains struct {
	Field Field
	Sub   string
}

func (Equals) isExpr()    {}
func (Range) isExpr()     {}
func (OneOf) isExpr()     {}
func (Not) isExpr()       {}
func (And) isExpr()       {}
func (Or) isExpr()        {}
func (Blank) isExpr()     {}
func (HasSuffix) isExpr() {}
func (Contains) isExpr()  {}

func Int(v int64) *int64 { return &v }

// AllOf drops nil members and flattens nested conjunctions.
func AllOf(exprs ...Expr) Expr {
	var out And
	for _, e := range exprs {
		switch v := e.(type) {
		case nil:
		case And:
			for _, inner := range v {
				if inner != nil {
					out = append(out, inner)
				}
			}
		default:
			out = append(out, e)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Compile renders e as a SQL boolean expression plus its arguments. A nil
// expression or an empty And compiles to "1=1"; an empty Or to "1=0".
func Compile(e Expr) (string, []any, error) {
	var b strings.Builder
	var args []any
	if err := compile(&b, &args, e); err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func compile(b *strings.Builder, args *[]any, e Expr) error {
	switch v := e.(type) {
	case nil:
		b.WriteString("1=1")
	case Equals:
		if !v.Field.valid() {
			return fmt.Errorf("unknown field %q", v.Field)
		}
		_, _ = fmt.Fprintf(b, "%s = ?", v.Field)
		*args = append(*args, sqlValue(v.Value))
	case Range:
		if !v.Field.valid() {
			return fmt.Errorf("unknown field %q", v.Field)
		}
		switch {
		case v.Min != nil && v.Max != nil:
			_, _ = fmt.Fprintf(b, "(%s >= ? AND %s <= ?)", v.Field, v.Field)
			*args = append(*args, *v.Min, *v.Max)
		case v.Min != nil:
			_, _ = fmt.Fprintf(b, "%s >= ?", v.Field)
			*args = append(*args, *v.Min)
		case v.Max != nil:
			_, _ = fmt.Fprintf(b, "%s <= ?", v.Field)
			*args = append(*args, *v.Max)
		default:
			b.WriteString("1=1")
		}
	case OneOf:
		if !v.Field.valid() {
			return fmt.Errorf("unknown field %q", v.Field)
		}
		if len(v.Values) == 0 {
			b.WriteString("1=0")
			return nil
		}
		_, _ = fmt.Fprintf(b, "%s IN (%s)", v.Field, placeholders(len(v.Values)))
		for _, val := range v.Values {
			*args = append(*args, sqlValue(val))
		}
	case Not:
		b.WriteString("NOT (")
		if err := compile(b, args, v.X); err != nil {
			return err
		}
		b.WriteString(")")
	case And:
		return join(b, args, v, " AND ", "1=1")
	case Or:
		return join(b, args, v, " OR ", "1=0")
	case Blank:
		if !v.Field.valid() {
			return fmt.Errorf("unknown field %q", v.Field)
		}
		_, _ = fmt.Fprintf(b, "(%s IS NULL OR %s = '')", v.Field, v.Field)
	case HasSuffix:
		if !v.Field.valid() {
			return fmt.Errorf("unknown field %q", v.Field)
		}
		if len(v.Suffixes) == 0 {
			b.WriteString("1=0")
			return nil
		}
		b.WriteString("(")
		for i, suf := range v.Suffixes {
			if i > 0 {
				b.WriteString(" OR ")
			}
			_, _ = fmt.Fprintf(b, `LOWER(%s) LIKE ? ESCAPE '\'`, v.Field)
			*args = append(*args, "%"+EscapeLike(strings.ToLower(suf)))
		}
		b.WriteString(")")
	case Contains:
		if !v.Field.valid() {
			return fmt.Errorf("unknown field %q", v.Field)
		}
		_, _ = fmt.Fprintf(b, `LOWER(%s) LIKE ? ESCAPE '\'`, v.Field)
		*args = append(*args, "%"+EscapeLike(strings.ToLower(v.Sub))+"%")
	default:
		return fmt.Errorf("unsupported filter %T", e)
	}
	return nil
}

func join(b *strings.Builder, args *[]any, exprs []Expr, sep string, empty string) error {
	if len(exprs) == 0 {
		b.WriteString(empty)
		return nil
	}
	b.WriteString("(")
	for i, e := range exprs {
		if i > 0 {
			b.WriteString(sep)
		}
		if err := compile(b, args, e); err != nil {
			return err
		}
	}
	b.WriteString(")")
	return nil
}

func sqlValue(v any) any {
	switch vv := v.(type) {
	case bool:
		if vv {
			return 1
		}
		return 0
	case fmt.Stringer:
		return vv.String()
	default:
		return v
	}
}

// EscapeLike escapes LIKE wildcards for use with ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
