package ddl

import (
	"fmt"

	"github.com/lychee-technology/formtab"
)

// ColumnDef is one physical column.
type ColumnDef struct {
	Name string
	Type string
}

// NullCodec stores or-null attribute values. SQL NULL means not submitted,
// (NULL, true) means withheld and (v, false) means present.
type NullCodec interface {
	Kind() formtab.NullCodecKind
	// Prelude returns the statements that must run before a column of type t exists.
	Prelude(t formtab.AttributeType) ([]string, error)
	// Columns returns the physical columns that store attr.
	Columns(n Naming, attr string, t formtab.AttributeType) ([]ColumnDef, error)
	// ValueExpr is an SQL expression for the stored value of attr on alias.
	ValueExpr(n Naming, alias, attr string) string
	// WithheldExpr is an SQL boolean expression, true only for withheld values.
	WithheldExpr(n Naming, alias, attr string) string
}

// NewNullCodec returns the codec for kind.
func NewNullCodec(kind formtab.NullCodecKind) (NullCodec, error) {
	switch kind {
	case formtab.NullCodecComposite, "":
		return CompositeCodec{}, nil
	case formtab.NullCodecSplit:
		return SplitColumnCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown null codec %q", kind)
	}
}

// CompositeCodec stores or-null values as a Postgres composite (value, withheld).
type CompositeCodec struct{}

func (CompositeCodec) Kind() formtab.NullCodecKind { return formtab.NullCodecComposite }

func (CompositeCodec) Prelude(t formtab.AttributeType) ([]string, error) {
	if !t.IsOrNull() {
		return nil, nil
	}
	base, err := BaseColumnType(t)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`DO $$ BEGIN
	CREATE TYPE %s AS (value %s, withheld BOOLEAN);
EXCEPTION WHEN duplicate_object THEN NULL;
END $$`, Quote(CompositeTypeName(t)), base)
	return []string{stmt}, nil
}

func (CompositeCodec) Columns(n Naming, attr string, t formtab.AttributeType) ([]ColumnDef, error) {
	if t.IsOrNull() {
		return []ColumnDef{{Name: n.Column(attr), Type: Quote(CompositeTypeName(t))}}, nil
	}
	base, err := BaseColumnType(t)
	if err != nil {
		return nil, err
	}
	return []ColumnDef{{Name: n.Column(attr), Type: base}}, nil
}

func (CompositeCodec) ValueExpr(n Naming, alias, attr string) string {
	return fmt.Sprintf("(%s.%s).value", alias, Quote(n.Column(attr)))
}

func (CompositeCodec) WithheldExpr(n Naming, alias, attr string) string {
	return fmt.Sprintf("COALESCE((%s.%s).withheld, FALSE)", alias, Quote(n.Column(attr)))
}

// SplitColumnCodec stores or-null values in two columns: <col> and <col>__withheld.
// It serves engines without composite types.
type SplitColumnCodec struct{}

func (SplitColumnCodec) Kind() formtab.NullCodecKind { return formtab.NullCodecSplit }

func (SplitColumnCodec) Prelude(formtab.AttributeType) ([]string, error) { return nil, nil }

func (SplitColumnCodec) Columns(n Naming, attr string, t formtab.AttributeType) ([]ColumnDef, error) {
	base, err := BaseColumnType(t)
	if err != nil {
		return nil, err
	}
	cols := []ColumnDef{{Name: n.Column(attr), Type: base}}
	if t.IsOrNull() {
		cols = append(cols, ColumnDef{Name: n.WithheldColumn(attr), Type: "BOOLEAN"})
	}
	return cols, nil
}

func (SplitColumnCodec) ValueExpr(n Naming, alias, attr string) string {
	return fmt.Sprintf("%s.%s", alias, Quote(n.Column(attr)))
}

func (SplitColumnCodec) WithheldExpr(n Naming, alias, attr string) string {
	return fmt.Sprintf("COALESCE(%s.%s, FALSE)", alias, Quote(n.WithheldColumn(attr)))
}

// SelectExprs returns the select-list entries that read attr in the decoded
// shape: the value aliased to the column name and, for or-null types, the
// withheld flag aliased to the withheld column name.
func SelectExprs(c NullCodec, n Naming, alias, attr string, t formtab.AttributeType) []string {
	col := n.Column(attr)
	if !t.IsOrNull() {
		return []string{fmt.Sprintf("%s.%s AS %s", alias, Quote(col), Quote(col))}
	}
	return []string{
		fmt.Sprintf("%s AS %s", c.ValueExpr(n, alias, attr), Quote(col)),
		fmt.Sprintf("%s AS %s", c.WithheldExpr(n, alias, attr), Quote(n.WithheldColumn(attr))),
	}
}

// Decode reads attr from a row selected with SelectExprs.
func Decode(n Naming, row map[string]any, attr string, t formtab.AttributeType) any {
	col := n.Column(attr)
	v := NormalizeValue(t, row[col])
	if !t.IsOrNull() {
		return v
	}
	if withheld, _ := row[n.WithheldColumn(attr)].(bool); withheld {
		return formtab.Withheld()
	}
	if v == nil {
		return formtab.Withholdable{}
	}
	return formtab.Present(v)
}
