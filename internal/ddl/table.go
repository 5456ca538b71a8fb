package ddl

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/formtab"
)

// Column is an attribute that becomes one or more physical columns.
type Column struct {
	Attribute string
	Type      formtab.AttributeType
}

// TableSpec describes the physical table of one form.
type TableSpec struct {
	Form      string
	Heritable bool
	Columns   []Column
}

// TablePlan is the ordered DDL of a table. Indexes are kept apart because
// the compiler runs each one inside its own savepoint.
type TablePlan struct {
	Table   string
	Prelude []string
	Create  string
	Indexes []string
}

// Statements returns every statement of the plan in execution order.
func (p TablePlan) Statements() []string {
	out := make([]string, 0, len(p.Prelude)+1+len(p.Indexes))
	out = append(out, p.Prelude...)
	out = append(out, p.Create)
	out = append(out, p.Indexes...)
	return out
}

// Builder renders table DDL for one naming limit and null codec.
type Builder struct {
	Naming       Naming
	Codec        NullCodec
	ObjectsTable string
}

// NewBuilder creates a Builder.
func NewBuilder(limit int, codec NullCodec, objectsTable string) *Builder {
	if codec == nil {
		codec = CompositeCodec{}
	}
	return &Builder{Naming: NewNaming(limit), Codec: codec, ObjectsTable: objectsTable}
}

// TableName returns the physical table name of a form.
func (b *Builder) TableName(form string, heritable bool) string {
	return b.Naming.Table(form, heritable)
}

// Table renders CREATE TABLE IF NOT EXISTS plus its indexes.
func (b *Builder) Table(spec TableSpec) (TablePlan, error) {
	table := b.Naming.Table(spec.Form, spec.Heritable)
	plan := TablePlan{Table: table}

	lines := []string{
		"id BIGSERIAL PRIMARY KEY",
		fmt.Sprintf("obj_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE", Quote(b.ObjectsTable)),
	}
	if spec.Heritable {
		lines = append(lines, "value_id BIGINT NOT NULL")
	}

	seenPrelude := make(map[string]struct{})
	for _, col := range spec.Columns {
		prelude, err := b.Codec.Prelude(col.Type)
		if err != nil {
			return TablePlan{}, fmt.Errorf("column %s: %w", col.Attribute, err)
		}
		for _, stmt := range prelude {
			if _, ok := seenPrelude[stmt]; ok {
				continue
			}
			seenPrelude[stmt] = struct{}{}
			plan.Prelude = append(plan.Prelude, stmt)
		}
		defs, err := b.Codec.Columns(b.Naming, col.Attribute, col.Type)
		if err != nil {
			return TablePlan{}, fmt.Errorf("column %s: %w", col.Attribute, err)
		}
		for _, d := range defs {
			lines = append(lines, fmt.Sprintf("%s %s", Quote(d.Name), d.Type))
		}
	}

	plan.Create = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", Quote(table), strings.Join(lines, ",\n\t"))
	plan.Indexes = b.Indexes(table, spec.Heritable)
	return plan, nil
}

// Indexes renders the obj_id index and, for heritable tables, the slot index.
func (b *Builder) Indexes(table string, heritable bool) []string {
	out := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (obj_id)", Quote(b.Naming.ObjIndex(table)), Quote(table)),
	}
	if heritable {
		out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (obj_id, value_id)",
			Quote(b.Naming.SlotIndex(table)), Quote(table)))
	}
	return out
}

// AddColumn renders the statements that add one attribute to an existing table.
func (b *Builder) AddColumn(table string, col Column) ([]string, error) {
	prelude, err := b.Codec.Prelude(col.Type)
	if err != nil {
		return nil, err
	}
	defs, err := b.Codec.Columns(b.Naming, col.Attribute, col.Type)
	if err != nil {
		return nil, err
	}
	out := append([]string{}, prelude...)
	for _, d := range defs {
		out = append(out, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", Quote(table), Quote(d.Name), d.Type))
	}
	return out, nil
}
