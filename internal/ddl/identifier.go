// Package ddl renders the DDL of generated form tables: the canonical
// attribute type map, identifier naming, the or-null codecs and the
// metadata tables.
package ddl

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Role is the suffix that marks what a generated identifier names.
type Role string

const (
	RoleNone      Role = ""
	RoleHeritable Role = "_heritable"
	RoleObjIndex  Role = "_obj_idx"
	RoleSlotIndex Role = "_slot_idx"
	RoleWithheld  Role = "__withheld"
)

// PostgresIdentifierLimit is NAMEDATALEN-1.
const PostgresIdentifierLimit = 63

const hashSuffixLen = 9 // "_" + 8 hex chars

// Identifier returns name with role appended, truncating name first when the
// result would exceed limit. Truncation keeps a prefix and appends "_" plus
// the FNV-1a hash of the full name, so distinct long names stay distinct.
func Identifier(name string, role Role, limit int) string {
	budget := limit - len(role)
	if len(name) <= budget {
		return name + string(role)
	}
	keep := budget - hashSuffixLen
	if keep < 1 {
		keep = 1
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("%s_%08x%s", name[:keep], h.Sum32(), role)
}

// Quote quotes an identifier, splitting on dots for qualified names.
func Quote(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	if len(clean) == 0 {
		clean = []string{name}
	}
	return pgx.Identifier(clean).Sanitize()
}

// Naming derives every physical identifier for one engine limit.
type Naming struct {
	Limit int
}

// NewNaming returns a Naming for limit, defaulting to the Postgres limit.
func NewNaming(limit int) Naming {
	if limit <= 0 {
		limit = PostgresIdentifierLimit
	}
	return Naming{Limit: limit}
}

// Table is the physical table of a form.
func (n Naming) Table(form string, heritable bool) string {
	if heritable {
		return Identifier(form, RoleHeritable, n.Limit)
	}
	return Identifier(form, RoleNone, n.Limit)
}

// Column is the physical column of an attribute.
func (n Naming) Column(attr string) string {
	return Identifier(attr, RoleNone, n.Limit)
}

// WithheldColumn is the marker column used by the split codec.
func (n Naming) WithheldColumn(attr string) string {
	return Identifier(attr, RoleWithheld, n.Limit)
}

// ObjIndex names the obj_id index of table.
func (n Naming) ObjIndex(table string) string {
	return Identifier(table, RoleObjIndex, n.Limit)
}

// SlotIndex names the (obj_id, value_id) index of a heritable table.
func (n Naming) SlotIndex(table string) string {
	return Identifier(table, RoleSlotIndex, n.Limit)
}
