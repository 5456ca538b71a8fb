package ddl

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestIdentifier_ShortNamesUnchanged(t *testing.T) {
	assert.Equal(t, "emissions", Identifier("emissions", RoleNone, 63))
	assert.Equal(t, "emissions_heritable", Identifier("emissions", RoleHeritable, 63))
	assert.Equal(t, "emissions_heritable_obj_idx", Identifier("emissions_heritable", RoleObjIndex, 63))
}

func TestIdentifier_TruncatesWithHash(t *testing.T) {
	long := strings.Repeat("scope_three_category_", 5)
	got := Identifier(long, RoleHeritable, 63)

	assert.Len(t, got, 63)
	assert.True(t, strings.HasSuffix(got, "_heritable"))
	assert.True(t, strings.HasPrefix(got, long[:10]))
	assert.Equal(t, got, Identifier(long, RoleHeritable, 63), "truncation must be deterministic")

	other := long[:len(long)-1] + "x"
	assert.NotEqual(t, got, Identifier(other, RoleHeritable, 63), "names sharing a prefix must not collide")
}

func TestNaming_Roles(t *testing.T) {
	n := NewNaming(0)
	assert.Equal(t, PostgresIdentifierLimit, n.Limit)
	assert.Equal(t, "rows_heritable", n.Table("rows", true))
	assert.Equal(t, "rows", n.Table("rows", false))
	assert.Equal(t, "amount__withheld", n.WithheldColumn("amount"))
	assert.Equal(t, "rows_slot_idx", n.SlotIndex("rows"))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"Disclosure"`, Quote("Disclosure"))
	assert.Equal(t, `"pg"."public"."forms"`, Quote("pg.public.forms"))
	assert.Equal(t, `"a""b"`, Quote(`a"b`))
}

func TestProperty_IdentifierFitsLimit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	roles := []Role{RoleNone, RoleHeritable, RoleObjIndex, RoleSlotIndex, RoleWithheld}

	properties.Property("identifiers never exceed the limit and keep their role suffix", prop.ForAll(
		func(seed string, repeat int, limit int, roleIdx int) bool {
			name := strings.Repeat(seed+"c", repeat)
			role := roles[roleIdx]
			id := Identifier(name, role, limit)
			if len(id) > limit {
				return false
			}
			if !strings.HasSuffix(id, string(role)) {
				return false
			}
			if len(name)+len(role) <= limit && id != name+string(role) {
				return false
			}
			return id == Identifier(name, role, limit)
		},
		gen.AlphaString(),
		gen.IntRange(1, 40),
		gen.IntRange(24, 63),
		gen.IntRange(0, len(roles)-1),
	))

	properties.TestingRun(t)
}
