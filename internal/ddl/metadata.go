package ddl

import (
	"fmt"

	"github.com/lychee-technology/formtab"
)

// Statement is a named DDL statement.
type Statement struct {
	Name string
	SQL  string
}

// MetadataTables renders the idempotent DDL of the metadata and collaborator
// tables in dependency order.
func MetadataTables(t formtab.TableNames) []Statement {
	forms := Quote(t.Forms)
	attrs := Quote(t.Attributes)
	views := Quote(t.FormViews)
	sets := Quote(t.ChoiceSets)
	objects := Quote(t.Objects)
	orgs := Quote(t.Organizations)

	return []Statement{
		{t.Forms, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		owner_id    BIGINT NOT NULL DEFAULT 0,
		heritable   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, forms)},
		{t.ChoiceSets, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         BIGINT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, sets)},
		{t.Attributes, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id            BIGSERIAL PRIMARY KEY,
		name          TEXT NOT NULL UNIQUE,
		form_id       BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
		type          TEXT NOT NULL,
		child_form_id BIGINT REFERENCES %s(id),
		choice_set_id BIGINT REFERENCES %s(id),
		position      INTEGER NOT NULL DEFAULT 0,
		owner_id      BIGINT NOT NULL DEFAULT 0
	)`, attrs, forms, forms, sets)},
		{t.FormViews, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id          BIGSERIAL PRIMARY KEY,
		form_id     BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
		name        TEXT NOT NULL,
		revision    INTEGER NOT NULL DEFAULT 1,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		constraints JSONB,
		UNIQUE (form_id, name, revision)
	)`, views, forms)},
		{t.AttributeViews, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id                BIGSERIAL PRIMARY KEY,
		attribute_id      BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
		form_view_id      BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
		value_constraints JSONB,
		view_constraints  JSONB,
		choice_set_id     BIGINT REFERENCES %s(id),
		UNIQUE (attribute_id, form_view_id)
	)`, Quote(t.AttributeViews), attrs, views, sets)},
		{t.Choices, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		set_id     BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
		choice_id  BIGINT NOT NULL,
		label      TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		language   TEXT NOT NULL,
		PRIMARY KEY (choice_id, set_id, language)
	)`, Quote(t.Choices), sets)},
		{t.Prompts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id           BIGSERIAL PRIMARY KEY,
		attribute_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
		text         TEXT NOT NULL,
		role         TEXT NOT NULL DEFAULT 'label',
		language     TEXT NOT NULL
	)`, Quote(t.Prompts), attrs)},
		{t.Organizations, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id              BIGSERIAL PRIMARY KEY,
		legal_name      TEXT NOT NULL,
		lei             TEXT,
		jurisdiction    TEXT,
		sics_sector     TEXT,
		sics_sub_sector TEXT,
		sics_industry   TEXT
	)`, orgs)},
		{t.Objects, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id              BIGSERIAL PRIMARY KEY,
		form_view_id    BIGINT NOT NULL REFERENCES %s(id),
		organization_id BIGINT REFERENCES %s(id),
		status          TEXT NOT NULL DEFAULT 'active',
		reporting_year  INTEGER,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, objects, views, orgs)},
		{t.Restatements, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id             BIGSERIAL PRIMARY KEY,
		obj_id         BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
		attribute_id   BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
		path           TEXT NOT NULL,
		value          JSONB,
		data_source_id BIGINT,
		recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, Quote(t.Restatements), objects, attrs)},
		{t.Restatements + "_latest_idx", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (obj_id, path, recorded_at DESC)`,
			Quote(Identifier(t.Restatements, "_latest_idx", PostgresIdentifierLimit)), Quote(t.Restatements))},
	}
}
