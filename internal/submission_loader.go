package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/ddl"
)

const (
	rowIDColumn    = "__row_id"
	rowObjIDColumn = "__obj_id"
	rowSlotColumn  = "__value_id"
)

// tableRow is one decoded row of a generated table.
type tableRow struct {
	ID      int64
	ObjID   int64
	ValueID int64
	Values  map[string]any
}

type slotKey struct {
	objID   int64
	valueID int64
}

// PostgresSubmissionLoader reads the physical row trees of submissions and
// assembles them into nested value maps keyed by attribute name.
type PostgresSubmissionLoader struct {
	pool   queryPool
	reader formtab.SchemaReader
	naming ddl.Naming
	codec  ddl.NullCodec
	tables formtab.TableNames
}

var _ formtab.SubmissionLoader = (*PostgresSubmissionLoader)(nil)

// NewPostgresSubmissionLoader creates a loader.
func NewPostgresSubmissionLoader(pool queryPool, reader formtab.SchemaReader, codec ddl.NullCodec, config *formtab.Config) *PostgresSubmissionLoader {
	return &PostgresSubmissionLoader{
		pool:   pool,
		reader: reader,
		naming: ddl.NewNaming(config.Compiler.MaxIdentifierLength),
		codec:  codec,
		tables: config.Database.Tables,
	}
}

// LoadSubmissions returns the values of every object in objectIDs that exists.
func (l *PostgresSubmissionLoader) LoadSubmissions(ctx context.Context, objectIDs []int64) (map[int64]map[string]any, error) {
	out := make(map[int64]map[string]any, len(objectIDs))
	if len(objectIDs) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`SELECT o.id, v.form_id FROM %s o JOIN %s v ON v.id = o.form_view_id WHERE o.id = ANY($1)`,
		ddl.Quote(l.tables.Objects), ddl.Quote(l.tables.FormViews))
	rows, err := l.pool.Query(ctx, query, objectIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve submission forms: %w", err)
	}
	type objectForm struct {
		ObjectID int64
		FormID   int64
	}
	pairs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[objectForm])
	if err != nil {
		return nil, fmt.Errorf("failed to resolve submission forms: %w", err)
	}

	byForm := make(map[int64][]int64)
	var order []int64
	for _, p := range pairs {
		if _, seen := byForm[p.FormID]; !seen {
			order = append(order, p.FormID)
		}
		byForm[p.FormID] = append(byForm[p.FormID], p.ObjectID)
	}

	for _, formID := range order {
		def, err := l.reader.Read(ctx, formID, formtab.ReadSchema)
		if err != nil {
			return nil, err
		}
		roots, err := l.loadTable(ctx, def, false, byForm[formID])
		if err != nil {
			return nil, err
		}
		for _, r := range roots {
			if _, dup := out[r.ObjID]; !dup {
				out[r.ObjID] = r.Values
			}
		}
	}
	return out, nil
}

// loadTable reads the rows of def's table for ids and fills in the values of
// its child-bearing attributes from the child tables.
func (l *PostgresSubmissionLoader) loadTable(ctx context.Context, def *formtab.FormDefinition, heritable bool, ids []int64) ([]tableRow, error) {
	table := l.naming.Table(def.Form.Name, heritable)
	cols := []string{
		fmt.Sprintf("t.id AS %s", ddl.Quote(rowIDColumn)),
		fmt.Sprintf("t.obj_id AS %s", ddl.Quote(rowObjIDColumn)),
	}
	if heritable {
		cols = append(cols, fmt.Sprintf("t.value_id AS %s", ddl.Quote(rowSlotColumn)))
	}
	for _, ad := range def.Attributes {
		cols = append(cols, ddl.SelectExprs(l.codec, l.naming, "t", ad.Attribute.Name, ad.Attribute.Type)...)
	}
	query := fmt.Sprintf("SELECT %s FROM %s t WHERE t.obj_id = ANY($1) ORDER BY t.id",
		strings.Join(cols, ", "), ddl.Quote(table))

	rows, err := l.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows of %s: %w", table, err)
	}
	raw, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows of %s: %w", table, err)
	}

	out := make([]tableRow, 0, len(raw))
	for _, m := range raw {
		r := tableRow{Values: make(map[string]any, len(def.Attributes))}
		r.ID, _ = toInt64(m[rowIDColumn])
		r.ObjID, _ = toInt64(m[rowObjIDColumn])
		if heritable {
			r.ValueID, _ = toInt64(m[rowSlotColumn])
		}
		for _, ad := range def.Attributes {
			if ad.Attribute.Type.HasChildForm() {
				continue
			}
			r.Values[ad.Attribute.Name] = ddl.Decode(l.naming, m, ad.Attribute.Name, ad.Attribute.Type)
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return out, nil
	}

	for _, ad := range def.Attributes {
		if !ad.Attribute.Type.HasChildForm() || ad.Child == nil {
			continue
		}
		children, err := l.loadTable(ctx, ad.Child, true, ids)
		if err != nil {
			return nil, err
		}
		slots := make(map[slotKey][]map[string]any)
		for _, c := range children {
			k := slotKey{objID: c.ObjID, valueID: c.ValueID}
			slots[k] = append(slots[k], c.Values)
		}
		col := l.naming.Column(ad.Attribute.Name)
		for i := range out {
			slot, ok := toInt64(raw[i][col])
			if !ok {
				out[i].Values[ad.Attribute.Name] = nil
				continue
			}
			out[i].Values[ad.Attribute.Name] = assembleChildren(ad.Attribute.Type, slots[slotKey{objID: out[i].ObjID, valueID: slot}])
		}
	}
	return out, nil
}

// assembleChildren shapes the child rows of one slot: a sub-form is a single
// map, repeated and multi_choice attributes are lists in row order.
func assembleChildren(t formtab.AttributeType, rows []map[string]any) any {
	if t == formtab.AttributeTypeSubForm {
		if len(rows) == 0 {
			return nil
		}
		return rows[0]
	}
	list := make([]any, len(rows))
	for i, r := range rows {
		list[i] = r
	}
	return list
}

// PostgresRestatementSource reads the latest restatement per object and path.
type PostgresRestatementSource struct {
	pool  queryPool
	table string
}

var _ formtab.RestatementSource = (*PostgresRestatementSource)(nil)

// NewPostgresRestatementSource creates a source over the restatements table.
func NewPostgresRestatementSource(pool queryPool, tables formtab.TableNames) *PostgresRestatementSource {
	return &PostgresRestatementSource{pool: pool, table: tables.Restatements}
}

func (s *PostgresRestatementSource) LatestRestatements(ctx context.Context, objectIDs []int64) (map[int64][]formtab.Restatement, error) {
	out := make(map[int64][]formtab.Restatement)
	if len(objectIDs) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT DISTINCT ON (obj_id, path) obj_id, attribute_id, path, value, data_source_id, recorded_at
FROM %s
WHERE obj_id = ANY($1)
ORDER BY obj_id, path, recorded_at DESC`, ddl.Quote(s.table))

	rows, err := s.pool.Query(ctx, query, objectIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load restatements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r          formtab.Restatement
			value      []byte
			sourceID   *int64
			recordedAt time.Time
		)
		if err := rows.Scan(&r.ObjectID, &r.AttributeID, &r.Path, &value, &sourceID, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan restatement: %w", err)
		}
		if value != nil {
			r.Value = json.RawMessage(value)
		}
		if sourceID != nil {
			r.DataSourceID = *sourceID
		}
		r.RecordedAt = recordedAt.UTC()
		out[r.ObjectID] = append(out[r.ObjectID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load restatements: %w", err)
	}
	return out, nil
}
