package internal

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/ddl"
)

var searchTemplateFuncs = template.FuncMap{"join": strings.Join}

var searchCountSQLTemplate = template.Must(template.New("searchCount").Funcs(searchTemplateFuncs).Parse(`
SELECT COUNT(*) AS total
FROM {{ .Objects }} o
{{- range .Joins }}
{{ . }}
{{- end }}
WHERE {{ join .Where "\n  AND " }}`))

var searchPageSQLTemplate = template.Must(template.New("searchPage").Funcs(searchTemplateFuncs).Parse(`
SELECT
{{- range $i, $c := .Columns }}
  {{ if $i }}, {{ end }}{{ $c.Expr }} AS {{ $c.Alias }}
{{- end }}
FROM {{ .Objects }} o
{{- range .Joins }}
{{ . }}
{{- end }}
WHERE {{ join .Where "\n  AND " }}
ORDER BY {{ join .OrderBy ", " }}
{{ .Pagination }}`))

type selectColumn struct {
	Expr  string
	Alias string
}

type searchTemplateData struct {
	Columns    []selectColumn
	Objects    string
	Joins      []string
	Where      []string
	OrderBy    []string
	Pagination string
}

// searchQuery is the rendered SQL of one search.
type searchQuery struct {
	CountSQL  string
	CountArgs []any
	PageSQL   string
	PageArgs  []any
	Limit     int
	Offset    int
}

var metaExprs = map[string]string{
	formtab.MetaObjectID:      "o.id",
	formtab.MetaLegalName:     "org.legal_name",
	formtab.MetaLEI:           "org.lei",
	formtab.MetaJurisdiction:  "org.jurisdiction",
	formtab.MetaReportingYear: "o.reporting_year",
	formtab.MetaDataModel:     "dm.label",
	formtab.MetaSICSSector:    "org.sics_sector",
	formtab.MetaSICSSubSector: "org.sics_sub_sector",
	formtab.MetaSICSIndustry:  "org.sics_industry",
	formtab.MetaCreatedAt:     "o.created_at",
	formtab.MetaUpdatedAt:     "o.updated_at",
}

// searchBuilder renders search SQL for one backend.
type searchBuilder struct {
	dialect      Dialect
	naming       ddl.Naming
	codec        ddl.NullCodec
	tables       formtab.TableNames
	language     string
	status       string
	defaultLimit int
	maxLimit     int
}

func newSearchBuilder(dialect Dialect, codec ddl.NullCodec, config *formtab.Config) *searchBuilder {
	return &searchBuilder{
		dialect:      dialect,
		naming:       ddl.NewNaming(config.Compiler.MaxIdentifierLength),
		codec:        codec,
		tables:       config.Database.Tables,
		language:     formtab.CanonicalLanguage("", config.Compiler.DefaultLanguage),
		status:       config.Query.ActiveStatus,
		defaultLimit: config.Query.DefaultPageSize,
		maxLimit:     config.Query.MaxPageSize,
	}
}

// isDiscriminator reports whether an attribute carries the data model of a submission.
func isDiscriminator(a formtab.Attribute) bool {
	if a.Type.Base() != formtab.AttributeTypeSingleChoice {
		return false
	}
	return a.Name == formtab.MetaDataModel || strings.HasSuffix(a.Name, "_"+formtab.MetaDataModel)
}

func findDiscriminator(def *formtab.FormDefinition) *formtab.AttributeDefinition {
	for i := range def.Attributes {
		if isDiscriminator(def.Attributes[i].Attribute) {
			return &def.Attributes[i]
		}
	}
	return nil
}

func (b *searchBuilder) valueExpr(alias string, ad *formtab.AttributeDefinition) string {
	name := ad.Attribute.Name
	if ad.Attribute.Type.IsOrNull() {
		return b.codec.ValueExpr(b.naming, alias, name)
	}
	return fmt.Sprintf("%s.%s", alias, ddl.Quote(b.naming.Column(name)))
}

func quoteLiterals(values []string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = pq.QuoteLiteral(v)
	}
	return strings.Join(out, ", ")
}

func intLiterals(values []int) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.Itoa(v)
	}
	return strings.Join(out, ", ")
}

func (b *searchBuilder) pageBounds(req *formtab.SearchRequest) (int, int) {
	limit := req.Limit
	if limit <= 0 {
		limit = b.defaultLimit
	}
	if b.maxLimit > 0 && limit > b.maxLimit {
		limit = b.maxLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

type orderedSort struct {
	key  formtab.SortKey
	attr *attributeSort
}

// build renders the count and page queries. Every sort key is resolved
// before anything is rendered.
func (b *searchBuilder) build(def *formtab.FormDefinition, viewID int64, req *formtab.SearchRequest) (*searchQuery, error) {
	discriminator := findDiscriminator(def)

	sorts := make([]orderedSort, 0, len(req.Sort))
	for _, key := range req.Sort {
		switch key.Order {
		case "", formtab.SortAsc, formtab.SortDesc:
		default:
			return nil, formtab.NewInvalidSortFieldError(key.Field, fmt.Sprintf("unknown sort order %q", key.Order))
		}
		if key.Field == formtab.MetaDataModel && discriminator == nil {
			return nil, formtab.NewInvalidSortFieldError(key.Field, "form has no data model attribute")
		}
		as, err := resolveSort(def, key)
		if err != nil {
			return nil, err
		}
		sorts = append(sorts, orderedSort{key: key, attr: as})
	}

	data := searchTemplateData{Objects: b.dialect.Table(b.tables.Objects)}
	selected := make(map[string]bool)
	addColumn := func(expr, alias string) {
		if selected[alias] {
			return
		}
		selected[alias] = true
		data.Columns = append(data.Columns, selectColumn{Expr: expr, Alias: ddl.Quote(alias)})
	}
	for _, f := range []string{formtab.MetaObjectID, formtab.MetaLegalName, formtab.MetaLEI, formtab.MetaJurisdiction} {
		addColumn(metaExprs[f], f)
	}

	rootTable := b.dialect.Table(b.naming.Table(def.Form.Name, def.Form.Heritable))
	data.Joins = append(data.Joins, fmt.Sprintf("JOIN %s f ON f.obj_id = o.id", rootTable))

	if discriminator != nil {
		join := "LEFT JOIN"
		if len(req.Meta.DataModel) > 0 {
			join = "JOIN"
		}
		setID := int64(0)
		if discriminator.Attribute.ChoiceSetID != nil {
			setID = *discriminator.Attribute.ChoiceSetID
		}
		// One label per choice: the default language when present, else the
		// first language in collation order.
		labels := fmt.Sprintf("SELECT DISTINCT ON (choice_id) choice_id, label FROM %s WHERE set_id = %d ORDER BY choice_id, (language = %s) DESC, language",
			b.dialect.Table(b.tables.Choices), setID, pq.QuoteLiteral(b.language))
		data.Joins = append(data.Joins, fmt.Sprintf("%s (%s) dm ON dm.choice_id = %s",
			join, labels, b.valueExpr("f", discriminator)))
		addColumn(metaExprs[formtab.MetaDataModel], formtab.MetaDataModel)
	}

	data.Joins = append(data.Joins, fmt.Sprintf("LEFT JOIN %s org ON org.id = o.organization_id",
		b.dialect.Table(b.tables.Organizations)))

	for _, f := range req.Fields {
		switch {
		case f == formtab.MetaDataModel && discriminator == nil:
			zap.S().Debugw("search field skipped, form has no data model", "form", def.Form.Name)
		case formtab.IsMetaField(f):
			addColumn(metaExprs[f], f)
		default:
			ad, ok := def.Attribute(f)
			if !ok || ad.Attribute.Type.HasChildForm() {
				zap.S().Warnw("search field skipped, not a scalar attribute", "form", def.Form.Name, "field", f)
				continue
			}
			addColumn(b.valueExpr("f", ad), f)
		}
	}
	for _, s := range sorts {
		if s.attr == nil {
			addColumn(metaExprs[s.key.Field], s.key.Field)
		}
	}

	args := &queryArgs{dialect: b.dialect}
	data.Where = append(data.Where,
		"o.form_view_id = "+args.add(viewID),
		"o.status = "+args.add(b.status),
	)
	if len(req.IDs) > 0 {
		data.Where = append(data.Where, b.dialect.IDFilter("o.id", req.IDs, args))
	}
	m := req.Meta
	if len(m.ReportingYear) > 0 {
		data.Where = append(data.Where, fmt.Sprintf("o.reporting_year IN (%s)", intLiterals(m.ReportingYear)))
	}
	if len(m.DataModel) > 0 {
		if discriminator == nil {
			data.Where = append(data.Where, "FALSE")
		} else {
			data.Where = append(data.Where, fmt.Sprintf("dm.label IN (%s)", quoteLiterals(m.DataModel)))
		}
	}
	for _, filter := range []struct {
		column string
		values []string
	}{
		{"org.jurisdiction", m.Jurisdiction},
		{"org.sics_sector", m.SICSSector},
		{"org.sics_sub_sector", m.SICSSubSector},
		{"org.sics_industry", m.SICSIndustry},
	} {
		if len(filter.values) > 0 {
			data.Where = append(data.Where, fmt.Sprintf("%s IN (%s)", filter.column, quoteLiterals(filter.values)))
		}
	}
	countArgs := append([]any(nil), args.values...)

	for _, s := range sorts {
		dir := "ASC"
		if s.key.Order == formtab.SortDesc {
			dir = "DESC"
		}
		var expr string
		if s.attr == nil {
			expr = ddl.Quote(s.key.Field)
		} else {
			expr = b.sortExpr(s.attr, args)
		}
		data.OrderBy = append(data.OrderBy, fmt.Sprintf("%s %s NULLS LAST", expr, dir))
	}
	data.OrderBy = append(data.OrderBy, "o.id ASC")

	limit, offset := b.pageBounds(req)
	data.Pagination = b.dialect.Paginate(limit, offset)

	countSQL, err := renderTemplate(searchCountSQLTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render count query: %w", err)
	}
	pageSQL, err := renderTemplate(searchPageSQLTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render page query: %w", err)
	}
	return &searchQuery{
		CountSQL:  countSQL,
		CountArgs: countArgs,
		PageSQL:   pageSQL,
		PageArgs:  args.values,
		Limit:     limit,
		Offset:    offset,
	}, nil
}

// sortExpr renders the sort value of an attribute key. Root attributes are
// read from the root row; nested ones through a correlated subquery that
// walks the heritable tables, joined by obj_id at the first level and by the
// parent slot's value_id below it, and picks the first populated row.
func (b *searchBuilder) sortExpr(s *attributeSort, args *queryArgs) string {
	if len(s.Path) == 0 {
		value := b.valueExpr("f", s.Leaf)
		if s.Qualifier == nil {
			return value
		}
		return fmt.Sprintf("(CASE WHEN %s = %s THEN %s END)",
			b.valueExpr("f", s.Qualifier.Attribute), args.add(s.Qualifier.Value), value)
	}

	var from strings.Builder
	ids := make([]string, 0, len(s.Path))
	for i, ad := range s.Path {
		alias := fmt.Sprintf("c%d", i+1)
		table := b.dialect.Table(b.naming.Table(ad.Child.Form.Name, true))
		ids = append(ids, alias+".id")
		if i == 0 {
			fmt.Fprintf(&from, "%s %s", table, alias)
			continue
		}
		prev := fmt.Sprintf("c%d", i)
		fmt.Fprintf(&from, " JOIN %s %s ON %s.obj_id = %s.obj_id AND %s.value_id = %s.%s",
			table, alias, alias, prev, alias, prev, ddl.Quote(b.naming.Column(ad.Attribute.Name)))
	}

	leaf := fmt.Sprintf("c%d", len(s.Path))
	value := b.valueExpr(leaf, s.Leaf)
	conds := []string{"c1.obj_id = f.obj_id", value + " IS NOT NULL"}
	if s.Leaf.Attribute.Type.IsOrNull() {
		conds = append(conds, "NOT "+b.codec.WithheldExpr(b.naming, leaf, s.Leaf.Attribute.Name))
	}
	if s.Qualifier != nil {
		conds = append(conds, fmt.Sprintf("%s = %s", b.valueExpr(leaf, s.Qualifier.Attribute), args.add(s.Qualifier.Value)))
	}
	return fmt.Sprintf("(SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT 1)",
		value, from.String(), strings.Join(conds, " AND "), strings.Join(ids, ", "))
}

func renderTemplate(tpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
