package formtab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SortOrder is the direction of a sort key.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortKey is one ORDER BY entry. Field is a meta field such as "legal_name",
// an attribute name, a dotted path into sub-forms, or a path with a choice
// qualifier: "emissions.scope_amount[scope=1]".
type SortKey struct {
	Field string
	Order SortOrder
}

// UnmarshalJSON accepts "field" or {"field": {"order": "desc"}}.
func (k *SortKey) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var field string
	if err := json.Unmarshal(data, &field); err == nil {
		k.Field = field
		k.Order = SortAsc
		return nil
	}
	var obj map[string]struct {
		Order string `json:"order"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("sort key must be a string or an object: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("sort key object must have exactly one field, got %d", len(obj))
	}
	for f, spec := range obj {
		k.Field = f
		switch strings.ToLower(spec.Order) {
		case "", "asc":
			k.Order = SortAsc
		case "desc":
			k.Order = SortDesc
		default:
			return fmt.Errorf("sort order %q must be asc or desc", spec.Order)
		}
	}
	return nil
}

func (k SortKey) MarshalJSON() ([]byte, error) {
	if k.Order == "" || k.Order == SortAsc {
		return json.Marshal(k.Field)
	}
	return json.Marshal(map[string]map[string]string{k.Field: {"order": string(k.Order)}})
}

// MetaFilter restricts a search by organization and submission metadata.
type MetaFilter struct {
	ReportingYear []int    `json:"reporting_year,omitempty"`
	DataModel     []string `json:"data_model,omitempty"`
	Jurisdiction  []string `json:"jurisdiction,omitempty"`
	SICSSector    []string `json:"sics_sector,omitempty"`
	SICSSubSector []string `json:"sics_sub_sector,omitempty"`
	SICSIndustry  []string `json:"sics_industry,omitempty"`
}

// SearchRequest is the input of SearchEngine.Search.
type SearchRequest struct {
	Sort   []SortKey  `json:"sort,omitempty"`
	Meta   MetaFilter `json:"meta"`
	Fields []string   `json:"fields,omitempty"`
	IDs    []int64    `json:"ids,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// Meta fields usable as sort keys and output fields.
const (
	MetaObjectID      = "object_id"
	MetaLegalName     = "legal_name"
	MetaLEI           = "lei"
	MetaJurisdiction  = "jurisdiction"
	MetaReportingYear = "reporting_year"
	MetaDataModel     = "data_model"
	MetaSICSSector    = "sics_sector"
	MetaSICSSubSector = "sics_sub_sector"
	MetaSICSIndustry  = "sics_industry"
	MetaCreatedAt     = "created_at"
	MetaUpdatedAt     = "updated_at"
)

// MetaFields lists the fields that are not form attributes.
func MetaFields() []string {
	return []string{
		MetaObjectID, MetaLegalName, MetaLEI, MetaJurisdiction, MetaReportingYear, MetaDataModel,
		MetaSICSSector, MetaSICSSubSector, MetaSICSIndustry, MetaCreatedAt, MetaUpdatedAt,
	}
}

// IsMetaField reports whether name is a meta field.
func IsMetaField(name string) bool {
	for _, f := range MetaFields() {
		if f == name {
			return true
		}
	}
	return false
}

// SearchResult is one page of hydrated submissions plus the total match count.
type SearchResult struct {
	Total int64        `json:"total"`
	Items []Submission `json:"items"`
}

// Submission is one hydrated search hit.
type Submission struct {
	ObjectID int64          `json:"object_id"`
	Meta     map[string]any `json:"meta"`
	Values   map[string]any `json:"values"`
}

// Restatement is a corrected value reported by a data source for one attribute path.
type Restatement struct {
	ObjectID     int64           `json:"obj_id"`
	AttributeID  int64           `json:"attribute_id"`
	Path         string          `json:"path"`
	Value        json.RawMessage `json:"value"`
	DataSourceID int64           `json:"data_source_id"`
	RecordedAt   time.Time       `json:"recorded_at"`
}

// SearchOptions are per-call search switches.
type SearchOptions struct {
	ExportMode bool
}

// SearchOption configures a single search.
type SearchOption func(*SearchOptions)

// WithExportMode substitutes restated values during hydration.
func WithExportMode() SearchOption {
	return func(o *SearchOptions) { o.ExportMode = true }
}

// ApplySearchOptions folds opts into a SearchOptions value.
func ApplySearchOptions(opts ...SearchOption) SearchOptions {
	var o SearchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
