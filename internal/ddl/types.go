package ddl

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/lychee-technology/formtab"
)

// baseColumnTypes is the canonical attribute type map.
var baseColumnTypes = map[formtab.AttributeType]string{
	formtab.AttributeTypeText:         "TEXT",
	formtab.AttributeTypeBool:         "BOOLEAN",
	formtab.AttributeTypeInt:          "INTEGER",
	formtab.AttributeTypeSingleChoice: "INTEGER",
	formtab.AttributeTypeMultiChoice:  "INTEGER",
	formtab.AttributeTypeSubForm:      "INTEGER",
	formtab.AttributeTypeRepeated:     "INTEGER",
	formtab.AttributeTypeFile:         "INTEGER",
	formtab.AttributeTypeFloat:        "REAL",
	formtab.AttributeTypeDateTime:     "TIMESTAMP",
}

// BaseColumnType returns the SQL type of a non or-null attribute type, or of
// the base of an or-null type.
func BaseColumnType(t formtab.AttributeType) (string, error) {
	sqlType, ok := baseColumnTypes[t.Base()]
	if !ok {
		return "", fmt.Errorf("no column type for attribute type %q", t)
	}
	return sqlType, nil
}

// CompositeTypeName is the Postgres composite type that stores t.
func CompositeTypeName(t formtab.AttributeType) string {
	return "formtab_" + string(t.Base()) + "_or_null"
}

// NormalizeValue converts a driver value read from a column of type t into
// the value the rest of the module works with: int64 for integer columns,
// float64 for real columns, time.Time (UTC) for timestamps.
func NormalizeValue(t formtab.AttributeType, v any) any {
	if v == nil {
		return nil
	}
	switch t.Base() {
	case formtab.AttributeTypeFloat:
		switch n := v.(type) {
		case float32:
			return roundFloat32(n)
		case float64:
			return n
		case int32:
			return float64(n)
		case int64:
			return float64(n)
		}
	case formtab.AttributeTypeText:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	case formtab.AttributeTypeBool:
		return v
	case formtab.AttributeTypeDateTime:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC()
		}
	default:
		switch n := v.(type) {
		case int16:
			return int64(n)
		case int32:
			return int64(n)
		case int:
			return int64(n)
		case float64:
			if n == math.Trunc(n) {
				return int64(n)
			}
		}
	}
	return v
}

func roundFloat32(f float32) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	if err != nil {
		return float64(f)
	}
	return out
}
