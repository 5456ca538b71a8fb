package constraint

import (
	"fmt"
	"strings"
	"time"

	"github.com/lychee-technology/formtab"
)

// NowTag is the symbolic bound that resolves to the current time.
const NowTag = "now"

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseISO parses ISO-8601 text; values without an offset are UTC.
func parseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 datetime", s)
}

var strftimeDirectives = map[byte]string{
	'Y': "2006", 'y': "06", 'm': "01", 'd': "02", 'e': "_2",
	'H': "15", 'I': "03", 'M': "04", 'S': "05", 'f': "000000", 'p': "PM",
	'b': "Jan", 'B': "January", 'a': "Mon", 'A': "Monday",
	'z': "-0700", 'Z': "MST", 'j': "002",
	'F': "2006-01-02", 'T': "15:04:05", '%': "%",
}

// goLayout converts a strftime format to a Go layout. Formats without a
// directive are taken as Go layouts already.
func goLayout(format string) (string, error) {
	if !strings.Contains(format, "%") {
		return format, nil
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			return "", fmt.Errorf("dangling %% in format %q", format)
		}
		i++
		layout, ok := strftimeDirectives[format[i]]
		if !ok {
			return "", fmt.Errorf("unsupported directive %%%c in format %q", format[i], format)
		}
		b.WriteString(layout)
	}
	return b.String(), nil
}

func resolveBound(bound any, o options) (time.Time, error) {
	switch b := bound.(type) {
	case time.Time:
		return b, nil
	case string:
		if strings.EqualFold(strings.TrimSpace(b), NowTag) {
			return o.now().UTC(), nil
		}
		return parseISO(b)
	}
	return time.Time{}, fmt.Errorf("datetime bound %v must be an ISO-8601 string or %q", bound, NowTag)
}

func checkDateTime(action formtab.Action, value any, attribute string, o options) error {
	var ts time.Time
	switch v := value.(type) {
	case time.Time:
		ts = v
	case string:
		var err error
		if action.Format != "" {
			layout, lerr := goLayout(action.Format)
			if lerr != nil {
				return formtab.NewInvalidSpecError(attribute, lerr.Error())
			}
			ts, err = time.Parse(layout, strings.TrimSpace(v))
		} else {
			ts, err = parseISO(v)
		}
		if err != nil {
			return violationf(attribute, "value %q is not a valid datetime", v)
		}
	default:
		return formtab.NewTypeMismatchError(attribute, formtab.PrimitiveDateTime, value)
	}

	if action.Min != nil {
		min, err := resolveBound(action.Min, o)
		if err != nil {
			return formtab.NewInvalidSpecError(attribute, err.Error())
		}
		if ts.Before(min) {
			return violationf(attribute, "datetime %s is before %s", ts.Format(time.RFC3339), min.Format(time.RFC3339))
		}
	}
	if action.Max != nil {
		max, err := resolveBound(action.Max, o)
		if err != nil {
			return formtab.NewInvalidSpecError(attribute, err.Error())
		}
		if ts.After(max) {
			return violationf(attribute, "datetime %s is after %s", ts.Format(time.RFC3339), max.Format(time.RFC3339))
		}
	}
	return nil
}
