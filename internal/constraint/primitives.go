package constraint

import (
	"fmt"
	"regexp"
	"sync"
	"unicode/utf8"

	"github.com/lychee-technology/formtab"
)

func checkNumeric(action formtab.Action, value any, attribute string) error {
	n, ok := toFloat(value)
	if !ok {
		return formtab.NewTypeMismatchError(attribute, formtab.PrimitiveNumeric, value)
	}
	if action.Min != nil {
		min, ok := toFloat(action.Min)
		if !ok {
			return formtab.NewInvalidSpecError(attribute, fmt.Sprintf("numeric min %v is not a number", action.Min))
		}
		if n < min {
			return violationf(attribute, "value %v is below the minimum %v", value, action.Min)
		}
	}
	if action.Max != nil {
		max, ok := toFloat(action.Max)
		if !ok {
			return formtab.NewInvalidSpecError(attribute, fmt.Sprintf("numeric max %v is not a number", action.Max))
		}
		if n > max {
			return violationf(attribute, "value %v is above the maximum %v", value, action.Max)
		}
	}
	return nil
}

func checkText(action formtab.Action, value any, attribute string) error {
	s, ok := value.(string)
	if !ok {
		return formtab.NewTypeMismatchError(attribute, formtab.PrimitiveText, value)
	}
	length := utf8.RuneCountInString(s)
	if action.Min != nil {
		min, ok := toFloat(action.Min)
		if !ok {
			return formtab.NewInvalidSpecError(attribute, fmt.Sprintf("text min length %v is not a number", action.Min))
		}
		if float64(length) < min {
			return violationf(attribute, "text is shorter than %v characters", action.Min)
		}
	}
	if action.Max != nil {
		max, ok := toFloat(action.Max)
		if !ok {
			return formtab.NewInvalidSpecError(attribute, fmt.Sprintf("text max length %v is not a number", action.Max))
		}
		if float64(length) > max {
			return violationf(attribute, "text is longer than %v characters", action.Max)
		}
	}
	if action.Format != "" {
		re, err := fullMatchPattern(action.Format)
		if err != nil {
			return formtab.NewInvalidSpecError(attribute, fmt.Sprintf("invalid text format %q", action.Format)).WithCause(err)
		}
		if !re.MatchString(s) {
			return violationf(attribute, "text does not match format %q", action.Format)
		}
	}
	return nil
}

var patternCache sync.Map // string -> *regexp.Regexp

// fullMatchPattern anchors pattern so that it must match the whole value.
func fullMatchPattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}
