package table

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// FormatValue formats a single cell for display. Pointer types are
// dereferenced to get the actual value rather than a hex address.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return ""
		}
		return FormatValue(rv.Elem().Interface())
	}

	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", val)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// AsFloat coerces a cell to float64. Numeric strings are accepted so that
// tables loaded from loosely-typed JSON still sort and aggregate sensibly.
func AsFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Compare orders two non-nil cells. It returns -1, 0, or 1 and whether the
// pair was comparable: both numeric (or numeric-coercible), both times, or
// both compared lexically as strings.
func Compare(a, b any) (int, bool) {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if _, ok := b.(time.Time); ok {
		return 0, false
	}

	fa, aok := AsFloat(a)
	fb, bok := AsFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}

	sa, saok := a.(string)
	sb, sbok := b.(string)
	if saok && sbok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}
