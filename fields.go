package treez

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/kr/pretty"
)

// formatField renders a field value the way it is printed. Messages are
// printed verbatim, strings are quoted and composite values are pretty
// printed, possibly over several lines.
func formatField(f Field) string {
	if s, ok := f.Value.(string); ok {
		if f.Key == MessageKey {
			return s
		}
		return strconv.Quote(s)
	}
	return formatValue(f.Value)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array, reflect.Pointer:
		return fmt.Sprintf("%# v", pretty.Formatter(v))
	default:
		return fmt.Sprint(v)
	}
}

// writeKVs writes fields separated by ", ". Message fields are written
// without their name.
func writeKVs(buf *strings.Builder, fields []renderedField) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteString(", ")
		}
		if f.key == MessageKey {
			buf.WriteString(f.value)
			continue
		}
		buf.WriteString(f.key)
		buf.WriteByte('=')
		buf.WriteString(f.value)
	}
}
