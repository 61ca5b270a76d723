package logging

import (
	"encoding"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Field is one key/value pair of record context. Values are normalized into
// a closed set: string, integer, float, bool, null, nested group and list.
type Field = slog.Attr

const badKey = "!BADKEY"

const (
	// FieldOperation is the structured key for span and threshold operation names.
	FieldOperation = "operation"
	// FieldDurationSeconds is the structured key for elapsed span time.
	FieldDurationSeconds = "duration_seconds"
	// FieldRecordType tags records that are projections (for example metrics).
	FieldRecordType = "record_type"
	// FieldWorkflowRun is the structured key for the run identifier.
	FieldWorkflowRun = "workflow_run"
	// FieldCommitSHA is the structured key for the commit identifier.
	FieldCommitSHA = "commit_sha"
	// FieldError is the structured key for error descriptions.
	FieldError = "error"
)

func String(key, value string) Field { return slog.String(key, value) }

func Int(key string, value int) Field { return slog.Int64(key, int64(value)) }

func Int64(key string, value int64) Field { return slog.Int64(key, value) }

func Float64(key string, value float64) Field { return slog.Float64(key, value) }

func Bool(key string, value bool) Field { return slog.Bool(key, value) }

// Seconds records a duration as fractional seconds.
func Seconds(key string, value time.Duration) Field { return slog.Float64(key, value.Seconds()) }

func Error(err error) Field {
	if err == nil {
		return slog.String(FieldError, "<nil>")
	}
	return slog.String(FieldError, err.Error())
}

func Group(key string, fields ...Field) Field {
	return slog.Attr{Key: key, Value: slog.GroupValue(normalizeFields(fields)...)}
}

// List records an ordered sequence of values.
func List(key string, values ...any) Field {
	items := make(listValue, 0, len(values))
	for _, v := range values {
		items = append(items, normalizeValue(v))
	}
	return slog.Any(key, items)
}

// Tags records a string mapping as a group with sorted keys.
func Tags(key string, tags map[string]string) Field {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slog.String(k, tags[k]))
	}
	return slog.Attr{Key: key, Value: slog.GroupValue(fields...)}
}

// Any normalizes an arbitrary Go value into the closed value set.
func Any(key string, value any) Field {
	return slog.Attr{Key: key, Value: normalizeValue(value)}
}

// listValue is the list kind of the closed value set.
type listValue []slog.Value

func buildFields(args []any) []Field {
	if len(args) == 0 {
		return nil
	}
	fields := make([]Field, 0, len(args)/2+1)
	for len(args) > 0 {
		switch x := args[0].(type) {
		case slog.Attr:
			fields = append(fields, normalizeAttr(x))
			args = args[1:]
		case []slog.Attr:
			fields = append(fields, normalizeFields(x)...)
			args = args[1:]
		case string:
			if len(args) == 1 {
				fields = append(fields, slog.String(badKey, x))
				args = nil
				continue
			}
			fields = append(fields, Any(x, args[1]))
			args = args[2:]
		default:
			fields = append(fields, Any(badKey, x))
			args = args[1:]
		}
	}
	return dedupeFields(fields)
}

func normalizeFields(fields []Field) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Equal(slog.Attr{}) {
			continue
		}
		out = append(out, normalizeAttr(f))
	}
	return dedupeFields(out)
}

func normalizeAttr(attr slog.Attr) slog.Attr {
	return slog.Attr{Key: attr.Key, Value: normalizeSlogValue(attr.Value)}
}

func normalizeSlogValue(v slog.Value) slog.Value {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString, slog.KindInt64, slog.KindFloat64, slog.KindBool:
		return v
	case slog.KindUint64:
		u := v.Uint64()
		if u > math.MaxInt64 {
			return slog.Float64Value(float64(u))
		}
		return slog.Int64Value(int64(u))
	case slog.KindDuration:
		return slog.Float64Value(v.Duration().Seconds())
	case slog.KindTime:
		return slog.StringValue(v.Time().Format(time.RFC3339Nano))
	case slog.KindGroup:
		return slog.GroupValue(normalizeFields(v.Group())...)
	default:
		return normalizeValue(v.Any())
	}
}

func normalizeValue(value any) slog.Value {
	switch x := value.(type) {
	case nil:
		return slog.AnyValue(nil)
	case string:
		return slog.StringValue(x)
	case bool:
		return slog.BoolValue(x)
	case int:
		return slog.Int64Value(int64(x))
	case int8:
		return slog.Int64Value(int64(x))
	case int16:
		return slog.Int64Value(int64(x))
	case int32:
		return slog.Int64Value(int64(x))
	case int64:
		return slog.Int64Value(x)
	case uint, uint8, uint16, uint32, uint64:
		return normalizeSlogValue(slog.AnyValue(x))
	case float32:
		return slog.Float64Value(float64(x))
	case float64:
		return slog.Float64Value(x)
	case time.Time:
		return slog.StringValue(x.Format(time.RFC3339Nano))
	case time.Duration:
		return slog.Float64Value(x.Seconds())
	case listValue:
		return slog.AnyValue(x)
	case slog.Value:
		return normalizeSlogValue(x)
	case slog.LogValuer:
		return normalizeSlogValue(slog.AnyValue(x))
	case []Field:
		return slog.GroupValue(normalizeFields(x)...)
	case map[string]string:
		return Tags("", x).Value
	case error:
		return slog.StringValue(x.Error())
	case fmt.Stringer:
		return slog.StringValue(x.String())
	case encoding.TextMarshaler:
		text, err := x.MarshalText()
		if err != nil {
			return slog.StringValue(fmt.Sprintf("!ERROR:%v", err))
		}
		return slog.StringValue(string(text))
	}
	return normalizeReflect(reflect.ValueOf(value))
}

func normalizeReflect(rv reflect.Value) slog.Value {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return slog.AnyValue(nil)
		}
		return normalizeValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return slog.AnyValue(listValue{})
		}
		items := make(listValue, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items = append(items, normalizeValue(rv.Index(i).Interface()))
		}
		return slog.AnyValue(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return slog.StringValue(fmt.Sprint(rv.Interface()))
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			elem := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))
			fields = append(fields, slog.Attr{Key: k, Value: normalizeValue(elem.Interface())})
		}
		return slog.GroupValue(fields...)
	case reflect.String:
		return slog.StringValue(rv.String())
	case reflect.Bool:
		return slog.BoolValue(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return slog.Int64Value(rv.Int())
	case reflect.Float32, reflect.Float64:
		return slog.Float64Value(rv.Float())
	case reflect.Invalid:
		return slog.AnyValue(nil)
	default:
		return slog.StringValue(fmt.Sprint(rv.Interface()))
	}
}

// dedupeFields keeps the first position of each key and the last value
// written for it.
func dedupeFields(fields []Field) []Field {
	if len(fields) < 2 {
		return fields
	}
	positions := make(map[string]int, len(fields))
	deduped := make([]Field, 0, len(fields))
	for _, f := range fields {
		if pos, ok := positions[f.Key]; ok {
			deduped[pos].Value = f.Value
			continue
		}
		positions[f.Key] = len(deduped)
		deduped = append(deduped, f)
	}
	return deduped
}

// fieldsToMap converts ordered fields into plain JSON-ready values.
func fieldsToMap(fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Key] = valueToJSON(f.Value)
	}
	return out
}

func valueToJSON(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		f := v.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return f
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().Seconds()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindGroup:
		return fieldsToMap(v.Group())
	case slog.KindLogValuer:
		return valueToJSON(normalizeSlogValue(v))
	default:
		switch x := v.Any().(type) {
		case nil:
			return nil
		case listValue:
			items := make([]any, 0, len(x))
			for _, item := range x {
				items = append(items, valueToJSON(item))
			}
			return items
		default:
			return valueToJSON(normalizeValue(x))
		}
	}
}

// FieldsToMap exposes the JSON projection of a field list.
func FieldsToMap(fields []Field) map[string]any {
	return fieldsToMap(fields)
}
