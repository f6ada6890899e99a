package decode

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/geometry"
)

// CoerceTimestamp converts a backend timestamp to a UTC time truncated to
// milliseconds. Integers are epoch microseconds, floats epoch seconds and
// strings RFC 3339.
func CoerceTimestamp(v any) (any, error) {
	var t time.Time
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t = x
	case int64:
		t = time.UnixMilli(x / 1000)
	case float64:
		t = time.UnixMilli(int64(math.Round(x * 1000)))
	case string:
		var err error
		t, err = time.Parse(time.RFC3339Nano, strings.Replace(strings.TrimSpace(x), " ", "T", 1))
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp %q: %w", ErrInvalidValue, x, err)
		}
	default:
		return nil, fmt.Errorf("%w: timestamp of type %T", ErrInvalidValue, v)
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

// geometryFormat picks the codec for a raw geometry value.
func geometryFormat(raw any, textual geometry.Format) geometry.Format {
	if _, ok := raw.([]byte); ok {
		return geometry.FormatWKB
	}
	return textual
}

// decodeGeometry parses a raw geometry value and attaches diagnostics.
func decodeGeometry(raw any, field string, ordinal int64, textual geometry.Format) (any, error) {
	if raw == nil {
		return nil, nil
	}
	tagged, err := geometry.DecodeColumn(raw, geometryFormat(raw, textual))
	if err != nil {
		var perr *geometry.ParseError
		if errors.As(err, &perr) {
			perr.Ordinal = ordinal
			perr.Field = field
		}
		return nil, err
	}
	return tagged, nil
}

// coerce applies field-type conversions. Only timestamps are converted;
// every other value is copied as delivered.
func coerce(v any, typ catalog.FieldType) (any, error) {
	if typ == catalog.TypeTimestamp {
		return CoerceTimestamp(v)
	}
	return v, nil
}

// arrowValue converts one Arrow cell to a Go value.
func arrowValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case array.ExtensionArray:
		return arrowValue(a.Storage(), i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return append([]byte(nil), a.Value(i)...)
	case *array.LargeBinary:
		return append([]byte(nil), a.Value(i)...)
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Decimal128:
		return a.Value(i).ToFloat64(a.DataType().(*arrow.Decimal128Type).Scale)
	case *array.Date32:
		return a.Value(i).ToTime().UTC()
	case *array.Date64:
		return a.Value(i).ToTime().UTC()
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	default:
		return arr.ValueStr(i)
	}
}
