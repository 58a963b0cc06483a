// Package prop converts attribute values to and from backend-native property values.
//
// Encoding rules:
//   - decimals and big integers are stored as their canonical string form
//   - dates and calendars are stored as native temporal values (time.Time)
//   - every other value passes through unchanged
//
// Decoding reverses the encoding for the attribute's Kind. For every
// supported kind, FromNative(ToNative(v), kind) equals v.
package prop

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/roach88/strata/internal/meta"
)

// ToNative converts an attribute value to its backend-native form.
func ToNative(v any) any {
	switch val := v.(type) {
	case *apd.Decimal:
		if val == nil {
			return nil
		}
		return val.String()
	case apd.Decimal:
		return val.String()
	case *big.Int:
		if val == nil {
			return nil
		}
		return val.String()
	case *meta.Calendar:
		if val == nil {
			return nil
		}
		return val.Time
	case meta.Calendar:
		return val.Time
	case *time.Time:
		if val == nil {
			return nil
		}
		return *val
	default:
		return v
	}
}

// FromNative converts a backend-native value back to the Go value of the
// given kind. A nil native value decodes to nil.
func FromNative(v any, kind meta.Kind) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case meta.KindDecimal:
		return toDecimal(v)
	case meta.KindBigInt:
		return toBigInt(v)
	case meta.KindDate:
		return toTime(v)
	case meta.KindCalendar:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return meta.NewCalendar(t), nil
	case meta.KindInt16, meta.KindInt32, meta.KindInt64:
		return toInt(v, kind)
	case meta.KindFloat32, meta.KindFloat64:
		return toFloat(v, kind)
	case meta.KindBool:
		return toBool(v)
	case meta.KindString:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		return v, nil
	default:
		return v, nil
	}
}

// String renders a value in the canonical text form used by search
// documents and query strings.
func String(v any) string {
	switch val := ToNative(v).(type) {
	case nil:
		return "null"
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func toDecimal(v any) (*apd.Decimal, error) {
	switch val := v.(type) {
	case *apd.Decimal:
		return val, nil
	case string:
		d, _, err := apd.NewFromString(val)
		if err != nil {
			return nil, fmt.Errorf("decode decimal %q: %w", val, err)
		}
		return d, nil
	case []byte:
		return toDecimal(string(val))
	case int64:
		return apd.New(val, 0), nil
	case float64:
		d := new(apd.Decimal)
		if _, err := d.SetFloat64(val); err != nil {
			return nil, fmt.Errorf("decode decimal %v: %w", val, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("decode decimal: unsupported native type %T", v)
	}
}

func toBigInt(v any) (*big.Int, error) {
	switch val := v.(type) {
	case *big.Int:
		return val, nil
	case string:
		n, ok := new(big.Int).SetString(val, 10)
		if !ok {
			return nil, fmt.Errorf("decode big integer %q: invalid syntax", val)
		}
		return n, nil
	case []byte:
		return toBigInt(string(val))
	case int64:
		return big.NewInt(val), nil
	default:
		return nil, fmt.Errorf("decode big integer: unsupported native type %T", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case dbtype.Date:
		return val.Time(), nil
	case dbtype.LocalDateTime:
		return val.Time(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			return time.Time{}, fmt.Errorf("decode temporal %q: %w", val, err)
		}
		return t, nil
	case int64:
		return time.UnixMilli(val), nil
	default:
		return time.Time{}, fmt.Errorf("decode temporal: unsupported native type %T", v)
	}
}

func toInt(v any, kind meta.Kind) (any, error) {
	var n int64
	switch val := v.(type) {
	case int64:
		n = val
	case int:
		n = int64(val)
	case int32:
		n = int64(val)
	case int16:
		n = int64(val)
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("decode integer: %v has a fractional part", val)
		}
		n = int64(val)
	case string:
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode integer %q: %w", val, err)
		}
		n = parsed
	default:
		return nil, fmt.Errorf("decode integer: unsupported native type %T", v)
	}

	switch kind {
	case meta.KindInt16:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, fmt.Errorf("decode integer: %d overflows int16", n)
		}
		return int16(n), nil
	case meta.KindInt32:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("decode integer: %d overflows int32", n)
		}
		return int32(n), nil
	default:
		return n, nil
	}
}

func toFloat(v any, kind meta.Kind) (any, error) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int64:
		f = float64(val)
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("decode float %q: %w", val, err)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("decode float: unsupported native type %T", v)
	}
	if kind == meta.KindFloat32 {
		return float32(f), nil
	}
	return f, nil
}

func toBool(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case int64:
		return val != 0, nil
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("decode bool %q: %w", val, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("decode bool: unsupported native type %T", v)
	}
}
