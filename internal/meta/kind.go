package meta

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Kind is the value kind of an attribute.
type Kind int

const (
	KindOther Kind = iota
	KindString
	KindBool
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindDecimal  // *apd.Decimal
	KindBigInt   // *big.Int
	KindDate     // time.Time
	KindCalendar // *Calendar
	KindBytes
)

var kindNames = map[Kind]string{
	KindOther:    "other",
	KindString:   "string",
	KindBool:     "bool",
	KindInt16:    "int16",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindFloat32:  "float32",
	KindFloat64:  "float64",
	KindDecimal:  "decimal",
	KindBigInt:   "bigint",
	KindDate:     "date",
	KindCalendar: "calendar",
	KindBytes:    "bytes",
}

// String returns the kind name used in catalogs and struct tags.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Numeric reports whether range queries over this kind use open-ended
// wildcard bounds.
func (k Kind) Numeric() bool {
	switch k {
	case KindInt16, KindInt32, KindInt64, KindFloat32, KindFloat64, KindDecimal, KindBigInt:
		return true
	default:
		return false
	}
}

// Temporal reports whether the kind is stored as a native temporal value.
func (k Kind) Temporal() bool {
	return k == KindDate || k == KindCalendar
}

// ParseKind resolves a kind name. "int" is accepted as an alias for int64.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string":
		return KindString, nil
	case "bool", "boolean":
		return KindBool, nil
	case "int16", "short":
		return KindInt16, nil
	case "int32":
		return KindInt32, nil
	case "int", "int64", "long":
		return KindInt64, nil
	case "float32", "float":
		return KindFloat32, nil
	case "float64", "double":
		return KindFloat64, nil
	case "decimal":
		return KindDecimal, nil
	case "bigint":
		return KindBigInt, nil
	case "date", "time":
		return KindDate, nil
	case "calendar":
		return KindCalendar, nil
	case "bytes":
		return KindBytes, nil
	case "other":
		return KindOther, nil
	default:
		return KindOther, fmt.Errorf("unknown kind %q", name)
	}
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	calendarType = reflect.TypeOf(&Calendar{})
	decimalType  = reflect.TypeOf(&apd.Decimal{})
	bigIntType   = reflect.TypeOf(&big.Int{})
	bytesType    = reflect.TypeOf([]byte(nil))
)

// KindOf derives the kind of a Go type.
func KindOf(t reflect.Type) Kind {
	switch t {
	case timeType:
		return KindDate
	case calendarType, calendarType.Elem():
		return KindCalendar
	case decimalType, decimalType.Elem():
		return KindDecimal
	case bigIntType, bigIntType.Elem():
		return KindBigInt
	case bytesType:
		return KindBytes
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return KindInt16
	case reflect.Int32, reflect.Uint16:
		return KindInt32
	case reflect.Int, reflect.Int64, reflect.Uint32, reflect.Uint, reflect.Uint64:
		return KindInt64
	case reflect.Float32:
		return KindFloat32
	case reflect.Float64:
		return KindFloat64
	case reflect.Pointer:
		return KindOf(t.Elem())
	default:
		return KindOther
	}
}
