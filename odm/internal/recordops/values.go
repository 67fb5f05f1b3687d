// Package recordops evaluates the Mongo-style filter, update, projection, sort and pipeline
// vocabulary of the odm package against in-memory records.
package recordops

import (
	"bytes"
	"cmp"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hydromelvictor/gogoose/odm"
)

// type ranks follow the BSON comparison order
const (
	rankNull = iota
	rankNumber
	rankString
	rankObject
	rankArray
	rankObjectID
	rankBool
	rankTime
	rankOther
)

// AsMap returns v as a plain map when it is any of the map flavours used by odm.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case odm.Record:
		return m, true
	case odm.Filter:
		return m, true
	case odm.Update:
		return m, true
	}

	return nil, false
}

// AsSlice returns v as []any when it is a slice other than a byte slice. Arrays are scalars:
// ObjectIDs and UUIDs are fixed-size byte arrays.
func AsSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []byte, nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, true
}

// ToFloat converts every Go numeric kind.
func ToFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}

	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int()), true
	case rv.CanUint():
		return float64(rv.Uint()), true
	case rv.CanFloat():
		return rv.Float(), true
	}

	return 0, false
}

// ToInt64 converts integral numbers, including floats without a fractional part. Values
// outside the int64 range are rejected.
func ToInt64(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}

	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return rv.Int(), true
	case rv.CanUint():
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case rv.CanFloat():
		f := rv.Float()
		if f != math.Trunc(f) || f < -0x1p63 || f >= 0x1p63 {
			return 0, false
		}
		return int64(f), true
	}

	return 0, false
}

func isInteger(v any) bool {
	if v == nil {
		return false
	}

	rv := reflect.ValueOf(v)

	return rv.CanInt() || rv.CanUint()
}

func rank(v any) int {
	if v == nil {
		return rankNull
	}

	if _, ok := ToFloat(v); ok {
		return rankNumber
	}

	switch v.(type) {
	case string:
		return rankString
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	case primitive.ObjectID, uuid.UUID:
		return rankObjectID
	}

	if _, ok := AsMap(v); ok {
		return rankObject
	}

	if _, ok := AsSlice(v); ok {
		return rankArray
	}

	return rankOther
}

// Compare orders two values. ok is false when the values are not of a comparable kind,
// which makes range operators fail to match.
func Compare(a, b any) (result int, ok bool) {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return 0, false
	}

	switch ra {
	case rankNull:
		return 0, true
	case rankNumber:
		fa, _ := ToFloat(a)
		fb, _ := ToFloat(b)
		return cmp.Compare(fa, fb), true
	case rankString:
		return strings.Compare(a.(string), b.(string)), true
	case rankBool:
		return compareBool(a.(bool), b.(bool)), true
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time)), true
	case rankObjectID:
		return compareIdentity(a, b)
	}

	return 0, false
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func compareIdentity(a, b any) (int, bool) {
	switch x := a.(type) {
	case primitive.ObjectID:
		if y, ok := b.(primitive.ObjectID); ok {
			return bytes.Compare(x[:], y[:]), true
		}
	case uuid.UUID:
		if y, ok := b.(uuid.UUID); ok {
			return bytes.Compare(x[:], y[:]), true
		}
	}

	return 0, false
}

// SortCompare is a total order over all values: values of different kinds are ordered by
// kind, and missing values sort like nil.
func SortCompare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	if result, ok := Compare(a, b); ok {
		return result
	}

	as, _ := AsSlice(a)
	bs, _ := AsSlice(b)
	if ra == rankArray {
		for i := 0; i < len(as) && i < len(bs); i++ {
			if c := SortCompare(as[i], bs[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(as), len(bs))
	}

	return 0
}

// Equal compares values the way a store does: numbers by value, times by instant,
// maps and slices element-wise.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		return ok && fa == fb
	}

	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}

	if ma, ok := AsMap(a); ok {
		mb, ok := AsMap(b)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, present := mb[k]
			if !present || !Equal(va, vb) {
				return false
			}
		}
		return true
	}

	if sa, ok := AsSlice(a); ok {
		sb, ok := AsSlice(b)
		if !ok || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !Equal(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}
