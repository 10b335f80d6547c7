package coerce

import (
	"encoding/json"
	"math"
	"math/big"
	"reflect"
)

// Equal reports deep structural equality. Arrays compare length first and
// then element-wise; objects compare key sets and then values. Numbers are
// compared by value regardless of representation, so int64(5), 5.0 and
// big.NewInt(5) are equal.
func Equal(a, b any) bool {
	if ra, ok := number(a); ok {
		rb, ok := number(b)
		return ok && ra.Cmp(rb) == 0
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k := range x {
			if _, ok := y[k]; !ok {
				return false
			}
		}
		for k, v := range x {
			if !Equal(v, y[k]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (*big.Rat, bool) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, false
		}
		return new(big.Rat).SetInt(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}
		return new(big.Rat).SetFloat64(x), true
	case float32:
		return number(float64(x))
	case json.Number:
		r, ok := new(big.Rat).SetString(x.String())
		return r, ok
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		n, err := toBig(x)
		if err != nil {
			return nil, false
		}
		return new(big.Rat).SetInt(n), true
	}
	return nil, false
}
