// Package coerce converts between wire values, as exchanged with a remote
// service, and form values, which are plain JSON-compatible data suitable
// for editing.
//
// On the wire unbounded integers are *big.Int, optionals are zero or one
// element []any, variants are single-key map[string]any and records are
// map[string]any. In form data integers within ±(2^53-1) are int64 and
// larger ones are decimal strings.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// MaxSafeInteger is the largest integer a form consumer can hold without
// losing precision.
const MaxSafeInteger = 1<<53 - 1

var (
	maxSafe = big.NewInt(MaxSafeInteger)
	minSafe = big.NewInt(-MaxSafeInteger)

	integerRe = regexp.MustCompile(`^-?\d+$`)
	decimalRe = regexp.MustCompile(`^-?\d+\.\d+$`)
)

// Safe reports whether n fits in the safe-integer range.
func Safe(n *big.Int) bool {
	return n.Cmp(maxSafe) <= 0 && n.Cmp(minSafe) >= 0
}

// ToForm converts a wire value to form data. Integers outside the safe
// range become decimal strings, so the integer type is not preserved.
func ToForm(v any) any {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil
		}
		if Safe(x) {
			return x.Int64()
		}
		return x.String()
	case json.Number:
		if n, ok := new(big.Int).SetString(x.String(), 10); ok {
			return ToForm(n)
		}
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case uint64:
		return ToForm(new(big.Int).SetUint64(x))
	case int64:
		return ToForm(big.NewInt(x))
	case int:
		return ToForm(big.NewInt(int64(x)))
	case int8, int16, int32, uint8, uint16, uint32:
		n, _ := toBig(x)
		return n.Int64()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = ToForm(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = ToForm(e)
		}
		return out
	}
	return v
}

// ToWire converts form data back to wire values without type information.
// Numeric-looking strings are parsed; integers outside the safe range are
// widened to *big.Int.
func ToWire(v any) any {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if integerRe.MatchString(s) {
			n, _ := new(big.Int).SetString(s, 10)
			return widen(n)
		}
		if decimalRe.MatchString(s) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return x
	case json.Number:
		return ToWire(x.String())
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) > MaxSafeInteger {
			n, _ := big.NewFloat(x).Int(nil)
			return n
		}
		return x
	case int:
		return widen(big.NewInt(int64(x)))
	case int64:
		return widen(big.NewInt(x))
	case uint64:
		return widen(new(big.Int).SetUint64(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = ToWire(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = ToWire(e)
		}
		return out
	}
	return v
}

func widen(n *big.Int) any {
	if Safe(n) {
		return n.Int64()
	}
	return n
}

// ForParameter coerces a user-supplied argument for a parameter of the
// given logical type (see methods.ParamType). Unbounded integers are always
// *big.Int, vectors accept JSON text or a single value, and optionals treat
// nil and the textual none sentinels alike.
func ForParameter(v any, logical string) (any, error) {
	switch logical {
	case "nat", "int", "nat64", "int64":
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(logical, "nat") && n.Sign() < 0 {
			return nil, fmt.Errorf("coerce: %s is negative", n)
		}
		return n, nil
	case "nat8", "nat16", "nat32", "int8", "int16", "int32":
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		if err := checkWidth(n, logical); err != nil {
			return nil, err
		}
		return n.Int64(), nil
	case "float":
		return toFloat(v)
	case "bool":
		return toBool(v)
	case "text", "principal":
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(ToForm(v)), nil
	case "vec":
		if s, ok := v.(string); ok {
			parsed, err := parseText(s)
			if err != nil {
				return nil, fmt.Errorf("coerce: vector argument is not JSON: %w", err)
			}
			v = parsed
		}
		if arr, ok := v.([]any); ok {
			return ToWire(arr), nil
		}
		return []any{ToWire(v)}, nil
	case "opt":
		if IsNone(v) {
			return []any{}, nil
		}
		return []any{ToWire(v)}, nil
	case "record", "variant":
		if s, ok := v.(string); ok {
			parsed, err := decodeJSON(s)
			if err != nil {
				return nil, fmt.Errorf("coerce: %s argument is not JSON: %w", logical, err)
			}
			v = parsed
		}
		return ToWire(v), nil
	}
	return ToWire(v), nil
}

// IsNone reports whether v denotes an absent optional: nil, or one of the
// textual sentinels "", "null" and "None".
func IsNone(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		switch strings.TrimSpace(x) {
		case "", "null", "None", "none":
			return true
		}
	}
	return false
}

// parseText decodes s as JSON when it looks like an array or object and
// returns it unchanged otherwise.
func parseText(s string) (any, error) {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "[") || strings.HasPrefix(t, "{") {
		return decodeJSON(t)
	}
	return s, nil
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func toBig(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, fmt.Errorf("coerce: nil integer")
		}
		return new(big.Int).Set(x), nil
	case int:
		return big.NewInt(int64(x)), nil
	case int8:
		return big.NewInt(int64(x)), nil
	case int16:
		return big.NewInt(int64(x)), nil
	case int32:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, fmt.Errorf("coerce: %v is not an integer", x)
		}
		n, _ := big.NewFloat(x).Int(nil)
		return n, nil
	case json.Number:
		return toBig(x.String())
	case string:
		n, ok := new(big.Int).SetString(strings.TrimSpace(x), 10)
		if !ok {
			return nil, fmt.Errorf("coerce: %q is not an integer", x)
		}
		return n, nil
	}
	return nil, fmt.Errorf("coerce: cannot use %T as an integer", v)
}

var widths = map[string][2]int64{
	"nat8":  {0, math.MaxUint8},
	"nat16": {0, math.MaxUint16},
	"nat32": {0, math.MaxUint32},
	"int8":  {math.MinInt8, math.MaxInt8},
	"int16": {math.MinInt16, math.MaxInt16},
	"int32": {math.MinInt32, math.MaxInt32},
}

func checkWidth(n *big.Int, logical string) error {
	w, ok := widths[logical]
	if !ok {
		return nil
	}
	if !n.IsInt64() || n.Int64() < w[0] || n.Int64() > w[1] {
		return fmt.Errorf("coerce: %s does not fit in %s", n, logical)
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("coerce: %q is not a number", x)
		}
		return f, nil
	case json.Number:
		return x.Float64()
	}
	n, err := toBig(v)
	if err != nil {
		return 0, err
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f, nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("coerce: %q is not a boolean", x)
		}
		return b, nil
	}
	return false, fmt.Errorf("coerce: cannot use %T as a boolean", v)
}
