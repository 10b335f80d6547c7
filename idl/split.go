package idl

import "strings"

// SplitTopLevel splits a parameter list on commas that are not nested
// inside brackets, braces, parentheses or angle brackets. Enclosing "()" or
// "[]" are stripped first; an empty or whitespace-only list yields nil.
func SplitTopLevel(list string) []string {
	list = strings.TrimSpace(list)
	for _, pair := range []string{"()", "[]"} {
		if len(list) >= 2 && list[0] == pair[0] && list[len(list)-1] == pair[1] && enclosed(list) {
			list = strings.TrimSpace(list[1 : len(list)-1])
		}
	}
	if list == "" {
		return nil
	}

	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}':
			depth--
		case '>':
			// "=>" and "->" are arrows, not closing brackets.
			if i > 0 && (list[i-1] == '-' || list[i-1] == '=') {
				continue
			}
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(list[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(list[start:]); last != "" {
		out = append(out, last)
	}
	return out
}

// enclosed reports whether the first bracket of s closes at its last byte.
func enclosed(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// GuessKind makes a coarse guess at the kind named by a textual type
// expression in either declaration dialect or a factory expression.
func GuessKind(expr string) Kind {
	e := strings.TrimSpace(expr)
	if len(e) >= 2 && e[0] == '(' && e[len(e)-1] == ')' && enclosed(e) {
		e = strings.TrimSpace(e[1 : len(e)-1])
	}
	lower := strings.ToLower(e)
	switch {
	case e == "":
		return KindNull
	case strings.HasPrefix(lower, "vec ") || strings.HasPrefix(e, "Array<") ||
		strings.HasSuffix(e, "[]") && !strings.HasPrefix(e, "[] |") ||
		strings.HasPrefix(e, "IDL.Vec("):
		return KindVec
	case strings.HasPrefix(lower, "opt ") || strings.HasPrefix(e, "[] | [") ||
		strings.HasPrefix(e, "IDL.Opt("):
		return KindOpt
	case lower == "bool" || lower == "boolean" || e == "IDL.Bool":
		return KindBool
	case lower == "bigint":
		return KindInt
	case lower == "number":
		return KindFloat64
	case lower == "string":
		return KindText
	case strings.HasPrefix(lower, "record") || strings.HasPrefix(e, "{") ||
		strings.HasPrefix(e, "IDL.Record("):
		return KindRecord
	case strings.HasPrefix(lower, "variant") || strings.HasPrefix(e, "IDL.Variant("):
		return KindVariant
	}
	name := strings.TrimPrefix(e, "IDL.")
	for prim, k := range primitives {
		if strings.EqualFold(name, prim) {
			return k
		}
	}
	return KindUnknown
}
