// Package idlfactory evaluates the idlFactory function embedded in an
// executable interface descriptor. It understands only the JavaScript subset
// that generated descriptors use (constant bindings, member calls, array and
// object literals, return) and delegates every type constructor to a
// caller-supplied Library, so evaluation cannot reach anything else.
package idlfactory

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoFactory is returned when the source has no idlFactory definition.
var ErrNoFactory = errors.New("idlfactory: no idlFactory definition found")

// Factory is the extracted source of an idlFactory function.
type Factory struct {
	// LibName is the name the type library is bound to inside the body.
	LibName string
	// Body is the function body without enclosing braces, or the body
	// expression when Block is false.
	Body  string
	Block bool
}

var factoryRe = regexp.MustCompile(`\bidlFactory\s*=\s*(?:async\s+)?(?:function\s*)?`)

// Extract locates the idlFactory function in src.
func Extract(src string) (*Factory, error) {
	loc := factoryRe.FindStringIndex(src)
	if loc == nil {
		return nil, ErrNoFactory
	}
	i := skipSpace(src, loc[1])
	if i >= len(src) || src[i] != '(' {
		return nil, errors.New("idlfactory: factory has no parameter list")
	}
	end := MatchClose(src, i)
	if end < 0 {
		return nil, errors.New("idlfactory: unbalanced parameter list")
	}
	libName := paramName(src[i+1 : end])

	i = skipSpace(src, end+1)
	if strings.HasPrefix(src[i:], "=>") {
		i = skipSpace(src, i+2)
	}
	if i >= len(src) {
		return nil, errors.New("idlfactory: factory has no body")
	}
	if src[i] == '{' {
		end := MatchClose(src, i)
		if end < 0 {
			return nil, errors.New("idlfactory: unbalanced factory body")
		}
		return &Factory{LibName: libName, Body: src[i+1 : end], Block: true}, nil
	}
	end = expressionEnd(src, i)
	return &Factory{LibName: libName, Body: src[i:end]}, nil
}

// paramName pulls the library identifier out of "({ IDL })" or "(IDL)".
func paramName(params string) string {
	name := strings.Trim(params, " \t\r\n{}")
	if j := strings.IndexAny(name, ",: \t\r\n}"); j >= 0 {
		name = name[:j]
	}
	if name == "" {
		return "IDL"
	}
	return name
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// MatchClose returns the index of the bracket closing the one at open, or
// -1. String literals and comments are skipped.
func MatchClose(s string, open int) int {
	var stack []byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != opener(c) {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		case '\'', '"', '`':
			i = skipString(s, i)
			if i < 0 {
				return -1
			}
		case '/':
			if i+1 < len(s) && s[i+1] == '/' {
				for i < len(s) && s[i] != '\n' {
					i++
				}
			} else if i+1 < len(s) && s[i+1] == '*' {
				j := strings.Index(s[i+2:], "*/")
				if j < 0 {
					return -1
				}
				i += j + 3
			}
		}
	}
	return -1
}

func opener(c byte) byte {
	switch c {
	case ')':
		return '('
	case ']':
		return '['
	}
	return '{'
}

func skipString(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j
		}
	}
	return -1
}

// expressionEnd finds where an expression-bodied arrow function ends: the
// first semicolon or blank line at bracket depth zero.
func expressionEnd(s string, i int) int {
	for i < len(s) {
		switch s[i] {
		case '(', '[', '{':
			end := MatchClose(s, i)
			if end < 0 {
				return len(s)
			}
			i = end + 1
			continue
		case ';':
			return i
		case '\n':
			if strings.HasPrefix(strings.TrimLeft(s[i+1:], " \t\r"), "\n") ||
				strings.HasPrefix(strings.TrimSpace(s[i+1:]), "export ") {
				return i
			}
		case '\'', '"', '`':
			end := skipString(s, i)
			if end < 0 {
				return len(s)
			}
			i = end
		}
		i++
	}
	return len(s)
}
