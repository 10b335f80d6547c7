package idl

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ggoodman/candid-explorer-go/internal/idlfactory"
)

var (
	didServiceRe = regexp.MustCompile(`(?m)^\s*service\s*(?:[A-Za-z_][\w]*\s*)?:\s*(?:\([^)]*\)\s*->\s*)?\{`)
	didEntryRe   = regexp.MustCompile(`(?s)^\s*(?:"([^"]+)"|([A-Za-z_][\w]*))\s*:\s*(?:func\s*)?\(`)
	didAnnotRe   = regexp.MustCompile(`\s+(query|composite_query|oneway)\s*$`)

	tsServiceRe = regexp.MustCompile(`interface\s+_SERVICE\s*\{`)
	tsEntryRe   = regexp.MustCompile(`(?m)^\s*(?:'([^']+)'|"([^"]+)"|([A-Za-z_$][\w$]*))\s*:\s*ActorMethod<\s*\[(.*?)\]\s*,\s*(.+)>\s*[,;]?\s*$`)

	errNoDeclaration = errors.New("idl: no service declaration found")
)

// parseDeclaration extracts signatures from a static declaration. Both the
// Candid service syntax and the generated TypeScript interface are
// understood.
func parseDeclaration(src string) ([]Signature, error) {
	if sigs, err := parseDid(src); err == nil {
		return sigs, nil
	}
	return parseTypeScript(src)
}

func parseDid(src string) ([]Signature, error) {
	src = stripComments(src)
	loc := didServiceRe.FindStringIndex(src)
	if loc == nil {
		return nil, errNoDeclaration
	}
	open := loc[1] - 1
	end := idlfactory.MatchClose(src, open)
	if end < 0 {
		return nil, errors.New("idl: unbalanced service declaration")
	}

	var sigs []Signature
	for _, entry := range splitEntries(src[open+1 : end]) {
		sig, ok := parseDidEntry(entry)
		if ok {
			sigs = append(sigs, sig)
		}
	}
	if len(sigs) == 0 {
		return nil, errNoDeclaration
	}
	return sigs, nil
}

// parseDidEntry reads one "name : (params) -> (results) annotations" entry.
// Entries naming a function type alias are skipped.
func parseDidEntry(entry string) (Signature, bool) {
	m := didEntryRe.FindStringSubmatchIndex(entry)
	if m == nil {
		return Signature{}, false
	}
	open := m[1] - 1
	closing := idlfactory.MatchClose(entry, open)
	if closing < 0 {
		return Signature{}, false
	}
	rest := strings.TrimSpace(entry[closing+1:])
	if !strings.HasPrefix(rest, "->") {
		return Signature{}, false
	}
	params := entry[open : closing+1]
	ret := strings.TrimSpace(rest[2:])

	name := entry[m[4]:m[5]]
	if m[2] >= 0 {
		name = entry[m[2]:m[3]]
	}
	sig := Signature{Name: name, ParamExpr: params}
	for am := didAnnotRe.FindStringSubmatch(ret); am != nil; am = didAnnotRe.FindStringSubmatch(ret) {
		if am[1] == "query" || am[1] == "composite_query" {
			sig.Mode = Query
		}
		ret = strings.TrimSpace(ret[:len(ret)-len(am[0])])
	}
	sig.Returns = ret
	sig.Params = SplitTopLevel(params)
	sig.ReturnKind = returnHint(ret)
	return sig, true
}

// stripComments blanks out line and block comments that sit outside quoted
// field names. Newlines are kept so offsets stay line-aligned.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"':
			j := i + 1
			for j < len(src) && src[j] != '"' {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(src) {
				b.WriteString(src[i:])
				return b.String()
			}
			b.WriteString(src[i : j+1])
			i = j
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			j := strings.Index(src[i+2:], "*/")
			if j < 0 {
				return b.String()
			}
			b.WriteByte(' ')
			i += j + 3
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// splitEntries splits a service body on top-level semicolons.
func splitEntries(body string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
		case ';':
			if depth == 0 {
				out = append(out, body[start:i])
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(body[start:]) != "" {
		out = append(out, body[start:])
	}
	return out
}

func parseTypeScript(src string) ([]Signature, error) {
	loc := tsServiceRe.FindStringIndex(src)
	if loc == nil {
		return nil, errNoDeclaration
	}
	open := loc[1] - 1
	end := idlfactory.MatchClose(src, open)
	if end < 0 {
		return nil, errors.New("idl: unbalanced service interface")
	}

	var sigs []Signature
	for _, m := range tsEntryRe.FindAllStringSubmatch(src[open+1:end], -1) {
		name := m[1] + m[2] + m[3]
		ret := strings.TrimSpace(m[5])
		sig := Signature{
			Name:       name,
			ParamExpr:  "[" + m[4] + "]",
			Params:     SplitTopLevel("[" + m[4] + "]"),
			Returns:    ret,
			ReturnKind: returnHint(ret),
		}
		// The TypeScript form carries no annotations; read-oriented names
		// are treated as queries.
		if readVerb(name) {
			sig.Mode = Query
		}
		sigs = append(sigs, sig)
	}
	if len(sigs) == 0 {
		return nil, errNoDeclaration
	}
	return sigs, nil
}

// returnHint turns the literal markers in a return expression into a coarse
// kind: arrays, optional unions, booleans and unbounded integers.
func returnHint(ret string) Kind {
	parts := SplitTopLevel(ret)
	switch len(parts) {
	case 0:
		return KindNull
	case 1:
		return GuessKind(parts[0])
	}
	return KindRecord
}

var readVerbs = []string{"get", "list", "find", "fetch"}

func readVerb(name string) bool {
	for _, v := range readVerbs {
		if HasVerb(name, v) {
			return true
		}
	}
	return false
}

// HasVerb reports whether name starts with verb at a word boundary, as in
// "getUsers" or "get_users" but not "settings".
func HasVerb(name, verb string) bool {
	if len(name) < len(verb) || !strings.EqualFold(name[:len(verb)], verb) {
		return false
	}
	if len(name) == len(verb) {
		return true
	}
	c := name[len(verb)]
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
