package idl

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ggoodman/candid-explorer-go/internal/idlfactory"
)

const opaque = "unknown"

// parseEvaluated is tier 1: evaluate the factory and read exact types.
func parseEvaluated(src string) ([]Signature, *ServiceType, error) {
	svc, err := EvaluateService(src)
	if err != nil {
		return nil, nil, err
	}
	sigs := make([]Signature, 0, len(svc.Methods))
	for _, m := range svc.Methods {
		sig := Signature{
			Name:        m.Name,
			Exact:       true,
			ParamTypes:  m.Func.Params,
			ResultTypes: m.Func.Results,
			ReturnKind:  KindNull,
		}
		if m.Func.Query() {
			sig.Mode = Query
		}
		for _, p := range m.Func.Params {
			sig.Params = append(sig.Params, p.String())
		}
		sig.ParamExpr = "(" + strings.Join(sig.Params, ", ") + ")"
		results := make([]string, 0, len(m.Func.Results))
		for _, r := range m.Func.Results {
			results = append(results, r.String())
		}
		sig.Returns = "(" + strings.Join(results, ", ") + ")"
		if len(m.Func.Results) > 0 {
			sig.ReturnKind = m.Func.Results[0].Resolve().Kind
		}
		sigs = append(sigs, sig)
	}
	return sigs, svc, nil
}

var (
	serviceStartRe = regexp.MustCompile(`IDL\.Service\(\s*\{`)
	entryKeyRe     = regexp.MustCompile(`^\s*,?\s*(?:'([^']+)'|"([^"]+)"|([A-Za-z_$][\w$]*))\s*:\s*`)
	errNoService   = errors.New("idl: no service block")
	errNoEntries   = errors.New("idl: service block has no function entries")
)

// parseServiceBlock is tier 2: locate the literal service block and walk its
// entries structurally without evaluating anything.
func parseServiceBlock(src string) ([]Signature, error) {
	loc := serviceStartRe.FindStringIndex(src)
	if loc == nil {
		return nil, errNoService
	}
	open := loc[1] - 1
	end := idlfactory.MatchClose(src, open)
	if end < 0 {
		return nil, errors.New("idl: unbalanced service block")
	}
	body := src[open+1 : end]

	var sigs []Signature
	for len(strings.TrimSpace(body)) > 0 {
		m := entryKeyRe.FindStringSubmatchIndex(body)
		if m == nil {
			break
		}
		name := firstGroup(body, m)
		rest := body[m[1]:]
		valueEnd := entryEnd(rest)
		value := strings.TrimSpace(rest[:valueEnd])
		body = rest[valueEnd:]

		if !strings.HasPrefix(value, "IDL.Func(") {
			continue
		}
		open := strings.Index(value, "(")
		close := idlfactory.MatchClose(value, open)
		if close < 0 {
			continue
		}
		parts := SplitTopLevel(value[open : close+1])
		if len(parts) != 3 {
			continue
		}
		sigs = append(sigs, placeholderSignature(name, parts[0], parts[1], parts[2]))
	}
	if len(sigs) == 0 {
		return nil, errNoEntries
	}
	return sigs, nil
}

func firstGroup(s string, m []int) string {
	for g := 1; g*2+1 < len(m); g++ {
		if m[g*2] >= 0 {
			return s[m[g*2]:m[g*2+1]]
		}
	}
	return ""
}

// entryEnd returns the offset of the comma ending the entry value, or the
// end of s.
func entryEnd(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			end := idlfactory.MatchClose(s, i)
			if end < 0 {
				return len(s)
			}
			i = end
		case ',':
			return i
		}
	}
	return len(s)
}

var funcTupleRe = regexp.MustCompile(
	`(?:'([^']+)'|"([^"]+)"|([A-Za-z_$][\w$]*))\s*:\s*IDL\.Func\(\s*\[([^\]]*)\]\s*,\s*\[([^\]]*)\]\s*,\s*\[([^\]]*)\]\s*\)`)

// parseTuples is tier 3: regex-extract every function tuple in the text.
func parseTuples(src string) ([]Signature, error) {
	var sigs []Signature
	for _, m := range funcTupleRe.FindAllStringSubmatch(src, -1) {
		name := m[1] + m[2] + m[3]
		sigs = append(sigs, placeholderSignature(name, "["+m[4]+"]", "["+m[5]+"]", "["+m[6]+"]"))
	}
	if len(sigs) == 0 {
		return nil, errors.New("idl: no function tuples found")
	}
	return sigs, nil
}

// placeholderSignature keeps arity and the query flag but replaces every
// type with an opaque placeholder.
func placeholderSignature(name, params, results, annotations string) Signature {
	sig := Signature{Name: name, ParamExpr: params, Returns: results, ReturnKind: KindUnknown}
	for range SplitTopLevel(params) {
		sig.Params = append(sig.Params, opaque)
	}
	if rs := SplitTopLevel(results); len(rs) > 0 {
		sig.ReturnKind = GuessKind(rs[0])
	} else {
		sig.ReturnKind = KindNull
	}
	if strings.Contains(annotations, "query") {
		sig.Mode = Query
	}
	return sig
}
