package idl

// AccessMode tells whether a procedure may change remote state.
type AccessMode int

const (
	// Update procedures may change state.
	Update AccessMode = iota
	// Query procedures are read-only.
	Query
)

func (m AccessMode) String() string {
	if m == Query {
		return "query"
	}
	return "update"
}

// Signature is the normalized description of one remote procedure.
type Signature struct {
	Name string
	// ParamExpr is the raw parameter list as written in the description.
	ParamExpr string
	// Params holds one type expression per parameter.
	Params []string
	// Returns is the raw return type expression.
	Returns string
	// ReturnKind is a coarse guess of the first result's kind.
	ReturnKind Kind
	Mode       AccessMode

	// Exact is set when the signature came from an evaluated descriptor;
	// ParamTypes and ResultTypes are only populated in that case.
	Exact       bool
	ParamTypes  []*Type
	ResultTypes []*Type
}

// Arity returns the number of declared parameters.
func (s Signature) Arity() int {
	if s.Exact {
		return len(s.ParamTypes)
	}
	return len(s.Params)
}

// Encoding identifies which interface text a result was parsed from.
type Encoding int

const (
	EncodingNone Encoding = iota
	// EncodingExecutable is the descriptor embedding an idlFactory function.
	EncodingExecutable
	// EncodingDeclaration is the static textual declaration.
	EncodingDeclaration
)

func (e Encoding) String() string {
	switch e {
	case EncodingExecutable:
		return "executable"
	case EncodingDeclaration:
		return "declaration"
	}
	return "none"
}

// Tier records which strategy produced a result.
type Tier int

const (
	TierNone Tier = iota
	// TierEvaluated: the factory was evaluated against the type grammar.
	TierEvaluated
	// TierServiceBlock: reconstructed from a literal service block.
	TierServiceBlock
	// TierTuples: regex-extracted function tuples.
	TierTuples
	// TierDeclaration: parsed from the static declaration.
	TierDeclaration
)

func (t Tier) String() string {
	switch t {
	case TierEvaluated:
		return "evaluated"
	case TierServiceBlock:
		return "service-block"
	case TierTuples:
		return "tuples"
	case TierDeclaration:
		return "declaration"
	}
	return "none"
}

// Sources holds the interface texts available for one service. Either may
// be empty.
type Sources struct {
	// Executable is the descriptor containing an embedded idlFactory.
	Executable string
	// Declaration is the static interface declaration.
	Declaration string
}

// Result is the outcome of parsing one service's interface.
type Result struct {
	Encoding   Encoding
	Tier       Tier
	Signatures []Signature
	// Service is the evaluated service type; nil unless Tier is TierEvaluated.
	Service *ServiceType
}

// Lookup returns the signature with the given name.
func (r *Result) Lookup(name string) (Signature, bool) {
	if r == nil {
		return Signature{}, false
	}
	for _, s := range r.Signatures {
		if s.Name == name {
			return s, true
		}
	}
	return Signature{}, false
}

// Names returns the procedure names in declaration order.
func (r *Result) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Signatures))
	for _, s := range r.Signatures {
		out = append(out, s.Name)
	}
	return out
}

// dedupe keeps the first signature for each name.
func dedupe(sigs []Signature) []Signature {
	seen := make(map[string]struct{}, len(sigs))
	out := sigs[:0]
	for _, s := range sigs {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		out = append(out, s)
	}
	return out
}
