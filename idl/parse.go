// Package idl parses the published interface of a remote service into
// normalized procedure signatures.
//
// Two encodings are understood. The executable descriptor embeds an
// idlFactory function; it is evaluated against a small type grammar to
// recover exact types, falling back to structural reconstruction of the
// service block and finally to regex extraction of function tuples. The
// static declaration (Candid service syntax or the generated TypeScript
// interface) is parsed with regular expressions only.
//
// When both encodings are supplied the executable one wins whenever it
// yields any signature; results from the two are never mixed.
package idl

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrDescriptionParse is returned when interface text was supplied but no
// parsing strategy could make sense of it.
var ErrDescriptionParse = errors.New("idl: interface description could not be parsed")

// Parser turns interface text into signatures.
type Parser struct {
	log *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used to report tier fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) { p.log = l }
}

// NewParser builds a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse is shorthand for NewParser().Parse(src).
func Parse(src Sources) (*Result, error) {
	return NewParser().Parse(src)
}

type tier struct {
	tier Tier
	fn   func(string) ([]Signature, *ServiceType, error)
}

var executableTiers = []tier{
	{TierEvaluated, parseEvaluated},
	{TierServiceBlock, func(s string) ([]Signature, *ServiceType, error) {
		sigs, err := parseServiceBlock(s)
		return sigs, nil, err
	}},
	{TierTuples, func(s string) ([]Signature, *ServiceType, error) {
		sigs, err := parseTuples(s)
		return sigs, nil, err
	}},
}

// Parse returns the signatures described by src. Empty sources yield an
// empty result and no error.
func (p *Parser) Parse(src Sources) (*Result, error) {
	var errs []error

	if strings.TrimSpace(src.Executable) != "" {
		for _, t := range executableTiers {
			sigs, svc, err := t.fn(src.Executable)
			if err != nil {
				p.log.Debug("interface tier failed", slog.String("encoding", EncodingExecutable.String()), slog.String("tier", t.tier.String()), slog.Any("err", err))
				errs = append(errs, fmt.Errorf("%s: %w", t.tier, err))
				continue
			}
			if len(sigs) == 0 {
				// A service with no methods is a valid evaluation, but the
				// declaration may still have something to offer.
				errs = append(errs, fmt.Errorf("%s: empty service", t.tier))
				break
			}
			return &Result{Encoding: EncodingExecutable, Tier: t.tier, Signatures: dedupe(sigs), Service: svc}, nil
		}
	}

	if strings.TrimSpace(src.Declaration) != "" {
		sigs, err := parseDeclaration(src.Declaration)
		if err == nil {
			return &Result{Encoding: EncodingDeclaration, Tier: TierDeclaration, Signatures: dedupe(sigs)}, nil
		}
		p.log.Debug("interface tier failed", slog.String("encoding", EncodingDeclaration.String()), slog.Any("err", err))
		errs = append(errs, fmt.Errorf("%s: %w", TierDeclaration, err))
	}

	if len(errs) == 0 {
		return &Result{}, nil
	}
	if emptyOnly(errs) {
		return &Result{}, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrDescriptionParse, errors.Join(errs...))
}

// emptyOnly reports whether the only outcome was a successfully evaluated
// service without methods.
func emptyOnly(errs []error) bool {
	for _, err := range errs {
		if !strings.HasSuffix(err.Error(), ": empty service") {
			return false
		}
	}
	return true
}
