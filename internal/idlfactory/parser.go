package idlfactory

import (
	"fmt"
	"strconv"
)

// Node is an expression or statement in a factory body.
type Node interface {
	Pos() Position
}

type (
	Ident struct {
		At   Position
		Name string
	}
	StringLit struct {
		At    Position
		Value string
	}
	NumberLit struct {
		At    Position
		Value float64
	}
	ArrayLit struct {
		At    Position
		Elems []Node
	}
	ObjectLit struct {
		At     Position
		Keys   []string
		Values []Node
	}
	Member struct {
		At   Position
		Recv Node
		Name string
	}
	Call struct {
		At   Position
		Fn   Node
		Args []Node
	}
	Decl struct {
		At    Position
		Name  string
		Value Node
	}
	Return struct {
		At    Position
		Value Node
	}
	ExprStmt struct {
		At Position
		X  Node
	}
)

func (n *Ident) Pos() Position     { return n.At }
func (n *StringLit) Pos() Position { return n.At }
func (n *NumberLit) Pos() Position { return n.At }
func (n *ArrayLit) Pos() Position  { return n.At }
func (n *ObjectLit) Pos() Position { return n.At }
func (n *Member) Pos() Position    { return n.At }
func (n *Call) Pos() Position      { return n.At }
func (n *Decl) Pos() Position      { return n.At }
func (n *Return) Pos() Position    { return n.At }
func (n *ExprStmt) Pos() Position  { return n.At }

// SyntaxError reports malformed factory source.
type SyntaxError struct {
	Pos Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("idlfactory: %s: %s", e.Pos, e.Msg)
}

const maxNesting = 128

// Parser builds an AST from factory source.
type Parser struct {
	lex   *Lexer
	cur   Token
	peek  Token
	depth int
}

// NewParser creates a parser over src.
func NewParser(src string) *Parser {
	p := &Parser{lex: NewLexer(src)}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

func (p *Parser) errorf(pos Position, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.cur
	if tok.Type != tt {
		return tok, p.errorf(tok.Pos, "expected %s, found %s %q", tt, tok.Type, tok.Literal)
	}
	p.next()
	return tok, nil
}

// ParseBlock parses statements up to EOF. The input is the inside of a
// function body, without its enclosing braces.
func (p *Parser) ParseBlock() ([]Node, error) {
	var stmts []Node
	for p.cur.Type != TokenEOF {
		if p.cur.Type == TokenSemicolon {
			p.next()
			continue
		}
		st, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
	return stmts, nil
}

// ParseExpression parses a single expression spanning the whole input.
func (p *Parser) ParseExpression() (Node, error) {
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenSemicolon {
		p.next()
	}
	if p.cur.Type != TokenEOF {
		return nil, p.errorf(p.cur.Pos, "unexpected %s after expression", p.cur.Type)
	}
	return x, nil
}

func (p *Parser) parseStatement() (Node, error) {
	pos := p.cur.Pos
	if p.cur.Type == TokenIdent {
		switch p.cur.Literal {
		case "const", "let", "var":
			p.next()
			name, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenAssign); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &Decl{At: pos, Name: name.Literal, Value: val}, nil
		case "return":
			p.next()
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &Return{At: pos, Value: val}, nil
		}
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ExprStmt{At: pos, X: x}, nil
}

func (p *Parser) parseExpr() (Node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxNesting {
		return nil, p.errorf(p.cur.Pos, "expression nested too deeply")
	}

	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Type {
		case TokenDot:
			pos := p.cur.Pos
			p.next()
			name, err := p.expect(TokenIdent)
			if err != nil {
				return nil, err
			}
			x = &Member{At: pos, Recv: x, Name: name.Literal}
		case TokenLParen:
			pos := p.cur.Pos
			p.next()
			args, err := p.parseList(TokenRParen)
			if err != nil {
				return nil, err
			}
			x = &Call{At: pos, Fn: x, Args: args}
		default:
			return x, nil
		}
	}
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.cur
	switch tok.Type {
	case TokenIdent:
		p.next()
		return &Ident{At: tok.Pos, Name: tok.Literal}, nil
	case TokenString:
		p.next()
		return &StringLit{At: tok.Pos, Value: tok.Literal}, nil
	case TokenNumber:
		p.next()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, p.errorf(tok.Pos, "bad number %q", tok.Literal)
		}
		return &NumberLit{At: tok.Pos, Value: f}, nil
	case TokenLBracket:
		p.next()
		elems, err := p.parseList(TokenRBracket)
		if err != nil {
			return nil, err
		}
		return &ArrayLit{At: tok.Pos, Elems: elems}, nil
	case TokenLBrace:
		p.next()
		return p.parseObject(tok.Pos)
	case TokenLParen:
		p.next()
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return x, nil
	}
	return nil, p.errorf(tok.Pos, "unexpected %s %q", tok.Type, tok.Literal)
}

// parseList parses comma separated expressions up to the closing token,
// tolerating a trailing comma.
func (p *Parser) parseList(end TokenType) ([]Node, error) {
	var out []Node
	for p.cur.Type != end {
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, x)
		if p.cur.Type == TokenComma {
			p.next()
			continue
		}
		if p.cur.Type != end {
			return nil, p.errorf(p.cur.Pos, "expected , or %s, found %s", end, p.cur.Type)
		}
	}
	p.next()
	return out, nil
}

func (p *Parser) parseObject(pos Position) (Node, error) {
	obj := &ObjectLit{At: pos}
	for p.cur.Type != TokenRBrace {
		key := p.cur
		switch key.Type {
		case TokenIdent, TokenString, TokenNumber:
			p.next()
		default:
			return nil, p.errorf(key.Pos, "bad object key %s", key.Type)
		}
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		obj.Keys = append(obj.Keys, key.Literal)
		obj.Values = append(obj.Values, val)
		if p.cur.Type == TokenComma {
			p.next()
			continue
		}
		if p.cur.Type != TokenRBrace {
			return nil, p.errorf(p.cur.Pos, "expected , or }, found %s", p.cur.Type)
		}
	}
	p.next()
	return obj, nil
}
