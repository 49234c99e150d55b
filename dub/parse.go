package dub

import (
	"fmt"
	"strconv"
)

// Node is an argument of a command or the result of evaluating one.
type Node interface {
	isNode()
}

func (Identifier) isNode() {}
func (Int) isNode()        {}
func (Float) isNode()      {}
func (String) isNode()     {}
func (MatchExpr) isNode()  {}

// Command is one parsed input line.
type Command struct {
	Name Identifier
	Args []Node
}

type Identifier string
type Int int
type Float float64
type String string

// MatchExpr selects steps of a bar, e.g. '1,3/* picks every step of the
// first and third beat.
type MatchExpr struct {
	matchers []matchItem
}

// SyntaxError points at the token a command line could not be parsed at.
type SyntaxError struct {
	Pos  int
	Text string
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("%s at end of input", e.Msg)
	}
	return fmt.Sprintf("%s %q at position %d", e.Msg, e.Text, e.Pos)
}

// Parse reads a command name followed by its arguments:
//
//	audio drums 1 1 2
//	load drums 0 "samples/kick.wav"
//	set notation loop-end 32
//	setp drums 0 '1,3/*
//
// Identifiers may contain '-' and '_'. Strings are double quoted and take Go
// escapes. A single quote starts a step pattern.
func Parse(input string) (Command, error) {
	tokens, err := lex(input)
	if err != nil {
		return Command{}, err
	}
	p := parser{tokens: tokens}
	return p.command()
}

type parser struct {
	pos    int
	tokens []token
}

func (p *parser) next() token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) peek() token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *parser) command() (Command, error) {
	var cmd Command
	name := p.next()
	if name.typ != typeIdentifier {
		return cmd, unexpected(name)
	}
	cmd.Name = Identifier(name.text)
	for t := p.next(); t.typ != typeEOF; t = p.next() {
		arg, err := p.arg(t)
		if err != nil {
			return cmd, fmt.Errorf("%s: argument %d: %w", cmd.Name, len(cmd.Args)+1, err)
		}
		cmd.Args = append(cmd.Args, arg)
	}
	return cmd, nil
}

func (p *parser) arg(t token) (Node, error) {
	switch t.typ {
	case typeIdentifier:
		return Identifier(t.text), nil
	case typeString:
		s, err := strconv.Unquote(t.text)
		if err != nil {
			return nil, &SyntaxError{Pos: t.pos, Text: t.text, Msg: "invalid string"}
		}
		return String(s), nil
	case typeFloat:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: t.pos, Text: t.text, Msg: "invalid number"}
		}
		return Float(f), nil
	case typeInt:
		n, err := atoi(t)
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case typeQuote:
		return p.pattern()
	}
	return nil, unexpected(t)
}

// pattern reads groups of steps separated by slashes. Every slash descends
// one level: beats, then the steps of a beat.
func (p *parser) pattern() (MatchExpr, error) {
	var expr MatchExpr
	level := 0
	for {
		m, err := p.steps()
		if err != nil {
			return expr, err
		}
		expr.matchers = append(expr.matchers, matchItem{level: level, matcher: m})
		if p.peek().typ != typeSlash {
			return expr, nil
		}
		for p.peek().typ == typeSlash {
			p.next()
			level++
		}
	}
}

// steps reads one group: '*', a range a:b or a comma separated list.
func (p *parser) steps() (matcher, error) {
	t := p.next()
	if t.typ == typeAsterisk {
		return matchAll, nil
	}
	if t.typ != typeInt {
		return nil, unexpected(t)
	}
	first, err := atoi(t)
	if err != nil {
		return nil, err
	}
	if p.peek().typ == typeColon {
		p.next()
		t := p.next()
		if t.typ != typeInt {
			return nil, unexpected(t)
		}
		end, err := atoi(t)
		if err != nil {
			return nil, err
		}
		return rangeMatch{start: first, end: end}, nil
	}
	list := listMatch{first}
	for p.peek().typ == typeComma {
		p.next()
		t := p.next()
		if t.typ != typeInt {
			return nil, unexpected(t)
		}
		n, err := atoi(t)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, nil
}

func atoi(t token) (int, error) {
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, &SyntaxError{Pos: t.pos, Text: t.text, Msg: "invalid integer"}
	}
	return n, nil
}

func unexpected(t token) error {
	return &SyntaxError{Pos: t.pos, Text: t.text, Msg: "unexpected token"}
}
