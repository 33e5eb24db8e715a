// Package wiring parses the two textual configuration attributes
// moduleInput and moduleOutput and cross-checks the parsed
// wiring against the module registry and against other modules' declared
// outputs.
//
// No parser-combinator library appears anywhere in the retrieved example
// pack, so this is a small hand-written recursive-descent scanner over the
// two grammars.
package wiring

import (
	"fmt"
	"strconv"
)

// TypeSpec is one parsed type clause inside a producer clause:
// typeId, optionally annotated with an afterModuleId tap point.
type TypeSpec struct {
	TypeID        int16
	AfterModuleID int16 // -1 when no "a<id>" annotation is present
}

// ProducerClause is one parsed "<id>[<typeSpec>,...]" clause from
// moduleInput.
type ProducerClause struct {
	SourceModuleID int16
	Types          []TypeSpec
}

type parser struct {
	input string
	pos   int
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("wiring: parse error at offset %d in %q: %s", p.pos, p.input, fmt.Sprintf(format, args...))
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *parser) skipSpaces() {
	for {
		c, ok := p.peek()
		if !ok || (c != ' ' && c != '\t') {
			return
		}
		p.pos++
	}
}

func (p *parser) consume(c byte) error {
	got, ok := p.peek()
	if !ok || got != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) parseUint() (int16, error) {
	start := p.pos
	for {
		c, ok := p.peek()
		if !ok || c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return 0, p.errorf("expected a non-negative integer")
	}
	v, err := strconv.ParseInt(p.input[start:p.pos], 10, 16)
	if err != nil {
		return 0, p.errorf("integer out of int16 range: %v", err)
	}
	return int16(v), nil
}

// ParseModuleInput parses the whitespace-separated list of producer
// clauses in the moduleInput grammar:
//
//	input    := producer (WS producer)*
//	producer := uint '[' typeSpec (',' typeSpec)* ']'
//	typeSpec := uint ( 'a' uint )?
//
// This is pure grammar: it does not know about module IDs, streams, or
// duplicate clauses across the whole string (those are domain checks
// performed by Resolve, which can report them with the right error kind).
// An empty string parses to an empty, valid result (a module with no
// inputs wired).
func ParseModuleInput(s string) ([]ProducerClause, error) {
	p := &parser{input: s}
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return nil, nil
	}

	var clauses []ProducerClause
	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			break
		}
		clause, err := p.parseProducer()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)

		before := p.pos
		p.skipSpaces()
		if p.pos >= len(p.input) {
			break
		}
		if p.pos == before {
			return nil, p.errorf("expected whitespace between producer clauses")
		}
	}
	return clauses, nil
}

func (p *parser) parseProducer() (ProducerClause, error) {
	id, err := p.parseUint()
	if err != nil {
		return ProducerClause{}, err
	}
	if err := p.consume('['); err != nil {
		return ProducerClause{}, err
	}

	var types []TypeSpec
	for {
		ts, err := p.parseTypeSpec()
		if err != nil {
			return ProducerClause{}, err
		}
		types = append(types, ts)

		c, ok := p.peek()
		if !ok {
			return ProducerClause{}, p.errorf("unterminated producer clause, expected ']'")
		}
		if c == ',' {
			p.pos++
			continue
		}
		break
	}

	if err := p.consume(']'); err != nil {
		return ProducerClause{}, err
	}
	return ProducerClause{SourceModuleID: id, Types: types}, nil
}

func (p *parser) parseTypeSpec() (TypeSpec, error) {
	typeID, err := p.parseUint()
	if err != nil {
		return TypeSpec{}, err
	}
	ts := TypeSpec{TypeID: typeID, AfterModuleID: -1}

	c, ok := p.peek()
	if ok && c == 'a' {
		p.pos++
		after, err := p.parseUint()
		if err != nil {
			return TypeSpec{}, err
		}
		ts.AfterModuleID = after
	}
	return ts, nil
}

// ParseModuleOutput parses the comma-separated list of non-negative int16
// type IDs used only when a module's output declaration has a wildcard
// type and must name its concrete outputs at runtime.
func ParseModuleOutput(s string) ([]int16, error) {
	p := &parser{input: s}
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return nil, nil
	}

	var ids []int16
	for {
		id, err := p.parseUint()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)

		p.skipSpaces()
		c, ok := p.peek()
		if !ok {
			break
		}
		if c != ',' {
			return nil, p.errorf("expected ',' between output type IDs")
		}
		p.pos++
		p.skipSpaces()
	}
	return ids, nil
}
