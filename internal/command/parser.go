// Package command turns client-submitted instructions into validated jobs.
//
// Accepted forms (whitespace-insensitive, verbs case-insensitive):
//
//	move(3,4)            move((3, 4))
//	placeGood(0,1,2,3)   placeGood((0,1),(2,3))
//	removeGood(5,6)      removeGood((5,6))
package command

import (
	"errors"
	"fmt"
	"strings"

	"gsd.app/relay/internal/model"
)

type verb struct {
	name  string
	arity int
	build func(g model.Grid, cs []model.Coordinate) (model.Job, error)
}

var verbs = []verb{
	{"move", 1, func(g model.Grid, cs []model.Coordinate) (model.Job, error) { return g.NewMove(cs[0]) }},
	{"placeGood", 2, func(g model.Grid, cs []model.Coordinate) (model.Job, error) { return g.NewPlaceGood(cs[0], cs[1]) }},
	{"removeGood", 1, func(g model.Grid, cs []model.Coordinate) (model.Job, error) { return g.NewRemoveGood(cs[0]) }},
}

func lookupVerb(name string) (verb, bool) {
	for _, v := range verbs {
		if strings.EqualFold(v.name, name) {
			return v, true
		}
	}
	return verb{}, false
}

// Parser validates coordinates against Grid.
type Parser struct {
	Grid model.Grid
}

func NewParser(grid model.Grid) *Parser {
	return &Parser{Grid: grid}
}

// Parse parses raw against model.DefaultGrid.
func Parse(raw string) (model.Job, error) {
	return NewParser(model.DefaultGrid).Parse(raw)
}

// Parse returns a *ParseError for syntax problems and a *model.ValidationError
// for coordinates outside the grid.
func (p *Parser) Parse(raw string) (model.Job, error) {
	ps := &parseState{lex: &lexer{input: raw}, input: raw}
	if err := ps.advance(); err != nil {
		return nil, asUnrecognized(err, raw)
	}

	if ps.tok.kind != tokIdent {
		return nil, &ParseError{Kind: UnrecognizedCommand, Input: raw, Pos: ps.tok.pos, Msg: "expected a command name"}
	}
	v, ok := lookupVerb(ps.tok.text)
	if !ok {
		return nil, &ParseError{Kind: UnrecognizedCommand, Input: raw, Pos: ps.tok.pos, Msg: fmt.Sprintf("unknown command %q", ps.tok.text)}
	}
	if err := ps.advance(); err != nil {
		return nil, err
	}

	coords, err := ps.arguments()
	if err != nil {
		return nil, err
	}
	if len(coords) != v.arity {
		return nil, &ParseError{
			Kind:  MalformedCoordinate,
			Input: raw,
			Pos:   -1,
			Msg:   fmt.Sprintf("%s takes %d coordinate(s), got %d", v.name, v.arity, len(coords)),
		}
	}

	return v.build(p.Grid, coords)
}

// asUnrecognized reports a lexing failure on the very first token as an
// unknown command.
func asUnrecognized(err error, raw string) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return &ParseError{Kind: UnrecognizedCommand, Input: raw, Pos: pe.Pos, Msg: pe.Msg}
	}
	return err
}

type parseState struct {
	lex   *lexer
	input string
	tok   token
}

func (ps *parseState) advance() error {
	t, err := ps.lex.next()
	if err != nil {
		return err
	}
	ps.tok = t
	return nil
}

func (ps *parseState) expect(kind tokenKind) (token, error) {
	t := ps.tok
	if t.kind != kind {
		return t, ps.unexpected(kind)
	}
	return t, ps.advance()
}

func (ps *parseState) unexpected(want tokenKind) error {
	got := ps.tok.kind.String()
	if ps.tok.text != "" {
		got = fmt.Sprintf("%q", ps.tok.text)
	}
	return &ParseError{Kind: MalformedCoordinate, Input: ps.input, Pos: ps.tok.pos, Msg: fmt.Sprintf("expected %s, got %s", want, got)}
}

// arguments parses "(" coordinate { "," coordinate } ")" EOF.
func (ps *parseState) arguments() ([]model.Coordinate, error) {
	if _, err := ps.expect(tokLParen); err != nil {
		return nil, err
	}

	var coords []model.Coordinate
	for {
		c, err := ps.coordinate()
		if err != nil {
			return nil, err
		}
		coords = append(coords, c)

		if ps.tok.kind != tokComma {
			break
		}
		if err := ps.advance(); err != nil {
			return nil, err
		}
	}

	if _, err := ps.expect(tokRParen); err != nil {
		return nil, err
	}
	if ps.tok.kind != tokEOF {
		return nil, ps.unexpected(tokEOF)
	}
	return coords, nil
}

// coordinate parses "(" int "," int ")" or a bare int "," int.
func (ps *parseState) coordinate() (model.Coordinate, error) {
	wrapped := ps.tok.kind == tokLParen
	if wrapped {
		if err := ps.advance(); err != nil {
			return model.Coordinate{}, err
		}
	}

	x, err := ps.expect(tokInt)
	if err != nil {
		return model.Coordinate{}, err
	}
	if _, err := ps.expect(tokComma); err != nil {
		return model.Coordinate{}, err
	}
	y, err := ps.expect(tokInt)
	if err != nil {
		return model.Coordinate{}, err
	}

	if wrapped {
		if _, err := ps.expect(tokRParen); err != nil {
			return model.Coordinate{}, err
		}
	}
	return model.Coordinate{X: x.val, Y: y.val}, nil
}
