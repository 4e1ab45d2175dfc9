/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package query

import (
	"fmt"
	"strconv"
	"strings"
)

var keywords = map[string]bool{
	"select": true, "from": true, "where": true, "and": true, "or": true, "not": true,
	"join": true, "left": true, "inner": true, "outer": true, "fetch": true,
	"order": true, "by": true, "asc": true, "desc": true, "update": true, "set": true,
	"delete": true, "in": true, "like": true, "is": true, "null": true, "between": true,
	"new": true, "distinct": true, "count": true, "as": true, "true": true, "false": true,
}

// Parse parses a literal query:
//
//	select m from Member m left join fetch m.team t where m.age >= :age order by m.username desc
//	select new pkg.MemberDto(m.id, m.username, t.name) from Member m join m.team t
//	update Member m set m.age = m.age + 1 where m.age >= :age
//	delete from Member m where m.username in :names
func Parse(src string) (*Statement, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	var stmt *Statement
	switch {
	case p.peek().is("select"):
		stmt, err = p.parseSelect()
	case p.peek().is("update"):
		stmt, err = p.parseUpdate()
	case p.peek().is("delete"):
		stmt, err = p.parseDelete()
	default:
		return nil, p.errorf("expected select, update or delete")
	}
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.peek().text)
	}
	return stmt, nil
}

// MustParse is like Parse but panics on error. It is meant for package-level
// query declarations.
func MustParse(src string) *Statement {
	stmt, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return stmt
}

type parser struct {
	src  string
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) accept(s string) bool {
	if p.peek().is(s) {
		p.i++
		return true
	}
	return false
}

func (p *parser) expect(s string) error {
	if !p.accept(s) {
		return p.errorf("expected %q", s)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	t := p.peek()
	if t.kind == tokEOF {
		msg += " at end of query"
	}
	return &SyntaxError{Query: p.src, Pos: t.pos, Msg: msg}
}

func (p *parser) ident() (string, error) {
	t := p.peek()
	if t.kind != tokIdent || keywords[strings.ToLower(t.text)] {
		return "", p.errorf("identifier expected")
	}
	p.i++
	return t.text, nil
}

func (p *parser) path() (Path, error) {
	first, err := p.ident()
	if err != nil {
		return Path{}, err
	}
	parts := []string{first}
	for p.accept(".") {
		part, err := p.ident()
		if err != nil {
			return Path{}, err
		}
		parts = append(parts, part)
	}
	return Path{Parts: parts}, nil
}

func (p *parser) parseSelect() (*Statement, error) {
	p.next()
	stmt := &Statement{Kind: SelectKind}
	stmt.Distinct = p.accept("distinct")
	if err := p.parseProjection(stmt); err != nil {
		return nil, err
	}
	if err := p.expect("from"); err != nil {
		return nil, err
	}
	if err := p.parseEntity(stmt, true); err != nil {
		return nil, err
	}
	if stmt.Projection.Kind == ProjectPaths && len(stmt.Projection.Paths) == 1 {
		if parts := stmt.Projection.Paths[0].Parts; len(parts) == 1 && parts[0] == stmt.Alias {
			stmt.Projection = Projection{Kind: ProjectEntity}
		}
	}
	for {
		join, ok, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		stmt.Joins = append(stmt.Joins, join)
	}
	var err error
	if stmt.Where, err = p.parseWhere(); err != nil {
		return nil, err
	}
	if p.accept("order") {
		if err := p.expect("by"); err != nil {
			return nil, err
		}
		for {
			path, err := p.path()
			if err != nil {
				return nil, err
			}
			item := OrderItem{Path: path}
			if p.accept("desc") {
				item.Desc = true
			} else {
				p.accept("asc")
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if !p.accept(",") {
				break
			}
		}
	}
	return stmt, nil
}

func (p *parser) parseProjection(stmt *Statement) error {
	switch {
	case p.accept("new"):
		name, err := p.path()
		if err != nil {
			return err
		}
		if err := p.expect("("); err != nil {
			return err
		}
		paths, err := p.pathList()
		if err != nil {
			return err
		}
		if err := p.expect(")"); err != nil {
			return err
		}
		stmt.Projection = Projection{Kind: ProjectConstructor, Constructor: name.String(), Paths: paths}
	case p.accept("count"):
		if err := p.expect("("); err != nil {
			return err
		}
		path, err := p.path()
		if err != nil {
			return err
		}
		if err := p.expect(")"); err != nil {
			return err
		}
		stmt.Projection = Projection{Kind: ProjectCount, Paths: []Path{path}}
	default:
		paths, err := p.pathList()
		if err != nil {
			return err
		}
		stmt.Projection = Projection{Kind: ProjectPaths, Paths: paths}
	}
	return nil
}

func (p *parser) pathList() ([]Path, error) {
	var paths []Path
	for {
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
		if !p.accept(",") {
			return paths, nil
		}
	}
}

func (p *parser) parseEntity(stmt *Statement, aliasRequired bool) error {
	entity, err := p.ident()
	if err != nil {
		return err
	}
	stmt.Entity = entity
	p.accept("as")
	t := p.peek()
	if t.kind == tokIdent && !keywords[strings.ToLower(t.text)] {
		stmt.Alias = p.next().text
	} else if aliasRequired {
		return p.errorf("alias expected after entity %s", entity)
	}
	return nil
}

func (p *parser) parseJoin() (Join, bool, error) {
	var join Join
	switch {
	case p.accept("left"):
		p.accept("outer")
		join.Left = true
		if err := p.expect("join"); err != nil {
			return join, false, err
		}
	case p.accept("inner"):
		if err := p.expect("join"); err != nil {
			return join, false, err
		}
	case p.accept("join"):
	default:
		return join, false, nil
	}
	join.Fetch = p.accept("fetch")
	path, err := p.path()
	if err != nil {
		return join, false, err
	}
	if len(path.Parts) < 2 {
		return join, false, p.errorf("join path must navigate from an alias, got %s", path)
	}
	join.Path = path
	p.accept("as")
	if t := p.peek(); t.kind == tokIdent && !keywords[strings.ToLower(t.text)] {
		join.Alias = p.next().text
	} else if !join.Fetch {
		return join, false, p.errorf("alias expected for join %s", path)
	}
	return join, true, nil
}

func (p *parser) parseWhere() (Cond, error) {
	if !p.accept("where") {
		return nil, nil
	}
	return p.parseOr()
}

func (p *parser) parseUpdate() (*Statement, error) {
	p.next()
	stmt := &Statement{Kind: UpdateKind}
	if err := p.parseEntity(stmt, false); err != nil {
		return nil, err
	}
	if err := p.expect("set"); err != nil {
		return nil, err
	}
	for {
		target, err := p.path()
		if err != nil {
			return nil, err
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Set = append(stmt.Set, Assignment{Target: target, Value: value})
		if !p.accept(",") {
			break
		}
	}
	var err error
	if stmt.Where, err = p.parseWhere(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseDelete() (*Statement, error) {
	p.next()
	stmt := &Statement{Kind: DeleteKind}
	if err := p.expect("from"); err != nil {
		return nil, err
	}
	if err := p.parseEntity(stmt, false); err != nil {
		return nil, err
	}
	var err error
	if stmt.Where, err = p.parseWhere(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseOr() (Cond, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Cond{left}
	for p.accept("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return Or{Terms: terms}, nil
}

func (p *parser) parseAnd() (Cond, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	terms := []Cond{left}
	for p.accept("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return And{Terms: terms}, nil
}

func (p *parser) parseNot() (Cond, error) {
	if p.accept("not") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Cond: inner}, nil
	}
	return p.parsePredicate()
}

// parsePredicate parses a parenthesized condition or a single comparison.
// A leading parenthesis is tried as a condition first and, failing that,
// as an arithmetic expression.
func (p *parser) parsePredicate() (Cond, error) {
	if p.peek().is("(") {
		save := p.i
		p.next()
		if cond, err := p.parseOr(); err == nil && p.accept(")") {
			return cond, nil
		}
		p.i = save
	}
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	negated := p.accept("not")
	switch {
	case p.accept("like"):
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		op := Like
		if negated {
			op = NotLike
		}
		return Compare{Left: left, Op: op, Args: []Expr{arg}}, nil
	case p.accept("in"):
		args, err := p.parseInArgs()
		if err != nil {
			return nil, err
		}
		op := In
		if negated {
			op = NotIn
		}
		return Compare{Left: left, Op: op, Args: args}, nil
	case p.accept("between"):
		lo, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect("and"); err != nil {
			return nil, err
		}
		hi, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		var c Cond = Compare{Left: left, Op: Between, Args: []Expr{lo, hi}}
		if negated {
			c = Not{Cond: c}
		}
		return c, nil
	}
	if negated {
		return nil, p.errorf("expected like, in or between after not")
	}
	if p.accept("is") {
		op := IsNull
		if p.accept("not") {
			op = IsNotNull
		}
		if err := p.expect("null"); err != nil {
			return nil, err
		}
		return Compare{Left: left, Op: op}, nil
	}
	op, ok := comparison[p.peek().text]
	if !ok || p.peek().kind != tokSymbol {
		return nil, p.errorf("comparison operator expected")
	}
	p.next()
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return Compare{Left: left, Op: op, Args: []Expr{right}}, nil
}

var comparison = map[string]Operator{
	"=":  Equal,
	"<>": NotEqual,
	"!=": NotEqual,
	">":  GreaterThan,
	">=": GreaterThanEqual,
	"<":  LessThan,
	"<=": LessThanEqual,
}

func (p *parser) parseInArgs() ([]Expr, error) {
	if t := p.peek(); t.kind == tokParam {
		p.next()
		return []Expr{Param{Name: t.text}}, nil
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var args []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if !p.accept(",") {
			break
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parseExpr() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().is("+") || p.peek().is("-") {
		op := p.next().text[0]
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = Arith{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.peek().is("*") || p.peek().is("/") {
		op := p.next().text[0]
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = Arith{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseFactor() (Expr, error) {
	t := p.peek()
	switch {
	case t.kind == tokParam:
		p.next()
		return Param{Name: t.text}, nil
	case t.kind == tokNumber:
		p.next()
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, &SyntaxError{Query: p.src, Pos: t.pos, Msg: "bad number " + t.text}
			}
			return Literal{Value: f}, nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, &SyntaxError{Query: p.src, Pos: t.pos, Msg: "bad number " + t.text}
		}
		return Literal{Value: n}, nil
	case t.kind == tokString:
		p.next()
		return Literal{Value: t.text}, nil
	case t.is("true"):
		p.next()
		return Literal{Value: true}, nil
	case t.is("false"):
		p.next()
		return Literal{Value: false}, nil
	case t.is("null"):
		p.next()
		return Literal{Value: nil}, nil
	case t.is("-"):
		p.next()
		inner, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return Arith{Op: '-', Left: Literal{Value: int64(0)}, Right: inner}, nil
	case t.is("("):
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return e, nil
	case t.kind == tokIdent:
		return p.path()
	}
	return nil, p.errorf("expression expected")
}
