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

package repository

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/datarepo/query"
)

// source is an entity in scope of a statement: the root entity or a
// relation reached through a join.
type source struct {
	table   *schema.Table
	alias   string // SQL alias
	rel     *schema.Relation
	parent  *source
	relPath string // Go field path from the root, as SelectQuery.Relation takes it
	fetch   bool
	left    bool
	// separate is set for collections loaded by a second query; their
	// columns cannot be referenced.
	separate bool
}

// compiler translates a bound statement into bun query clauses.
type compiler struct {
	stmt    *query.Statement
	root    *source
	aliases map[string]*source
	byPath  map[string]*source
	joins   []*source
	// qualify is false for update and delete, whose columns are written
	// without a table alias and which cannot join.
	qualify bool
}

func newCompiler(table *schema.Table, stmt *query.Statement) (*compiler, error) {
	if !matchesEntity(table, stmt.Entity) {
		return nil, malformed("query is over %s, repository is over %s", stmt.Entity, table.TypeName)
	}
	c := &compiler{
		stmt:    stmt,
		root:    &source{table: table, alias: table.Alias},
		aliases: make(map[string]*source),
		byPath:  make(map[string]*source),
		qualify: stmt.Kind == query.SelectKind,
	}
	if stmt.Alias != "" {
		c.aliases[stmt.Alias] = c.root
	}
	if !c.qualify && len(stmt.Joins) > 0 {
		return nil, malformed("%s statements cannot join", stmt.Kind)
	}
	for _, j := range stmt.Joins {
		if err := c.declareJoin(j); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", query.ErrMalformed, fmt.Sprintf(format, args...))
}

func (c *compiler) declareJoin(j query.Join) error {
	base, ok := c.aliases[j.Path.Parts[0]]
	if !ok {
		return malformed("join %s: unknown alias %s", j.Path, j.Path.Parts[0])
	}
	src := base
	for _, name := range j.Path.Parts[1:] {
		var err error
		if src, err = c.join(src, name, j.Fetch, j.Left); err != nil {
			return err
		}
	}
	if j.Alias != "" {
		if _, dup := c.aliases[j.Alias]; dup {
			return malformed("alias %s declared twice", j.Alias)
		}
		c.aliases[j.Alias] = src
	}
	return nil
}

// fetch adds a left fetch join for a relation path such as "team" or
// "members.team", relative to the root entity.
func (c *compiler) fetch(path string) error {
	src := c.root
	for _, name := range strings.Split(path, ".") {
		var err error
		if src, err = c.join(src, name, true, true); err != nil {
			return err
		}
	}
	return nil
}

// join navigates relation name of base, reusing a join of the same path.
func (c *compiler) join(base *source, name string, fetch, left bool) (*source, error) {
	rel := relationOf(base.table, name)
	if rel == nil {
		return nil, malformed("%s has no relation %s", base.table.TypeName, name)
	}
	relPath := rel.Field.GoName
	if base.relPath != "" {
		relPath = base.relPath + "." + relPath
	}
	if src, ok := c.byPath[relPath]; ok {
		if fetch && !src.fetch {
			return nil, malformed("relation %s joined both with and without fetch", relPath)
		}
		return src, nil
	}
	if base.separate && !fetch {
		return nil, malformed("cannot join from %s: it is loaded by a separate query", base.relPath)
	}
	src := &source{
		table:   rel.JoinTable,
		rel:     rel,
		parent:  base,
		relPath: relPath,
		fetch:   fetch,
		left:    left,
	}
	switch {
	case fetch:
		if base.fetch && !base.separate {
			src.alias = base.alias + "__" + rel.Field.Name
		} else {
			src.alias = rel.Field.Name
		}
		src.separate = base.separate || isCollection(rel)
		if base != c.root && !base.fetch {
			return nil, malformed("fetch join %s must start from a fetched relation", relPath)
		}
	default:
		src.alias = "j_" + strings.ToLower(strings.ReplaceAll(relPath, ".", "_"))
	}
	c.byPath[relPath] = src
	c.joins = append(c.joins, src)
	return src, nil
}

// resolve returns the source and field addressed by a path.
func (c *compiler) resolve(p query.Path) (*source, *schema.Field, error) {
	parts := p.Parts
	src := c.root
	if s, ok := c.aliases[parts[0]]; ok {
		src, parts = s, parts[1:]
	}
	if len(parts) == 0 {
		return src, nil, nil
	}
	for _, name := range parts[:len(parts)-1] {
		if !c.qualify {
			return nil, nil, malformed("%s statements cannot navigate relation %s", c.stmt.Kind, name)
		}
		rel := relationOf(src.table, name)
		if rel == nil {
			return nil, nil, malformed("%s has no relation %s", src.table.TypeName, name)
		}
		if isCollection(rel) {
			return nil, nil, malformed("path %s navigates collection %s; join it with an alias", p, name)
		}
		var err error
		if src, err = c.join(src, name, false, false); err != nil {
			return nil, nil, err
		}
	}
	name := parts[len(parts)-1]
	field := fieldOf(src.table, name)
	if field == nil {
		if relationOf(src.table, name) != nil {
			return nil, nil, malformed("path %s names a relation, not a property", p)
		}
		return nil, nil, malformed("%s has no property %s", src.table.TypeName, name)
	}
	if src.separate {
		return nil, nil, malformed("path %s: %s is loaded by a separate query", p, src.relPath)
	}
	return src, field, nil
}

// fragment is a piece of SQL with bun placeholders and their arguments.
type fragment struct {
	sql  string
	args []any
}

func (c *compiler) column(src *source, f *schema.Field) fragment {
	if !c.qualify {
		return fragment{"?", []any{bun.Ident(f.Name)}}
	}
	return fragment{"?.?", []any{bun.Ident(src.alias), bun.Ident(f.Name)}}
}

func (c *compiler) path(p query.Path) (fragment, error) {
	src, f, err := c.resolve(p)
	if err != nil {
		return fragment{}, err
	}
	if f == nil {
		return fragment{}, malformed("path %s names an entity, not a property", p)
	}
	return c.column(src, f), nil
}

func (c *compiler) expr(e query.Expr) (fragment, error) {
	switch e := e.(type) {
	case query.Path:
		return c.path(e)
	case query.Literal:
		if e.Value == nil {
			return fragment{sql: "NULL"}, nil
		}
		return fragment{"?", []any{e.Value}}, nil
	case query.Param:
		return fragment{}, malformed("parameter :%s is not bound", e.Name)
	case query.Arith:
		l, err := c.expr(e.Left)
		if err != nil {
			return fragment{}, err
		}
		r, err := c.expr(e.Right)
		if err != nil {
			return fragment{}, err
		}
		return fragment{
			sql:  "(" + l.sql + " " + string(e.Op) + " " + r.sql + ")",
			args: append(l.args, r.args...),
		}, nil
	}
	return fragment{}, malformed("unsupported expression %T", e)
}

func (c *compiler) cond(cond query.Cond) (fragment, error) {
	switch cond := cond.(type) {
	case query.And:
		return c.junction(cond.Terms, " AND ")
	case query.Or:
		return c.junction(cond.Terms, " OR ")
	case query.Not:
		inner, err := c.cond(cond.Cond)
		if err != nil {
			return fragment{}, err
		}
		return fragment{"NOT (" + inner.sql + ")", inner.args}, nil
	case query.Compare:
		return c.compare(cond)
	}
	return fragment{}, malformed("unsupported condition %T", cond)
}

func (c *compiler) junction(terms []query.Cond, sep string) (fragment, error) {
	var parts []string
	var args []any
	for _, t := range terms {
		f, err := c.cond(t)
		if err != nil {
			return fragment{}, err
		}
		parts = append(parts, "("+f.sql+")")
		args = append(args, f.args...)
	}
	return fragment{strings.Join(parts, sep), args}, nil
}

var comparisons = map[query.Operator]string{
	query.Equal:            "=",
	query.NotEqual:         "<>",
	query.GreaterThan:      ">",
	query.GreaterThanEqual: ">=",
	query.LessThan:         "<",
	query.LessThanEqual:    "<=",
	query.Like:             "LIKE",
	query.NotLike:          "NOT LIKE",
}

func (c *compiler) compare(cmp query.Compare) (fragment, error) {
	left, err := c.expr(cmp.Left)
	if err != nil {
		return fragment{}, err
	}
	if op, ok := comparisons[cmp.Op]; ok {
		if len(cmp.Args) != 1 {
			return fragment{}, malformed("%s takes one argument", cmp.Op)
		}
		right, err := c.expr(cmp.Args[0])
		if err != nil {
			return fragment{}, err
		}
		return fragment{left.sql + " " + op + " " + right.sql, append(left.args, right.args...)}, nil
	}
	switch cmp.Op {
	case query.IsNull:
		return fragment{left.sql + " IS NULL", left.args}, nil
	case query.IsNotNull:
		return fragment{left.sql + " IS NOT NULL", left.args}, nil
	case query.IsTrue, query.IsFalse:
		return fragment{left.sql + " = ?", append(left.args, cmp.Op == query.IsTrue)}, nil
	case query.StartingWith, query.EndingWith, query.Containing:
		if len(cmp.Args) != 1 {
			return fragment{}, malformed("%s takes one argument", cmp.Op)
		}
		lit, ok := cmp.Args[0].(query.Literal)
		if !ok || lit.Value == nil {
			return fragment{}, malformed("%s needs a value", cmp.Op)
		}
		pattern := escapeLike(fmt.Sprint(lit.Value))
		switch cmp.Op {
		case query.StartingWith:
			pattern += "%"
		case query.EndingWith:
			pattern = "%" + pattern
		default:
			pattern = "%" + pattern + "%"
		}
		return fragment{left.sql + " LIKE ? ESCAPE '!'", append(left.args, pattern)}, nil
	case query.Between:
		if len(cmp.Args) != 2 {
			return fragment{}, malformed("between takes two arguments")
		}
		lo, err := c.expr(cmp.Args[0])
		if err != nil {
			return fragment{}, err
		}
		hi, err := c.expr(cmp.Args[1])
		if err != nil {
			return fragment{}, err
		}
		args := append(append(left.args, lo.args...), hi.args...)
		return fragment{left.sql + " BETWEEN " + lo.sql + " AND " + hi.sql, args}, nil
	case query.In, query.NotIn:
		return c.in(left, cmp)
	}
	return fragment{}, malformed("unsupported operator %s", cmp.Op)
}

func (c *compiler) in(left fragment, cmp query.Compare) (fragment, error) {
	op := " IN "
	if cmp.Op == query.NotIn {
		op = " NOT IN "
	}
	if len(cmp.Args) == 1 {
		if lit, ok := cmp.Args[0].(query.Literal); ok {
			v := reflect.ValueOf(lit.Value)
			if lit.Value != nil && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && v.Type().Elem().Kind() != reflect.Uint8 {
				if v.Len() == 0 {
					// nothing is in an empty list
					if cmp.Op == query.In {
						return fragment{sql: "1 = 0"}, nil
					}
					return fragment{sql: "1 = 1"}, nil
				}
				return fragment{left.sql + op + "(?)", append(left.args, bun.In(lit.Value))}, nil
			}
		}
	}
	if len(cmp.Args) == 0 {
		return fragment{}, malformed("%s needs at least one value", cmp.Op)
	}
	parts := make([]string, len(cmp.Args))
	args := left.args
	for i, a := range cmp.Args {
		f, err := c.expr(a)
		if err != nil {
			return fragment{}, err
		}
		parts[i] = f.sql
		args = append(args, f.args...)
	}
	return fragment{left.sql + op + "(" + strings.Join(parts, ", ") + ")", args}, nil
}

// escapeLike escapes LIKE wildcards using '!' as the escape character, which
// needs no quoting in any supported dialect.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// where compiles the statement condition, or returns ok=false if there is none.
func (c *compiler) where() (fragment, bool, error) {
	if c.stmt.Where == nil {
		return fragment{}, false, nil
	}
	f, err := c.cond(c.stmt.Where)
	return f, err == nil, err
}

func (c *compiler) orderBy(extra []query.OrderItem) ([]fragment, error) {
	items := append(append([]query.OrderItem(nil), c.stmt.OrderBy...), extra...)
	out := make([]fragment, 0, len(items))
	for _, item := range items {
		f, err := c.path(item.Path)
		if err != nil {
			return nil, err
		}
		if item.Desc {
			f.sql += " DESC"
		} else {
			f.sql += " ASC"
		}
		out = append(out, f)
	}
	return out, nil
}

// selectClauses holds a compiled select: everything but the projection.
type selectClauses struct {
	where    fragment
	hasWhere bool
	orders   []fragment
}

// compileSelect compiles where and order. Both may add implicit joins, so
// this runs before apply.
func (c *compiler) compileSelect(extraOrders []query.OrderItem) (*selectClauses, error) {
	where, ok, err := c.where()
	if err != nil {
		return nil, err
	}
	orders, err := c.orderBy(extraOrders)
	if err != nil {
		return nil, err
	}
	return &selectClauses{where: where, hasWhere: ok, orders: orders}, nil
}

func (c *compiler) apply(q *bun.SelectQuery, sc *selectClauses, ordered bool) *bun.SelectQuery {
	for _, src := range c.joins {
		switch {
		case src.fetch:
			q = q.Relation(src.relPath)
			if !src.left && !src.separate && len(src.rel.JoinPKs) > 0 {
				q = q.Where("?.? IS NOT NULL", bun.Ident(src.alias), bun.Ident(src.rel.JoinPKs[0].Name))
			}
		default:
			kind := "JOIN"
			if src.left {
				kind = "LEFT JOIN"
			}
			q = q.Join(kind+" ? AS ?", bun.Ident(src.table.Name), bun.Ident(src.alias))
			for i := range src.rel.BasePKs {
				q = q.JoinOn("?.? = ?.?",
					bun.Ident(src.parent.alias), bun.Ident(src.rel.BasePKs[i].Name),
					bun.Ident(src.alias), bun.Ident(src.rel.JoinPKs[i].Name))
			}
		}
	}
	if sc.hasWhere {
		q = q.Where(sc.where.sql, sc.where.args...)
	}
	if ordered {
		for _, o := range sc.orders {
			q = q.OrderExpr(o.sql, o.args...)
		}
		if c.stmt.Limit > 0 {
			q = q.Limit(c.stmt.Limit)
		}
	}
	return q
}

func (c *compiler) hasFetch() bool {
	for _, src := range c.joins {
		if src.fetch {
			return true
		}
	}
	return false
}

// collections lists the root-level collections fetched by the statement.
func (c *compiler) collections() []*schema.Relation {
	var rels []*schema.Relation
	for _, src := range c.joins {
		if src.fetch && src.parent == c.root && isCollection(src.rel) {
			rels = append(rels, src.rel)
		}
	}
	return rels
}

// projection compiles the select list of a non-entity projection; names
// gives the result column alias for each item.
func (c *compiler) projection(names []string) ([]fragment, error) {
	p := c.stmt.Projection
	switch p.Kind {
	case query.ProjectCount:
		src, f, err := c.resolve(p.Paths[0])
		if err != nil {
			return nil, err
		}
		if f == nil {
			if !c.stmt.Distinct {
				return []fragment{aliased(fragment{sql: "count(*)"}, names, 0)}, nil
			}
			if len(src.table.PKs) != 1 {
				return nil, malformed("count(distinct %s) needs a single-column key", p.Paths[0])
			}
			f = src.table.PKs[0]
		}
		col := c.column(src, f)
		if c.stmt.Distinct {
			col.sql = "count(DISTINCT " + col.sql + ")"
		} else {
			col.sql = "count(" + col.sql + ")"
		}
		return []fragment{aliased(col, names, 0)}, nil
	case query.ProjectPaths, query.ProjectConstructor:
		out := make([]fragment, len(p.Paths))
		for i, path := range p.Paths {
			f, err := c.path(path)
			if err != nil {
				return nil, err
			}
			out[i] = aliased(f, names, i)
		}
		return out, nil
	}
	return nil, malformed("statement selects entities")
}

func aliased(f fragment, names []string, i int) fragment {
	if i < len(names) && names[i] != "" {
		f.sql += " AS ?"
		f.args = append(f.args, bun.Ident(names[i]))
	}
	return f
}
