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
	"sort"
	"strings"
)

// Params binds named placeholders to values.
type Params map[string]any

// ParamNames lists the distinct placeholder names of s in order of first use.
func (s *Statement) ParamNames() []string {
	var names []string
	seen := map[string]bool{}
	visitExprs(s, func(e Expr) Expr {
		if p, ok := e.(Param); ok && !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
		return e
	})
	return names
}

// Bind returns a copy of s with every placeholder replaced by its value.
// A missing placeholder value or an unused parameter is an error.
func (s *Statement) Bind(params Params) (*Statement, error) {
	var missing []string
	used := map[string]bool{}
	bound := s.clone()
	visitExprs(bound, func(e Expr) Expr {
		p, ok := e.(Param)
		if !ok {
			return e
		}
		v, ok := params[p.Name]
		if !ok {
			if !used[p.Name] {
				missing = append(missing, p.Name)
			}
			used[p.Name] = true
			return e
		}
		used[p.Name] = true
		return Literal{Value: v}
	})
	if len(missing) > 0 {
		return nil, malformed("no value bound for parameter(s) %s", strings.Join(missing, ", "))
	}
	var unused []string
	for name := range params {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	if len(unused) > 0 {
		sort.Strings(unused)
		return nil, malformed("parameter(s) %s not used by query", strings.Join(unused, ", "))
	}
	return bound, nil
}

func (s *Statement) clone() *Statement {
	c := *s
	c.Joins = append([]Join(nil), s.Joins...)
	c.Set = append([]Assignment(nil), s.Set...)
	c.OrderBy = append([]OrderItem(nil), s.OrderBy...)
	c.Where = cloneCond(s.Where)
	return &c
}

func cloneCond(c Cond) Cond {
	switch n := c.(type) {
	case And:
		return And{Terms: cloneConds(n.Terms)}
	case Or:
		return Or{Terms: cloneConds(n.Terms)}
	case Not:
		return Not{Cond: cloneCond(n.Cond)}
	case Compare:
		n.Args = append([]Expr(nil), n.Args...)
		return n
	}
	return c
}

func cloneConds(cs []Cond) []Cond {
	out := make([]Cond, len(cs))
	for i, c := range cs {
		out[i] = cloneCond(c)
	}
	return out
}

// visitExprs rewrites every expression of s in place.
func visitExprs(s *Statement, fn func(Expr) Expr) {
	for i := range s.Set {
		s.Set[i].Value = rewriteExpr(s.Set[i].Value, fn)
	}
	s.Where = rewriteCond(s.Where, fn)
}

func rewriteCond(c Cond, fn func(Expr) Expr) Cond {
	switch n := c.(type) {
	case And:
		for i := range n.Terms {
			n.Terms[i] = rewriteCond(n.Terms[i], fn)
		}
		return n
	case Or:
		for i := range n.Terms {
			n.Terms[i] = rewriteCond(n.Terms[i], fn)
		}
		return n
	case Not:
		n.Cond = rewriteCond(n.Cond, fn)
		return n
	case Compare:
		n.Left = rewriteExpr(n.Left, fn)
		for i := range n.Args {
			n.Args[i] = rewriteExpr(n.Args[i], fn)
		}
		return n
	}
	return c
}

func rewriteExpr(e Expr, fn func(Expr) Expr) Expr {
	if a, ok := e.(Arith); ok {
		a.Left = rewriteExpr(a.Left, fn)
		a.Right = rewriteExpr(a.Right, fn)
		return fn(a)
	}
	return fn(e)
}
