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
	"reflect"
	"strconv"
	"strings"

	"github.com/tomoncle/datarepo/types"
)

type connective int

const (
	and connective = iota
	or
)

type clause struct {
	conn     connective
	property string
	op       Operator
}

// Descriptor is a derived query: property comparisons joined by And and Or,
// with optional ordering and a result cap. And binds tighter than Or.
// Descriptors are immutable; every builder method returns a new value, so a
// descriptor can be declared once at package level and shared.
type Descriptor struct {
	clauses  []clause
	orders   []types.Order
	limit    int
	distinct bool
	readOnly bool
}

// All matches every record.
func All() *Descriptor { return &Descriptor{} }

// By starts a descriptor with one comparison. The operator defaults to Equal.
func By(property string, op ...Operator) *Descriptor {
	return All().with(and, property, op)
}

func (d *Descriptor) And(property string, op ...Operator) *Descriptor {
	return d.with(and, property, op)
}

func (d *Descriptor) Or(property string, op ...Operator) *Descriptor {
	return d.with(or, property, op)
}

func (d *Descriptor) OrderBy(orders ...types.Order) *Descriptor {
	c := d.copy()
	c.orders = append(c.orders, orders...)
	return c
}

// First caps the number of results.
func (d *Descriptor) First(n int) *Descriptor {
	c := d.copy()
	c.limit = n
	return c
}

func (d *Descriptor) Distinct() *Descriptor {
	c := d.copy()
	c.distinct = true
	return c
}

// ReadOnly marks results as not to be kept in a repository cache.
func (d *Descriptor) ReadOnly() *Descriptor {
	c := d.copy()
	c.readOnly = true
	return c
}

func (d *Descriptor) IsReadOnly() bool { return d != nil && d.readOnly }

// Arity is the number of arguments Statement expects.
func (d *Descriptor) Arity() int {
	n := 0
	for _, c := range d.clauses {
		n += c.op.Arity()
	}
	return n
}

func (d *Descriptor) with(conn connective, property string, op []Operator) *Descriptor {
	o := Equal
	if len(op) > 0 {
		o = op[0]
	}
	c := d.copy()
	c.clauses = append(c.clauses, clause{conn: conn, property: property, op: o})
	return c
}

func (d *Descriptor) copy() *Descriptor {
	c := *d
	c.clauses = append([]clause(nil), d.clauses...)
	c.orders = append([]types.Order(nil), d.orders...)
	return &c
}

// String renders d the way a derived finder method would be named,
// e.g. findTop3ByUsernameAndAgeGreaterThanOrderByAgeDesc.
func (d *Descriptor) String() string {
	var b strings.Builder
	b.WriteString("find")
	if d.distinct {
		b.WriteString("Distinct")
	}
	if d.limit > 0 {
		b.WriteString("Top" + strconv.Itoa(d.limit))
	}
	if len(d.clauses) == 0 {
		b.WriteString("All")
	} else {
		b.WriteString("By")
	}
	for i, c := range d.clauses {
		if i > 0 {
			if c.conn == or {
				b.WriteString("Or")
			} else {
				b.WriteString("And")
			}
		}
		b.WriteString(methodProperty(c.property))
		b.WriteString(c.op.Keyword())
	}
	if len(d.orders) > 0 {
		b.WriteString("OrderBy")
		for _, o := range d.orders {
			b.WriteString(methodProperty(o.Property))
			if o.Direction == types.Desc {
				b.WriteString("Desc")
			} else {
				b.WriteString("Asc")
			}
		}
	}
	return b.String()
}

func methodProperty(p string) string {
	parts := strings.Split(p, ".")
	for i, s := range parts {
		if s != "" {
			parts[i] = strings.ToUpper(s[:1]) + s[1:]
		}
	}
	return strings.Join(parts, "_")
}

// Statement binds args positionally, in declared order, and returns a select
// statement over entity.
func (d *Descriptor) Statement(entity string, args ...any) (*Statement, error) {
	if n := d.Arity(); n != len(args) {
		return nil, malformed("%s expects %d argument(s), got %d", d, n, len(args))
	}
	var groups []Cond
	var current []Cond
	pos := 0
	for i, c := range d.clauses {
		if c.property == "" {
			return nil, malformed("%s: empty property in clause %d", d, i+1)
		}
		if !c.op.IsValid() {
			return nil, malformed("%s: unknown operator %d", d, int(c.op))
		}
		if i > 0 && c.conn == or {
			groups = append(groups, conjunction(current))
			current = nil
		}
		cmp, err := compareOf(c, args[pos:pos+c.op.Arity()])
		if err != nil {
			return nil, malformed("%s: %v", d, err)
		}
		current = append(current, cmp)
		pos += c.op.Arity()
	}
	if len(current) > 0 {
		groups = append(groups, conjunction(current))
	}

	stmt := &Statement{
		Kind:     SelectKind,
		Distinct: d.distinct,
		Entity:   entity,
		Limit:    d.limit,
		ReadOnly: d.readOnly,
	}
	switch len(groups) {
	case 0:
	case 1:
		stmt.Where = groups[0]
	default:
		stmt.Where = Or{Terms: groups}
	}
	for _, o := range d.orders {
		if o.Property == "" {
			return nil, malformed("%s: empty order property", d)
		}
		stmt.OrderBy = append(stmt.OrderBy, OrderItem{Path: NewPath(o.Property), Desc: o.Direction == types.Desc})
	}
	return stmt, nil
}

func conjunction(cs []Cond) Cond {
	if len(cs) == 1 {
		return cs[0]
	}
	return And{Terms: cs}
}

func compareOf(c clause, args []any) (Cond, error) {
	cmp := Compare{Left: NewPath(c.property), Op: c.op}
	switch c.op {
	case Equal, NotEqual:
		if args[0] == nil {
			if c.op == Equal {
				cmp.Op = IsNull
			} else {
				cmp.Op = IsNotNull
			}
			return cmp, nil
		}
	case In, NotIn:
		if !isList(args[0]) {
			return nil, fmt.Errorf("%s %s needs a slice argument, got %T", c.property, c.op, args[0])
		}
	}
	for _, a := range args {
		cmp.Args = append(cmp.Args, Literal{Value: a})
	}
	return cmp, nil
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	switch t.Kind() {
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	}
	return false
}
