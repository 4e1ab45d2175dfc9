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

import "strings"

// Expr is a value expression: a property path, a parameter, a literal or
// arithmetic over those.
type Expr interface{ exprNode() }

// Path addresses a property. The first part may name an alias declared in
// the query; otherwise the path starts at the queried entity.
type Path struct {
	Parts []string
}

func NewPath(property string) Path { return Path{Parts: strings.Split(property, ".")} }

func (p Path) String() string { return strings.Join(p.Parts, ".") }

// Param is a named placeholder, written :name.
type Param struct {
	Name string
}

// Literal is a constant or an argument value that has been bound.
type Literal struct {
	Value any
}

// Arith is a binary arithmetic expression; Op is one of + - * /.
type Arith struct {
	Op          byte
	Left, Right Expr
}

func (Path) exprNode()    {}
func (Param) exprNode()   {}
func (Literal) exprNode() {}
func (Arith) exprNode()   {}

// Cond is a boolean predicate.
type Cond interface{ condNode() }

type And struct{ Terms []Cond }

type Or struct{ Terms []Cond }

type Not struct{ Cond Cond }

// Compare applies Op to Left. Args holds Op.Arity() expressions, except for
// In and NotIn written with an explicit list, where it holds every element.
type Compare struct {
	Left Expr
	Op   Operator
	Args []Expr
}

func (And) condNode()     {}
func (Or) condNode()      {}
func (Not) condNode()     {}
func (Compare) condNode() {}

// Kind is the statement type.
type Kind int

const (
	SelectKind Kind = iota
	UpdateKind
	DeleteKind
)

func (k Kind) String() string {
	switch k {
	case UpdateKind:
		return "update"
	case DeleteKind:
		return "delete"
	default:
		return "select"
	}
}

// ProjectionKind says what a select statement returns.
type ProjectionKind int

const (
	// ProjectEntity returns whole entities.
	ProjectEntity ProjectionKind = iota
	// ProjectPaths returns the listed property values.
	ProjectPaths
	// ProjectConstructor returns value objects built from the listed paths.
	ProjectConstructor
	// ProjectCount returns a single row count.
	ProjectCount
)

type Projection struct {
	Kind        ProjectionKind
	Constructor string
	Paths       []Path
}

// ConstructorName is the unqualified name of a constructor projection.
func (p Projection) ConstructorName() string {
	if i := strings.LastIndexByte(p.Constructor, '.'); i >= 0 {
		return p.Constructor[i+1:]
	}
	return p.Constructor
}

// Join navigates a relation of an entity already in scope.
type Join struct {
	Path  Path
	Alias string
	Left  bool
	Fetch bool
}

type Assignment struct {
	Target Path
	Value  Expr
}

type OrderItem struct {
	Path Path
	Desc bool
}

// Statement is a parsed or derived query.
type Statement struct {
	Kind       Kind
	Distinct   bool
	Projection Projection
	Entity     string
	Alias      string
	Joins      []Join
	Where      Cond
	Set        []Assignment
	OrderBy    []OrderItem
	Limit      int
	ReadOnly   bool
}
