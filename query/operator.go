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

// Operator is a comparison applied to a property.
type Operator int

const (
	Equal Operator = iota
	NotEqual
	GreaterThan
	GreaterThanEqual
	LessThan
	LessThanEqual
	Between
	In
	NotIn
	Like
	NotLike
	StartingWith
	EndingWith
	Containing
	IsNull
	IsNotNull
	IsTrue
	IsFalse
)

var operators = [...]struct {
	name    string
	keyword string // method-name form, Equal is implicit
	arity   int
}{
	Equal:            {"Equal", "", 1},
	NotEqual:         {"NotEqual", "Not", 1},
	GreaterThan:      {"GreaterThan", "GreaterThan", 1},
	GreaterThanEqual: {"GreaterThanEqual", "GreaterThanEqual", 1},
	LessThan:         {"LessThan", "LessThan", 1},
	LessThanEqual:    {"LessThanEqual", "LessThanEqual", 1},
	Between:          {"Between", "Between", 2},
	In:               {"In", "In", 1},
	NotIn:            {"NotIn", "NotIn", 1},
	Like:             {"Like", "Like", 1},
	NotLike:          {"NotLike", "NotLike", 1},
	StartingWith:     {"StartingWith", "StartingWith", 1},
	EndingWith:       {"EndingWith", "EndingWith", 1},
	Containing:       {"Containing", "Containing", 1},
	IsNull:           {"IsNull", "IsNull", 0},
	IsNotNull:        {"IsNotNull", "IsNotNull", 0},
	IsTrue:           {"IsTrue", "True", 0},
	IsFalse:          {"IsFalse", "False", 0},
}

// IsValid reports whether o is a known operator.
func (o Operator) IsValid() bool { return o >= Equal && int(o) < len(operators) }

// Arity is the number of arguments the operator consumes.
func (o Operator) Arity() int {
	if !o.IsValid() {
		return 0
	}
	return operators[o].arity
}

func (o Operator) String() string {
	if !o.IsValid() {
		return "Unknown"
	}
	return operators[o].name
}

// Keyword is the operator as it appears in a derived method name.
func (o Operator) Keyword() string {
	if !o.IsValid() {
		return ""
	}
	return operators[o].keyword
}
