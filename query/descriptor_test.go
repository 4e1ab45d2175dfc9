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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/datarepo/types"
)

func TestDescriptor_String(t *testing.T) {
	cases := []struct {
		d    *Descriptor
		want string
	}{
		{All(), "findAll"},
		{By("username").And("age", GreaterThan), "findByUsernameAndAgeGreaterThan"},
		{By("username").Or("team.name", StartingWith), "findByUsernameOrTeam_NameStartingWith"},
		{By("age", Between).OrderBy(types.OrderDesc("username")).First(3), "findTop3ByAgeBetweenOrderByUsernameDesc"},
		{By("team", IsNull).Distinct(), "findDistinctByTeamIsNull"},
		{By("active", IsTrue).And("username", NotEqual), "findByActiveTrueAndUsernameNot"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.d.String())
	}
}

func TestDescriptor_Immutable(t *testing.T) {
	base := By("username")
	withAge := base.And("age", GreaterThan)
	ordered := base.OrderBy(types.OrderAsc("age"))

	assert.Equal(t, 1, base.Arity())
	assert.Equal(t, 2, withAge.Arity())
	assert.Equal(t, "findByUsername", base.String())
	assert.Equal(t, "findByUsernameOrderByAgeAsc", ordered.String())
	assert.False(t, base.IsReadOnly())
	assert.True(t, base.ReadOnly().IsReadOnly())
}

func TestDescriptor_Arity(t *testing.T) {
	d := By("age", Between).And("team", IsNotNull).Or("username", In)
	assert.Equal(t, 3, d.Arity())
	assert.Equal(t, 0, All().Arity())
}

func TestDescriptor_Statement(t *testing.T) {
	stmt, err := By("username").And("age", GreaterThan).Statement("Member", "alice", 10)
	require.NoError(t, err)

	assert.Equal(t, SelectKind, stmt.Kind)
	assert.Equal(t, "Member", stmt.Entity)
	assert.Equal(t, And{Terms: []Cond{
		Compare{Left: NewPath("username"), Op: Equal, Args: []Expr{Literal{Value: "alice"}}},
		Compare{Left: NewPath("age"), Op: GreaterThan, Args: []Expr{Literal{Value: 10}}},
	}}, stmt.Where)
}

func TestDescriptor_StatementAndBindsTighterThanOr(t *testing.T) {
	stmt, err := By("username").Or("age", GreaterThan).And("team.name").Statement("Member", "a", 1, "T1")
	require.NoError(t, err)

	or, ok := stmt.Where.(Or)
	require.True(t, ok)
	require.Len(t, or.Terms, 2)
	assert.IsType(t, Compare{}, or.Terms[0])
	and, ok := or.Terms[1].(And)
	require.True(t, ok)
	assert.Equal(t, NewPath("team.name"), and.Terms[1].(Compare).Left)
}

func TestDescriptor_StatementOptions(t *testing.T) {
	stmt, err := All().OrderBy(types.OrderDesc("username")).First(5).Distinct().ReadOnly().Statement("Member")
	require.NoError(t, err)

	assert.Nil(t, stmt.Where)
	assert.Equal(t, 5, stmt.Limit)
	assert.True(t, stmt.Distinct)
	assert.True(t, stmt.ReadOnly)
	assert.Equal(t, []OrderItem{{Path: NewPath("username"), Desc: true}}, stmt.OrderBy)
}

func TestDescriptor_NilEqualityBecomesNullCheck(t *testing.T) {
	stmt, err := By("team").Statement("Member", nil)
	require.NoError(t, err)
	assert.Equal(t, Compare{Left: NewPath("team"), Op: IsNull}, stmt.Where)

	stmt, err = By("team", NotEqual).Statement("Member", nil)
	require.NoError(t, err)
	assert.Equal(t, Compare{Left: NewPath("team"), Op: IsNotNull}, stmt.Where)
}

func TestDescriptor_StatementErrors(t *testing.T) {
	cases := map[string]struct {
		d    *Descriptor
		args []any
	}{
		"too few arguments":  {By("username").And("age", GreaterThan), []any{"alice"}},
		"too many arguments": {By("username"), []any{"alice", 3}},
		"in needs a slice":   {By("username", In), []any{"alice"}},
		"bytes are no list":  {By("username", NotIn), []any{[]byte("alice")}},
		"empty property":     {By(""), []any{"x"}},
		"unknown operator":   {By("age", Operator(99)), nil},
		"empty order":        {All().OrderBy(types.Order{}), nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.d.Statement("Member", tc.args...)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDescriptor_InAcceptsSlicesAndArrays(t *testing.T) {
	_, err := By("username", In).Statement("Member", []string{"a", "b"})
	assert.NoError(t, err)
	_, err = By("age", NotIn).Statement("Member", [2]int{1, 2})
	assert.NoError(t, err)
}

func TestOperator(t *testing.T) {
	assert.Equal(t, 2, Between.Arity())
	assert.Equal(t, 0, IsNull.Arity())
	assert.Equal(t, 1, In.Arity())
	assert.Equal(t, "GreaterThanEqual", GreaterThanEqual.String())
	assert.Equal(t, "Not", NotEqual.Keyword())
	assert.False(t, Operator(-1).IsValid())
	assert.Equal(t, "Unknown", Operator(42).String())
}
