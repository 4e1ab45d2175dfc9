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
)

func TestStatement_Bind(t *testing.T) {
	stmt := MustParse("update Member m set m.age = m.age + :delta where m.age >= :age and m.username in :names")

	bound, err := stmt.Bind(Params{"delta": 1, "age": 20, "names": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Empty(t, bound.ParamNames())
	assert.Equal(t, Arith{Op: '+', Left: NewPath("m.age"), Right: Literal{Value: 1}}, bound.Set[0].Value)

	and := bound.Where.(And)
	assert.Equal(t, []Expr{Literal{Value: 20}}, and.Terms[0].(Compare).Args)
	assert.Equal(t, []Expr{Literal{Value: []string{"a", "b"}}}, and.Terms[1].(Compare).Args)

	// the parsed statement is left untouched
	assert.Equal(t, []string{"delta", "age", "names"}, stmt.ParamNames())
}

func TestStatement_BindRepeatedParam(t *testing.T) {
	stmt := MustParse("select m from Member m where m.age > :n or m.version > :n")
	bound, err := stmt.Bind(Params{"n": 3})
	require.NoError(t, err)
	or := bound.Where.(Or)
	assert.Equal(t, []Expr{Literal{Value: 3}}, or.Terms[1].(Compare).Args)
}

func TestStatement_BindErrors(t *testing.T) {
	stmt := MustParse("select m from Member m where m.username = :username and m.age = :age")

	_, err := stmt.Bind(Params{"username": "alice"})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "age")

	_, err = stmt.Bind(Params{"username": "alice", "age": 3, "team": "T1", "extra": 1})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "extra, team")

	_, err = MustParse("select m from Member m").Bind(Params{"x": 1})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestStatement_BindNil(t *testing.T) {
	bound, err := MustParse("select m from Member m").Bind(nil)
	require.NoError(t, err)
	assert.Nil(t, bound.Where)
}
