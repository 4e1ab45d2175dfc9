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

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/datarepo/domain"
	"github.com/tomoncle/datarepo/query"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"age=20", "name=alice", "names=alice, bob,3", "empty="})
	require.NoError(t, err)
	assert.Equal(t, query.Params{
		"age":   int64(20),
		"name":  "alice",
		"names": []any{"alice", "bob", int64(3)},
		"empty": "",
	}, params)

	for _, bad := range []string{"age", "=20"} {
		_, err := parseParams([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestCellText(t *testing.T) {
	assert.Equal(t, "NULL", cellText(nil))
	assert.Equal(t, "abc", cellText([]byte("abc")))
	assert.Equal(t, "42", cellText(int64(42)))
}

func TestRenderMaps(t *testing.T) {
	out := renderMaps([]map[string]interface{}{
		{"m_username": "alice", "m_age": int64(20)},
		{"m_username": "bob", "t_name": nil},
	})
	for _, want := range []string{"m_age", "m_username", "t_name", "alice", "bob", "NULL"} {
		assert.Contains(t, out, want)
	}
}

func TestMemberRow(t *testing.T) {
	updated := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	team := &domain.Team{ID: 7, Name: "teamA"}

	m := domain.NewMember("alice", 20, team)
	m.ID, m.Version, m.UpdatedDate = 1, 2, updated
	assert.Equal(t, []string{"1", "alice", "20", "teamA", "2", "2025-03-01 09:30:00"}, memberRow(m))

	m.Team = nil
	assert.Equal(t, "#7", memberRow(m)[3])

	m.TeamID = nil
	assert.Equal(t, "-", memberRow(m)[3])
	assert.Len(t, memberHeaders, len(memberRow(m)))
}
