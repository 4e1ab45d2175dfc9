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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/datarepo/query"
	"github.com/tomoncle/datarepo/types"
)

func TestQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f)

	found, err := f.members.Query(ctx,
		"select m from Member m join m.team t where t.name = :name order by m.username desc",
		query.Params{"name": "teamA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, usernames(found))
	assert.Nil(t, found[0].Team)

	found, err = f.members.Query(ctx,
		"select m from Member m where m.username in :names or (m.age between 40 and 50 and not m.teamId is not null) order by m.age",
		query.Params{"names": []string{"carol", "bob"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol", "dave"}, usernames(found))

	found, err = f.members.Query(ctx,
		"select m from Member m left join fetch m.team where m.age >= :age order by m.age",
		query.Params{"age": 30})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.NotNil(t, found[0].Team)
	assert.Equal(t, "teamB", found[0].Team.Name)
	assert.Nil(t, found[1].Team)

	// an inner fetch join drops members without a team
	found, err = f.members.Query(ctx, "select m from Member m join fetch m.team where m.age >= :age", query.Params{"age": 30})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, usernames(found))

	teams, err := f.teams.Query(ctx,
		"select t from Team t left join fetch t.members where t.name = :name", query.Params{"name": "teamA"})
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.ElementsMatch(t, []string{"alice", "bob"}, usernames(teams[0].Members))
}

func TestQueryWithFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f)

	found, err := f.members.QueryWithFetch(ctx, []string{"team"},
		"select m from Member m where m.age >= :age order by m.age", query.Params{"age": 30})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "dave"}, usernames(found))
	require.NotNil(t, found[0].Team)
	assert.Equal(t, "teamB", found[0].Team.Name)
	assert.Nil(t, found[1].Team)

	// a path the query already fetches is joined once
	found, err = f.members.QueryWithFetch(ctx, []string{"team"},
		"select m from Member m left join fetch m.team where m.username = :u", query.Params{"u": "alice"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.NotNil(t, found[0].Team)
	assert.Equal(t, "teamA", found[0].Team.Name)

	teams, err := f.teams.QueryWithFetch(ctx, []string{"members"}, "select t from Team t where t.name = :n", query.Params{"n": "teamB"})
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, []string{"carol"}, usernames(teams[0].Members))

	_, err = f.members.QueryWithFetch(ctx, []string{"team"}, "select m from Member m join m.team t", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
	_, err = f.members.QueryWithFetch(ctx, []string{"squad"}, "select m from Member m", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
}

func TestQuery_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name   string
		q      string
		params query.Params
	}{
		{"syntax", "select m form Member m", nil},
		{"missing parameter", "select m from Member m where m.age > :age", nil},
		{"unused parameter", "select m from Member m", query.Params{"age": 1}},
		{"wrong entity", "select t from Team t", nil},
		{"unknown property", "select m from Member m where m.nickname = 'x'", nil},
		{"unknown alias", "select m from Member m join x.team t", nil},
		{"values", "select m.username from Member m", nil},
		{"update", "update Member m set m.age = 1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.members.Query(ctx, tt.q, tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedQuery)
			var re *Error
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "query", re.Op)
		})
	}
}

func TestQueryOneAndPage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f)

	m, err := f.members.QueryOne(ctx, "select m from Member m where m.username = :u", query.Params{"u": "dave"})
	require.NoError(t, err)
	assert.Equal(t, 45, m.Age)

	_, err = f.members.QueryOne(ctx, "select m from Member m where m.age > 0", nil)
	assert.ErrorIs(t, err, ErrNonUniqueResult)

	_, err = f.members.QueryOne(ctx, "select m from Member m where m.age > 100", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := f.members.QueryPage(ctx, "select m from Member m where m.age > :age", query.Params{"age": 19},
		types.NewPageRequest(1, 2, types.OrderDesc("age")))
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "carol"}, usernames(page.Items))
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasNext)
}

func TestBulkUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tm := f.team(t, "T1")
	alice := f.member(t, "alice", 20, tm)
	bob := f.member(t, "bob", 19, tm)

	n, err := f.members.BulkUpdate(ctx, "update Member m set m.age = m.age + 1 where m.age >= :age", query.Params{"age": 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.members.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 21, got.Age)
	got, err = f.members.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 19, got.Age)

	n, err = f.members.BulkUpdate(ctx, "delete from Member where age < :age", query.Params{"age": 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.members.BulkUpdate(ctx, "select m from Member m", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
	_, err = f.members.BulkUpdate(ctx, "update Member m set m.team.name = 'x'", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
	_, err = f.members.BulkUpdate(ctx, "update Member m set m.age = :age", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
}

func TestScalars(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f)

	names, err := Scalars[string](ctx, f.members, "select m.username from Member m where m.age > :age order by m.username", query.Params{"age": 19})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol", "dave"}, names)

	counts, err := Scalars[int](ctx, f.members, "select count(m) from Member m join m.team t where t.name = :name", query.Params{"name": "teamA"})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, counts)

	counts, err = Scalars[int](ctx, f.members, "select distinct count(m.teamId) from Member m", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, counts)

	teamNames, err := Scalars[string](ctx, f.members, "select distinct t.name from Member m join m.team t order by t.name", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"teamA", "teamB"}, teamNames)

	_, err = Scalars[string](ctx, f.members, "select m.username, m.age from Member m", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
	_, err = Scalars[string](ctx, f.members, "select m from Member m", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
}

func TestProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f)

	rows, err := Project[memberSummary](ctx, f.members,
		"select new memberSummary(m.id, m.username, t.name) from Member m join m.team t order by m.username", nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "alice", rows[0].Username)
	assert.Equal(t, "teamA", rows[0].TeamName)
	assert.NotZero(t, rows[0].ID)
	assert.Equal(t, "teamB", rows[2].TeamName)

	plain, err := Project[memberSummary](ctx, f.members,
		"select m.id, m.username, t.name from Member m join m.team t where m.username = :u", query.Params{"u": "carol"})
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.Equal(t, "teamB", plain[0].TeamName)

	_, err = Project[memberSummary](ctx, f.members, "select new other.Summary(m.id, m.username, m.age) from Member m", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
	_, err = Project[memberSummary](ctx, f.members, "select new memberSummary(m.id) from Member m", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
	_, err = Project[memberSummary](ctx, f.members, "select count(m) from Member m", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
}

func TestRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f)

	rows, err := Rows(ctx, f.members, "select m.username, t.name from Member m join m.team t where m.username = :u", query.Params{"u": "carol"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "carol", rows[0]["m_username"])
	assert.Equal(t, "teamB", rows[0]["t_name"])

	rows, err = Rows(ctx, f.members, "select count(m) from Member m", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 4, rows[0]["count"])

	rows, err = Rows(ctx, f.members, "select m from Member m where m.username = :u", query.Params{"u": "dave"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "dave", rows[0]["username"])
	assert.EqualValues(t, 45, rows[0]["age"])

	_, err = Rows(ctx, f.members, "select m from Member m join fetch m.team", nil)
	assert.ErrorIs(t, err, ErrMalformedQuery)
}
