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

package domain

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/datarepo/database"
	"github.com/tomoncle/datarepo/repository"
	"github.com/tomoncle/datarepo/types"
)

func openSQLite(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	mm := database.NewMigrationManager(db, nil)
	mm.SetModels((*Team)(nil), (*Member)(nil))
	require.NoError(t, mm.RunMigrations(context.Background()))
	return db
}

type repos struct {
	db      *bun.DB
	teams   *TeamRepository
	members *MemberRepository
}

func newRepos(t *testing.T, opts ...repository.Option) *repos {
	db := openSQLite(t)
	return &repos{db: db, teams: NewTeamRepository(db, opts...), members: NewMemberRepository(db, opts...)}
}

func (r *repos) saveTeam(t *testing.T, name string) *Team {
	t.Helper()
	team, err := r.teams.Save(context.Background(), NewTeam(name))
	require.NoError(t, err)
	return team
}

func (r *repos) saveMember(t *testing.T, username string, age int, team *Team) *Member {
	t.Helper()
	m, err := r.members.Save(context.Background(), NewMember(username, age, team))
	require.NoError(t, err)
	return m
}

func names(members []*Member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Username
	}
	return out
}

func TestMemberRepository_FindByUsernameAndAgeGreaterThan(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.saveMember(t, "alice", 20, r.saveTeam(t, "T1"))

	found, err := r.members.FindByUsernameAndAgeGreaterThan(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alice", found[0].Username)
	assert.Equal(t, 20, found[0].Age)

	found, err = r.members.FindByUsernameAndAgeGreaterThan(ctx, "alice", 25)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMemberRepository_BulkAgePlus(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t, repository.WithCache(64))
	team := r.saveTeam(t, "T1")
	alice := r.saveMember(t, "alice", 20, team)
	bob := r.saveMember(t, "bob", 19, team)

	n, err := r.members.BulkAgePlus(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// the bulk update clears the cache, so reads see the new age
	got, err := r.members.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 21, got.Age)
	got, err = r.members.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 19, got.Age)
}

func TestMemberRepository_LiteralQueries(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	teamA := r.saveTeam(t, "teamA")
	r.saveMember(t, "alice", 20, teamA)
	r.saveMember(t, "bob", 19, teamA)
	r.saveMember(t, "carol", 30, nil)

	found, err := r.members.FindUser(ctx, "bob", 19)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, names(found))

	usernames, err := r.members.FindUsernameList(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, usernames)

	found, err = r.members.FindByNames(ctx, []string{"alice", "carol"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "carol"}, names(found))

	dtos, err := r.members.FindMemberDto(ctx)
	require.NoError(t, err)
	require.Len(t, dtos, 2)
	for _, dto := range dtos {
		assert.Equal(t, "teamA", dto.TeamName)
		assert.NotZero(t, dto.ID)
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, []string{dtos[0].Username, dtos[1].Username})
}

func TestMemberRepository_Singles(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t, repository.WithCache(64))
	r.saveMember(t, "alice", 20, nil)
	r.saveMember(t, "alice", 30, nil)
	r.saveMember(t, "bob", 19, nil)

	_, err := r.members.FindMemberByUsername(ctx, "alice")
	assert.ErrorIs(t, err, repository.ErrNonUniqueResult)

	bob, err := r.members.FindMemberByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 19, bob.Age)

	_, err = r.members.FindMemberByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	opt, err := r.members.FindOptionalByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, opt.IsPresent())

	list, err := r.members.FindListByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	r.members.ClearCache()
	ro, err := r.members.FindReadOnlyByUsername(ctx, "bob")
	require.NoError(t, err)
	cached, err := r.members.GetByID(ctx, ro.ID)
	require.NoError(t, err)
	assert.NotSame(t, ro, cached)
}

func TestMemberRepository_FindByAge(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	for _, name := range []string{"m1", "m2", "m3", "m4", "m5"} {
		r.saveMember(t, name, 10, nil)
	}
	r.saveMember(t, "older", 11, nil)

	req := types.NewPageRequest(1, 3, types.OrderDesc("username"))
	page, err := r.members.FindByAge(ctx, 10, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"m5", "m4", "m3"}, names(page.Items))
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.TotalPages())
	assert.True(t, page.HasNext)

	page, err = r.members.FindByAge(ctx, 10, req.Next())
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m1"}, names(page.Items))
	assert.False(t, page.HasNext)

	slice, err := r.members.FindSliceByAge(ctx, 10, 2, 2, types.OrderAsc("username"))
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m4"}, names(slice.Items))
	assert.True(t, slice.HasNext)
	assert.False(t, slice.Counted)
}

func TestMemberRepository_FetchJoins(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	teamA := r.saveTeam(t, "teamA")
	r.saveMember(t, "alice", 20, teamA)
	r.saveMember(t, "carol", 30, nil)

	plain, err := r.members.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.False(t, plain[0].TeamRef().IsLoaded())
	_, err = plain[0].TeamRef().Get()
	assert.ErrorIs(t, err, types.ErrNotLoaded)

	for _, find := range []func(context.Context) ([]*Member, error){r.members.FindMemberFetchJoin, r.members.FindAllWithTeam, r.members.FindMemberEntityGraph} {
		members, err := find(ctx)
		require.NoError(t, err)
		require.Len(t, members, 2)
		for _, m := range members {
			team, err := m.TeamRef().Get()
			require.NoError(t, err)
			if m.Username == "alice" {
				require.NotNil(t, team)
				assert.Equal(t, "teamA", team.Name)
			} else {
				assert.Nil(t, team)
			}
		}
	}

	graph, err := r.members.FindEntityGraphByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, graph, 1)
	assert.True(t, graph[0].TeamRef().IsLoaded())
}

func TestMemberRepository_FindLockByUsername(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.saveMember(t, "alice", 20, nil)

	_, err := r.members.FindLockByUsername(ctx, "alice")
	require.ErrorIs(t, err, repository.ErrTransactionRequired)

	err = database.Transactional(ctx, r.db, nil, func(ctx context.Context, tx bun.Tx) error {
		members := r.members.WithTx(tx)
		locked, err := members.FindLockByUsername(ctx, "alice")
		if err != nil {
			return err
		}
		if len(locked) != 1 {
			return fmt.Errorf("locked %d members", len(locked))
		}
		locked[0].Age = 21
		_, err = members.Save(ctx, locked[0])
		return err
	})
	require.NoError(t, err)

	got, err := r.members.FindMemberByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 21, got.Age)
	assert.Equal(t, int64(1), got.Version)
}
