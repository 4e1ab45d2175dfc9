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
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/datarepo/types"
)

type team struct {
	bun.BaseModel `bun:"table:teams,alias:team"`

	ID      int64     `bun:"id,pk,autoincrement"`
	Name    string    `bun:"name,notnull,unique"`
	Members []*member `bun:"rel:has-many,join:id=team_id"`
	types.Audited
}

type member struct {
	bun.BaseModel `bun:"table:members,alias:member"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Username string `bun:"username,notnull"`
	Age      int    `bun:"age,notnull"`
	TeamID   *int64 `bun:"team_id"`
	Team     *team  `bun:"rel:belongs-to,join:team_id=id"`
	Version  int64  `bun:"version,notnull"`
	types.Audited
}

type memberSummary struct {
	ID       int64
	Username string
	TeamName string
}

// fixedClock returns a clock that reports now until advanced.
type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func openSQLite(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []any{(*team)(nil), (*member)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

type fixture struct {
	db      *bun.DB
	teams   Repository[team, int64]
	members Repository[member, int64]
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := openSQLite(t)
	return &fixture{
		db:      db,
		teams:   NewRepository[team, int64](db, opts...),
		members: NewRepository[member, int64](db, opts...),
	}
}

func (f *fixture) team(t *testing.T, name string) *team {
	t.Helper()
	saved, err := f.teams.Save(context.Background(), &team{Name: name})
	require.NoError(t, err)
	return saved
}

func (f *fixture) member(t *testing.T, username string, age int, tm *team) *member {
	t.Helper()
	m := &member{Username: username, Age: age}
	if tm != nil {
		m.TeamID = &tm.ID
	}
	saved, err := f.members.Save(context.Background(), m)
	require.NoError(t, err)
	return saved
}

func usernames(items []*member) []string {
	names := make([]string, len(items))
	for i, m := range items {
		names[i] = m.Username
	}
	return names
}
