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

package database

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
)

// openSQLite returns a private in-memory database.
func openSQLite(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrationManager_RunMigrations(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	mm := NewMigrationManager(db, nil)
	mm.SetModels((*fkTeam)(nil), (*fkMember)(nil))
	mm.SetMigrateConfig(DataMigrateConfig{EnableForeignKey: true})
	require.NoError(t, mm.RunMigrations(ctx))

	_, err := db.NewInsert().Model(&fkTeam{Name: "teamA"}).Exec(ctx)
	require.NoError(t, err)

	// a second run skips what is already applied
	require.NoError(t, mm.RunMigrations(ctx))
	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "001", applied[0].Version)
	assert.Equal(t, "create_base_tables", applied[0].Name)

	count, err := db.NewSelect().Model((*fkTeam)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMigrationManager_Rollback(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	mm := NewMigrationManager(db, nil)
	mm.SetModels((*fkTeam)(nil), (*fkMember)(nil))
	require.NoError(t, mm.RunMigrations(ctx))
	require.NoError(t, mm.RollbackMigration(ctx, "001"))

	_, err := db.NewSelect().Model((*fkTeam)(nil)).Count(ctx)
	require.Error(t, err)
	assert.Equal(t, NoTableErr, ClassifyError(err))

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	assert.ErrorContains(t, mm.RollbackMigration(ctx, "999"), "unknown migration version")
}

func TestMigrationManager_SeedsOnMigration(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	root := t.TempDir()
	writeFile(t, root, "common/001_teams.sql", "INSERT INTO fk_teams (name) VALUES ('teamA');\nINSERT INTO fk_teams (name) VALUES ('teamB');\n")
	writeFile(t, root, "environments/test/001_members.sql", "-- {{.ENVIRONMENT}} members\nINSERT INTO fk_members (username, team_id) VALUES ('{{.ENVIRONMENT}}-alice', 1);\n")

	mm := NewMigrationManager(db, nil)
	mm.SetModels((*fkTeam)(nil), (*fkMember)(nil))
	mm.SetInitConfig(DataInitConfig{AutoInitOnMigration: true, Filepath: root})
	mm.SetEnvironment("test")
	require.NoError(t, mm.RunMigrations(ctx))

	var members []fkMember
	require.NoError(t, db.NewSelect().Model(&members).Scan(ctx))
	require.Len(t, members, 1)
	assert.Equal(t, "test-alice", members[0].Username)

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 2)
}

func TestMigrationManager_FailedSeedRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	root := t.TempDir()
	writeFile(t, root, "common/001_bad.sql", "INSERT INTO nowhere (x) VALUES (1);\n")

	mm := NewMigrationManager(db, nil)
	mm.SetModels((*fkTeam)(nil))
	mm.SetInitConfig(DataInitConfig{AutoInitOnMigration: true, Filepath: root, Environment: "dev"})
	err := mm.RunMigrations(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "003")

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "001", applied[0].Version)
}

func TestModelRegistry(t *testing.T) {
	r := newModelRegistry()
	r.Register(NewModelAdapter((*fkMember)(nil), 20))
	r.Register(NewModelAdapter((*fkTeam)(nil), 10))
	r.Register(NewModelAdapter((*fkTicket)(nil), 20))
	// re-registering a type replaces it
	r.Register(NewModelAdapter((*fkMember)(nil), 15))

	models := r.Models()
	require.Len(t, models, 3)
	assert.IsType(t, (*fkTeam)(nil), models[0].Instance())
	assert.IsType(t, (*fkMember)(nil), models[1].Instance())
	assert.Equal(t, 15, models[1].Priority())
	assert.IsType(t, (*fkTicket)(nil), models[2].Instance())
}

func TestTransactional(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	_, err := db.NewCreateTable().Model((*fkTeam)(nil)).Exec(ctx)
	require.NoError(t, err)

	var seen string
	err = Transactional(ctx, db, nil, func(ctx context.Context, tx bun.Tx) error {
		seen, _ = TxID(ctx)
		_, err := tx.NewInsert().Model(&fkTeam{Name: "kept"}).Exec(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, seen, 36)

	boom := fmt.Errorf("boom")
	err = Transactional(ctx, db, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&fkTeam{Name: "dropped"}).Exec(ctx); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var names []string
	require.NoError(t, db.NewSelect().Model((*fkTeam)(nil)).Column("name").Scan(ctx, &names))
	assert.Equal(t, []string{"kept"}, names)

	_, ok := TxID(ctx)
	assert.False(t, ok)
}
