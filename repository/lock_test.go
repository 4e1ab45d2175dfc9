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
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/datarepo/query"
	"github.com/tomoncle/datarepo/types"
)

var memberColumns = []string{"id", "username", "age", "team_id", "version", "created_date", "updated_date"}

func openMock(t *testing.T, d schema.Dialect) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, d)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestFindWithLock_RequiresTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.members.FindWithLock(context.Background(), types.LockPessimisticWrite, query.By("username"), "alice")
	assert.ErrorIs(t, err, ErrTransactionRequired)
}

func TestFindWithLock_SQLite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "alice", 20, nil)

	err := f.members.RunInTx(ctx, func(ctx context.Context, repo Repository[member, int64]) error {
		found, err := repo.FindWithLock(ctx, types.LockPessimisticWrite, query.By("username"), "alice")
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"alice"}, usernames(found))
		return nil
	})
	require.NoError(t, err)
}

func TestFindWithLock_Postgres(t *testing.T) {
	tests := []struct {
		mode   types.LockMode
		clause string
	}{
		{types.LockPessimisticWrite, `FOR UPDATE OF "member"`},
		{types.LockPessimisticRead, `FOR SHARE OF "member"`},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			ctx := context.Background()
			db, mock := openMock(t, pgdialect.New())
			repo := NewRepository[member, int64](db)

			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta(tt.clause)).
				WillReturnRows(sqlmock.NewRows(memberColumns).AddRow(1, "alice", 20, nil, 0, t0, t0))
			mock.ExpectCommit()

			err := repo.RunInTx(ctx, func(ctx context.Context, repo Repository[member, int64]) error {
				found, err := repo.FindWithLock(ctx, tt.mode, query.By("username"), "alice")
				if err != nil {
					return err
				}
				assert.Equal(t, []string{"alice"}, usernames(found))
				return nil
			})
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFindWithLock_MySQL(t *testing.T) {
	ctx := context.Background()
	db, mock := openMock(t, mysqldialect.New())
	repo := NewRepository[member, int64](db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE$`).WillReturnRows(sqlmock.NewRows(memberColumns))
	mock.ExpectCommit()

	err := repo.RunInTx(ctx, func(ctx context.Context, repo Repository[member, int64]) error {
		found, err := repo.FindWithLock(ctx, types.LockPessimisticWrite, query.By("username"), "alice")
		if err != nil {
			return err
		}
		assert.Empty(t, found)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindWithLock_Timeout(t *testing.T) {
	tests := []struct {
		name  string
		cause error
	}{
		{"pgx lock_not_available", &pgconn.PgError{Code: "55P03", Message: "could not obtain lock on row"}},
		{"pq deadlock", &pq.Error{Code: "40P01", Message: "deadlock detected"}},
		{"deadline", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db, mock := openMock(t, pgdialect.New())
			repo := NewRepository[member, int64](db)

			mock.ExpectBegin()
			mock.ExpectQuery(`FOR UPDATE`).WillReturnError(tt.cause)
			mock.ExpectRollback()

			err := repo.RunInTx(ctx, func(ctx context.Context, repo Repository[member, int64]) error {
				_, err := repo.FindWithLock(ctx, types.LockPessimisticWrite, query.By("username"), "alice")
				return err
			})
			require.ErrorIs(t, err, ErrLockTimeout)
			assert.ErrorIs(t, err, tt.cause)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSave_PostgresUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db, mock := openMock(t, pgdialect.New())
	repo := NewRepository[team, int64](db)

	mock.ExpectQuery(`INSERT INTO "teams"`).WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.Save(ctx, &team{Name: "teamA"})
	require.ErrorIs(t, err, ErrConstraintViolation)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23505", pgErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
