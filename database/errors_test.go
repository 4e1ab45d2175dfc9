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
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want SQLError
	}{
		{"nil", nil, UnknownErr},
		{"no rows", sql.ErrNoRows, NoRowsErr},
		{"wrapped no rows", fmt.Errorf("find: %w", sql.ErrNoRows), NoRowsErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, DuplicateKeyErr},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, LockTimeoutErr},
		{"mysql deadlock", fmt.Errorf("save: %w", &mysql.MySQLError{Number: 1213}), DeadlockErr},
		{"mysql unmapped", &mysql.MySQLError{Number: 9999}, UnknownErr},
		{"pq unique", &pq.Error{Code: "23505"}, DuplicateKeyErr},
		{"pq fk", &pq.Error{Code: "23503"}, ForeignKeyViolationErr},
		{"pgx lock", &pgconn.PgError{Code: "55P03"}, LockTimeoutErr},
		{"pgx not null", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23502"}), NotNullViolationErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: teams.name (2067)"), DuplicateKeyErr},
		{"sqlite not null", errors.New("NOT NULL constraint failed: members.username"), NotNullViolationErr},
		{"sqlite fk", errors.New("FOREIGN KEY constraint failed"), ForeignKeyViolationErr},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), LockTimeoutErr},
		{"sqlite table", errors.New("SQL logic error: no such table: members (1)"), NoTableErr},
		{"sqlite column", errors.New("no such column: member.nickname"), NoColumnErr},
		{"unrelated", errors.New("boom"), UnknownErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestIsSqlError(t *testing.T) {
	is, kind := IsSqlError(&mysql.MySQLError{Number: 9999})
	assert.True(t, is)
	assert.Equal(t, UnknownErr, kind)

	is, _ = IsSqlError(errors.New("boom"))
	assert.False(t, is)

	is, _ = IsSqlError(nil)
	assert.False(t, is)
}

func TestSQLError(t *testing.T) {
	assert.True(t, DuplicateKeyErr.IsConstraintViolation())
	assert.True(t, ForeignKeyViolationErr.IsConstraintViolation())
	assert.False(t, LockTimeoutErr.IsConstraintViolation())
	assert.Equal(t, "duplicate key", DuplicateKeyErr.String())
	assert.Equal(t, "unknown", SQLError(100).String())
}
