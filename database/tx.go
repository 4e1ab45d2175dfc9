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
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type txIDKey struct{}

// TxID returns the id Transactional attached to ctx.
func TxID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(txIDKey{}).(string)
	return id, ok
}

// Transactional runs fn in a transaction on db. The transaction is committed
// when fn returns nil and rolled back otherwise. ctx passed to fn carries a
// transaction id, reported by the query hooks and by TxID.
func Transactional(ctx context.Context, db bun.IDB, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	id := uuid.NewString()
	ctx = context.WithValue(ctx, txIDKey{}, id)
	logger := GetLogger()
	start := time.Now()
	logger.Debug("transaction begin", "tx", id)
	err := db.RunInTx(ctx, opts, fn)
	if err != nil {
		logger.Debug("transaction rolled back", "tx", id, "error", err, "elapsed", time.Since(start))
		return err
	}
	logger.Debug("transaction committed", "tx", id, "elapsed", time.Since(start))
	return nil
}
