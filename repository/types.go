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

// Package repository provides a generic repository over bun models with
// derived and literal queries.
//
// A repository is declared per record type:
//
//	members := repository.NewRepository[Member, int64](db, repository.WithCache(256))
//	byName := query.By("username").And("age", query.GreaterThan)
//	found, err := members.FindBy(ctx, byName, "alice", 10)
//
// Literal queries use entity and property names with :name placeholders:
//
//	members.Query(ctx, "select m from Member m where m.username = :u", query.Params{"u": "alice"})
package repository

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/datarepo/query"
	"github.com/tomoncle/datarepo/types"
)

// CrudRepository defines basic CRUD operations for a record type.
type CrudRepository[T any, ID comparable] interface {
	// Save inserts entity when its key is zero and updates it otherwise.
	Save(ctx context.Context, entity *T) (*T, error)
	SaveAll(ctx context.Context, entities ...*T) ([]*T, error)

	FindByID(ctx context.Context, id ID) (types.Optional[T], error)
	// GetByID is FindByID failing with ErrNotFound.
	GetByID(ctx context.Context, id ID) (*T, error)
	ExistsByID(ctx context.Context, id ID) (bool, error)
	FindAll(ctx context.Context, orders ...types.Order) ([]*T, error)
	FindAllByID(ctx context.Context, ids ...ID) ([]*T, error)
	Count(ctx context.Context) (int, error)

	Delete(ctx context.Context, entity *T) error
	DeleteByID(ctx context.Context, id ID) error

	Upsert(ctx context.Context, fields []string, duplicateKeys []string, entities ...*T) error
}

// PageQueryRepository defines pagination over all records.
type PageQueryRepository[T any] interface {
	FindPage(ctx context.Context, req *types.PageRequest) (*types.Page[T], error)
}

// DerivedQueryRepository runs queries described by a query.Descriptor.
// Arguments bind to the descriptor's comparisons in declared order.
type DerivedQueryRepository[T any] interface {
	FindBy(ctx context.Context, d *query.Descriptor, args ...any) ([]*T, error)
	// FindOneBy fails with ErrNotFound or ErrNonUniqueResult unless exactly
	// one record matches.
	FindOneBy(ctx context.Context, d *query.Descriptor, args ...any) (*T, error)
	// FindOptionalBy is FindOneBy returning an empty Optional when nothing
	// matches.
	FindOptionalBy(ctx context.Context, d *query.Descriptor, args ...any) (types.Optional[T], error)
	FindPageBy(ctx context.Context, d *query.Descriptor, req *types.PageRequest, args ...any) (*types.Page[T], error)
	CountBy(ctx context.Context, d *query.Descriptor, args ...any) (int, error)
	ExistsBy(ctx context.Context, d *query.Descriptor, args ...any) (bool, error)
	DeleteBy(ctx context.Context, d *query.Descriptor, args ...any) (int64, error)

	// FindWithFetch is FindBy loading the named relations, e.g. "team".
	FindWithFetch(ctx context.Context, paths []string, d *query.Descriptor, args ...any) ([]*T, error)
	// FindWithLock is FindBy taking row locks until the transaction ends.
	// The repository must be bound to a transaction.
	FindWithLock(ctx context.Context, mode types.LockMode, d *query.Descriptor, args ...any) ([]*T, error)
}

// LiteralQueryRepository runs literal queries selecting whole records.
type LiteralQueryRepository[T any] interface {
	Query(ctx context.Context, q string, params query.Params) ([]*T, error)
	// QueryWithFetch is Query loading the named relations, e.g. "team",
	// without fetch joins written into q.
	QueryWithFetch(ctx context.Context, paths []string, q string, params query.Params) ([]*T, error)
	QueryOne(ctx context.Context, q string, params query.Params) (*T, error)
	QueryPage(ctx context.Context, q string, params query.Params, req *types.PageRequest) (*types.Page[T], error)
	// BulkUpdate runs a literal update or delete statement and returns the
	// number of affected rows. Audit fields are not stamped and cached
	// records are left as they are unless ClearCache is passed.
	BulkUpdate(ctx context.Context, q string, params query.Params, opts ...BulkOption) (int64, error)
}

// Repository combines every operation on a record type and exposes bun
// query builders for anything else.
type Repository[T any, ID comparable] interface {
	CrudRepository[T, ID]
	PageQueryRepository[T]
	DerivedQueryRepository[T]
	LiteralQueryRepository[T]

	// WithTx returns a repository sharing this one's cache and options that
	// runs every statement in tx.
	WithTx(tx bun.Tx) Repository[T, ID]
	// RunInTx calls fn with a transaction-bound repository, committing when
	// fn returns nil.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository[T, ID]) error) error
	InTx() bool
	// ClearCache empties the first-level cache.
	ClearCache()

	Dialect() schema.Dialect
	DB() bun.IDB
	NewSelect() *bun.SelectQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery

	base() *baseRepository[T, ID]
}
