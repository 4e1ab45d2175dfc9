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

	"github.com/tomoncle/datarepo/query"
	"github.com/tomoncle/datarepo/types"
)

func (r *baseRepository[T, ID]) statement(d *query.Descriptor, args []any) (*query.Statement, error) {
	if d == nil {
		d = query.All()
	}
	return d.Statement(r.table.TypeName, args...)
}

func (r *baseRepository[T, ID]) FindBy(ctx context.Context, d *query.Descriptor, args ...any) ([]*T, error) {
	stmt, err := r.statement(d, args)
	if err != nil {
		return nil, r.fail(opFind, err)
	}
	return r.find(ctx, stmt, findOptions{op: opFind})
}

func (r *baseRepository[T, ID]) FindOneBy(ctx context.Context, d *query.Descriptor, args ...any) (*T, error) {
	stmt, err := r.statement(d, args)
	if err != nil {
		return nil, r.fail(opFind, err)
	}
	return r.findOne(ctx, stmt, findOptions{op: opFind})
}

// findOne fetches at most two records to tell a unique match from an
// ambiguous one.
func (r *baseRepository[T, ID]) findOne(ctx context.Context, stmt *query.Statement, fo findOptions) (*T, error) {
	fo.limit = 2
	items, err := r.find(ctx, stmt, fo)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, r.fail(fo.op, ErrNotFound)
	case 1:
		return items[0], nil
	}
	return nil, r.fail(fo.op, ErrNonUniqueResult)
}

func (r *baseRepository[T, ID]) FindOptionalBy(ctx context.Context, d *query.Descriptor, args ...any) (types.Optional[T], error) {
	found, err := r.FindOneBy(ctx, d, args...)
	if isNotFound(err) {
		return types.Empty[T](), nil
	}
	if err != nil {
		return types.Empty[T](), err
	}
	return types.Of(found), nil
}

func (r *baseRepository[T, ID]) FindPageBy(ctx context.Context, d *query.Descriptor, req *types.PageRequest, args ...any) (*types.Page[T], error) {
	stmt, err := r.statement(d, args)
	if err != nil {
		return nil, r.fail(opFind, err)
	}
	var orders []types.Order
	if req != nil {
		orders = req.GetOrders()
	}
	c, sc, err := r.compileSelect(stmt, findOptions{orders: orders})
	if err != nil {
		return nil, r.fail(opFind, err)
	}
	return r.page(ctx, c, sc, req, opFind)
}

func (r *baseRepository[T, ID]) CountBy(ctx context.Context, d *query.Descriptor, args ...any) (int, error) {
	stmt, err := r.statement(d, args)
	if err != nil {
		return 0, r.fail(opCount, err)
	}
	return r.count(ctx, stmt, opCount)
}

func (r *baseRepository[T, ID]) ExistsBy(ctx context.Context, d *query.Descriptor, args ...any) (bool, error) {
	stmt, err := r.statement(d, args)
	if err != nil {
		return false, r.fail(opExists, err)
	}
	c, sc, err := r.compileSelect(stmt, findOptions{})
	if err != nil {
		return false, r.fail(opExists, err)
	}
	exists, err := c.apply(r.NewSelect(), sc, false).Exists(ctx)
	return exists, r.fail(opExists, err)
}

// DeleteBy deletes every matching record with one statement and empties the
// cache, since the deleted ids are not known.
func (r *baseRepository[T, ID]) DeleteBy(ctx context.Context, d *query.Descriptor, args ...any) (int64, error) {
	stmt, err := r.statement(d, args)
	if err != nil {
		return 0, r.fail(opDelete, err)
	}
	del := *stmt
	del.Kind = query.DeleteKind
	del.OrderBy, del.Limit = nil, 0
	n, err := r.exec(ctx, &del, opDelete)
	if err != nil {
		return 0, err
	}
	r.cache.purge()
	return n, nil
}

func (r *baseRepository[T, ID]) FindWithFetch(ctx context.Context, paths []string, d *query.Descriptor, args ...any) ([]*T, error) {
	stmt, err := r.statement(d, args)
	if err != nil {
		return nil, r.fail(opFindWithFetch, err)
	}
	return r.find(ctx, stmt, findOptions{op: opFindWithFetch, fetch: paths})
}

func (r *baseRepository[T, ID]) FindWithLock(ctx context.Context, mode types.LockMode, d *query.Descriptor, args ...any) ([]*T, error) {
	stmt, err := r.statement(d, args)
	if err != nil {
		return nil, r.fail(opFindWithLock, err)
	}
	return r.find(ctx, stmt, findOptions{op: opFindWithLock, lock: mode})
}
