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
	"reflect"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/uptrace/bun"

	"github.com/tomoncle/datarepo/query"
	"github.com/tomoncle/datarepo/types"
)

const statementCacheSize = 512

// statements caches parsed literal queries. Cached statements are shared
// and never modified; binding works on a copy.
var statements, _ = lru.New[string, *query.Statement](statementCacheSize)

func parse(q string) (*query.Statement, error) {
	if stmt, ok := statements.Get(q); ok {
		return stmt, nil
	}
	stmt, err := query.Parse(q)
	if err != nil {
		return nil, err
	}
	statements.Add(q, stmt)
	return stmt, nil
}

func bind(q string, params query.Params) (*query.Statement, error) {
	stmt, err := parse(q)
	if err != nil {
		return nil, err
	}
	return stmt.Bind(params)
}

func (r *baseRepository[T, ID]) Query(ctx context.Context, q string, params query.Params) ([]*T, error) {
	stmt, err := bind(q, params)
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	return r.find(ctx, stmt, findOptions{op: opQuery})
}

// QueryWithFetch runs q with the relations named by paths fetch joined,
// as if the query spelled out a left join fetch for each.
func (r *baseRepository[T, ID]) QueryWithFetch(ctx context.Context, paths []string, q string, params query.Params) ([]*T, error) {
	stmt, err := bind(q, params)
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	return r.find(ctx, stmt, findOptions{op: opQuery, fetch: paths})
}

func (r *baseRepository[T, ID]) QueryOne(ctx context.Context, q string, params query.Params) (*T, error) {
	stmt, err := bind(q, params)
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	return r.findOne(ctx, stmt, findOptions{op: opQuery})
}

// QueryPage runs q one page at a time. The request's orders apply after
// the query's own order by clause.
func (r *baseRepository[T, ID]) QueryPage(ctx context.Context, q string, params query.Params, req *types.PageRequest) (*types.Page[T], error) {
	stmt, err := bind(q, params)
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	var orders []types.Order
	if req != nil {
		orders = req.GetOrders()
	}
	c, sc, err := r.compileSelect(stmt, findOptions{orders: orders})
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	return r.page(ctx, c, sc, req, opQuery)
}

func (r *baseRepository[T, ID]) BulkUpdate(ctx context.Context, q string, params query.Params, opts ...BulkOption) (int64, error) {
	var bo bulkOptions
	for _, opt := range opts {
		opt(&bo)
	}
	stmt, err := bind(q, params)
	if err != nil {
		return 0, r.fail(opBulkUpdate, err)
	}
	if stmt.Kind == query.SelectKind {
		return 0, r.fail(opBulkUpdate, malformed("expected an update or delete statement"))
	}
	n, err := r.exec(ctx, stmt, opBulkUpdate)
	if err != nil {
		return 0, err
	}
	if bo.clearCache {
		r.cache.purge()
	}
	r.logger.Debug("bulk statement executed", "entity", r.table.TypeName, "kind", stmt.Kind.String(), "affected", n, "cache_cleared", bo.clearCache)
	return n, nil
}

// valueQuery compiles a select whose projection is not the entity.
func valueQuery[T any, ID comparable](r *baseRepository[T, ID], stmt *query.Statement, names []string) (*bun.SelectQuery, error) {
	c, sc, err := r.compileSelect(stmt, findOptions{})
	if err != nil {
		return nil, err
	}
	if c.hasFetch() {
		return nil, malformed("fetch joins need a query selecting %s", r.table.TypeName)
	}
	cols, err := c.projection(names)
	if err != nil {
		return nil, err
	}
	q := r.NewSelect()
	for _, col := range cols {
		q = q.ColumnExpr(col.sql, col.args...)
	}
	counting := stmt.Projection.Kind == query.ProjectCount
	if stmt.Distinct && !counting {
		q = q.Distinct()
	}
	return c.apply(q, sc, !counting), nil
}

// Scalars runs a literal query selecting one property, or a count, and
// returns the values:
//
//	names, err := repository.Scalars[string](ctx, members, "select m.username from Member m", nil)
func Scalars[V any, T any, ID comparable](ctx context.Context, repo Repository[T, ID], q string, params query.Params) ([]V, error) {
	r := repo.base()
	stmt, err := bind(q, params)
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	p := stmt.Projection
	if p.Kind != query.ProjectCount && (p.Kind != query.ProjectPaths || len(p.Paths) != 1) {
		return nil, r.fail(opQuery, malformed("Scalars needs a query selecting one value"))
	}
	sq, err := valueQuery(r, stmt, nil)
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	values := make([]V, 0)
	if err := sq.Scan(ctx, &values); err != nil {
		return nil, r.fail(opQuery, err)
	}
	return values, nil
}

// Project runs a literal constructor query, such as
//
//	select new MemberDto(m.id, m.username, t.name) from Member m join m.team t
//
// and returns one D per row. The constructor must be named after D, and
// its arguments fill D's fields in declaration order.
func Project[D any, T any, ID comparable](ctx context.Context, repo Repository[T, ID], q string, params query.Params) ([]*D, error) {
	r := repo.base()
	stmt, err := bind(q, params)
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	dto := reflect.TypeOf((*D)(nil)).Elem()
	p := stmt.Projection
	switch p.Kind {
	case query.ProjectConstructor:
		if p.ConstructorName() != dto.Name() {
			return nil, r.fail(opQuery, malformed("constructor %s does not build %s", p.Constructor, dto.Name()))
		}
	case query.ProjectPaths:
	default:
		return nil, r.fail(opQuery, malformed("Project needs a constructor or property projection"))
	}
	names := columnsOf(r.Dialect(), dto)
	if len(names) != len(p.Paths) {
		return nil, r.fail(opQuery, malformed("%s has %d fields, query selects %d values", dto.Name(), len(names), len(p.Paths)))
	}
	sq, err := valueQuery(r, stmt, names)
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	items := make([]*D, 0)
	if err := sq.Scan(ctx, &items); err != nil {
		return nil, r.fail(opQuery, err)
	}
	return items, nil
}

// Rows runs any literal select and returns each row as a column map. Entity
// projections return the entity's columns; property projections name each
// column after its path.
func Rows[T any, ID comparable](ctx context.Context, repo Repository[T, ID], q string, params query.Params) ([]map[string]interface{}, error) {
	r := repo.base()
	stmt, err := bind(q, params)
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	var sq *bun.SelectQuery
	switch p := stmt.Projection; p.Kind {
	case query.ProjectEntity:
		c, sc, err := r.compileSelect(stmt, findOptions{})
		if err != nil {
			return nil, r.fail(opQuery, err)
		}
		if c.hasFetch() {
			return nil, r.fail(opQuery, malformed("fetch joins need a typed result; use Query"))
		}
		sq = r.NewSelect()
		if stmt.Distinct {
			sq = sq.Distinct()
		}
		sq = c.apply(sq, sc, true)
	case query.ProjectCount:
		sq, err = valueQuery(r, stmt, []string{"count"})
	default:
		names := make([]string, len(p.Paths))
		for i, path := range p.Paths {
			names[i] = strings.ReplaceAll(path.String(), ".", "_")
		}
		sq, err = valueQuery(r, stmt, names)
	}
	if err != nil {
		return nil, r.fail(opQuery, err)
	}
	rows := make([]map[string]interface{}, 0)
	if err := sq.Scan(ctx, &rows); err != nil {
		return nil, r.fail(opQuery, err)
	}
	return rows, nil
}
