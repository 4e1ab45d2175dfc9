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
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/datarepo/database"
	"github.com/tomoncle/datarepo/query"
	"github.com/tomoncle/datarepo/types"
)

const (
	opSave          = "save"
	opFind          = "find"
	opCount         = "count"
	opExists        = "exists"
	opDelete        = "delete"
	opUpsert        = "upsert"
	opQuery         = "query"
	opBulkUpdate    = "bulk update"
	opFindWithFetch = "find with fetch"
	opFindWithLock  = "find with lock"
)

type baseRepository[T any, ID comparable] struct {
	db      bun.IDB
	table   *schema.Table
	pk      *schema.Field
	version *schema.Field
	opts    options
	cache   *identityCache[ID, T]
	logger  database.Logger
	tx      bool
}

// NewRepository returns a repository for T over db, which may be a *bun.DB
// or a bun.Tx. T must be a bun model with a single-column primary key whose
// Go type is ID.
func NewRepository[T any, ID comparable](db bun.IDB, opts ...Option) Repository[T, ID] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	table := db.Dialect().Tables().Get(reflect.TypeOf((*T)(nil)).Elem())
	if len(table.PKs) != 1 {
		panic(fmt.Sprintf("repository: %s must have exactly one primary key column, has %d", table.TypeName, len(table.PKs)))
	}
	logger := o.logger
	if logger == nil {
		logger = database.GetLogger()
	}
	cache, _ := newIdentityCache[ID, T](o.cacheSize)
	_, tx := db.(bun.Tx)
	return &baseRepository[T, ID]{
		db:      db,
		table:   table,
		pk:      table.PKs[0],
		version: versionField(table),
		opts:    o,
		cache:   cache,
		logger:  logger,
		tx:      tx,
	}
}

func (r *baseRepository[T, ID]) base() *baseRepository[T, ID] { return r }

func (r *baseRepository[T, ID]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepository[T, ID]) DB() bun.IDB { return r.db }

func (r *baseRepository[T, ID]) InTx() bool { return r.tx }

func (r *baseRepository[T, ID]) NewSelect() *bun.SelectQuery {
	return r.db.NewSelect().Model((*T)(nil))
}

func (r *baseRepository[T, ID]) NewUpdate() *bun.UpdateQuery {
	return r.db.NewUpdate().Model((*T)(nil))
}

func (r *baseRepository[T, ID]) NewDelete() *bun.DeleteQuery {
	return r.db.NewDelete().Model((*T)(nil))
}

func (r *baseRepository[T, ID]) WithTx(tx bun.Tx) Repository[T, ID] {
	c := *r
	c.db = tx
	c.tx = true
	return &c
}

func (r *baseRepository[T, ID]) RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository[T, ID]) error) error {
	return database.Transactional(ctx, r.db, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, r.WithTx(tx))
	})
}

func (r *baseRepository[T, ID]) ClearCache() { r.cache.purge() }

func (r *baseRepository[T, ID]) idOf(entity *T) ID {
	v := r.pk.Value(reflect.ValueOf(entity).Elem())
	if id, ok := v.Interface().(ID); ok {
		return id
	}
	var id ID
	if t := reflect.TypeOf(id); t != nil && v.Type().ConvertibleTo(t) {
		id = v.Convert(t).Interface().(ID)
	}
	return id
}

func (r *baseRepository[T, ID]) isNew(entity *T) bool {
	return r.pk.HasZeroValue(reflect.ValueOf(entity).Elem())
}

// remember caches records read outside a transaction. Records read inside
// one may be rolled back, so they are never cached.
func (r *baseRepository[T, ID]) remember(readOnly bool, items ...*T) {
	if r.cache == nil || readOnly {
		return
	}
	for _, item := range items {
		if r.tx {
			r.cache.evict(r.idOf(item))
		} else {
			r.cache.put(r.idOf(item), item)
		}
	}
}

func (r *baseRepository[T, ID]) Save(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, r.fail(opSave, errors.New("nil entity"))
	}
	now := r.opts.clock()
	if r.isNew(entity) {
		if err := r.insert(ctx, entity, now); err != nil {
			return nil, err
		}
		return entity, nil
	}
	if err := r.update(ctx, entity, now); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepository[T, ID]) SaveAll(ctx context.Context, entities ...*T) ([]*T, error) {
	saved := make([]*T, 0, len(entities))
	for _, entity := range entities {
		s, err := r.Save(ctx, entity)
		if err != nil {
			return saved, err
		}
		saved = append(saved, s)
	}
	return saved, nil
}

func (r *baseRepository[T, ID]) insert(ctx context.Context, entity *T, now time.Time) error {
	if a, ok := any(entity).(types.Auditable); ok {
		a.Audit().MarkCreated(now)
	}
	if _, err := r.db.NewInsert().Model(entity).Exec(ctx); err != nil {
		return r.fail(opSave, err)
	}
	r.remember(false, entity)
	return nil
}

// update writes every column but the creation date. A versioned record is
// only written if its stored version is unchanged, and its version is then
// incremented. A record whose id matches no row is inserted.
func (r *baseRepository[T, ID]) update(ctx context.Context, entity *T, now time.Time) error {
	strct := reflect.ValueOf(entity).Elem()
	audited, _ := any(entity).(types.Auditable)
	var prevUpdated time.Time
	q := r.db.NewUpdate().Model(entity).WherePK()
	if audited != nil {
		prevUpdated = audited.Audit().UpdatedDate
		audited.Audit().MarkUpdated(now)
		q = q.ExcludeColumn(types.CreatedDateColumn)
	}
	var version reflect.Value
	var oldVersion int64
	if r.version != nil {
		version = r.version.Value(strct)
		oldVersion = intValue(version)
		setIntValue(version, oldVersion+1)
		q = q.Where("? = ?", q.FQN(r.version.Name), oldVersion)
	}
	restore := func() {
		if audited != nil {
			audited.Audit().UpdatedDate = prevUpdated
		}
		if r.version != nil {
			setIntValue(version, oldVersion)
		}
	}

	res, err := q.Exec(ctx)
	if err != nil {
		restore()
		return r.fail(opSave, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		restore()
		return r.fail(opSave, err)
	}
	if n == 0 {
		restore()
		id := r.idOf(entity)
		exists, err := r.existsByID(ctx, id)
		if err != nil {
			return r.fail(opSave, err)
		}
		switch {
		case exists && r.version != nil:
			r.cache.evict(id)
			return r.fail(opSave, ErrConcurrentModification)
		case exists:
			// mysql counts changed rows only
			return nil
		}
		return r.insert(ctx, entity, now)
	}
	if audited != nil && audited.Audit().CreatedDate.IsZero() {
		err := r.db.NewSelect().Model(entity).Column(types.CreatedDateColumn).WherePK().Scan(ctx)
		if err != nil {
			return r.fail(opSave, err)
		}
	}
	r.remember(false, entity)
	return nil
}

func (r *baseRepository[T, ID]) FindByID(ctx context.Context, id ID) (types.Optional[T], error) {
	if v, ok := r.cache.get(id); ok && !r.tx {
		return types.Of(v), nil
	}
	entity := new(T)
	err := r.db.NewSelect().Model(entity).Where("?TablePKs = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Empty[T](), nil
	}
	if err != nil {
		return types.Empty[T](), r.fail(opFind, err)
	}
	r.remember(false, entity)
	return types.Of(entity), nil
}

func (r *baseRepository[T, ID]) GetByID(ctx context.Context, id ID) (*T, error) {
	found, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	entity, ok := found.Get()
	if !ok {
		return nil, r.fail(opFind, fmt.Errorf("%w: id %v", ErrNotFound, id))
	}
	return entity, nil
}

func (r *baseRepository[T, ID]) ExistsByID(ctx context.Context, id ID) (bool, error) {
	if _, ok := r.cache.get(id); ok && !r.tx {
		return true, nil
	}
	exists, err := r.existsByID(ctx, id)
	return exists, r.fail(opExists, err)
}

func (r *baseRepository[T, ID]) existsByID(ctx context.Context, id ID) (bool, error) {
	return r.NewSelect().Where("?TablePKs = ?", id).Exists(ctx)
}

func (r *baseRepository[T, ID]) FindAll(ctx context.Context, orders ...types.Order) ([]*T, error) {
	return r.FindBy(ctx, query.All().OrderBy(orders...))
}

func (r *baseRepository[T, ID]) FindAllByID(ctx context.Context, ids ...ID) ([]*T, error) {
	items := make([]*T, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}
	if err := r.db.NewSelect().Model(&items).Where("?TablePKs IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, r.fail(opFind, err)
	}
	r.remember(false, items...)
	return items, nil
}

func (r *baseRepository[T, ID]) Count(ctx context.Context) (int, error) {
	return r.CountBy(ctx, query.All())
}

func (r *baseRepository[T, ID]) FindPage(ctx context.Context, req *types.PageRequest) (*types.Page[T], error) {
	return r.FindPageBy(ctx, query.All(), req)
}

func (r *baseRepository[T, ID]) Delete(ctx context.Context, entity *T) error {
	if entity == nil {
		return r.fail(opDelete, errors.New("nil entity"))
	}
	res, err := r.db.NewDelete().Model(entity).WherePK().Exec(ctx)
	return r.deleted(r.idOf(entity), res, err)
}

func (r *baseRepository[T, ID]) DeleteByID(ctx context.Context, id ID) error {
	res, err := r.NewDelete().Where("?PKs = ?", id).Exec(ctx)
	return r.deleted(id, res, err)
}

func (r *baseRepository[T, ID]) deleted(id ID, res sql.Result, err error) error {
	r.cache.evict(id)
	if err != nil {
		return r.fail(opDelete, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r.fail(opDelete, err)
	}
	if n == 0 {
		return r.fail(opDelete, fmt.Errorf("%w: id %v", ErrNotFound, id))
	}
	return nil
}

// findOptions refines a select compiled from a statement.
type findOptions struct {
	op     string
	fetch  []string
	lock   types.LockMode
	orders []types.Order
	limit  int
}

func toOrderItems(orders []types.Order) []query.OrderItem {
	items := make([]query.OrderItem, 0, len(orders))
	for _, o := range orders {
		items = append(items, query.OrderItem{Path: query.NewPath(o.Property), Desc: o.Direction == types.Desc})
	}
	return items
}

func (r *baseRepository[T, ID]) compileSelect(stmt *query.Statement, fo findOptions) (*compiler, *selectClauses, error) {
	if stmt.Kind != query.SelectKind {
		return nil, nil, malformed("expected a select statement, got %s", stmt.Kind)
	}
	c, err := newCompiler(r.table, stmt)
	if err != nil {
		return nil, nil, err
	}
	for _, path := range fo.fetch {
		if err := c.fetch(path); err != nil {
			return nil, nil, err
		}
	}
	sc, err := c.compileSelect(toOrderItems(fo.orders))
	if err != nil {
		return nil, nil, err
	}
	return c, sc, nil
}

func (r *baseRepository[T, ID]) entityQuery(c *compiler, sc *selectClauses, items *[]*T) (*bun.SelectQuery, error) {
	if c.stmt.Projection.Kind != query.ProjectEntity {
		return nil, malformed("statement selects values; use Scalars or Project")
	}
	q := r.db.NewSelect().Model(items)
	if c.stmt.Distinct {
		q = q.Distinct()
	}
	return c.apply(q, sc, true), nil
}

// find runs a select statement returning whole records.
func (r *baseRepository[T, ID]) find(ctx context.Context, stmt *query.Statement, fo findOptions) ([]*T, error) {
	c, sc, err := r.compileSelect(stmt, fo)
	if err != nil {
		return nil, r.fail(fo.op, err)
	}
	items := make([]*T, 0)
	q, err := r.entityQuery(c, sc, &items)
	if err != nil {
		return nil, r.fail(fo.op, err)
	}
	if fo.limit > 0 && (c.stmt.Limit == 0 || fo.limit < c.stmt.Limit) {
		q = q.Limit(fo.limit)
	}
	if fo.lock != types.LockNone {
		if q, err = r.lock(q, fo.lock); err != nil {
			return nil, r.fail(fo.op, err)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, r.fail(fo.op, err)
	}
	markCollectionsLoaded(items, c.collections())
	r.remember(stmt.ReadOnly, items...)
	return items, nil
}

// lock appends the row lock clause for mode. sqlite has no row locks; its
// writers are serialized by the database lock instead.
func (r *baseRepository[T, ID]) lock(q *bun.SelectQuery, mode types.LockMode) (*bun.SelectQuery, error) {
	if !r.tx {
		return nil, ErrTransactionRequired
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid lock mode %d", int(mode))
	}
	clause := "UPDATE"
	if mode == types.LockPessimisticRead {
		clause = "SHARE"
	}
	switch r.db.Dialect().Name() {
	case dialect.PG:
		// OF keeps outer-joined relations unlocked, which postgres requires.
		return q.For(clause+" OF ?", bun.Ident(r.table.Alias)), nil
	case dialect.MySQL:
		return q.For(clause), nil
	default:
		r.logger.Debug("row locks not supported, relying on database lock", "dialect", r.db.Dialect().Name().String(), "mode", mode.String())
		return q, nil
	}
}

func (r *baseRepository[T, ID]) page(ctx context.Context, c *compiler, sc *selectClauses, req *types.PageRequest, op string) (*types.Page[T], error) {
	if req == nil {
		req = types.NewPageRequest(types.DefaultPage, types.DefaultPageSize)
	}
	page := types.NewPage[T](req)
	items := make([]*T, 0)
	q, err := r.entityQuery(c, sc, &items)
	if err != nil {
		return nil, r.fail(op, err)
	}
	if req.IsCounted() {
		total, err := q.Count(ctx)
		if err != nil {
			return nil, r.fail(op, err)
		}
		if c.stmt.Limit > 0 {
			total = min(total, c.stmt.Limit)
		}
		page.Total = total
		if total == 0 || req.GetOffset() >= total {
			return page, nil
		}
	}
	limit := req.GetPageSize()
	if !req.IsCounted() {
		limit++
	}
	// First(n) bounds the whole result, not just one page.
	if c.stmt.Limit > 0 {
		if req.GetOffset() >= c.stmt.Limit {
			return page, nil
		}
		limit = min(limit, c.stmt.Limit-req.GetOffset())
	}
	if err := q.Offset(req.GetOffset()).Limit(limit).Scan(ctx); err != nil {
		return nil, r.fail(op, err)
	}
	if len(items) > req.GetPageSize() {
		items = items[:req.GetPageSize()]
		page.HasNext = true
	}
	if req.IsCounted() {
		page.HasNext = req.GetOffset()+len(items) < page.Total
	}
	markCollectionsLoaded(items, c.collections())
	r.remember(c.stmt.ReadOnly, items...)
	page.Items = items
	return page, nil
}

// markCollectionsLoaded replaces nil collections fetched for items with
// empty ones, so a nil collection always means not loaded.
func markCollectionsLoaded[T any](items []*T, rels []*schema.Relation) {
	for _, rel := range rels {
		for _, item := range items {
			v := rel.Field.Value(reflect.ValueOf(item).Elem())
			if v.Kind() == reflect.Slice && v.IsNil() {
				v.Set(reflect.MakeSlice(v.Type(), 0, 0))
			}
		}
	}
}

// count runs a select statement as a row count.
func (r *baseRepository[T, ID]) count(ctx context.Context, stmt *query.Statement, op string) (int, error) {
	c, sc, err := r.compileSelect(stmt, findOptions{})
	if err != nil {
		return 0, r.fail(op, err)
	}
	q := r.NewSelect()
	if stmt.Distinct {
		q = q.Distinct()
	}
	n, err := c.apply(q, sc, false).Count(ctx)
	if stmt.Limit > 0 {
		n = min(n, stmt.Limit)
	}
	return n, r.fail(op, err)
}

// exec runs an update or delete statement.
func (r *baseRepository[T, ID]) exec(ctx context.Context, stmt *query.Statement, op string) (int64, error) {
	c, err := newCompiler(r.table, stmt)
	if err != nil {
		return 0, r.fail(op, err)
	}
	where, hasWhere, err := c.where()
	if err != nil {
		return 0, r.fail(op, err)
	}
	if !hasWhere {
		where = fragment{sql: "1 = 1"}
	}
	var res sql.Result
	switch stmt.Kind {
	case query.UpdateKind:
		q := r.NewUpdate()
		for _, a := range stmt.Set {
			target, err := c.path(a.Target)
			if err != nil {
				return 0, r.fail(op, err)
			}
			value, err := c.expr(a.Value)
			if err != nil {
				return 0, r.fail(op, err)
			}
			q = q.Set(target.sql+" = "+value.sql, append(target.args, value.args...)...)
		}
		res, err = q.Where(where.sql, where.args...).Exec(ctx)
	case query.DeleteKind:
		res, err = r.NewDelete().Where(where.sql, where.args...).Exec(ctx)
	default:
		return 0, r.fail(op, malformed("expected an update or delete statement, got %s", stmt.Kind))
	}
	if err != nil {
		return 0, r.fail(op, err)
	}
	n, err := res.RowsAffected()
	return n, r.fail(op, err)
}

func (r *baseRepository[T, ID]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entities ...*T) error {
	if len(fields) == 0 {
		return r.fail(opUpsert, errors.New("fields cannot be empty"))
	}
	if len(entities) == 0 {
		return nil
	}
	now := r.opts.clock()
	for _, entity := range entities {
		if a, ok := any(entity).(types.Auditable); ok {
			a.Audit().MarkCreated(now)
		}
		r.cache.evict(r.idOf(entity))
	}
	q := r.db.NewInsert().Model(&entities)
	var err error
	switch {
	case r.db.Dialect().Features().Has(feature.InsertOnConflict):
		err = r.upsertOnConflict(ctx, q, fields, duplicateKeys)
	case r.db.Dialect().Features().Has(feature.InsertOnDuplicateKey):
		err = r.upsertOnDuplicateKey(ctx, q, fields)
	default:
		err = r.upsertFallback(ctx, entities)
	}
	return r.fail(opUpsert, err)
}

func (r *baseRepository[T, ID]) upsertOnDuplicateKey(ctx context.Context, q *bun.InsertQuery, fields []string) error {
	q = q.On("DUPLICATE KEY UPDATE")
	for _, field := range fields {
		q = q.Set("? = VALUES(?)", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepository[T, ID]) upsertOnConflict(ctx context.Context, q *bun.InsertQuery, fields []string, duplicateKeys []string) error {
	if len(duplicateKeys) == 0 {
		duplicateKeys = []string{r.pk.Name}
	}
	keys := make([]any, len(duplicateKeys))
	for i, k := range duplicateKeys {
		keys[i] = bun.Ident(k)
	}
	q = q.On("CONFLICT (?) DO UPDATE", bun.In(keys))
	for _, field := range fields {
		q = q.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepository[T, ID]) upsertFallback(ctx context.Context, entities []*T) error {
	for _, entity := range entities {
		_, err := r.db.NewInsert().Model(entity).Exec(ctx)
		if err != nil {
			_, updateErr := r.db.NewUpdate().Model(entity).WherePK().Exec(ctx)
			if updateErr != nil {
				return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %w", err, updateErr)
			}
		}
	}
	return nil
}
