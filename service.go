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

// Package datarepo is a generic repository layer over bun with derived and
// literal queries. Service is the entry point for code that works with the
// global database set up by database.InitDB.
package datarepo

import (
	"context"
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/datarepo/database"
	"github.com/tomoncle/datarepo/query"
	"github.com/tomoncle/datarepo/repository"
	"github.com/tomoncle/datarepo/types"
)

type Service[T any, ID comparable] interface {
	// Get returns the record with id, or an empty Optional.
	Get(ctx context.Context, id ID) (types.Optional[T], error)

	// All returns every record in the given order.
	All(ctx context.Context, orders ...types.Order) ([]*T, error)

	// Find returns the records matching a descriptor.
	Find(ctx context.Context, d *query.Descriptor, args ...any) ([]*T, error)

	// Query runs a literal query selecting records.
	Query(ctx context.Context, q string, params query.Params) ([]*T, error)

	// Page returns one page of records.
	Page(ctx context.Context, req *types.PageRequest) (*types.Page[T], error)

	// Save inserts new records and updates existing ones.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts records based on fields and duplicate keys.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	// Delete removes the record with id.
	Delete(ctx context.Context, id ID) error

	// BulkUpdate runs a literal update or delete statement.
	BulkUpdate(ctx context.Context, q string, params query.Params, opts ...repository.BulkOption) (int64, error)

	SaveWithTx(ctx context.Context, tx bun.Tx, model ...*T) error
	SaveOrUpdateWithTx(ctx context.Context, tx bun.Tx, fields []string, duplicateKeys []string, model ...*T) error
	DeleteWithTx(ctx context.Context, tx bun.Tx, id ID) error

	// Transaction runs fn with a repository bound to a new transaction.
	Transaction(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T, ID]) error) error

	// Repository returns the underlying repository, or nil before the global
	// database is initialized.
	Repository() repository.Repository[T, ID]
}

type baseServiceImpl[T any, ID comparable] struct {
	opts []repository.Option
	mu   sync.Mutex
	db   *bun.DB
	repo repository.Repository[T, ID]
}

// NewService returns a Service whose repository is built on first use over
// the global database connection.
func NewService[T any, ID comparable](opts ...repository.Option) Service[T, ID] {
	return &baseServiceImpl[T, ID]{opts: opts}
}

// resolve returns the repository bound to the current global database. It is
// rebuilt when the global handle changes, e.g. after a reconnect.
func (s *baseServiceImpl[T, ID]) resolve() (repository.Repository[T, ID], error) {
	db := database.GetDB()
	if db == nil {
		return nil, database.ErrNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil || s.db != db {
		s.db, s.repo = db, repository.NewRepository[T, ID](db, s.opts...)
	}
	return s.repo, nil
}

// Repository returns nil until the global database is initialized.
func (s *baseServiceImpl[T, ID]) Repository() repository.Repository[T, ID] {
	repo, _ := s.resolve()
	return repo
}

func (s *baseServiceImpl[T, ID]) Get(ctx context.Context, id ID) (types.Optional[T], error) {
	repo, err := s.resolve()
	if err != nil {
		return types.Empty[T](), err
	}
	return repo.FindByID(ctx, id)
}

func (s *baseServiceImpl[T, ID]) All(ctx context.Context, orders ...types.Order) ([]*T, error) {
	repo, err := s.resolve()
	if err != nil {
		return nil, err
	}
	return repo.FindAll(ctx, orders...)
}

func (s *baseServiceImpl[T, ID]) Find(ctx context.Context, d *query.Descriptor, args ...any) ([]*T, error) {
	repo, err := s.resolve()
	if err != nil {
		return nil, err
	}
	return repo.FindBy(ctx, d, args...)
}

func (s *baseServiceImpl[T, ID]) Query(ctx context.Context, q string, params query.Params) ([]*T, error) {
	repo, err := s.resolve()
	if err != nil {
		return nil, err
	}
	return repo.Query(ctx, q, params)
}

func (s *baseServiceImpl[T, ID]) Page(ctx context.Context, req *types.PageRequest) (*types.Page[T], error) {
	repo, err := s.resolve()
	if err != nil {
		return nil, err
	}
	return repo.FindPage(ctx, req)
}

func (s *baseServiceImpl[T, ID]) Save(ctx context.Context, model ...*T) error {
	repo, err := s.resolve()
	if err != nil {
		return err
	}
	_, err = repo.SaveAll(ctx, model...)
	return err
}

func (s *baseServiceImpl[T, ID]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	repo, err := s.resolve()
	if err != nil {
		return err
	}
	return repo.Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T, ID]) Delete(ctx context.Context, id ID) error {
	repo, err := s.resolve()
	if err != nil {
		return err
	}
	return repo.DeleteByID(ctx, id)
}

func (s *baseServiceImpl[T, ID]) BulkUpdate(ctx context.Context, q string, params query.Params, opts ...repository.BulkOption) (int64, error) {
	repo, err := s.resolve()
	if err != nil {
		return 0, err
	}
	return repo.BulkUpdate(ctx, q, params, opts...)
}

func (s *baseServiceImpl[T, ID]) SaveWithTx(ctx context.Context, tx bun.Tx, model ...*T) error {
	repo, err := s.resolve()
	if err != nil {
		return err
	}
	_, err = repo.WithTx(tx).SaveAll(ctx, model...)
	return err
}

func (s *baseServiceImpl[T, ID]) SaveOrUpdateWithTx(ctx context.Context, tx bun.Tx, fields []string, duplicateKeys []string, model ...*T) error {
	repo, err := s.resolve()
	if err != nil {
		return err
	}
	return repo.WithTx(tx).Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T, ID]) DeleteWithTx(ctx context.Context, tx bun.Tx, id ID) error {
	repo, err := s.resolve()
	if err != nil {
		return err
	}
	return repo.WithTx(tx).DeleteByID(ctx, id)
}

func (s *baseServiceImpl[T, ID]) Transaction(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T, ID]) error) error {
	repo, err := s.resolve()
	if err != nil {
		return err
	}
	return repo.RunInTx(ctx, fn)
}
