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

package domain

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/tomoncle/datarepo/query"
	"github.com/tomoncle/datarepo/repository"
	"github.com/tomoncle/datarepo/types"
)

var (
	byUsername                  = query.By("username")
	byUsernameAndAgeGreaterThan = query.By("username").And("age", query.GreaterThan)
	byAge                       = query.By("age")
	readOnlyByUsername          = query.By("username").ReadOnly()
)

const (
	findUserQuery         = "select m from Member m where m.username = :username and m.age = :age"
	findUsernameListQuery = "select m.username from Member m"
	findMemberDtoQuery    = "select new domain.MemberDto(m.id, m.username, t.name) from Member m join m.team t"
	findByNamesQuery      = "select m from Member m where m.username in :names"
	bulkAgePlusQuery      = "update Member m set m.age = m.age + 1 where m.age >= :age"
	findMemberFetchJoin   = "select m from Member m left join fetch m.team"
	findMemberQuery       = "select m from Member m"
)

// MemberRepository is the repository of Member with its finder methods.
type MemberRepository struct {
	repository.Repository[Member, int64]
}

func NewMemberRepository(db bun.IDB, opts ...repository.Option) *MemberRepository {
	return &MemberRepository{Repository: repository.NewRepository[Member, int64](db, opts...)}
}

// WithTx returns the repository bound to tx.
func (r *MemberRepository) WithTx(tx bun.Tx) *MemberRepository {
	return &MemberRepository{Repository: r.Repository.WithTx(tx)}
}

func (r *MemberRepository) FindByUsernameAndAgeGreaterThan(ctx context.Context, username string, age int) ([]*Member, error) {
	return r.FindBy(ctx, byUsernameAndAgeGreaterThan, username, age)
}

func (r *MemberRepository) FindByUsername(ctx context.Context, username string) ([]*Member, error) {
	return r.FindBy(ctx, byUsername, username)
}

func (r *MemberRepository) FindUser(ctx context.Context, username string, age int) ([]*Member, error) {
	return r.Query(ctx, findUserQuery, query.Params{"username": username, "age": age})
}

func (r *MemberRepository) FindUsernameList(ctx context.Context) ([]string, error) {
	return repository.Scalars[string](ctx, r.Repository, findUsernameListQuery, nil)
}

// FindMemberDto lists members that have a team, with the team name.
func (r *MemberRepository) FindMemberDto(ctx context.Context) ([]*MemberDto, error) {
	return repository.Project[MemberDto](ctx, r.Repository, findMemberDtoQuery, nil)
}

func (r *MemberRepository) FindByNames(ctx context.Context, names []string) ([]*Member, error) {
	return r.Query(ctx, findByNamesQuery, query.Params{"names": names})
}

func (r *MemberRepository) FindListByUsername(ctx context.Context, username string) ([]*Member, error) {
	return r.FindBy(ctx, byUsername, username)
}

// FindMemberByUsername fails with repository.ErrNotFound or
// repository.ErrNonUniqueResult unless exactly one member matches.
func (r *MemberRepository) FindMemberByUsername(ctx context.Context, username string) (*Member, error) {
	return r.FindOneBy(ctx, byUsername, username)
}

func (r *MemberRepository) FindOptionalByUsername(ctx context.Context, username string) (types.Optional[Member], error) {
	return r.FindOptionalBy(ctx, byUsername, username)
}

// FindByAge returns one counted page of members of the given age.
func (r *MemberRepository) FindByAge(ctx context.Context, age int, req *types.PageRequest) (*types.Page[Member], error) {
	return r.FindPageBy(ctx, byAge, req, age)
}

// FindSliceByAge is FindByAge without the count query; the page only
// reports whether another one follows.
func (r *MemberRepository) FindSliceByAge(ctx context.Context, age int, page, size int, orders ...types.Order) (*types.Page[Member], error) {
	return r.FindPageBy(ctx, byAge, types.NewSliceRequest(page, size, orders...), age)
}

// BulkAgePlus adds one to the age of every member at least age years old
// and clears the cache.
func (r *MemberRepository) BulkAgePlus(ctx context.Context, age int) (int64, error) {
	return r.BulkUpdate(ctx, bulkAgePlusQuery, query.Params{"age": age}, repository.ClearCache())
}

func (r *MemberRepository) FindMemberFetchJoin(ctx context.Context) ([]*Member, error) {
	return r.Query(ctx, findMemberFetchJoin, nil)
}

// FindMemberEntityGraph runs a plain member query with the team loaded.
func (r *MemberRepository) FindMemberEntityGraph(ctx context.Context) ([]*Member, error) {
	return r.QueryWithFetch(ctx, []string{"team"}, findMemberQuery, nil)
}

// FindAllWithTeam is FindAll with each member's team loaded.
func (r *MemberRepository) FindAllWithTeam(ctx context.Context) ([]*Member, error) {
	return r.FindWithFetch(ctx, []string{"team"}, query.All())
}

func (r *MemberRepository) FindEntityGraphByUsername(ctx context.Context, username string) ([]*Member, error) {
	return r.FindWithFetch(ctx, []string{"team"}, byUsername, username)
}

// FindReadOnlyByUsername finds a member without keeping it in the cache.
func (r *MemberRepository) FindReadOnlyByUsername(ctx context.Context, username string) (*Member, error) {
	return r.FindOneBy(ctx, readOnlyByUsername, username)
}

// FindLockByUsername locks the matching rows until the transaction ends.
// The repository must be bound to a transaction.
func (r *MemberRepository) FindLockByUsername(ctx context.Context, username string) ([]*Member, error) {
	return r.FindWithLock(ctx, types.LockPessimisticWrite, byUsername, username)
}
