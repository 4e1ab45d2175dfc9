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

var byName = query.By("name")

type TeamRepository struct {
	repository.Repository[Team, int64]
}

func NewTeamRepository(db bun.IDB, opts ...repository.Option) *TeamRepository {
	return &TeamRepository{Repository: repository.NewRepository[Team, int64](db, opts...)}
}

func (r *TeamRepository) WithTx(tx bun.Tx) *TeamRepository {
	return &TeamRepository{Repository: r.Repository.WithTx(tx)}
}

func (r *TeamRepository) FindByName(ctx context.Context, name string) (types.Optional[Team], error) {
	return r.FindOptionalBy(ctx, byName, name)
}

// FindWithMembers returns every team with its members loaded, ordered by
// team name.
func (r *TeamRepository) FindWithMembers(ctx context.Context) ([]*Team, error) {
	return r.FindWithFetch(ctx, []string{"members"}, query.All().OrderBy(types.OrderAsc("name")))
}
