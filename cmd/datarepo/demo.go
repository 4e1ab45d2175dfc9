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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/urfave/cli/v3"

	"github.com/tomoncle/datarepo/database"
	"github.com/tomoncle/datarepo/domain"
	"github.com/tomoncle/datarepo/types"
)

// errRollback ends the demo transaction without keeping its rows.
var errRollback = errors.New("demo rollback")

// Demo migrates the schema and walks through the Member/Team scenarios inside
// a transaction that is rolled back at the end.
func (r *Runner) Demo(ctx context.Context, _ *cli.Command) error {
	if err := database.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	err := database.Transactional(ctx, database.GetDB(), nil, func(ctx context.Context, tx bun.Tx) error {
		if err := r.demo(ctx, tx); err != nil {
			return err
		}
		return errRollback
	})
	if errors.Is(err, errRollback) {
		return nil
	}
	return err
}

func (r *Runner) demo(ctx context.Context, tx bun.Tx) error {
	teams := domain.NewTeamRepository(tx)
	members := domain.NewMemberRepository(tx)

	teamA, teamB := domain.NewTeam("teamA"), domain.NewTeam("teamB")
	if _, err := teams.SaveAll(ctx, teamA, teamB); err != nil {
		return err
	}
	if _, err := members.SaveAll(ctx,
		domain.NewMember("alice", 20, teamA),
		domain.NewMember("bob", 19, teamA),
		domain.NewMember("carol", 30, teamB),
	); err != nil {
		return err
	}

	older, err := members.FindByUsernameAndAgeGreaterThan(ctx, "alice", 10)
	if err != nil {
		return err
	}
	none, err := members.FindByUsernameAndAgeGreaterThan(ctx, "alice", 25)
	if err != nil {
		return err
	}
	r.print(renderTitle("findByUsernameAndAgeGreaterThan"))
	r.print(renderNote("alice older than 10: %d, older than 25: %d", len(older), len(none)))

	dtos, err := members.FindMemberDto(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(dtos))
	for _, d := range dtos {
		rows = append(rows, []string{fmt.Sprint(d.ID), d.Username, d.TeamName})
	}
	r.print(renderTitle("member dto projection"))
	r.print(renderTable([]string{"ID", "USERNAME", "TEAM"}, rows))

	page, err := members.FindByAge(ctx, 20, types.NewPageRequest(1, 2, types.OrderDesc("username")))
	if err != nil {
		return err
	}
	r.print(renderTitle("findByAge(20), page 1 of size 2"))
	r.print(renderNote("total %d, pages %d, has next %t", page.Total, page.TotalPages(), page.HasNext))

	updated, err := members.BulkAgePlus(ctx, 20)
	if err != nil {
		return err
	}
	r.print(renderTitle("bulkAgePlus(20)"))
	r.print(renderNote("%d rows updated", updated))

	fetched, err := members.FindAllWithTeam(ctx)
	if err != nil {
		return err
	}
	rows = rows[:0]
	for _, m := range fetched {
		rows = append(rows, memberRow(m))
	}
	r.print(renderTitle("members with team"))
	r.print(renderTable(memberHeaders, rows))

	withMembers, err := teams.FindWithMembers(ctx)
	if err != nil {
		return err
	}
	rows = rows[:0]
	for _, t := range withMembers {
		rows = append(rows, []string{t.Name, fmt.Sprint(len(t.Members))})
	}
	r.print(renderTitle("teams with members"))
	r.print(renderTable([]string{"TEAM", "MEMBERS"}, rows))
	return nil
}
