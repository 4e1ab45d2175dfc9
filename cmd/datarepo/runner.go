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
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tomoncle/datarepo/database"
	"github.com/tomoncle/datarepo/domain"
	"github.com/tomoncle/datarepo/query"
	"github.com/tomoncle/datarepo/repository"
	"github.com/tomoncle/datarepo/types"
	"github.com/tomoncle/datarepo/utils"
)

// Runner holds the state shared by every command.
type Runner struct {
	logger *utils.Logger
	out    io.Writer
	cfg    *database.Config
}

func NewRunner(logger *utils.Logger, out io.Writer) *Runner {
	return &Runner{logger: logger, out: out}
}

func (r *Runner) register() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "migrate",
			Usage:  "Create the registered tables and foreign keys",
			Action: r.Migrate,
		},
		{
			Name:  "seed",
			Usage: "Execute the seed SQL files of an environment",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "env", Aliases: []string{"e"}, Usage: "Seed environment", Value: "dev"},
				&cli.StringFlag{Name: "path", Usage: "Seed SQL root directory"},
			},
			Action: r.Seed,
		},
		{
			Name:   "demo",
			Usage:  "Run the Member/Team scenarios against a fresh schema",
			Action: r.Demo,
		},
		{
			Name:  "members",
			Usage: "List one page of members",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1},
				&cli.IntFlag{Name: "size", Aliases: []string{"s"}, Value: 10},
				&cli.StringSliceFlag{Name: "sort", Usage: "Order as \"property [asc|desc]\""},
			},
			Action: r.Members,
		},
		{
			Name:      "query",
			Usage:     "Run a literal query over members and print the rows",
			ArgsUsage: "QUERY",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{Name: "param", Aliases: []string{"P"}, Usage: "Named parameter as name=value"},
			},
			Action: r.Query,
		},
	}
}

// Before loads the configuration and connects the global database.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	utils.ConfigureLogLevel(cmd.String("log-level"))

	cfg, err := database.LoadConfig(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	r.cfg = cfg

	if _, err := database.InitDatabaseWithOptions(ctx, cfg, false); err != nil {
		return ctx, err
	}
	return ctx, nil
}

func (r *Runner) After(context.Context, *cli.Command) error {
	return database.CloseDB()
}

func (r *Runner) Migrate(ctx context.Context, _ *cli.Command) error {
	if err := database.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	r.logger.Info("migrations applied")
	return nil
}

func (r *Runner) Seed(ctx context.Context, cmd *cli.Command) error {
	m := database.NewSQLInitManager(database.GetDB(), cmd.String("env"))
	path := cmd.String("path")
	if path == "" {
		path = r.cfg.DataInitConfig.Filepath
	}
	m.SetSQLRootPath(path)
	if err := m.ExecuteInitialization(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}

func (r *Runner) Members(ctx context.Context, cmd *cli.Command) error {
	var orders []types.Order
	for _, s := range cmd.StringSlice("sort") {
		o, ok := types.ParseOrder(s)
		if !ok {
			return fmt.Errorf("invalid sort %q", s)
		}
		orders = append(orders, o)
	}
	members := domain.NewMemberRepository(database.GetDB())
	page, err := members.FindPage(ctx, types.NewPageRequest(int(cmd.Int("page")), int(cmd.Int("size")), orders...))
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(page.Items))
	for _, m := range page.Items {
		rows = append(rows, memberRow(m))
	}
	r.print(renderTable(memberHeaders, rows))
	r.print(renderNote("page %d/%d, %d members", page.Page, page.TotalPages(), page.Total))
	return nil
}

func (r *Runner) Query(ctx context.Context, cmd *cli.Command) error {
	q := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(q) == "" {
		return fmt.Errorf("query is required")
	}
	params, err := parseParams(cmd.StringSlice("param"))
	if err != nil {
		return err
	}

	repo := repository.NewRepository[domain.Member, int64](database.GetDB())
	rows, err := repository.Rows(ctx, repo, q, params)
	if err != nil {
		return err
	}
	r.print(renderMaps(rows))
	return nil
}

func (r *Runner) print(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

// parseParams reads name=value pairs. Values that look like integers bind as
// int64, comma separated values bind as a list.
func parseParams(pairs []string) (query.Params, error) {
	params := query.Params{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, want name=value", p)
		}
		if strings.Contains(value, ",") {
			var list []any
			for _, v := range strings.Split(value, ",") {
				list = append(list, scalar(strings.TrimSpace(v)))
			}
			params[name] = list
			continue
		}
		params[name] = scalar(value)
	}
	return params, nil
}
