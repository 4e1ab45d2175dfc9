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

// Package domain holds the Member and Team records and their repositories.
package domain

import (
	"github.com/uptrace/bun"

	"github.com/tomoncle/datarepo/database"
	"github.com/tomoncle/datarepo/types"
)

func init() {
	database.RegisterModel((*Team)(nil), 10)
	database.RegisterModel((*Member)(nil), 20)
}

type Team struct {
	bun.BaseModel `bun:"table:teams,alias:team"`

	ID      int64     `bun:"id,pk,autoincrement" json:"id"`
	Name    string    `bun:"name,notnull,unique" json:"name"`
	Members []*Member `bun:"rel:has-many,join:id=team_id" json:"members,omitempty"`
	types.Audited
}

func NewTeam(name string) *Team {
	return &Team{Name: name}
}

// MembersRef reports the members if they were fetched with the team.
func (t *Team) MembersRef() types.Ref[[]*Member] {
	if t.Members == nil {
		return types.NotLoaded[[]*Member]()
	}
	return types.Loaded(&t.Members)
}

// Member belongs to at most one team. Version is checked and incremented by
// every save.
type Member struct {
	bun.BaseModel `bun:"table:members,alias:member"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	Username string `bun:"username,notnull" json:"username"`
	Age      int    `bun:"age,notnull" json:"age"`
	TeamID   *int64 `bun:"team_id" json:"teamId,omitempty"`
	Team     *Team  `bun:"rel:belongs-to,join:team_id=id" json:"team,omitempty"`
	Version  int64  `bun:"version,notnull" json:"version"`
	types.Audited
}

// NewMember creates a member, optionally in team.
func NewMember(username string, age int, team *Team) *Member {
	m := &Member{Username: username, Age: age}
	if team != nil {
		m.ChangeTeam(team)
	}
	return m
}

// ChangeTeam moves the member to team and adds it to team's members if they
// are loaded. TeamID follows team.ID, so the team may be saved afterwards.
func (m *Member) ChangeTeam(team *Team) {
	m.Team = team
	m.TeamID = &team.ID
	if team.Members != nil {
		team.Members = append(team.Members, m)
	}
}

// TeamRef reports the member's team. It is loaded when the team was fetched
// or the member has none.
func (m *Member) TeamRef() types.Ref[Team] {
	switch {
	case m.Team != nil:
		return types.Loaded(m.Team)
	case m.TeamID == nil:
		return types.Loaded[Team](nil)
	}
	return types.NotLoaded[Team]()
}

// MemberDto is a member row flattened with its team name.
type MemberDto struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	TeamName string `json:"teamName"`
}
