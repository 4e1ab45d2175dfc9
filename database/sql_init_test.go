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

package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSQLStatements(t *testing.T) {
	content := `
-- teams
INSERT INTO teams (name) VALUES ('teamA');
INSERT INTO members (username, age)
VALUES ('alice', 20);

-- trailing statement without a semicolon
DELETE FROM members WHERE age < 0
`
	assert.Equal(t, []string{
		"INSERT INTO teams (name) VALUES ('teamA');",
		"INSERT INTO members (username, age) VALUES ('alice', 20);",
		"DELETE FROM members WHERE age < 0",
	}, splitSQLStatements(content))
	assert.Empty(t, splitSQLStatements("-- nothing\n\n"))
}

func TestParseFileOrder(t *testing.T) {
	assert.Equal(t, 1, parseFileOrder("001_teams.sql"))
	assert.Equal(t, 20, parseFileOrder("20_members.sql"))
	assert.Equal(t, defaultFileOrder, parseFileOrder("members.sql"))
	assert.Equal(t, defaultFileOrder, parseFileOrder("v1-members.sql"))
}

func TestSQLInitManager_GetSQLFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "common/002_members.sql", "")
	writeFile(t, root, "common/001_teams.sql", "")
	writeFile(t, root, "common/readme.txt", "")
	writeFile(t, root, "environments/dev/001_dev.sql", "")
	writeFile(t, root, "environments/prod/001_prod.sql", "")

	m := NewSQLInitManager(nil, "dev")
	m.SetSQLRootPath(root)
	files, err := m.GetSQLFiles()
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"001_teams.sql", "002_members.sql", "001_dev.sql"}, names)
	assert.Equal(t, "common", files[0].Environment)
	assert.Equal(t, "dev", files[2].Environment)
}

func TestSQLInitManager_ReplaceEnvVariables(t *testing.T) {
	t.Setenv("SEED_TEAM", "teamA")
	m := NewSQLInitManager(nil, "test")

	out, err := m.replaceEnvVariables("INSERT INTO teams (name) VALUES ('{{.SEED_TEAM}}-{{.ENVIRONMENT}}');")
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO teams (name) VALUES ('teamA-test');", out)

	_, err = m.replaceEnvVariables("{{.Broken")
	assert.Error(t, err)
}
