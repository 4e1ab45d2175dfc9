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
	"fmt"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tomoncle/datarepo/domain"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	noteStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#626262"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3C3C3C"))
)

var memberHeaders = []string{"ID", "USERNAME", "AGE", "TEAM", "VERSION", "UPDATED"}

func renderTitle(s string) string { return titleStyle.Render(s) }

func renderNote(format string, args ...any) string {
	return noteStyle.Render(fmt.Sprintf(format, args...))
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// renderMaps renders rows whose columns are the sorted union of their keys.
func renderMaps(rows []map[string]interface{}) string {
	seen := map[string]bool{}
	var headers []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)

	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		line := make([]string, len(headers))
		for i, h := range headers {
			line[i] = cellText(row[h])
		}
		cells = append(cells, line)
	}
	return renderTable(headers, cells)
}

func memberRow(m *domain.Member) []string {
	team := "-"
	if t, err := m.TeamRef().Get(); err == nil && t != nil {
		team = t.Name
	} else if m.TeamID != nil {
		team = "#" + strconv.FormatInt(*m.TeamID, 10)
	}
	return []string{
		strconv.FormatInt(m.ID, 10),
		m.Username,
		strconv.Itoa(m.Age),
		team,
		strconv.FormatInt(m.Version, 10),
		m.UpdatedDate.Format("2006-01-02 15:04:05"),
	}
}

func cellText(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// scalar converts a command line value to an int64 when it parses as one.
func scalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
