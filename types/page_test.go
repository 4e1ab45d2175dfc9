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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRequest_Defaults(t *testing.T) {
	req := NewPageRequest(0, -5)
	assert.Equal(t, DefaultPage, req.GetPage())
	assert.Equal(t, DefaultPageSize, req.GetPageSize())
	assert.Equal(t, 0, req.GetOffset())
	assert.True(t, req.IsCounted())
	assert.False(t, NewSliceRequest(1, 10).IsCounted())
}

func TestPageRequest_Offset(t *testing.T) {
	assert.Equal(t, 6, NewPageRequest(3, 3).GetOffset())
	assert.Equal(t, 0, NewPageRequest(1, 3).GetOffset())
}

func TestPageRequest_Next(t *testing.T) {
	req := NewSliceRequest(1, 4, OrderDesc("username"))
	next := req.Next()
	assert.Equal(t, 2, next.GetPage())
	assert.Equal(t, 4, next.GetPageSize())
	assert.False(t, next.IsCounted())
	assert.Equal(t, []Order{OrderDesc("username")}, next.GetOrders())
	assert.Equal(t, 1, req.GetPage())
}

func TestPage_TotalPages(t *testing.T) {
	cases := []struct {
		total, size, want int
	}{
		{0, 3, 0},
		{5, 3, 2},
		{6, 3, 2},
		{7, 3, 3},
	}
	for _, tc := range cases {
		p := NewPage[struct{}](NewPageRequest(1, tc.size))
		p.Total = tc.total
		assert.Equal(t, tc.want, p.TotalPages())
		assert.GreaterOrEqual(t, p.TotalPages()*p.PageSize, p.Total)
	}

	slice := NewPage[struct{}](NewSliceRequest(1, 3))
	slice.Total = 10
	assert.Equal(t, 0, slice.TotalPages())
}

func TestPage_Empty(t *testing.T) {
	p := NewPage[int](NewPageRequest(2, 5))
	assert.True(t, p.IsEmpty())
	assert.NotNil(t, p.Items)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 5, p.PageSize)
}

func TestParseOrder(t *testing.T) {
	o, ok := ParseOrder("username")
	assert.True(t, ok)
	assert.Equal(t, OrderAsc("username"), o)

	o, ok = ParseOrder("team.name DESC")
	assert.True(t, ok)
	assert.Equal(t, Order{Property: "team.name", Direction: Desc}, o)

	for _, s := range []string{"", "a b", "a desc c"} {
		_, ok = ParseOrder(s)
		assert.False(t, ok, s)
	}
	assert.Equal(t, "DESC", Desc.String())
	assert.Equal(t, "ASC", Asc.String())
}
