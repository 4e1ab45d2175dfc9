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

import "strings"

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// Order sorts by an entity property. Dotted properties such as "team.name"
// sort by a property of a related entity.
type Order struct {
	Property  string
	Direction Direction
}

func OrderAsc(property string) Order { return Order{Property: property, Direction: Asc} }

func OrderDesc(property string) Order { return Order{Property: property, Direction: Desc} }

// ParseOrder parses "username", "username asc" or "username desc".
func ParseOrder(s string) (Order, bool) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return OrderAsc(fields[0]), true
	case 2:
		switch strings.ToLower(fields[1]) {
		case "asc":
			return OrderAsc(fields[0]), true
		case "desc":
			return OrderDesc(fields[0]), true
		}
	}
	return Order{}, false
}

// PageRequest describes one page of a result: a 1-based page number, a page
// size and ordering. A counted request also asks for the total number of
// matching records; an uncounted one (a slice) only reports whether a next
// page exists.
type PageRequest struct {
	page     int
	pageSize int
	orders   []Order
	uncount  bool
}

// NewPageRequest constructs a counted PageRequest.
func NewPageRequest(page int, pageSize int, orders ...Order) *PageRequest {
	return &PageRequest{page: page, pageSize: pageSize, orders: orders}
}

// NewSliceRequest constructs a PageRequest that skips the count query.
func NewSliceRequest(page int, pageSize int, orders ...Order) *PageRequest {
	return &PageRequest{page: page, pageSize: pageSize, orders: orders, uncount: true}
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = DefaultPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = DefaultPage
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetOrders() []Order {
	return p.orders
}

func (p *PageRequest) IsCounted() bool { return !p.uncount }

// Next returns the request for the following page.
func (p *PageRequest) Next() *PageRequest {
	next := *p
	next.page = p.GetPage() + 1
	return &next
}

// Page holds one page of records along with pagination metadata. Total is
// only meaningful when Counted is set.
type Page[T any] struct {
	Page     int
	PageSize int
	Total    int
	Counted  bool
	HasNext  bool
	Items    []*T
}

// NewPage constructs an empty page for the request.
func NewPage[T any](req *PageRequest) *Page[T] {
	return &Page[T]{
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Counted:  req.IsCounted(),
		Items:    make([]*T, 0),
	}
}

// TotalPages is the number of pages needed to hold Total records, or 0 for
// an uncounted page.
func (p *Page[T]) TotalPages() int {
	if !p.Counted || p.PageSize < 1 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

func (p *Page[T]) IsEmpty() bool { return len(p.Items) == 0 }
