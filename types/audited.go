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

import "time"

const (
	CreatedDateColumn = "created_date"
	UpdatedDateColumn = "updated_date"
)

// Audited holds the creation and last modification time of a record.
// Records embed it:
//
//	type Member struct {
//		ID int64 `bun:",pk,autoincrement"`
//		types.Audited
//	}
//
// CreatedDate is written once, when the record is inserted.
type Audited struct {
	CreatedDate time.Time `bun:"created_date,notnull" json:"createdDate"`
	UpdatedDate time.Time `bun:"updated_date,notnull" json:"updatedDate"`
}

// Auditable is implemented by every record that embeds Audited.
type Auditable interface {
	Audit() *Audited
}

func (a *Audited) Audit() *Audited { return a }

// MarkCreated stamps both timestamps.
func (a *Audited) MarkCreated(now time.Time) {
	a.CreatedDate = now
	a.UpdatedDate = now
}

// MarkUpdated refreshes UpdatedDate. It never moves UpdatedDate before
// CreatedDate.
func (a *Audited) MarkUpdated(now time.Time) {
	if now.Before(a.CreatedDate) {
		now = a.CreatedDate
	}
	a.UpdatedDate = now
}
