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

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomoncle/datarepo/database"
	"github.com/tomoncle/datarepo/query"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrConstraintViolation    = errors.New("constraint violation")
	ErrLockTimeout            = errors.New("lock timeout")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNonUniqueResult        = errors.New("query returned more than one result")
	ErrTransactionRequired    = errors.New("operation requires a transaction")
	ErrMalformedQuery         = query.ErrMalformed
)

// Error reports a failed repository operation. Kind is one of the sentinel
// errors above, or nil when the cause was not recognised; Err is the
// underlying cause. Both match errors.Is and errors.As.
type Error struct {
	Op     string
	Entity string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == nil || e.Kind == e.Err {
		return fmt.Sprintf("%s %s: %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Entity, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// kindOf maps a driver or query error to the matching sentinel.
func kindOf(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConstraintViolation),
		errors.Is(err, ErrLockTimeout), errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrNonUniqueResult), errors.Is(err, ErrTransactionRequired),
		errors.Is(err, query.ErrMalformed):
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	}
	kind := database.ClassifyError(err)
	switch {
	case kind.IsConstraintViolation():
		return ErrConstraintViolation
	case kind == database.LockTimeoutErr, kind == database.DeadlockErr:
		return ErrLockTimeout
	}
	return nil
}

func (r *baseRepository[T, ID]) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	kind := kindOf(err)
	if kind == nil && errors.Is(err, context.DeadlineExceeded) && op == opFindWithLock {
		kind = ErrLockTimeout
	}
	return &Error{Op: op, Entity: r.table.TypeName, Kind: kind, Err: err}
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
