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

import "errors"

// ErrNotLoaded is returned when reading a relation that was not fetched.
var ErrNotLoaded = errors.New("relation not loaded")

// Optional holds a value that may be absent.
type Optional[T any] struct {
	value *T
}

// Of wraps v; a nil v yields an empty Optional.
func Of[T any](v *T) Optional[T] { return Optional[T]{value: v} }

func Empty[T any]() Optional[T] { return Optional[T]{} }

func (o Optional[T]) IsPresent() bool { return o.value != nil }

func (o Optional[T]) Get() (*T, bool) { return o.value, o.value != nil }

func (o Optional[T]) OrElse(other *T) *T {
	if o.value == nil {
		return other
	}
	return o.value
}

// Ref is a relation that is either loaded or not. A loaded Ref may still hold
// nil when the relation is empty.
type Ref[T any] struct {
	value  *T
	loaded bool
}

func Loaded[T any](v *T) Ref[T] { return Ref[T]{value: v, loaded: true} }

func NotLoaded[T any]() Ref[T] { return Ref[T]{} }

func (r Ref[T]) IsLoaded() bool { return r.loaded }

// Get returns the related value, or ErrNotLoaded if it was never fetched.
func (r Ref[T]) Get() (*T, error) {
	if !r.loaded {
		return nil, ErrNotLoaded
	}
	return r.value, nil
}
