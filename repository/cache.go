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
	lru "github.com/hashicorp/golang-lru/v2"
)

// identityCache maps ids to the records last read or written through a
// repository. A nil cache is disabled and every method is a no-op.
type identityCache[ID comparable, T any] struct {
	entries *lru.Cache[ID, *T]
}

func newIdentityCache[ID comparable, T any](size int) (*identityCache[ID, T], error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[ID, *T](size)
	if err != nil {
		return nil, err
	}
	return &identityCache[ID, T]{entries: entries}, nil
}

func (c *identityCache[ID, T]) get(id ID) (*T, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(id)
}

func (c *identityCache[ID, T]) put(id ID, v *T) {
	if c == nil || v == nil {
		return
	}
	c.entries.Add(id, v)
}

func (c *identityCache[ID, T]) evict(id ID) {
	if c == nil {
		return
	}
	c.entries.Remove(id)
}

func (c *identityCache[ID, T]) purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

func (c *identityCache[ID, T]) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
