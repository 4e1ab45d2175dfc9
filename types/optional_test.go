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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptional(t *testing.T) {
	v := 3
	o := Of(&v)
	got, ok := o.Get()
	assert.True(t, ok)
	assert.Equal(t, 3, *got)
	assert.True(t, o.IsPresent())

	other := 7
	assert.Equal(t, &v, o.OrElse(&other))
	assert.Equal(t, &other, Empty[int]().OrElse(&other))

	assert.False(t, Of[int](nil).IsPresent())
	_, ok = Empty[int]().Get()
	assert.False(t, ok)
}

func TestRef(t *testing.T) {
	v := "team"
	got, err := Loaded(&v).Get()
	require.NoError(t, err)
	assert.Equal(t, "team", *got)

	got, err = Loaded[string](nil).Get()
	require.NoError(t, err)
	assert.Nil(t, got)

	r := NotLoaded[string]()
	assert.False(t, r.IsLoaded())
	_, err = r.Get()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestAudited(t *testing.T) {
	var a Audited
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	a.MarkCreated(created)
	assert.Equal(t, created, a.CreatedDate)
	assert.Equal(t, created, a.UpdatedDate)

	later := created.Add(time.Hour)
	a.MarkUpdated(later)
	assert.Equal(t, created, a.CreatedDate)
	assert.Equal(t, later, a.UpdatedDate)

	// a clock running behind never moves UpdatedDate before CreatedDate
	a.MarkUpdated(created.Add(-time.Minute))
	assert.Equal(t, created, a.UpdatedDate)
	assert.Same(t, &a, a.Audit())
}

func TestLockMode(t *testing.T) {
	assert.Equal(t, "PESSIMISTIC_WRITE", LockPessimisticWrite.String())
	assert.Equal(t, 1, LockPessimisticRead.Number())
	assert.NotEmpty(t, LockNone.Desc())

	bad := LockMode(9)
	assert.False(t, bad.IsValid())
	assert.Equal(t, IllegalValue, bad.Number())
	assert.Equal(t, IllegalName, bad.Name())
	assert.Equal(t, IllegalDesc, bad.Desc())
}
