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
	"time"

	"github.com/tomoncle/datarepo/database"
)

// Option configures a repository.
type Option func(*options)

type options struct {
	cacheSize int
	clock     func() time.Time
	logger    database.Logger
}

func defaultOptions() options {
	return options{
		clock: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// WithCache enables a first-level identity cache holding up to size records.
func WithCache(size int) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// WithClock sets the time source used to stamp audit fields.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger; database.GetLogger() is used otherwise.
func WithLogger(logger database.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// BulkOption configures BulkUpdate.
type BulkOption func(*bulkOptions)

type bulkOptions struct {
	clearCache bool
}

// ClearCache evicts every cached record once a bulk statement succeeds.
func ClearCache() BulkOption {
	return func(o *bulkOptions) {
		o.clearCache = true
	}
}
