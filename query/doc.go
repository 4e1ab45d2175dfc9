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

// Package query describes what a repository should fetch, independently of
// any SQL dialect.
//
// Two forms are supported. A Descriptor is assembled from combinators and
// binds its arguments positionally:
//
//	query.By("username").And("age", query.GreaterThan)
//
// A literal query is written in a small entity-oriented language and binds
// named parameters:
//
//	select m from Member m where m.username = :username and m.age = :age
//
// Both forms produce a Statement that the repository package compiles to SQL.
package query
