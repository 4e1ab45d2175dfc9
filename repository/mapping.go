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
	"reflect"
	"strings"

	"github.com/uptrace/bun/schema"
)

// fieldOf finds a column by Go field name, ignoring case, or by its exact
// column name.
func fieldOf(t *schema.Table, name string) *schema.Field {
	if f, ok := t.FieldMap[name]; ok {
		return f
	}
	for _, f := range t.Fields {
		if strings.EqualFold(f.GoName, name) {
			return f
		}
	}
	return nil
}

// relationOf finds a relation by Go field name, ignoring case, or by its
// column-style name.
func relationOf(t *schema.Table, name string) *schema.Relation {
	if rel, ok := t.Relations[name]; ok {
		return rel
	}
	for goName, rel := range t.Relations {
		if strings.EqualFold(goName, name) || rel.Field.Name == name {
			return rel
		}
	}
	return nil
}

func isCollection(rel *schema.Relation) bool {
	return rel.Type == schema.HasManyRelation || rel.Type == schema.ManyToManyRelation
}

func matchesEntity(t *schema.Table, name string) bool {
	return name == "" || strings.EqualFold(name, t.TypeName) || strings.EqualFold(name, t.Name)
}

// versionField returns the integer "version" column used for optimistic
// locking, if the table has one.
func versionField(t *schema.Table) *schema.Field {
	f, ok := t.FieldMap["version"]
	if !ok {
		return nil
	}
	switch f.IndirectType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return f
	}
	return nil
}

func intValue(v reflect.Value) int64 {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	}
	return v.Int()
}

func setIntValue(v reflect.Value, n int64) {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(uint64(n))
	default:
		v.SetInt(n)
	}
}

// columnsOf lists the column names a struct type maps to, in field order.
func columnsOf(dialect schema.Dialect, typ reflect.Type) []string {
	t := dialect.Tables().Get(typ)
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}
