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

package bunservice

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/uptrace/bun/schema"
)

// FormatPrimaryKey renders a key for messages: scalars as themselves, slices and
// arrays as their elements joined by "|", maps as "key:value" pairs sorted by key
// and joined by "|".
func FormatPrimaryKey(pk any) string {
	if pk == nil {
		return "<nil>"
	}
	v := reflect.ValueOf(pk)
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return "<nil>"
	}

	switch k := pk.(type) {
	case string:
		return k
	case fmt.Stringer:
		return k.String()
	}

	switch v.Kind() {
	case reflect.Pointer:
		return FormatPrimaryKey(v.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return fmt.Sprint(pk)
		}
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = FormatPrimaryKey(v.Index(i).Interface())
		}
		return strings.Join(parts, "|")
	case reflect.Map:
		parts := make([]string, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			parts = append(parts, fmt.Sprintf("%v:%s", iter.Key().Interface(), FormatPrimaryKey(iter.Value().Interface())))
		}
		sort.Strings(parts)
		return strings.Join(parts, "|")
	default:
		return fmt.Sprint(pk)
	}
}

// resolveKeys turns pk into one value per primary key column of table, in the
// table's pk order. Map keys that are not pk columns are ignored.
func resolveKeys(table *schema.Table, pk any) ([]any, error) {
	pks := table.PKs
	if len(pks) == 0 {
		return nil, fmt.Errorf("%w: %s has no primary key", ErrInvalidPrimaryKey, table.Name)
	}
	if pk == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidPrimaryKey)
	}
	if _, ok := pk.(driver.Valuer); ok {
		return scalarKey(table, pk)
	}

	v := reflect.ValueOf(pk)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return scalarKey(table, pk)
		}
		if v.Len() != len(pks) {
			return nil, fmt.Errorf("%w: %s needs %d values, got %d", ErrInvalidPrimaryKey, table.Name, len(pks), v.Len())
		}
		keys := make([]any, len(pks))
		for i := range keys {
			keys[i] = v.Index(i).Interface()
		}
		return keys, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map keys must be column names", ErrInvalidPrimaryKey)
		}
		keys := make([]any, len(pks))
		for i, field := range pks {
			value := v.MapIndex(reflect.ValueOf(field.Name).Convert(v.Type().Key()))
			if !value.IsValid() {
				value = v.MapIndex(reflect.ValueOf(field.GoName).Convert(v.Type().Key()))
			}
			if !value.IsValid() {
				return nil, fmt.Errorf("%w: missing %q", ErrInvalidPrimaryKey, field.Name)
			}
			keys[i] = value.Interface()
		}
		return keys, nil
	default:
		return scalarKey(table, pk)
	}
}

func scalarKey(table *schema.Table, pk any) ([]any, error) {
	if len(table.PKs) != 1 {
		return nil, fmt.Errorf("%w: %s has a composite primary key", ErrInvalidPrimaryKey, table.Name)
	}
	return []any{pk}, nil
}
