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
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/uptrace/bun/schema"
)

// Changeset is implemented by update models that track which fields were set.
// Keys are column names; a nil value stores NULL (or the zero value).
type Changeset interface {
	Changes() map[string]any
}

// CreateMapper converts creation data into a new, unsaved row.
type CreateMapper[TCreate, TModel any] func(data TCreate) (*TModel, error)

// UpdateMapper converts update data into column/value pairs to apply.
type UpdateMapper[TUpdate any] func(data TUpdate) (map[string]any, error)

// copyFields sets every model field whose Go name matches an exported field of
// src. Nil pointers in src are skipped so the model keeps its zero value.
func copyFields(table *schema.Table, dst reflect.Value, src any) error {
	sv := reflect.ValueOf(src)
	for sv.Kind() == reflect.Pointer || sv.Kind() == reflect.Interface {
		if sv.IsNil() {
			return nil
		}
		sv = sv.Elem()
	}
	if !sv.IsValid() {
		return nil
	}
	if sv.Type() == dst.Type() {
		dst.Set(sv)
		return nil
	}
	if sv.Kind() != reflect.Struct {
		return fmt.Errorf("%w: creation data must be a struct, got %s", ErrInvalidChange, sv.Type())
	}

	for _, field := range table.Fields {
		sf, ok := sv.Type().FieldByName(field.GoName)
		if !ok || !sf.IsExported() {
			continue
		}
		value, err := sv.FieldByIndexErr(sf.Index)
		if err != nil || isNilValue(value) {
			continue
		}
		target, err := dst.FieldByIndexErr(field.Index)
		if err != nil {
			continue
		}
		if err := setValue(target, value.Interface()); err != nil {
			return fmt.Errorf("field %s: %w", field.GoName, err)
		}
	}
	return nil
}

// changesOf reports the set fields of data keyed by column name. Pointer fields
// count when non-nil, other fields when non-zero. A field maps to the column in
// its bun tag, or else to the model column with the same Go name.
func changesOf(table *schema.Table, data any) (map[string]any, error) {
	if cs, ok := data.(Changeset); ok {
		return cs.Changes(), nil
	}

	changes := make(map[string]any)
	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return changes, nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return changes, nil
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: update data must be a struct, got %s", ErrInvalidChange, v.Type())
	}

	byGoName := make(map[string]*schema.Field, len(table.Fields))
	for _, f := range table.Fields {
		byGoName[f.GoName] = f
	}

	for _, sf := range reflect.VisibleFields(v.Type()) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		column := strings.Split(sf.Tag.Get("bun"), ",")[0]
		if column == "-" {
			continue
		}
		if column == "" {
			f, ok := byGoName[sf.Name]
			if !ok {
				continue
			}
			column = f.Name
		}

		fv, err := v.FieldByIndexErr(sf.Index)
		if err != nil {
			continue
		}
		switch {
		case fv.Kind() == reflect.Pointer:
			if fv.IsNil() {
				continue
			}
			changes[column] = fv.Elem().Interface()
		case fv.IsZero():
			continue
		default:
			changes[column] = fv.Interface()
		}
	}
	return changes, nil
}

// applyChanges writes changes onto the row and returns the touched columns in
// sorted order. Primary key columns cannot be changed.
func applyChanges(table *schema.Table, item any, changes map[string]any) ([]string, error) {
	dst := reflect.ValueOf(item).Elem()
	columns := make([]string, 0, len(changes))
	for column := range changes {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	for _, column := range columns {
		field, ok := table.FieldMap[column]
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidChange, column)
		}
		if field.IsPK {
			return nil, fmt.Errorf("%w: primary key column %q cannot be updated", ErrInvalidChange, column)
		}
		target, err := dst.FieldByIndexErr(field.Index)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrInvalidChange, column, err)
		}
		if err := setValue(target, changes[column]); err != nil {
			return nil, fmt.Errorf("column %q: %w", column, err)
		}
	}
	return columns, nil
}

func setValue(dst reflect.Value, value any) error {
	if value == nil {
		dst.SetZero()
		return nil
	}
	v := reflect.ValueOf(value)
	for {
		if v.Type().AssignableTo(dst.Type()) {
			dst.Set(v)
			return nil
		}
		if dst.Kind() == reflect.Pointer && v.Type().AssignableTo(dst.Type().Elem()) {
			p := reflect.New(dst.Type().Elem())
			p.Elem().Set(v)
			dst.Set(p)
			return nil
		}
		if v.Kind() != reflect.Pointer {
			break
		}
		if v.IsNil() {
			dst.SetZero()
			return nil
		}
		v = v.Elem()
	}
	if convertible(v.Type(), dst.Type()) {
		dst.Set(v.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("%w: cannot assign %s to %s", ErrInvalidChange, v.Type(), dst.Type())
}

// convertible excludes integer to string conversions, which reflect allows as
// rune conversions.
func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	if to.Kind() == reflect.String {
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return false
		}
	}
	return true
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}
