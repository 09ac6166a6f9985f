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
	"reflect"

	"github.com/tomoncle/bunservice/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	db bun.IDB
}

// NewRepository returns a generic repository running its statements on db,
// which may be a *bun.DB or an open bun.Tx.
func NewRepository[T any](db bun.IDB) Repository[T] {
	return &baseRepositoryImpl[T]{db: db}
}

func (r *baseRepositoryImpl[T]) Table() *schema.Table {
	return r.db.Dialect().Tables().Get(reflect.TypeFor[T]())
}

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery {
	return r.db.NewSelect().Model((*T)(nil))
}

func (r *baseRepositoryImpl[T]) GetByPK(ctx context.Context, keys ...any) (*T, error) {
	pks := r.Table().PKs
	if len(pks) == 0 {
		return nil, fmt.Errorf("model %T has no primary key", (*T)(nil))
	}
	if len(keys) != len(pks) {
		return nil, fmt.Errorf("model %T has %d primary key columns, got %d values", (*T)(nil), len(pks), len(keys))
	}

	entity := new(T)
	query := r.db.NewSelect().Model(entity)
	for i, pk := range pks {
		query = query.Where("?TableAlias.? = ?", bun.Ident(pk.Name), keys[i])
	}
	if err := query.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	return r.Find(ctx, nil, 0)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter, orders ...string) ([]*T, error) {
	return r.Find(ctx, filter, 0, orders...)
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, filter *types.QueryFilter, limit int, orders ...string) ([]*T, error) {
	entities := make([]*T, 0)
	query := applyFilter(r.db.NewSelect().Model(&entities), filter)
	if len(orders) > 0 {
		query = query.Order(orders...)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	return applyFilter(r.NewSelect(), filter).Count(ctx)
}

func (r *baseRepositoryImpl[T]) Reload(ctx context.Context, entity *T) error {
	return r.db.NewSelect().Model(entity).WherePK().Scan(ctx)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	pagination := types.NewPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := r.Count(ctx, pageRequest.GetFilter())
	if err != nil || total == 0 {
		return pagination, err
	}

	entities := make([]*T, 0, pageRequest.GetPageSize())
	query := applyFilter(r.db.NewSelect().Model(&entities), pageRequest.GetFilter()).
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize())
	if orders := pageRequest.GetOrders(); len(orders) > 0 {
		query = query.Order(orders...)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Insert(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := make([]*T, len(entity))
	copy(entities, entity)
	_, err := r.db.NewInsert().Model(&entities).Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) UpdateColumns(ctx context.Context, entity *T, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	_, err := r.db.NewUpdate().Model(entity).Column(columns...).WherePK().Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, entity *T) error {
	_, err := r.db.NewDelete().Model(entity).WherePK().Exec(ctx)
	return err
}

func applyFilter(query *bun.SelectQuery, filter *types.QueryFilter) *bun.SelectQuery {
	if filter.IsEmpty() {
		return query
	}
	return query.Where(filter.Schema, filter.Args...)
}
