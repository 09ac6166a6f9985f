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

	"github.com/tomoncle/bunservice/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// QueryRepository reads rows of T.
type QueryRepository[T any] interface {
	// GetByPK returns the row whose primary key columns equal keys, in the
	// model's pk declaration order, or nil when there is none.
	GetByPK(ctx context.Context, keys ...any) (*T, error)

	GetAll(ctx context.Context) ([]*T, error)

	List(ctx context.Context, filter *types.QueryFilter, orders ...string) ([]*T, error)

	// Find is List with a row limit; limit <= 0 means no limit.
	Find(ctx context.Context, filter *types.QueryFilter, limit int, orders ...string) ([]*T, error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	Reload(ctx context.Context, entity *T) error
}

// WriteRepository writes rows of T. Nothing is committed here; the caller owns
// the transaction behind the bun.IDB.
type WriteRepository[T any] interface {
	Insert(ctx context.Context, entity ...*T) error

	UpdateColumns(ctx context.Context, entity *T, columns ...string) error

	Delete(ctx context.Context, entity *T) error
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines reads, writes and pagination and exposes the model's
// table metadata and a select builder for advanced use cases.
type Repository[T any] interface {
	QueryRepository[T]
	WriteRepository[T]
	PageQueryRepository[T]
	Table() *schema.Table
	NewSelect() *bun.SelectQuery
}
