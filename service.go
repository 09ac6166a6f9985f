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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/tomoncle/bunservice/database"
	"github.com/tomoncle/bunservice/repository"
	"github.com/tomoncle/bunservice/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
	"go.uber.org/multierr"
)

const (
	msgCommitFailed = "Commit failed."
	msgDeleteFailed = "Failed to delete item."
)

// Service provides CRUD operations for the table model TModel. TCreate is the
// input of Create, TUpdate the partial input of Update and TPK the primary key
// type accepted by GetByPK, Update and DeleteByPK.
//
// A Service owns its session: writes run in the session transaction and
// commit it. Use one Service (and one Session) per request. Embed *Service in
// a struct to add model specific queries.
type Service[TModel, TCreate, TUpdate, TPK any] struct {
	session      *database.Session
	logger       database.Logger
	createMapper CreateMapper[TCreate, TModel]
	updateMapper UpdateMapper[TUpdate]
}

// Change pairs a loaded row with the update to apply to it.
type Change[TModel, TUpdate any] struct {
	Item *TModel
	Data TUpdate
}

// New returns a Service working on session.
func New[TModel, TCreate, TUpdate, TPK any](session *database.Session) *Service[TModel, TCreate, TUpdate, TPK] {
	return &Service[TModel, TCreate, TUpdate, TPK]{
		session: session,
		logger:  database.GetLogger(),
	}
}

// WithCreateMapper replaces the field copy used to build rows from TCreate.
func (s *Service[TModel, TCreate, TUpdate, TPK]) WithCreateMapper(fn CreateMapper[TCreate, TModel]) *Service[TModel, TCreate, TUpdate, TPK] {
	s.createMapper = fn
	return s
}

// WithUpdateMapper replaces the extraction of set fields from TUpdate.
func (s *Service[TModel, TCreate, TUpdate, TPK]) WithUpdateMapper(fn UpdateMapper[TUpdate]) *Service[TModel, TCreate, TUpdate, TPK] {
	s.updateMapper = fn
	return s
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) WithLogger(l database.Logger) *Service[TModel, TCreate, TUpdate, TPK] {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) Session() *database.Session {
	return s.session
}

// Create builds a row from data, inserts it and commits. The returned row is
// reloaded, so database defaults and generated keys are filled in.
func (s *Service[TModel, TCreate, TUpdate, TPK]) Create(ctx context.Context, data TCreate) (*TModel, error) {
	item, err := s.toModel(data)
	if err != nil {
		return nil, err
	}
	err = s.write(ctx, msgCommitFailed, true, func(db bun.IDB) error {
		return s.repo(db).Insert(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetByPK returns the row with primary key pk, or nil when there is none.
func (s *Service[TModel, TCreate, TUpdate, TPK]) GetByPK(ctx context.Context, pk TPK) (*TModel, error) {
	repo := s.repo(s.session.Conn())
	keys, err := resolveKeys(repo.Table(), pk)
	if err != nil {
		return nil, err
	}
	return repo.GetByPK(ctx, keys...)
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) GetAll(ctx context.Context) ([]*TModel, error) {
	return s.repo(s.session.Conn()).GetAll(ctx)
}

// Update applies the set fields of data to the row with primary key pk and
// commits. Columns not reported as set keep their stored values.
func (s *Service[TModel, TCreate, TUpdate, TPK]) Update(ctx context.Context, pk TPK, data TUpdate) (*TModel, error) {
	item, err := s.GetByPK(ctx, pk)
	if err != nil {
		return nil, err
	}
	key := FormatPrimaryKey(pk)
	if item == nil {
		return nil, &NotFoundError{Key: key}
	}

	columns, err := s.apply(item, data)
	if err != nil {
		return nil, err
	}
	err = s.write(ctx, fmt.Sprintf("Failed to update %s.", key), true, func(db bun.IDB) error {
		return s.repo(db).UpdateColumns(ctx, item, columns...)
	})
	if err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteByPK deletes the row with primary key pk and commits.
func (s *Service[TModel, TCreate, TUpdate, TPK]) DeleteByPK(ctx context.Context, pk TPK) error {
	item, err := s.GetByPK(ctx, pk)
	if err != nil {
		return err
	}
	if item == nil {
		return &NotFoundError{Key: FormatPrimaryKey(pk)}
	}
	return s.write(ctx, msgDeleteFailed, true, func(db bun.IDB) error {
		return s.repo(db).Delete(ctx, item)
	})
}

// AddToSession inserts a row for every item in the session transaction. The
// transaction is committed only when commit is true; until then the rows are
// visible to this session alone.
func (s *Service[TModel, TCreate, TUpdate, TPK]) AddToSession(ctx context.Context, items []TCreate, commit bool) ([]*TModel, error) {
	models := make([]*TModel, 0, len(items))
	for _, data := range items {
		item, err := s.toModel(data)
		if err != nil {
			return nil, err
		}
		models = append(models, item)
	}

	if len(models) == 0 {
		if commit {
			if err := s.session.Commit(); err != nil {
				return nil, s.fail(msgCommitFailed, err)
			}
		}
		return models, nil
	}

	err := s.write(ctx, msgCommitFailed, commit, func(db bun.IDB) error {
		return s.repo(db).Insert(ctx, models...)
	})
	if err != nil {
		return nil, err
	}
	return models, nil
}

// UpdateInSession applies every change in the session transaction, committing
// only when commit is true.
func (s *Service[TModel, TCreate, TUpdate, TPK]) UpdateInSession(ctx context.Context, changes []Change[TModel, TUpdate], commit bool) error {
	columns := make([][]string, len(changes))
	for i, change := range changes {
		if change.Item == nil {
			return fmt.Errorf("%w: change %d has no item", ErrInvalidChange, i)
		}
		cols, err := s.apply(change.Item, change.Data)
		if err != nil {
			return err
		}
		columns[i] = cols
	}

	return s.write(ctx, msgCommitFailed, commit, func(db bun.IDB) error {
		repo := s.repo(db)
		for i, change := range changes {
			if err := repo.UpdateColumns(ctx, change.Item, columns[i]...); err != nil {
				return err
			}
		}
		return nil
	})
}

// All returns the rows matching filter (every row when nil) sorted by orders,
// e.g. "name DESC".
func (s *Service[TModel, TCreate, TUpdate, TPK]) All(ctx context.Context, filter *types.QueryFilter, orders ...string) ([]*TModel, error) {
	return s.repo(s.session.Conn()).List(ctx, filter, orders...)
}

// One returns the single row matching filter. It fails with ErrNotFound when
// there is none and ErrMultipleResultsFound when there are more.
func (s *Service[TModel, TCreate, TUpdate, TPK]) One(ctx context.Context, filter *types.QueryFilter) (*TModel, error) {
	item, err := s.OneOrNone(ctx, filter)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &NotFoundError{Key: filterKey(filter)}
	}
	return item, nil
}

// OneOrNone is One returning nil instead of ErrNotFound.
func (s *Service[TModel, TCreate, TUpdate, TPK]) OneOrNone(ctx context.Context, filter *types.QueryFilter) (*TModel, error) {
	repo := s.repo(s.session.Conn())
	items, err := repo.Find(ctx, filter, 2)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return items[0], nil
	default:
		return nil, fmt.Errorf("%w: %s where %s", ErrMultipleResultsFound, repo.Table().Name, filterKey(filter))
	}
}

// Select returns a select query on the model table, bound to the session.
func (s *Service[TModel, TCreate, TUpdate, TPK]) Select() *bun.SelectQuery {
	return s.repo(s.session.Conn()).NewSelect()
}

// Scan runs q, usually built from Select, and returns the rows.
func (s *Service[TModel, TCreate, TUpdate, TPK]) Scan(ctx context.Context, q *bun.SelectQuery) ([]*TModel, error) {
	items := make([]*TModel, 0)
	if err := q.Scan(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Refresh reloads item from the database by its primary key.
func (s *Service[TModel, TCreate, TUpdate, TPK]) Refresh(ctx context.Context, item *TModel) error {
	repo := s.repo(s.session.Conn())
	if err := repo.Reload(ctx, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Key: keyOf(repo.Table(), item)}
		}
		return err
	}
	return nil
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) Page(ctx context.Context, req *types.PageRequest) (*types.Pagination[TModel], error) {
	return s.repo(s.session.Conn()).Page(ctx, req)
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	return s.repo(s.session.Conn()).Count(ctx, filter)
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) repo(db bun.IDB) repository.Repository[TModel] {
	return repository.NewRepository[TModel](db)
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) table() *schema.Table {
	return s.repo(s.session.DB()).Table()
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) toModel(data TCreate) (*TModel, error) {
	if s.createMapper != nil {
		return s.createMapper(data)
	}
	item := new(TModel)
	if err := copyFields(s.table(), reflect.ValueOf(item).Elem(), data); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) changes(data TUpdate) (map[string]any, error) {
	if s.updateMapper != nil {
		return s.updateMapper(data)
	}
	if cs, ok := any(&data).(Changeset); ok {
		return cs.Changes(), nil
	}
	return changesOf(s.table(), data)
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) apply(item *TModel, data TUpdate) ([]string, error) {
	changes, err := s.changes(data)
	if err != nil {
		return nil, err
	}
	return applyChanges(s.table(), item, changes)
}

// write runs fn in the session transaction and commits when asked. Any failure
// rolls the transaction back and is reported as a *CommitError.
func (s *Service[TModel, TCreate, TUpdate, TPK]) write(ctx context.Context, msg string, commit bool, fn func(db bun.IDB) error) error {
	db, err := s.session.Begin(ctx)
	if err != nil {
		return s.fail(msg, err)
	}
	if err := fn(db); err != nil {
		return s.fail(msg, err)
	}
	if !commit {
		return nil
	}
	if err := s.session.Commit(); err != nil {
		return s.fail(msg, err)
	}
	return nil
}

func (s *Service[TModel, TCreate, TUpdate, TPK]) fail(msg string, err error) error {
	if rbErr := s.session.Rollback(); rbErr != nil {
		err = multierr.Append(err, rbErr)
	}
	_, kind := database.IsSqlError(err)
	s.logger.Error(msg, "session", s.session.ID(), "kind", kind.String(), "error", err)
	return &CommitError{Msg: msg, Kind: kind, Err: err}
}

func filterKey(filter *types.QueryFilter) string {
	if filter.IsEmpty() {
		return "*"
	}
	return filter.Schema
}

func keyOf(table *schema.Table, item any) string {
	v := reflect.ValueOf(item).Elem()
	values := make([]any, 0, len(table.PKs))
	for _, pk := range table.PKs {
		fv, err := v.FieldByIndexErr(pk.Index)
		if err != nil {
			continue
		}
		values = append(values, fv.Interface())
	}
	if len(values) == 1 {
		return FormatPrimaryKey(values[0])
	}
	return FormatPrimaryKey(values)
}
