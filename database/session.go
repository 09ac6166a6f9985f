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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/multierr"
)

// Session is a unit of work over a Bun database. A transaction is begun by the
// first write and stays open until Commit or Rollback; reads join it when it is
// open so pending changes are visible to the same session only.
//
// A Session is meant to serve one request and must not be shared between
// goroutines doing independent work.
type Session struct {
	id     uuid.UUID
	db     *bun.DB
	opts   *sql.TxOptions
	logger Logger

	mu sync.Mutex
	tx *bun.Tx
}

type SessionOption func(*Session)

func WithSessionLogger(l Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTxOptions sets the isolation level and read-only flag of begun transactions.
func WithTxOptions(opts *sql.TxOptions) SessionOption {
	return func(s *Session) { s.opts = opts }
}

func NewSession(db *bun.DB, opts ...SessionOption) *Session {
	s := &Session{
		id:     uuid.New(),
		db:     db,
		logger: GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) DB() *bun.DB { return s.db }

// InTransaction reports whether uncommitted work is pending.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// Conn returns the open transaction, or the database when there is none.
func (s *Session) Conn() bun.IDB {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Begin returns the open transaction, beginning one if needed. The transaction
// outlives ctx: it ends with Commit or Rollback only, while statements run on it
// still honor their own context.
func (s *Session) Begin(ctx context.Context) (bun.IDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), s.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = &tx
	s.logger.Debug("Session transaction begun", "session", s.id)
	return s.tx, nil
}

// Commit commits pending work. It is a no-op when no transaction is open.
// The transaction is finished either way, so a failed commit leaves the
// session clean for reuse.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return multierr.Append(err, ignoreTxDone(tx.Rollback()))
	}
	s.logger.Debug("Session transaction committed", "session", s.id)
	return nil
}

// Rollback discards pending work. It is a no-op when no transaction is open.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := ignoreTxDone(tx.Rollback()); err != nil {
		s.logger.Error("Session rollback failed", "session", s.id, "error", err)
		return err
	}
	s.logger.Debug("Session transaction rolled back", "session", s.id)
	return nil
}

// Close discards pending work. The database itself stays open.
func (s *Session) Close() error {
	return s.Rollback()
}

func ignoreTxDone(err error) error {
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}
