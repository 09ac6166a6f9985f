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
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestQueryHook(t *testing.T) {
	t.Setenv("BUN_QUERY_LOG", "1")
	ctx := context.Background()
	db := openTestDB(t)

	var buf bytes.Buffer
	db.AddQueryHook(NewQueryHook(&buf))

	require.Equal(t, 0, countNotes(t, db))
	assert.Contains(t, buf.String(), "SELECT count(*)")

	buf.Reset()
	_, err := db.NewSelect().Table("missing").Exec(ctx)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "no such table")

	buf.Reset()
	EnableBunSqlSilent(true)
	countNotes(t, db)
	EnableBunSqlSilent(false)
	assert.Empty(t, buf.String())
}

func TestSlowQueryHook(t *testing.T) {
	db := openTestDB(t)
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core), zap.NewAtomicLevelAt(zapcore.DebugLevel))
	db.AddQueryHook(&slowQueryHook{slowTime: -1, logger: logger})

	countNotes(t, db)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Database slow query detected", logs.All()[0].Message)
}
