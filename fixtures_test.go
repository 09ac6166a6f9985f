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
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunservice/database"
	"github.com/tomoncle/bunservice/types"
	"github.com/uptrace/bun"
)

type Player struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID    int64   `bun:"id,pk,autoincrement"`
	Name  string  `bun:"name,notnull,unique"`
	Score int     `bun:"score,notnull"`
	Email *string `bun:"email"`
}

type PlayerCreate struct {
	Name  string
	Score int
	Email *string
}

type PlayerUpdate struct {
	Name  *string
	Score *int
	Email *string
}

// PlayerPatch sets columns explicitly, including NULL.
type PlayerPatch map[string]any

func (p PlayerPatch) Changes() map[string]any { return p }

type Team struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID   uuid.UUID `bun:"id,pk,type:varchar(36)"`
	Name string    `bun:"name,notnull"`
}

type TeamCreate struct {
	Name string
}

type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:m"`

	TeamName string `bun:"team_name,pk"`
	PlayerID int64  `bun:"player_id,pk"`
	Role     string `bun:"role"`
}

type MembershipUpdate struct {
	Role string `bun:"role"`
}

// Goal references a player; deleting the player fails while goals exist.
type Goal struct {
	bun.BaseModel `bun:"table:goals,alias:g"`

	ID       int64 `bun:"id,pk,autoincrement"`
	PlayerID int64 `bun:"player_id,notnull"`
}

type PlayerService struct {
	*Service[Player, PlayerCreate, PlayerUpdate, int64]
}

func NewPlayerService(session *database.Session) *PlayerService {
	return &PlayerService{Service: New[Player, PlayerCreate, PlayerUpdate, int64](session)}
}

func (s *PlayerService) GetByName(ctx context.Context, name string) (*Player, error) {
	return s.OneOrNone(ctx, types.NewQueryFilter("name = ?", name))
}

func ptr[T any](v T) *T { return &v }

func openTestManager(t *testing.T) database.AbstractDatabaseManager {
	t.Helper()

	cfg := database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = filepath.Join(t.TempDir(), "service")
	cfg.SlowQueryTime = 0

	mgr := database.NewDatabaseManager(cfg)
	require.NoError(t, mgr.Connect(context.Background()))
	t.Cleanup(func() { _ = mgr.Disconnect() })

	err := database.CreateTables(context.Background(), mgr.GetDB(),
		(*Player)(nil),
		(*Team)(nil),
		(*Membership)(nil),
	)
	require.NoError(t, err)

	_, err = mgr.GetDB().NewCreateTable().
		Model((*Goal)(nil)).
		IfNotExists().
		ForeignKey(`("player_id") REFERENCES "players" ("id")`).
		Exec(context.Background())
	require.NoError(t, err)
	return mgr
}

func openTestSession(t *testing.T, mgr database.AbstractDatabaseManager) *database.Session {
	t.Helper()
	sess, err := mgr.NewSession()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}
