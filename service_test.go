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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunservice/database"
	"github.com/tomoncle/bunservice/types"
)

func TestCreateAndGetByPK(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	created, err := svc.Create(ctx, PlayerCreate{Name: "alice", Score: 7, Email: ptr("alice@example.com")})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := svc.GetByPK(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("GetByPK mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, svc.Session().InTransaction())
}

func TestGetByPKMissing(t *testing.T) {
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	got, err := svc.GetByPK(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetAll(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	all, err := svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	for _, name := range []string{"a", "b", "c"} {
		_, err := svc.Create(ctx, PlayerCreate{Name: name})
		require.NoError(t, err)
	}
	all, err = svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	p, err := svc.Create(ctx, PlayerCreate{Name: "bob", Score: 3, Email: ptr("bob@example.com")})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, p.ID, PlayerUpdate{Score: ptr(11)})
	require.NoError(t, err)
	assert.Equal(t, 11, updated.Score)
	assert.Equal(t, "bob", updated.Name)
	require.NotNil(t, updated.Email)
	assert.Equal(t, "bob@example.com", *updated.Email)

	got, err := svc.GetByPK(ctx, p.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(updated, got); diff != "" {
		t.Errorf("stored row mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateWithChangeset(t *testing.T) {
	ctx := context.Background()
	sess := openTestSession(t, openTestManager(t))
	svc := New[Player, PlayerCreate, PlayerPatch, int64](sess)

	p, err := svc.Create(ctx, PlayerCreate{Name: "carol", Score: 5, Email: ptr("carol@example.com")})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, p.ID, PlayerPatch{"email": nil, "score": 0})
	require.NoError(t, err)
	assert.Nil(t, updated.Email)
	assert.Equal(t, 0, updated.Score)
	assert.Equal(t, "carol", updated.Name)

	_, err = svc.Update(ctx, p.ID, PlayerPatch{"id": 99})
	require.ErrorIs(t, err, ErrInvalidChange)

	_, err = svc.Update(ctx, p.ID, PlayerPatch{"nickname": "c"})
	require.ErrorIs(t, err, ErrInvalidChange)
}

func TestUpdateAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	_, err := svc.Update(ctx, 99, PlayerUpdate{Score: ptr(1)})
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, ErrService)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "99", nf.Key)

	err = svc.DeleteByPK(ctx, 99)
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestDeleteByPK(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	p, err := svc.Create(ctx, PlayerCreate{Name: "dave"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteByPK(ctx, p.ID))

	got, err := svc.GetByPK(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateDuplicateRollsBack(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	_, err := svc.Create(ctx, PlayerCreate{Name: "erin", Score: 1})
	require.NoError(t, err)

	_, err = svc.Create(ctx, PlayerCreate{Name: "erin", Score: 2})
	require.ErrorIs(t, err, ErrCommitFailed)
	assert.True(t, IsCommitFailed(err))

	var ce *CommitError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Commit failed.", ce.Msg)
	assert.Equal(t, database.DuplicateKeyErr, ce.Kind)
	assert.False(t, svc.Session().InTransaction())

	all, err := svc.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].Score)

	// the session is usable again after the rollback
	_, err = svc.Create(ctx, PlayerCreate{Name: "frank"})
	require.NoError(t, err)
}

func TestUpdateDuplicateRollsBack(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	_, err := svc.Create(ctx, PlayerCreate{Name: "gina"})
	require.NoError(t, err)
	hank, err := svc.Create(ctx, PlayerCreate{Name: "hank"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, hank.ID, PlayerUpdate{Name: ptr("gina")})
	require.ErrorIs(t, err, ErrCommitFailed)
	var ce *CommitError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Failed to update 2.", ce.Msg)

	got, err := svc.GetByPK(ctx, hank.ID)
	require.NoError(t, err)
	assert.Equal(t, "hank", got.Name)
}

func TestAddToSessionVisibility(t *testing.T) {
	ctx := context.Background()
	mgr := openTestManager(t)
	writer := NewPlayerService(openTestSession(t, mgr))
	reader := NewPlayerService(openTestSession(t, mgr))

	items, err := writer.AddToSession(ctx, []PlayerCreate{{Name: "ian"}, {Name: "jane"}}, false)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.True(t, writer.Session().InTransaction())

	mine, err := writer.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := reader.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = writer.AddToSession(ctx, nil, true)
	require.NoError(t, err)
	assert.False(t, writer.Session().InTransaction())

	theirs, err = reader.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, theirs, 2)
}

func TestAddToSessionRollback(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	_, err := svc.AddToSession(ctx, []PlayerCreate{{Name: "kim"}}, false)
	require.NoError(t, err)
	require.NoError(t, svc.Session().Rollback())

	count, err := svc.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpdateInSession(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	items, err := svc.AddToSession(ctx, []PlayerCreate{{Name: "leo", Score: 1}, {Name: "mia", Score: 2}}, true)
	require.NoError(t, err)
	require.NotZero(t, items[0].ID)

	err = svc.UpdateInSession(ctx, []Change[Player, PlayerUpdate]{
		{Item: items[0], Data: PlayerUpdate{Score: ptr(10)}},
		{Item: items[1], Data: PlayerUpdate{Score: ptr(20)}},
	}, true)
	require.NoError(t, err)

	all, err := svc.All(ctx, nil, "score DESC")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 20, all[0].Score)
	assert.Equal(t, 10, all[1].Score)

	err = svc.UpdateInSession(ctx, []Change[Player, PlayerUpdate]{{Data: PlayerUpdate{}}}, true)
	require.ErrorIs(t, err, ErrInvalidChange)
}

func TestOneAndOneOrNone(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	_, err := svc.AddToSession(ctx, []PlayerCreate{
		{Name: "nora", Score: 5},
		{Name: "otto", Score: 5},
		{Name: "pia", Score: 9},
	}, true)
	require.NoError(t, err)

	p, err := svc.GetByName(ctx, "pia")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 9, p.Score)

	p, err = svc.GetByName(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = svc.One(ctx, types.NewQueryFilter("score = ?", 1))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.One(ctx, types.NewQueryFilter("score = ?", 5))
	require.ErrorIs(t, err, ErrMultipleResultsFound)

	_, err = svc.OneOrNone(ctx, types.NewQueryFilter("score = ?", 5))
	require.ErrorIs(t, err, ErrMultipleResultsFound)
}

func TestSelectScanPageCount(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	_, err := svc.AddToSession(ctx, []PlayerCreate{
		{Name: "quinn", Score: 1},
		{Name: "rosa", Score: 6},
		{Name: "sam", Score: 8},
	}, true)
	require.NoError(t, err)

	rows, err := svc.Scan(ctx, svc.Select().Where("score > ?", 5).Order("score ASC"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "rosa", rows[0].Name)

	count, err := svc.Count(ctx, types.NewQueryFilter("score > ?", 5))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	page, err := svc.Page(ctx, types.NewPageRequest(1, 2, nil, "id ASC"))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasNext())
	assert.Equal(t, 2, page.Pages())
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	mgr := openTestManager(t)
	svc := NewPlayerService(openTestSession(t, mgr))
	other := NewPlayerService(openTestSession(t, mgr))

	p, err := svc.Create(ctx, PlayerCreate{Name: "tara", Score: 1})
	require.NoError(t, err)

	_, err = other.Update(ctx, p.ID, PlayerUpdate{Score: ptr(4)})
	require.NoError(t, err)

	require.NoError(t, svc.Refresh(ctx, p))
	assert.Equal(t, 4, p.Score)

	require.NoError(t, other.DeleteByPK(ctx, p.ID))
	err = svc.Refresh(ctx, p)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateMapperWithUUIDKey(t *testing.T) {
	ctx := context.Background()
	svc := New[Team, TeamCreate, TeamCreate, uuid.UUID](openTestSession(t, openTestManager(t))).
		WithCreateMapper(func(data TeamCreate) (*Team, error) {
			return &Team{ID: uuid.New(), Name: data.Name}, nil
		})

	team, err := svc.Create(ctx, TeamCreate{Name: "red"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, team.ID)

	got, err := svc.GetByPK(ctx, team.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "red", got.Name)

	err = svc.DeleteByPK(ctx, uuid.New())
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestUpdateMapperOverride(t *testing.T) {
	ctx := context.Background()
	svc := New[Player, PlayerCreate, int, int64](openTestSession(t, openTestManager(t))).
		WithUpdateMapper(func(bonus int) (map[string]any, error) {
			return map[string]any{"score": bonus * 2}, nil
		})

	p, err := svc.Create(ctx, PlayerCreate{Name: "uma"})
	require.NoError(t, err)

	p, err = svc.Update(ctx, p.ID, 21)
	require.NoError(t, err)
	assert.Equal(t, 42, p.Score)
}

func TestCompositeKeys(t *testing.T) {
	ctx := context.Background()
	svc := New[Membership, Membership, MembershipUpdate, []any](openTestSession(t, openTestManager(t)))

	m, err := svc.Create(ctx, Membership{TeamName: "red", PlayerID: 1, Role: "captain"})
	require.NoError(t, err)
	assert.Equal(t, "captain", m.Role)

	got, err := svc.GetByPK(ctx, []any{"red", int64(1)})
	require.NoError(t, err)
	require.NotNil(t, got)

	updated, err := svc.Update(ctx, []any{"red", int64(1)}, MembershipUpdate{Role: "keeper"})
	require.NoError(t, err)
	assert.Equal(t, "keeper", updated.Role)

	_, err = svc.GetByPK(ctx, []any{"red"})
	require.ErrorIs(t, err, ErrInvalidPrimaryKey)

	err = svc.DeleteByPK(ctx, []any{"blue", int64(1)})
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "blue|1", nf.Key)

	byMap := New[Membership, Membership, MembershipUpdate, map[string]any](svc.Session())
	got, err = byMap.GetByPK(ctx, map[string]any{"player_id": int64(1), "team_name": "red"})
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, byMap.DeleteByPK(ctx, map[string]any{"PlayerID": int64(1), "TeamName": "red"}))
	count, err := byMap.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteReferencedRowFails(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))
	goals := New[Goal, Goal, Goal, int64](svc.Session())

	p, err := svc.Create(ctx, PlayerCreate{Name: "xena"})
	require.NoError(t, err)
	_, err = goals.Create(ctx, Goal{PlayerID: p.ID})
	require.NoError(t, err)

	err = svc.DeleteByPK(ctx, p.ID)
	require.ErrorIs(t, err, ErrCommitFailed)
	var ce *CommitError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Failed to delete item.", ce.Msg)
	assert.Equal(t, database.ForeignKeyViolationErr, ce.Kind)
	assert.False(t, svc.Session().InTransaction())

	got, err := svc.GetByPK(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestAddToSessionOutlivesCallContext(t *testing.T) {
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	callCtx, cancel := context.WithCancel(context.Background())
	_, err := svc.AddToSession(callCtx, []PlayerCreate{{Name: "yves"}, {Name: "zoe"}}, false)
	require.NoError(t, err)
	cancel()

	_, err = svc.AddToSession(context.Background(), nil, true)
	require.NoError(t, err)

	count, err := svc.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPageWithoutRequest(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(openTestSession(t, openTestManager(t)))

	_, err := svc.AddToSession(ctx, []PlayerCreate{{Name: "ada"}, {Name: "ben"}}, true)
	require.NoError(t, err)

	page, err := svc.Page(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultPage, page.Page)
	assert.Equal(t, types.DefaultPageSize, page.PageSize)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 2)
}
