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

// Package bunservice provides a generic CRUD service on top of Bun.
//
// A Service is created per request from a database.Session:
//
//	sess, _ := database.OpenSession()
//	defer sess.Close()
//
//	players := bunservice.New[Player, PlayerCreate, PlayerUpdate, int64](sess)
//	p, err := players.Create(ctx, PlayerCreate{Name: "joe"})
//	p, err = players.Update(ctx, p.ID, PlayerUpdate{Score: ptr(10)})
//
// Writes run in the session transaction and commit it. Failures surface as
// *CommitError (errors.Is ErrCommitFailed) after the transaction is rolled
// back; updating or deleting a missing row returns *NotFoundError
// (errors.Is ErrNotFound). REST handlers usually map them to 400 and 404.
package bunservice
