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
	"errors"
	"fmt"

	"github.com/tomoncle/bunservice/database"
)

var (
	// ErrService is matched by every error the service produces itself.
	ErrService = errors.New("service error")

	ErrNotFound             = fmt.Errorf("%w: not found", ErrService)
	ErrCommitFailed         = fmt.Errorf("%w: commit failed", ErrService)
	ErrMultipleResultsFound = fmt.Errorf("%w: multiple results found", ErrService)
	ErrInvalidPrimaryKey    = fmt.Errorf("%w: invalid primary key", ErrService)
	ErrInvalidChange        = fmt.Errorf("%w: invalid change", ErrService)
)

// NotFoundError is returned when no row has the requested primary key.
// Key is the formatted key, see FormatPrimaryKey.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// CommitError is returned when a write or the commit that follows it fails.
// The session has been rolled back by the time the caller sees it.
type CommitError struct {
	Msg  string
	Kind database.SQLError
	Err  error
}

func (e *CommitError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *CommitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCommitFailed}
	}
	return []error{ErrCommitFailed, e.Err}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCommitFailed reports whether err is or wraps ErrCommitFailed.
func IsCommitFailed(err error) bool {
	return errors.Is(err, ErrCommitFailed)
}
