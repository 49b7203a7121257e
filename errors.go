// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package yuiha

import "fmt"

// Kind classifies the errors a version-tree operation can return.
type Kind int

const (
	// KindNone is the zero value; never returned.
	KindNone Kind = iota

	// KindBadName indicates a name that is too long or empty.
	KindBadName

	// KindNotFound indicates a directory entry or version is missing.
	KindNotFound

	// KindStaleGen indicates a generation mismatch on a tree link: a stored
	// *_gen no longer equals the current generation of the inode at *_ino.
	KindStaleGen

	// KindBrokenLink indicates a tree pointer references a non-existent
	// inode.
	KindBrokenLink

	// KindNoSpace indicates the block allocator is exhausted. Snapshot
	// callers may retry once after allocator-driven reclamation.
	KindNoSpace

	// KindIOError indicates a block read/write failure.
	KindIOError

	// KindJournalAbort indicates a transaction could not commit.
	KindJournalAbort

	// KindNotPermitted indicates an operation forbidden by the version-tree
	// shape, e.g. DELETE_VERSION on a root version.
	KindNotPermitted
)

func (k Kind) String() string {
	switch k {
	case KindBadName:
		return "BadName"
	case KindNotFound:
		return "NotFound"
	case KindStaleGen:
		return "StaleGen"
	case KindBrokenLink:
		return "BrokenLink"
	case KindNoSpace:
		return "NoSpace"
	case KindIOError:
		return "IoError"
	case KindJournalAbort:
		return "JournalAbort"
	case KindNotPermitted:
		return "NotPermitted"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every yuiha component. It carries a
// Kind so that callers at the fsserver boundary can translate it to the
// right syscall.Errno without string matching, and an optional wrapped
// cause for logging.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "CreateSnapshot"
	Err  error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("yuiha: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("yuiha: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError constructs an *Error with the given kind and operation name,
// optionally wrapping a cause.
func NewError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	ye, ok := err.(*Error)
	return ok && ye.Kind == kind
}
