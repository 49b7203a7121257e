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

// This file implements the version directory reader: reading a versioned
// file as if it were a directory emits pseudo-entries describing its place
// in the version tree, for clients that want to enumerate a file's history
// without a dedicated ioctl.

// Dirent is one pseudo-entry produced by reading a versioned file as a
// directory. Entries carry no name; clients reopen Ino with O_VSEARCH to
// navigate to it.
type Dirent struct {
	Ino  InodeID
	Type DirentType
}

// cursorKind distinguishes the two phases of a DirReader's walk: the
// single parent entry, then the sibling ring of children.
type cursorKind int

const (
	cursorParent cursorKind = iota
	cursorChildren
)

// DirReader enumerates the pseudo-directory entries of one version node.
// It is not safe for concurrent use; each walk needs its own DirReader.
type DirReader struct {
	store *Store
	node  *Inode

	kind cursorKind
	// pos is the next child to emit (cursorChildren), or zero before the
	// parent entry has been emitted.
	pos Ino
	// start is the first child emitted, so the walk knows when it has gone
	// all the way around the sibling ring.
	start Ino
	done  bool
}

// NewDirReader begins a fresh walk of node's pseudo-directory entries.
func NewDirReader(store *Store, node *Inode) *DirReader {
	return &DirReader{store: store, node: node, kind: cursorParent}
}

// Next returns the next pseudo-entry, or (Dirent{}, false, nil) once the
// walk is exhausted.
func (r *DirReader) Next() (Dirent, bool, error) {
	if r.done {
		return Dirent{}, false, nil
	}

	if r.kind == cursorParent {
		r.kind = cursorChildren
		if r.node.ChildRef.IsNil() {
			r.done = true
		} else {
			r.pos = r.node.ChildRef
			r.start = r.node.ChildRef
		}

		if r.node.ParentRef.IsNil() {
			// A version-tree root has no parent entry to emit; fall through
			// to the first child instead of returning early.
			return r.Next()
		}

		parent, err := r.store.Resolve(r.node.ParentRef)
		if err != nil {
			return Dirent{}, false, err
		}
		typ := DTParent
		if parent.IsRoot() {
			typ |= DTVRoot
		}
		return Dirent{Ino: parent.Self.ID, Type: typ}, true, nil
	}

	// cursorChildren.
	if r.done || r.pos.IsNil() {
		r.done = true
		return Dirent{}, false, nil
	}

	child, err := r.store.Resolve(r.pos)
	if err != nil {
		return Dirent{}, false, err
	}
	if child == nil {
		r.done = true
		return Dirent{}, false, nil
	}

	entry := Dirent{Ino: child.Self.ID, Type: DTChild}

	if child.SibNext == r.start {
		r.done = true
	} else {
		r.pos = child.SibNext
	}
	return entry, true, nil
}

// ReadAll drains r, mainly for tests and for small version trees where a
// caller doesn't need incremental delivery.
func (r *DirReader) ReadAll() ([]Dirent, error) {
	var out []Dirent
	for {
		d, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, d)
	}
}
