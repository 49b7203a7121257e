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

import (
	"fmt"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// Store is the arena/table of live inodes keyed by ino, each entry
// generation-stamped. It plays the role the kernel's inode cache plays for
// the module this was ported from: every version-tree link is resolved
// through it rather than followed as a raw pointer.
//
// Generalizes the flat inode-table pattern of a plain in-memory filesystem
// into a generation-checked map. Mint never reuses an ID, so every inode it
// creates has generation 1; a stale generation can only come from a link
// that names an inode inserted with a different one.
type Store struct {
	mu syncutil.InvariantMutex

	clock timeutil.Clock

	nextID  InodeID              // GUARDED_BY(mu)
	inodes  map[InodeID]*Inode   // GUARDED_BY(mu)
	refcnts map[InodeID]int      // GUARDED_BY(mu): open-file reference count
}

// NewStore creates an empty inode store. RootInodeID (1) is reserved by
// convention, matching fuseops.RootInodeID.
func NewStore(clock timeutil.Clock) *Store {
	s := &Store{
		clock:   clock,
		nextID:  2,
		inodes:  make(map[InodeID]*Inode),
		refcnts: make(map[InodeID]int),
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s
}

// RootInodeID is the distinguished inode ID of the filesystem root
// directory, matching fuseops.RootInodeID so that fsserver can use the two
// interchangeably.
const RootInodeID InodeID = 1

func (s *Store) checkInvariants() {
	for id, in := range s.inodes {
		if in.Self.ID != id {
			panic(fmt.Sprintf("inode stored under %d has Self.ID %d", id, in.Self.ID))
		}
	}
}

// Mint allocates a fresh Inode with a never-before-used ID (generation 1)
// and records it in the store. Callers fill in version-tree links and
// attributes before the inode becomes visible to other goroutines.
func (s *Store) Mint(attrs Attributes) *Inode {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	now := s.clock.Now()
	attrs.Atime, attrs.Mtime, attrs.Ctime = now, now, now

	in := &Inode{
		Self:    Ino{ID: id, Gen: 1},
		SibPrev: Ino{ID: id, Gen: 1},
		SibNext: Ino{ID: id, Gen: 1},
		VTime:   now,
		Attrs:   attrs,
	}
	in.SibPrev, in.SibNext = in.Self, in.Self
	s.inodes[id] = in
	return in
}

// NextID allocates and returns a fresh inode ID without creating a versioned
// Inode for it. fsserver uses this to number directories and symlinks out of
// the same ID space as versioned regular files, so a single fuseops.InodeID
// always names exactly one kind of node.
func (s *Store) NextID() InodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id
}

// Insert records an already-constructed inode under its own Self.ID, keeping
// whatever generation it carries.
func (s *Store) Insert(in *Inode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inodes[in.Self.ID] = in
}

// Lookup returns the live inode for id, or nil if none exists (it has been
// fully reclaimed).
func (s *Store) Lookup(id InodeID) *Inode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inodes[id]
}

// Resolve follows an Ino reference, checking that its generation matches
// the current generation of the inode it names. A zero ID resolves to
// (nil, nil): "no link" is not an error.
func (s *Store) Resolve(ref Ino) (*Inode, error) {
	if ref.IsNil() {
		return nil, nil
	}

	s.mu.Lock()
	in, ok := s.inodes[ref.ID]
	s.mu.Unlock()

	if !ok {
		return nil, NewError(KindBrokenLink, "Resolve", fmt.Errorf("no inode %d", ref.ID))
	}
	if in.Self.Gen != ref.Gen {
		return nil, NewError(KindStaleGen, "Resolve",
			fmt.Errorf("inode %d has generation %d, link wants %d", ref.ID, in.Self.Gen, ref.Gen))
	}
	return in, nil
}

// Remove deletes id from the store outright. Called only once an inode has
// no directory reference, no version-tree reference and no open handle.
func (s *Store) Remove(id InodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inodes, id)
	delete(s.refcnts, id)
}

// Ref bumps id's open-file reference count, returning the new count.
func (s *Store) Ref(id InodeID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refcnts[id]++
	return s.refcnts[id]
}

// Unref drops id's open-file reference count, returning the new count. The
// caller transitioning to 1 is the trigger for calling ReleaseParentHandle.
func (s *Store) Unref(id InodeID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refcnts[id] > 0 {
		s.refcnts[id]--
	}
	return s.refcnts[id]
}

// Clock exposes the store's clock so other components stamp times
// consistently with it.
func (s *Store) Clock() timeutil.Clock {
	return s.clock
}
