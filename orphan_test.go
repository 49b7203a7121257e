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

import "testing"

func TestMarkPhantomSetsBitAndTracksEntry(t *testing.T) {
	store, j := newTestStoreAndJournal(t)
	in := store.Mint(Attributes{})

	o := NewOrphanList()
	h := j.Start()
	o.MarkPhantom(h, in)
	h.Commit()

	if !in.Phantom {
		t.Fatalf("MarkPhantom did not set the Phantom bit")
	}
	if !o.Contains(in.Self.ID) {
		t.Fatalf("MarkPhantom did not record the inode on the orphan list")
	}
	entries := o.Entries()
	if len(entries) != 1 || entries[0] != in.Self.ID {
		t.Fatalf("Entries() = %v, want [%d]", entries, in.Self.ID)
	}
}

func TestReleaseClearsBitAndEntry(t *testing.T) {
	store, j := newTestStoreAndJournal(t)
	in := store.Mint(Attributes{})

	o := NewOrphanList()
	h := j.Start()
	o.MarkPhantom(h, in)
	h.Commit()

	o.Release(in)
	if in.Phantom {
		t.Fatalf("Release did not clear the Phantom bit")
	}
	if o.Contains(in.Self.ID) {
		t.Fatalf("Release did not remove the inode from the orphan list")
	}
}

func TestReclaimIfUnreferenced(t *testing.T) {
	store, j := newTestStoreAndJournal(t)
	in := store.Mint(Attributes{})

	o := NewOrphanList()
	h := j.Start()
	o.MarkPhantom(h, in)
	h.Commit()

	if o.ReclaimIfUnreferenced(store, in, true) {
		t.Fatalf("reclaimed while still shared by a live descendant")
	}
	if store.Lookup(in.Self.ID) == nil {
		t.Fatalf("a still-shared phantom was removed from the store")
	}

	if !o.ReclaimIfUnreferenced(store, in, false) {
		t.Fatalf("did not reclaim an unreferenced, unshared phantom")
	}
	if store.Lookup(in.Self.ID) != nil {
		t.Fatalf("reclaimed inode is still present in the store")
	}
}

func TestReclaimIfUnreferencedSkipsNonPhantom(t *testing.T) {
	store, _ := newTestStoreAndJournal(t)
	in := store.Mint(Attributes{})

	o := NewOrphanList()
	if o.ReclaimIfUnreferenced(store, in, false) {
		t.Fatalf("reclaimed a non-phantom inode")
	}
}

func TestReclaimIfUnreferencedSkipsInodesWithChildren(t *testing.T) {
	store, j := newTestStoreAndJournal(t)
	in := store.Mint(Attributes{})
	in.ChildRef = Ino{ID: 99, Gen: 1}

	o := NewOrphanList()
	h := j.Start()
	o.MarkPhantom(h, in)
	h.Commit()

	if o.ReclaimIfUnreferenced(store, in, false) {
		t.Fatalf("reclaimed a phantom that still has a child")
	}
}
