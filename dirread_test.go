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

func TestDirReaderOnRootWithNoChildrenIsEmpty(t *testing.T) {
	store := NewStore(&fakeClock{})
	root := store.Mint(Attributes{})
	SelfLink(root)

	entries, err := NewDirReader(store, root).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("ReadAll on a childless root returned %v, want none", entries)
	}
}

func TestDirReaderEmitsParentEntryFirst(t *testing.T) {
	store, j := newTestStoreAndJournal(t)
	live := store.Mint(Attributes{})
	SelfLink(live)

	h := j.Start()
	parent, err := CreateSnapshot(h, store, live, nil)
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	h.Commit()

	entries, err := NewDirReader(store, live).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ReadAll = %v, want exactly the parent entry", entries)
	}
	if entries[0].Ino != parent.Self.ID || entries[0].Type != DTParent|DTVRoot {
		t.Fatalf("entry = %+v, want {%d, DTParent|DTVRoot}", entries[0], parent.Self.ID)
	}
}

func TestDirReaderEmitsParentThenEachChildAroundTheRing(t *testing.T) {
	store, j := newTestStoreAndJournal(t)
	live := store.Mint(Attributes{})
	SelfLink(live)

	h := j.Start()
	parent, err := CreateSnapshot(h, store, live, nil)
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	h.Commit()

	// Give the frozen parent a second child sibling of live, directly on the
	// ring, so the reader has more than one child entry to walk.
	sib := store.Mint(Attributes{})
	SelfLink(sib)
	h = j.Start()
	if err := InsertAfter(h, store, live, sib); err != nil {
		t.Fatalf("InsertAfter: %v", err)
	}
	sib.ParentRef = parent.Self
	h.Commit()

	entries, err := NewDirReader(store, parent).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ReadAll on parent = %v, want two child entries (no parent entry: parent is root)", entries)
	}
	for _, e := range entries {
		if e.Type != DTChild {
			t.Fatalf("entry %+v is not DTChild", e)
		}
	}
	seen := map[InodeID]bool{entries[0].Ino: true, entries[1].Ino: true}
	if !seen[live.Self.ID] || !seen[sib.Self.ID] {
		t.Fatalf("entries %v do not cover both children %d and %d", entries, live.Self.ID, sib.Self.ID)
	}
}
