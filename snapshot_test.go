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

func TestCreateSnapshotMarksOpenPagesShared(t *testing.T) {
	store, j := newTestStoreAndJournal(t)
	live := store.Mint(Attributes{})
	SelfLink(live)

	p0 := NewPage(0, 4096)
	p1 := NewPage(1, 4096)

	h := j.Start()
	if _, err := CreateSnapshot(h, store, live, []*Page{p0, p1}); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	h.Commit()

	if !p0.Shared || !p1.Shared {
		t.Fatalf("CreateSnapshot did not mark every open page shared: %+v %+v", p0, p1)
	}
}

func TestCreateSnapshotWithNoOpenPagesIsFine(t *testing.T) {
	store, j := newTestStoreAndJournal(t)
	live := store.Mint(Attributes{})
	SelfLink(live)

	h := j.Start()
	if _, err := CreateSnapshot(h, store, live, nil); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	h.Commit()
}
