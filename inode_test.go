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

func TestBlockPtrPacksProducerBit(t *testing.T) {
	cases := []struct {
		num      uint32
		producer bool
	}{
		{0, false},
		{0, true},
		{1, false},
		{1, true},
		{blockNumberMask, true},
	}

	for _, tc := range cases {
		ptr := NewBlockPtr(tc.num, tc.producer)
		if got := ptr.Number(); got != tc.num {
			t.Errorf("NewBlockPtr(%d, %v).Number() = %d, want %d", tc.num, tc.producer, got, tc.num)
		}
		if got := ptr.IsProducer(); got != tc.producer {
			t.Errorf("NewBlockPtr(%d, %v).IsProducer() = %v, want %v", tc.num, tc.producer, got, tc.producer)
		}
	}
}

func TestBlockPtrRejectsOutOfRangeNumber(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("NewBlockPtr with an out-of-range number did not panic")
		}
	}()
	NewBlockPtr(producerBit, false)
}

func TestBlockPtrIsHole(t *testing.T) {
	if !BlockPtr(0).IsHole() {
		t.Errorf("zero-value BlockPtr is not a hole")
	}
	if NewBlockPtr(0, true).IsHole() {
		t.Errorf("a producer pointer to block 0 is a hole")
	}
	if NewBlockPtr(5, false).IsHole() {
		t.Errorf("a shared pointer to block 5 is a hole")
	}
}

func TestWithProducerPreservesNumber(t *testing.T) {
	ptr := NewBlockPtr(9, false)
	ptr = ptr.WithProducer(true)
	if !ptr.IsProducer() {
		t.Errorf("WithProducer(true) did not set the producer bit")
	}
	if ptr.Number() != 9 {
		t.Errorf("WithProducer changed the block number: got %d, want 9", ptr.Number())
	}
}

func TestEncodeDecodeExtRoundTrips(t *testing.T) {
	in := &Inode{
		ParentRef:  Ino{ID: 3, Gen: 2},
		ChildRef:   Ino{ID: 4, Gen: 1},
		SibPrev:    Ino{ID: 5, Gen: 7},
		SibNext:    Ino{ID: 6, Gen: 8},
		VTreeNlink: 11,
	}
	in.VTime = in.VTime.UTC()

	buf := in.EncodeExt()

	var out Inode
	out.DecodeExt(buf)

	if out.ParentRef != in.ParentRef {
		t.Errorf("ParentRef = %+v, want %+v", out.ParentRef, in.ParentRef)
	}
	if out.ChildRef != in.ChildRef {
		t.Errorf("ChildRef = %+v, want %+v", out.ChildRef, in.ChildRef)
	}
	if out.SibPrev != in.SibPrev {
		t.Errorf("SibPrev = %+v, want %+v", out.SibPrev, in.SibPrev)
	}
	if out.SibNext != in.SibNext {
		t.Errorf("SibNext = %+v, want %+v", out.SibNext, in.SibNext)
	}
	if out.VTreeNlink != in.VTreeNlink {
		t.Errorf("VTreeNlink = %d, want %d", out.VTreeNlink, in.VTreeNlink)
	}
}

func TestIsRootAndHasChild(t *testing.T) {
	root := &Inode{}
	if !root.IsRoot() {
		t.Errorf("an inode with a nil ParentRef is not reported as root")
	}
	if root.HasChild() {
		t.Errorf("an inode with a nil ChildRef reports having a child")
	}

	child := &Inode{ParentRef: Ino{ID: 1, Gen: 1}}
	if child.IsRoot() {
		t.Errorf("an inode with a non-nil ParentRef is reported as root")
	}

	withChild := &Inode{ChildRef: Ino{ID: 2, Gen: 1}}
	if !withChild.HasChild() {
		t.Errorf("an inode with a non-nil ChildRef does not report having a child")
	}
}

func TestSelfLooped(t *testing.T) {
	in := &Inode{Self: Ino{ID: 1, Gen: 1}}
	in.SibPrev, in.SibNext = in.Self, in.Self
	if !in.SelfLooped() {
		t.Errorf("an inode linked to itself is not reported as self-looped")
	}

	in.SibNext = Ino{ID: 2, Gen: 1}
	if in.SelfLooped() {
		t.Errorf("an inode linked to another inode is reported as self-looped")
	}
}
